package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"holocard/template-gateway/internal/cache"
	"holocard/template-gateway/internal/serializer"
	"holocard/template-gateway/internal/storage"
	"holocard/template-gateway/internal/writequeue"
	"holocard/template-gateway/models"
)

// fakeObjectStore keeps objects in memory.
type fakeObjectStore struct {
	objects map[string][]byte
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: map[string][]byte{}}
}

func (f *fakeObjectStore) CreateSignedUploadURL(bucket, path string) (string, error) {
	return fmt.Sprintf("https://store.test/upload/%s/%s?token=signed", bucket, path), nil
}

func (f *fakeObjectStore) CreateSignedDownloadURL(bucket, path string, expiresInSeconds int) (string, error) {
	return fmt.Sprintf("https://store.test/signed/%s/%s?expires=%d", bucket, path, expiresInSeconds), nil
}

func (f *fakeObjectStore) PublicURL(bucket, path string) string {
	return fmt.Sprintf("https://store.test/public/%s/%s", bucket, path)
}

func (f *fakeObjectStore) Stat(bucket, path string) (*storage.ObjectInfo, error) {
	content, ok := f.objects[bucket+"/"+path]
	if !ok {
		return nil, fmt.Errorf("object '%s' not found", path)
	}
	return &storage.ObjectInfo{Name: path, Size: int64(len(content))}, nil
}

func (f *fakeObjectStore) Remove(bucket string, paths []string) error {
	for _, p := range paths {
		delete(f.objects, bucket+"/"+p)
	}
	return nil
}

func (f *fakeObjectStore) Upload(bucket, path string, data io.Reader, contentType string) error {
	content, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.objects[bucket+"/"+path] = content
	return nil
}

func (f *fakeObjectStore) Download(bucket, path string) ([]byte, error) {
	content, ok := f.objects[bucket+"/"+path]
	if !ok {
		return nil, fmt.Errorf("object '%s' not found", path)
	}
	return content, nil
}

// fakeCatalog records catalog calls in memory.
type fakeCatalog struct {
	records map[string]*models.CatalogTemplate
	states  map[string]string
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		records: map[string]*models.CatalogTemplate{},
		states:  map[string]string{},
	}
}

func (f *fakeCatalog) CreateRecord(record *models.CatalogTemplate) error {
	f.records[record.TemplateID] = record
	f.states[record.TemplateID] = record.UploadState
	return nil
}

func (f *fakeCatalog) UpdateState(templateID, state, errorMessage string) error {
	f.states[templateID] = state
	return nil
}

func (f *fakeCatalog) SetThumbnail(templateID, thumbnailPath string) error {
	if record, ok := f.records[templateID]; ok {
		record.ThumbnailPath = &thumbnailPath
	}
	return nil
}

func (f *fakeCatalog) GetRecord(templateID string) (*models.CatalogTemplate, error) {
	return f.records[templateID], nil
}

func (f *fakeCatalog) DeleteRecord(templateID string) error {
	delete(f.records, templateID)
	delete(f.states, templateID)
	return nil
}

type testEnv struct {
	app     *fiber.App
	store   *fakeObjectStore
	catalog *fakeCatalog
	queue   *writequeue.Queue
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithLibraryStore(t, cache.NewMemoryStore(0))
}

func newTestEnvWithLibraryStore(t *testing.T, libraryStore cache.Store) *testEnv {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := newFakeObjectStore()
	transfer := storage.NewTransferService(store, logger, "card-templates", "card-thumbnails", 3600)
	cat := newFakeCatalog()
	ser := serializer.New()
	library := cache.NewManager(libraryStore, transfer, ser, logger)

	queue := writequeue.New(10, logger)
	queue.Run()
	t.Cleanup(queue.Stop)

	h := NewApplicationHandler(logger, transfer, cat, library, ser, queue)

	app := fiber.New()
	apiV1 := app.Group("/api/v1")
	templates := apiV1.Group("/templates")
	templates.Post("/publish/initiate", h.InitiatePublish)
	templates.Post("/publish", h.PublishTemplate)
	templates.Post("/:templateId/verify", h.VerifyUpload)
	templates.Get("/:templateId/download-url", h.GetDownloadURL)
	templates.Post("/:templateId/thumbnail/initiate", h.InitiateThumbnailUpload)
	templates.Delete("/:templateId", h.DeleteTemplate)

	lib := apiV1.Group("/library")
	lib.Get("", h.ListLibrary)
	lib.Get("/footprint", h.LibraryFootprint)
	lib.Get("/export", h.ExportLibrary)
	lib.Post("/import", h.ImportLibrary)
	lib.Post("/:templateId/download", h.DownloadToLibrary)
	lib.Get("/:templateId", h.GetLibraryEntry)
	lib.Delete("/:templateId", h.RemoveLibraryEntry)

	return &testEnv{app: app, store: store, catalog: cat, queue: queue}
}

func jsonRequest(t *testing.T, method, target string, body interface{}) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func decodeResponse(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var parsed map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	return parsed
}

func publishableCard() *models.Card {
	return &models.Card{
		Title:      "Nebula Phoenix",
		Author:     models.Author{ID: "author-7", Name: "Kai"},
		Category:   "Cosmic",
		FrontImage: &models.CardImage{Data: []byte("front-image-png-bytes")},
		Holographic: models.HolographicConfig{
			EffectType: "prismatic",
			Intensity:  0.9,
		},
	}
}

func TestInitiatePublishIssuesTicketAndRecord(t *testing.T) {
	env := newTestEnv(t)

	req := jsonRequest(t, http.MethodPost, "/api/v1/templates/publish/initiate", fiber.Map{
		"card": publishableCard(),
	})
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	parsed := decodeResponse(t, resp)
	data := parsed["data"].(map[string]interface{})
	templateID := data["template_id"].(string)
	assert.Contains(t, templateID, "cosmic")
	assert.NotEmpty(t, data["content_hash"])

	upload := data["upload"].(map[string]interface{})
	assert.Contains(t, upload["upload_url"], "token=signed")
	assert.Equal(t, fmt.Sprintf("templates/%s.json", templateID), upload["storage_path"])

	require.Contains(t, env.catalog.records, templateID)
	assert.Equal(t, models.UploadStateURLIssued, env.catalog.states[templateID])
}

func TestInitiatePublishRejectsMissingCard(t *testing.T) {
	env := newTestEnv(t)

	req := jsonRequest(t, http.MethodPost, "/api/v1/templates/publish/initiate", fiber.Map{})
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestInitiatePublishRejectsCardWithoutFrontImage(t *testing.T) {
	env := newTestEnv(t)

	card := publishableCard()
	card.FrontImage = nil
	req := jsonRequest(t, http.MethodPost, "/api/v1/templates/publish/initiate", fiber.Map{"card": card})
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
}

func TestPublishVerifyDownloadFlow(t *testing.T) {
	env := newTestEnv(t)

	// Direct publish puts the document into the store server-side.
	req := jsonRequest(t, http.MethodPost, "/api/v1/templates/publish", fiber.Map{
		"card": publishableCard(),
	})
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	data := decodeResponse(t, resp)["data"].(map[string]interface{})
	templateID := data["template_id"].(string)
	assert.Equal(t, models.UploadStateVerified, env.catalog.states[templateID])

	// Verification sees the uploaded object.
	req = jsonRequest(t, http.MethodPost, fmt.Sprintf("/api/v1/templates/%s/verify", templateID), fiber.Map{
		"expected_hash": data["content_hash"],
	})
	resp, err = env.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	verify := decodeResponse(t, resp)["data"].(map[string]interface{})
	assert.Equal(t, true, verify["verified"])

	// Public and presigned download URLs.
	resp, err = env.app.Test(jsonRequest(t, http.MethodGet, fmt.Sprintf("/api/v1/templates/%s/download-url", templateID), nil), -1)
	require.NoError(t, err)
	urlData := decodeResponse(t, resp)["data"].(map[string]interface{})
	assert.Equal(t, false, urlData["presigned"])
	assert.Contains(t, urlData["download_url"], "/public/")

	resp, err = env.app.Test(jsonRequest(t, http.MethodGet, fmt.Sprintf("/api/v1/templates/%s/download-url?presigned=true&ttl=300", templateID), nil), -1)
	require.NoError(t, err)
	urlData = decodeResponse(t, resp)["data"].(map[string]interface{})
	assert.Equal(t, true, urlData["presigned"])
	assert.Contains(t, urlData["download_url"], "expires=300")

	// Download into the local library.
	resp, err = env.app.Test(jsonRequest(t, http.MethodPost, fmt.Sprintf("/api/v1/library/%s/download", templateID), nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp, err = env.app.Test(jsonRequest(t, http.MethodGet, "/api/v1/library", nil), -1)
	require.NoError(t, err)
	libData := decodeResponse(t, resp)["data"].(map[string]interface{})
	assert.Equal(t, float64(1), libData["count"])

	// And remove it again.
	resp, err = env.app.Test(jsonRequest(t, http.MethodDelete, fmt.Sprintf("/api/v1/library/%s", templateID), nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = env.app.Test(jsonRequest(t, http.MethodGet, fmt.Sprintf("/api/v1/library/%s", templateID), nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestVerifyUnknownTemplateReturns404(t *testing.T) {
	env := newTestEnv(t)

	req := jsonRequest(t, http.MethodPost, "/api/v1/templates/tpl-ghost/verify", fiber.Map{
		"expected_hash": "deadbeef",
	})
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestThumbnailInitiateRejectsBadType(t *testing.T) {
	env := newTestEnv(t)

	req := jsonRequest(t, http.MethodPost, "/api/v1/templates/tpl-1/thumbnail/initiate", fiber.Map{
		"content_type": "application/pdf",
		"byte_size":    1024,
	})
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnsupportedMediaType, resp.StatusCode)

	req = jsonRequest(t, http.MethodPost, "/api/v1/templates/tpl-1/thumbnail/initiate", fiber.Map{
		"content_type": "image/png",
		"byte_size":    storage.MaxThumbnailBytes + 1,
	})
	resp, err = env.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusRequestEntityTooLarge, resp.StatusCode)

	req = jsonRequest(t, http.MethodPost, "/api/v1/templates/tpl-1/thumbnail/initiate", fiber.Map{
		"content_type": "image/png",
		"byte_size":    2048,
	})
	resp, err = env.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
}

func TestDeleteTemplateIsIdempotent(t *testing.T) {
	env := newTestEnv(t)

	req := jsonRequest(t, http.MethodPost, "/api/v1/templates/publish", fiber.Map{
		"card": publishableCard(),
	})
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	data := decodeResponse(t, resp)["data"].(map[string]interface{})
	templateID := data["template_id"].(string)

	resp, err = env.app.Test(jsonRequest(t, http.MethodDelete, "/api/v1/templates/"+templateID, nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	// Deleting again still succeeds.
	resp, err = env.app.Test(jsonRequest(t, http.MethodDelete, "/api/v1/templates/"+templateID, nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestLibraryExportImport(t *testing.T) {
	env := newTestEnv(t)

	req := jsonRequest(t, http.MethodPost, "/api/v1/templates/publish", fiber.Map{
		"card": publishableCard(),
	})
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	data := decodeResponse(t, resp)["data"].(map[string]interface{})
	templateID := data["template_id"].(string)

	resp, err = env.app.Test(jsonRequest(t, http.MethodPost, fmt.Sprintf("/api/v1/library/%s/download", templateID), nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp, err = env.app.Test(jsonRequest(t, http.MethodGet, "/api/v1/library/export", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	bundle, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	// Re-import the exported bundle; merge keeps a single entry.
	importReq := httptest.NewRequest(http.MethodPost, "/api/v1/library/import", bytes.NewReader(bundle))
	importReq.Header.Set("Content-Type", "application/json")
	resp, err = env.app.Test(importReq, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	importData := decodeResponse(t, resp)["data"].(map[string]interface{})
	assert.Equal(t, float64(1), importData["imported"])

	resp, err = env.app.Test(jsonRequest(t, http.MethodGet, "/api/v1/library", nil), -1)
	require.NoError(t, err)
	libData := decodeResponse(t, resp)["data"].(map[string]interface{})
	assert.Equal(t, float64(1), libData["count"])
}

// instrumentedStore records the context each mutation runs under and can fail
// saves on demand.
type instrumentedStore struct {
	inner   cache.Store
	saveErr error

	mu       sync.Mutex
	contexts []context.Context
}

func (s *instrumentedStore) record(ctx context.Context) {
	s.mu.Lock()
	s.contexts = append(s.contexts, ctx)
	s.mu.Unlock()
}

func (s *instrumentedStore) Load(ctx context.Context) ([]models.CachedTemplateEntry, error) {
	s.record(ctx)
	return s.inner.Load(ctx)
}

func (s *instrumentedStore) Save(ctx context.Context, entries []models.CachedTemplateEntry) error {
	s.record(ctx)
	if s.saveErr != nil {
		return s.saveErr
	}
	return s.inner.Save(ctx, entries)
}

func (s *instrumentedStore) Footprint(ctx context.Context) (int64, error) {
	return s.inner.Footprint(ctx)
}

func (s *instrumentedStore) Close() error { return s.inner.Close() }

func TestLibraryMutationsRunOnDetachedContext(t *testing.T) {
	store := &instrumentedStore{inner: cache.NewMemoryStore(0)}
	env := newTestEnvWithLibraryStore(t, store)

	req := jsonRequest(t, http.MethodPost, "/api/v1/templates/publish", fiber.Map{
		"card": publishableCard(),
	})
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	templateID := decodeResponse(t, resp)["data"].(map[string]interface{})["template_id"].(string)

	resp, err = env.app.Test(jsonRequest(t, http.MethodPost, fmt.Sprintf("/api/v1/library/%s/download", templateID), nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	// Queued jobs may outlive the request that submitted them, so none of the
	// library writes may run under the request's (recyclable, cancelable)
	// context.
	store.mu.Lock()
	defer store.mu.Unlock()
	require.NotEmpty(t, store.contexts)
	for _, ctx := range store.contexts {
		assert.Nil(t, ctx.Done(), "library mutation ran under a request-bound context")
	}
}

func TestImportLibraryStatusMapping(t *testing.T) {
	store := &instrumentedStore{inner: cache.NewMemoryStore(0)}
	env := newTestEnvWithLibraryStore(t, store)

	// A malformed bundle is the client's fault.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/library/import", bytes.NewReader([]byte(`{"not":"a list"}`)))
	req.Header.Set("Content-Type", "application/json")
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	// A broken library store is not. Build a valid bundle first.
	pub := jsonRequest(t, http.MethodPost, "/api/v1/templates/publish", fiber.Map{"card": publishableCard()})
	resp, err = env.app.Test(pub, -1)
	require.NoError(t, err)
	templateID := decodeResponse(t, resp)["data"].(map[string]interface{})["template_id"].(string)

	resp, err = env.app.Test(jsonRequest(t, http.MethodPost, fmt.Sprintf("/api/v1/library/%s/download", templateID), nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp, err = env.app.Test(jsonRequest(t, http.MethodGet, "/api/v1/library/export", nil), -1)
	require.NoError(t, err)
	exported, rerr := io.ReadAll(resp.Body)
	require.NoError(t, rerr)
	resp.Body.Close()

	store.saveErr = errors.New("disk I/O error")
	req = httptest.NewRequest(http.MethodPost, "/api/v1/library/import", bytes.NewReader(exported))
	req.Header.Set("Content-Type", "application/json")
	resp, err = env.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}
