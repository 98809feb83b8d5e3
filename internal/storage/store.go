package storage

import (
	"fmt"
	"io"
	"strings"

	storage_go "github.com/supabase-community/storage-go"
)

// ObjectInfo is the metadata subset the transfer service needs from a HEAD-
// style lookup.
type ObjectInfo struct {
	Name string
	Size int64
}

// ObjectStore abstracts the object-storage verbs the transfer service uses,
// so tests can substitute a fake store without network access.
type ObjectStore interface {
	CreateSignedUploadURL(bucket, path string) (string, error)
	CreateSignedDownloadURL(bucket, path string, expiresInSeconds int) (string, error)
	PublicURL(bucket, path string) string
	// Stat returns the object's metadata, or an error if it does not exist.
	Stat(bucket, path string) (*ObjectInfo, error)
	Remove(bucket string, paths []string) error
	Upload(bucket, path string, data io.Reader, contentType string) error
	Download(bucket, path string) ([]byte, error)
}

// SupabaseStore adapts the Supabase storage client to ObjectStore. Signed
// URLs come back relative to the project, so the adapter absolutizes them
// against the base URL.
type SupabaseStore struct {
	client  *storage_go.Client
	baseURL string
}

// NewSupabaseStore wraps an initialized storage client. baseURL is the
// project URL, e.g. https://xyz.supabase.co.
func NewSupabaseStore(client *storage_go.Client, baseURL string) *SupabaseStore {
	return &SupabaseStore{
		client:  client,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

func (s *SupabaseStore) CreateSignedUploadURL(bucket, path string) (string, error) {
	resp, err := s.client.CreateSignedUploadUrl(bucket, path)
	if err != nil {
		return "", err
	}
	return s.absolutize(resp.Url), nil
}

func (s *SupabaseStore) CreateSignedDownloadURL(bucket, path string, expiresInSeconds int) (string, error) {
	resp, err := s.client.CreateSignedUrl(bucket, path, expiresInSeconds)
	if err != nil {
		return "", err
	}
	return s.absolutize(resp.SignedURL), nil
}

func (s *SupabaseStore) PublicURL(bucket, path string) string {
	resp := s.client.GetPublicUrl(bucket, path)
	return s.absolutize(resp.SignedURL)
}

func (s *SupabaseStore) Stat(bucket, path string) (*ObjectInfo, error) {
	dir, name := splitObjectPath(path)
	objects, err := s.client.ListFiles(bucket, dir, storage_go.FileSearchOptions{})
	if err != nil {
		return nil, err
	}
	for _, obj := range objects {
		if obj.Name != name {
			continue
		}
		return &ObjectInfo{Name: obj.Name, Size: objectSize(obj)}, nil
	}
	return nil, fmt.Errorf("object '%s' not found in bucket '%s'", path, bucket)
}

func (s *SupabaseStore) Remove(bucket string, paths []string) error {
	_, err := s.client.RemoveFile(bucket, paths)
	return err
}

func (s *SupabaseStore) Upload(bucket, path string, data io.Reader, contentType string) error {
	_, err := s.client.UploadFile(bucket, path, data, storage_go.FileOptions{
		ContentType: &contentType,
		Upsert:      boolPtr(true),
	})
	return err
}

func (s *SupabaseStore) Download(bucket, path string) ([]byte, error) {
	return s.client.DownloadFile(bucket, path)
}

// absolutize prepends the project URL when the API hands back a relative
// signed path.
func (s *SupabaseStore) absolutize(url string) string {
	if strings.HasPrefix(url, "http") {
		return url
	}
	if strings.HasPrefix(url, "/") {
		return s.baseURL + url
	}
	return s.baseURL + "/" + url
}

// objectSize digs the byte size out of the list response metadata. The API
// reports it as a JSON number.
func objectSize(obj storage_go.FileObject) int64 {
	meta, ok := any(obj.Metadata).(map[string]interface{})
	if !ok {
		return 0
	}
	if size, ok := meta["size"].(float64); ok {
		return int64(size)
	}
	return 0
}

func splitObjectPath(path string) (dir, name string) {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return "", path
	}
	return path[:idx], path[idx+1:]
}

func boolPtr(b bool) *bool { return &b }
