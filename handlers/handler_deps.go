package handlers

import (
	"github.com/sirupsen/logrus"

	"holocard/template-gateway/internal/cache"
	"holocard/template-gateway/internal/serializer"
	"holocard/template-gateway/internal/storage"
	"holocard/template-gateway/internal/writequeue"
	"holocard/template-gateway/models"
)

// CatalogInterface defines the operations handlers expect from the published-
// template catalog. This allows for decoupling and easier testing; the
// concrete implementation lives in the catalog package.
type CatalogInterface interface {
	CreateRecord(record *models.CatalogTemplate) error
	UpdateState(templateID, state, errorMessage string) error
	SetThumbnail(templateID, thumbnailPath string) error
	GetRecord(templateID string) (*models.CatalogTemplate, error)
	DeleteRecord(templateID string) error
}

// ApplicationHandler holds shared dependencies for handlers.
type ApplicationHandler struct {
	Logger     *logrus.Logger
	Transfer   *storage.TransferService
	Catalog    CatalogInterface
	Library    *cache.Manager
	Serializer *serializer.Serializer
	// Writes serializes library mutations; the cache store has no internal
	// locking.
	Writes *writequeue.Queue
}

// NewApplicationHandler creates a new ApplicationHandler with the given dependencies.
func NewApplicationHandler(logger *logrus.Logger, transfer *storage.TransferService, cat CatalogInterface, library *cache.Manager, ser *serializer.Serializer, writes *writequeue.Queue) *ApplicationHandler {
	return &ApplicationHandler{
		Logger:     logger,
		Transfer:   transfer,
		Catalog:    cat,
		Library:    library,
		Serializer: ser,
		Writes:     writes,
	}
}
