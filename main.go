package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"holocard/template-gateway/config"
	"holocard/template-gateway/handlers"
	"holocard/template-gateway/internal/cache"
	"holocard/template-gateway/internal/catalog"
	"holocard/template-gateway/internal/serializer"
	"holocard/template-gateway/internal/storage"
	"holocard/template-gateway/internal/writequeue"
	"holocard/template-gateway/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := config.NewLogger(cfg.LogLevel)

	supabaseClient, err := config.NewSupabaseClient(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize Supabase: %v", err)
	}

	objectStore := storage.NewSupabaseStore(supabaseClient.Storage, cfg.SupabaseURL)
	transfer := storage.NewTransferService(objectStore, logger, cfg.TemplateBucket, cfg.ThumbnailBucket, cfg.UploadURLTTLSeconds)

	cat, err := catalog.New(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.CatalogTable, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize catalog: %v", err)
	}

	cacheStore, err := cache.NewSQLiteStore(cfg.CacheDBPath, cfg.CacheQuotaBytes)
	if err != nil {
		logger.Fatalf("Failed to open local template library: %v", err)
	}
	defer cacheStore.Close()

	ser := serializer.New()
	library := cache.NewManager(cacheStore, transfer, ser, logger)

	// All library mutations funnel through a single queue; the cache store's
	// read-modify-write cycle is not safe for concurrent writers.
	writes := writequeue.New(100, logger)
	writes.Run()
	defer writes.Stop()

	h := handlers.NewApplicationHandler(logger, transfer, cat, library, ser, writes)

	app := fiber.New()

	// Middleware
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))
	app.Use(middleware.RequestLogger(logger))

	// Health check route
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":  "ok",
			"message": "Template gateway is healthy",
		})
	})

	// API v1 routes
	apiV1 := app.Group("/api/v1")

	// Publish flow
	templates := apiV1.Group("/templates")
	templates.Post("/publish/initiate", h.InitiatePublish)
	templates.Post("/publish", h.PublishTemplate)
	templates.Post("/:templateId/verify", h.VerifyUpload)
	templates.Get("/:templateId/download-url", h.GetDownloadURL)
	templates.Post("/:templateId/thumbnail/initiate", h.InitiateThumbnailUpload)
	templates.Delete("/:templateId/thumbnail", h.DeleteThumbnail)
	templates.Delete("/:templateId", h.DeleteTemplate)

	// Local template library
	lib := apiV1.Group("/library")
	lib.Get("", h.ListLibrary)
	lib.Get("/footprint", h.LibraryFootprint)
	lib.Get("/export", h.ExportLibrary)
	lib.Post("/import", h.ImportLibrary)
	lib.Post("/:templateId/download", h.DownloadToLibrary)
	lib.Get("/:templateId", h.GetLibraryEntry)
	lib.Delete("/:templateId", h.RemoveLibraryEntry)

	// Graceful shutdown on SIGINT/SIGTERM
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Info("Shutting down template gateway...")
		if err := app.Shutdown(); err != nil {
			logger.Errorf("Error during shutdown: %v", err)
		}
	}()

	logger.Infof("Starting template gateway on %s...", cfg.ListenAddr)
	if err := app.Listen(cfg.ListenAddr); err != nil {
		logger.Fatalf("Server stopped: %v", err)
	}
}
