package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/arunlm/medilab-backend/internal/config"
	"github.com/arunlm/medilab-backend/internal/extract"
	"github.com/arunlm/medilab-backend/internal/http/handlers"
	"github.com/arunlm/medilab-backend/internal/ingest"
	"github.com/arunlm/medilab-backend/internal/observability"
	"github.com/arunlm/medilab-backend/internal/platform/logger"
	"github.com/arunlm/medilab-backend/internal/platform/openai"
	"github.com/arunlm/medilab-backend/internal/server"
	"github.com/arunlm/medilab-backend/internal/store"
	"github.com/arunlm/medilab-backend/internal/types"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Config
	cfg, err := config.Load(log)
	if err != nil {
		log.Fatal("Config load failed", "error", err)
	}
	log.Info("Configuration loaded",
		"db_name", cfg.DBName,
		"db_collection", cfg.DBCollection,
		"vision_fallback", cfg.VisionFallbackEnabled,
		"ocr_language", cfg.OCRLanguage,
	)

	ctx := context.Background()

	// Tracing
	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "medilab-backend",
		Environment: os.Getenv("APP_ENV"),
		Version:     os.Getenv("APP_VERSION"),
	})
	if otelShutdown != nil {
		defer func() {
			shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shCtx)
		}()
	}

	// Document store (probed once; the choice is final for the process)
	docStore := store.Select(ctx, cfg.DatabaseURL, cfg.DBCollection, cfg.StoreProbeTimeout, log)
	var fallbackStore store.DocumentStore
	if docStore.StorageType() == types.StorageTypeDurable {
		fallbackStore = store.NewEphemeralStore(log)
	}

	// Extractor chain
	primary, err := extract.NewOCRStrategy(log, cfg.OCRLanguage, cfg.OCRAngleClassification, cfg.OCRMaxConcurrency)
	if err != nil {
		log.Fatal("OCR engine init failed", "error", err)
	}
	defer func() { _ = primary.Close() }()

	var fallback extract.Strategy
	if cfg.VisionFallbackEnabled {
		client, err := openai.NewClient(log)
		if err != nil {
			log.Warn("Vision fallback disabled", "error", err)
		} else {
			fallback = extract.NewVisionStrategy(log, client)
		}
	}
	chain := extract.NewChain(log, primary, fallback, cfg.OCRTimeout, cfg.VisionTimeout)

	// Services
	svc := ingest.NewService(log, docStore, fallbackStore, chain)

	// HTTP
	srv := server.NewServer(server.RouterConfig{
		Log:             log,
		OCRHandler:      handlers.NewOCRHandler(log, svc, cfg.MaxUploadBytes),
		DocumentHandler: handlers.NewDocumentHandler(log, svc),
		HealthHandler:   handlers.NewHealthHandler(svc),
	})

	addr := ":" + cfg.Port
	log.Info("Starting server", "addr", addr, "storage_type", docStore.StorageType())
	if err := srv.Run(addr); err != nil {
		log.Fatal("Server exited", "error", err)
	}
}
