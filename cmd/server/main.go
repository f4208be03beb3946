package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/facturaIA/invoice-extraction-service/api"
	"github.com/facturaIA/invoice-extraction-service/internal/ai"
	"github.com/facturaIA/invoice-extraction-service/internal/auth"
	"github.com/facturaIA/invoice-extraction-service/internal/classify"
	"github.com/facturaIA/invoice-extraction-service/internal/config"
	"github.com/facturaIA/invoice-extraction-service/internal/db"
	"github.com/facturaIA/invoice-extraction-service/internal/metrics"
	"github.com/facturaIA/invoice-extraction-service/internal/models"
	"github.com/facturaIA/invoice-extraction-service/internal/ocr"
	"github.com/facturaIA/invoice-extraction-service/internal/pipeline"
	"github.com/facturaIA/invoice-extraction-service/internal/reconcile"
	"github.com/facturaIA/invoice-extraction-service/internal/services"
	"github.com/facturaIA/invoice-extraction-service/internal/storage"
)

func main() {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	setupLogging(cfg.Log)
	log := logrus.WithField("component", "server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	pm, err := metrics.NewPipeline(reg)
	if err != nil {
		log.Fatalf("Failed to register pipeline metrics: %v", err)
	}
	httpMetrics, err := metrics.NewPrometheusMiddleware(reg)
	if err != nil {
		log.Fatalf("Failed to register http metrics: %v", err)
	}

	deps := api.Deps{
		HTTPMetrics: httpMetrics,
		Gatherer:    reg,
		Files:       db.NewFileStore(cfg.Storage.FallbackDir),
		Log:         logrus.NewEntry(logrus.StandardLogger()),
	}
	var dbPing, storagePing func(ctx context.Context) error

	// Database is optional: without it records go to fallback files
	var references classify.ReferenceDataset
	pool, err := db.Open(ctx, db.DatabaseURL())
	if err != nil {
		log.WithError(err).Warn("Database not available, saving to files only")
	} else {
		defer pool.Close()
		if err := db.EnsureSchema(ctx, pool); err != nil {
			log.WithError(err).Warn("Failed to ensure invoice schema")
		}
		refStore := db.NewReferenceStore(pool, deps.Log)
		references = refStore
		deps.References = refStore
		deps.Invoices = db.NewInvoiceStore(pool)
		deps.Dossiers = db.NewDossierStore(pool)
		dbPing = pool.Ping
		log.Info("Database connection pool initialized")
	}

	documents, err := storage.New(ctx, storage.ConfigFromEnv())
	if err != nil {
		log.WithError(err).Warn("MinIO storage not available, originals will not be stored")
	} else {
		deps.Documents = documents
		storagePing = documents.Ping
		log.Info("MinIO storage initialized")
	}

	runner := ocr.ExecRunner{Log: deps.Log}
	var primary ocr.Loader
	if cfg.OCR.PrimaryEngine == "gemini" && cfg.AI.Gemini.APIKey != "" {
		primary = ocr.GeminiLoader(cfg.AI.Gemini.APIKey, cfg.OCR.PrimaryModel)
	}
	tesseract := ocr.NewTesseractOCR(cfg.OCR, runner)
	rasterizer := ocr.NewRasterizer(cfg.OCR, runner)
	registry := ocr.NewRegistry(ctx, cfg.OCR, primary, tesseract, ocr.Options{
		Rasterizer:   rasterizer,
		Preprocessor: ocr.NewPreprocessor(deps.Log),
		Metrics:      pm,
		Log:          deps.Log,
	})
	defer registry.Close()

	reasoner, err := ai.NewReasoner(ctx, cfg.AI)
	if err != nil {
		log.Fatalf("Failed to create reasoner: %v", err)
	}
	if c, ok := reasoner.(io.Closer); ok {
		defer c.Close()
	}
	parser, err := ai.NewParser(reasoner, cfg.AI.ParseTimeout, deps.Log)
	if err != nil {
		log.Fatalf("Failed to create parser: %v", err)
	}

	cache := classify.NewReferenceCache(references, cfg.Classify.ReferenceLimit, deps.Log)
	go cache.Warm(ctx)
	resolver := classify.NewResolver(reasoner, cache, cfg.Classify, pm, deps.Log)
	deps.Classifier = resolver
	deps.Processor = pipeline.New(registry, parser, reconcile.New(cfg.Reconcile, deps.Log), resolver, pipeline.Options{
		Language:  cfg.OCR.Language,
		Validator: services.NewRecordValidator(cfg.Classify.DefaultCode),
		Metrics:   pm,
		Log:       deps.Log,
	})

	deps.Checks = []api.Check{
		{Name: "tesseract", Critical: true, Probe: api.CommandCheck(tesseract.Binary(), "--version")},
		{Name: "pdftoppm", Probe: api.CommandCheck(rasterizer.Binary(), "-v")},
		{Name: "primary_ocr", Probe: api.PingCheck(cfg.OCR.PrimaryModel, func(context.Context) error {
			if primary == nil {
				return errors.New("disabled")
			}
			return registry.PrimaryError()
		})},
		{Name: "database", Probe: api.PingCheck("postgres", dbPing)},
		{Name: "storage", Probe: api.PingCheck("minio", storagePing)},
	}

	authManager, err := auth.New(cfg.Auth, deps.Log)
	if err != nil {
		log.Fatalf("Failed to initialize auth: %v", err)
	}

	handler := api.NewHandler(cfg, deps)
	router := handler.SetupRoutes()
	router.HandleFunc("/api/login", authManager.LoginHandler).Methods("POST")

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           authManager.Middleware(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.WithFields(logrus.Fields{
		"addr":        addr,
		"version":     api.Version,
		"ocr_engines": registry.Engines(),
		"ai_provider": cfg.AI.DefaultProvider,
		"database":    deps.Invoices != nil,
		"storage":     deps.Documents != nil,
		"auth":        !cfg.Auth.Disabled,
	}).Info("Starting invoice extraction service")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("Shutdown failed")
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed: %v", err)
	}
	log.Info("Server stopped")
}

func setupLogging(cfg models.LogConfig) {
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		logrus.SetLevel(level)
	}
	if cfg.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}
