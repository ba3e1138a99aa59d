package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/ai"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/breaker"
	cfgpkg "github.com/dhopegraphics/hivedemia-web-version-sub001/internal/config"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/converter"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/document"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/limiter"
	logpkg "github.com/dhopegraphics/hivedemia-web-version-sub001/internal/logger"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/metrics"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/mupdf"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/orchestrator"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/statuscheck"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/storage"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/store"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/web"
)

func main() {
	cfg, err := cfgpkg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}

	// Init logging
	_ = logpkg.Init(logpkg.Options{
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
	})
	defer logpkg.Close()
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Document sources
	objects, err := storage.NewS3Client(ctx, storage.Options{
		Region:   cfg.Storage.S3Region,
		Endpoint: cfg.Storage.S3Endpoint,
		Password: cfg.Storage.Password,
		MaxBytes: cfg.Storage.MaxBytes,
	})
	if err != nil {
		log.Warn().Err(err).Msg("s3 unavailable, s3:// documents are disabled")
	}
	var objectStore document.ObjectStore
	if objects != nil {
		objectStore = objects
	}
	converter.CleanupTemps(os.TempDir(), time.Hour, converter.WorkDirPrefix, mupdf.TempPrefix)
	office := converter.NewLibreOffice(cfg.Converter.Binary, cfg.Converter.Workers, cfg.Converter.Timeout)
	if !office.Available() {
		log.Warn().Str("binary", cfg.Converter.Binary).Msg("libreoffice not found, office documents will be rejected")
	}
	fetcher := document.NewFetcher(objectStore, cfg.Storage.MaxBytes, cfg.Storage.AllowLocal)
	fetcher.Remote = document.RemotePolicy{
		Enabled:      cfg.Storage.AllowRemote,
		AllowedHosts: cfg.Storage.AllowedHosts,
		AllowPrivate: cfg.Storage.AllowPrivateHosts,
	}
	preparer := document.NewPreparer(
		fetcher,
		mupdf.NewExtractor(cfg.Budget.MaxPDFPages),
		office,
	)
	preparer.MinPDFChars = mupdf.DefaultMinChars

	// Model services
	governors := limiter.NewRegistry(limiter.Options{
		CallsPerMinute:  cfg.Governor.CallsPerMinute,
		TokensPerMinute: cfg.Governor.TokensPerMinute,
		LargeCooldown:   cfg.Governor.LargeCooldown,
	})
	primary := newService(cfg.Providers.Primary, governors)
	secondary := newService(cfg.Providers.Secondary, governors)

	deps := orchestrator.Dependencies{
		Primary:   primary,
		Secondary: secondary,
		Documents: preparer,
		Retry:     cfg.Retry.Default,
		FileRetry: cfg.Retry.File,
		TextRetry: cfg.Retry.Text,
		Budgets: orchestrator.Budgets{
			Primary:   cfg.Budget.PrimaryTokens,
			Reference: cfg.Budget.ReferenceTokens,
			LargeFile: cfg.Budget.LargeFileTokens,
		},
	}

	// Shared Redis for the breaker and status tracking (optional)
	var (
		status *store.RedisStatus
		pinger statuscheck.RedisPinger
	)
	if cfg.Breaker.Enabled || cfg.Status.Enabled {
		status, err = store.NewRedisStatus(ctx, cfg.Redis.URL, cfg.Status.TTL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer status.Close()
		pinger = status
		if cfg.Breaker.Enabled {
			deps.Breaker = breaker.New(status.Client(), cfg.Breaker.BaseBackoff, cfg.Breaker.MaxBackoff)
		}
		if cfg.Status.Enabled {
			deps.Status = orchestrator.NewStatusAdapter(status)
		}
	}

	orch := orchestrator.New(deps)

	checkOpts := statuscheck.Options{
		Redis:     pinger,
		Bucket:    cfg.Storage.HealthBucket,
		Converter: office,
		Providers: []statuscheck.Provider{
			{Name: primary.Client.Name(), Model: primary.Model, APIKey: cfg.Providers.Primary.APIKey},
			{Name: secondary.Client.Name(), Model: secondary.Model, APIKey: cfg.Providers.Secondary.APIKey},
		},
		Governors: governors.All(),
	}
	if objects != nil {
		checkOpts.Objects = objects
	}
	webOpts := web.Options{
		Generator: orch,
		Health:    statuscheck.New(checkOpts),
		Timeout:   cfg.Server.RequestTimeout,
	}
	if cfg.Status.Enabled {
		webOpts.Status = status
	}
	mux := http.NewServeMux()
	web.New(webOpts).RegisterRoutes(mux)

	srv := &http.Server{Addr: ":" + cfg.Server.Port, Handler: mux}
	go func() {
		log.Info().Msgf("HTTP server listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
	log.Info().Msg("shutdown complete")
}

func newService(p cfgpkg.ProviderConfig, governors *limiter.Registry) orchestrator.Service {
	opts := ai.ClientOptions{APIKey: p.APIKey, BaseURL: p.BaseURL, Timeout: p.Timeout}
	var client ai.Client
	if p.Engine == "anthropic" {
		client = ai.NewAnthropicClient(opts)
	} else {
		client = ai.NewOpenAIClient(p.Engine, opts)
	}
	return orchestrator.Service{
		Client:   client,
		Model:    p.Model,
		Governor: governors.Get(client.Name()),
	}
}
