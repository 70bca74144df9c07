// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/webpdtool/internal/api"
	"github.com/ManuGH/webpdtool/internal/cache"
	"github.com/ManuGH/webpdtool/internal/config"
	"github.com/ManuGH/webpdtool/internal/domain/session/engine"
	"github.com/ManuGH/webpdtool/internal/domain/session/store"
	"github.com/ManuGH/webpdtool/internal/instrument"
	"github.com/ManuGH/webpdtool/internal/instrument/drivers"
	pdlog "github.com/ManuGH/webpdtool/internal/log"
	"github.com/ManuGH/webpdtool/internal/measure"
	"github.com/ManuGH/webpdtool/internal/pipeline/bus"
	"github.com/ManuGH/webpdtool/internal/report"
	"github.com/ManuGH/webpdtool/internal/sfc"
	"github.com/ManuGH/webpdtool/internal/telemetry"
)

var (
	version   = "v1.2.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	pdlog.Configure(pdlog.Config{
		Level:   config.ParseString("PDT_LOG_LEVEL", "info"),
		Service: "webpdtool",
		Version: version,
	})
	logger := pdlog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.NewLoader(*configPath, version).Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", *configPath).
			Msg("failed to load configuration")
	}

	tele, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.TelemetryEnabled,
		ServiceName:    "webpdtool",
		ServiceVersion: version,
		ExporterType:   cfg.TelemetryExporter,
		Endpoint:       cfg.TelemetryEndpoint,
		SamplingRate:   cfg.TelemetrySampling,
	})
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "telemetry.init_failed").
			Msg("failed to initialise tracing")
	}

	st, err := store.Open(store.Config{Backend: cfg.StoreBackend, Path: cfg.StorePath})
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "store.open_failed").
			Str("backend", cfg.StoreBackend).
			Msg("failed to open session store")
	}

	registry, err := instrument.NewFileRegistry(cfg.InstrumentRegistryPath, drivers.NewFactory(cfg.DefaultPointTimeout))
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "registry.load_failed").
			Str(pdlog.FieldPath, cfg.InstrumentRegistryPath).
			Msg("failed to load instrument registry")
	}
	if err := registry.Watch(ctx.Done()); err != nil {
		logger.Warn().Err(err).Msg("instrument registry hot reload unavailable")
	}
	instruments := instrument.NewManager(registry, cfg.AcquireTimeout)

	var sfcClient *sfc.Client
	if cfg.SFCBaseURL != "" {
		sfcClient = sfc.NewClient(sfc.Config{
			BaseURL:   cfg.SFCBaseURL,
			Timeout:   cfg.SFCTimeout,
			RatePerS:  cfg.SFCRatePerS,
			RateBurst: cfg.SFCRateBurst,
		}, st, nil)
	}

	sink, err := report.NewCSVSink(cfg.ReportDir, st)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "report.init_failed").
			Str(pdlog.FieldPath, cfg.ReportDir).
			Msg("failed to prepare report directory")
	}

	var planCache cache.PlanCache
	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedis(cache.RedisConfig{Addr: cfg.RedisAddr})
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, using in-memory plan cache")
			planCache = cache.NewMemory()
		} else {
			defer func() { _ = rc.Close() }()
			planCache = rc
		}
	} else {
		planCache = cache.NewMemory()
	}
	plans := cache.NewCachedPlans(st, planCache, cfg.PlanCacheTTL)

	progress := bus.NewProgressBus()
	prompts := api.NewPromptHub()

	eng := engine.New(engine.Config{
		Plans:      plans,
		Results:    st,
		Dispatcher: measure.NewDispatcher(measure.DefaultRegistry(), nil),
		Bus:        progress,
		Report:     sink,
		RetryMax:   uint(cfg.RepoRetryMax),
		Env: measure.Env{
			Instruments: instruments,
			SFC:         sfcClient,
			Prompter:    prompts,
		},
	})

	server := api.NewServer(api.Deps{
		Engine:         eng,
		Store:          st,
		Instruments:    instruments,
		Plans:          plans,
		Prompts:        prompts,
		RequestTimeout: cfg.RequestTimeout,
		RateLimit:      cfg.RateLimitRPS * 60,
	})

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info().
		Str("event", "startup").
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str("addr", cfg.Listen).
		Str("store", cfg.StoreBackend).
		Str("sfc", cfg.SFCBaseURL).
		Msg("starting webpdtool")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("http shutdown incomplete")
		}
		instruments.Shutdown(shutdownCtx)
		if err := st.Close(); err != nil {
			logger.Warn().Err(err).Msg("store close failed")
		}
		if err := tele.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown failed")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "daemon.failed").
			Msg("webpdtool failed")
	}
	logger.Info().Msg("server exiting")
}
