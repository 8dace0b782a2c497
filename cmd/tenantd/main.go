package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/platinummonkey/tenantd/pkg/api"
	"github.com/platinummonkey/tenantd/pkg/auth"
	"github.com/platinummonkey/tenantd/pkg/billing"
	"github.com/platinummonkey/tenantd/pkg/config"
	"github.com/platinummonkey/tenantd/pkg/directory"
	"github.com/platinummonkey/tenantd/pkg/middleware"
	"github.com/platinummonkey/tenantd/pkg/observability"
	"github.com/platinummonkey/tenantd/pkg/peer"
	"github.com/platinummonkey/tenantd/pkg/tenant"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	log := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, os.Stdout)
	ctx := context.Background()

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize OpenTelemetry")
	}

	// Internal tokens fail closed: without a secret every mint and verify
	// is rejected.
	var secret auth.SecretSource
	var fileSecret *auth.FileSecret
	switch {
	case cfg.Auth.InternalSecretFile != "":
		fileSecret, err = auth.NewFileSecret(cfg.Auth.InternalSecretFile, log)
		if err != nil {
			log.WithError(err).Fatal("Failed to load internal token secret")
		}
		secret = fileSecret
	case cfg.Auth.InternalSecret != "":
		secret = auth.StaticSecret(cfg.Auth.InternalSecret)
	}
	if !cfg.InternalTokensConfigured() {
		log.Warn("No internal token secret configured, internal routes will reject every request")
	}
	tokens := auth.NewInternalTokens(secret)

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(promRegistry)

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		log.WithError(err).Fatal("Failed to create data directory")
	}
	registry, err := tenant.NewRegistry(tenant.RegistryConfig{
		DataDir:     cfg.Storage.DataDir,
		MaxActors:   cfg.Storage.MaxActors,
		IdleTimeout: cfg.Storage.ActorIdleTimeout,
		Observer:    metrics,
	}, tokens, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create tenant registry")
	}

	sweeper := cron.New()
	if _, err := sweeper.AddFunc(cfg.Storage.IdleSweepSchedule, func() {
		evicted := registry.EvictIdle()
		metrics.ObserveActors(registry.Len(), evicted)
		if evicted > 0 {
			log.WithField("evicted", evicted).Debug("Evicted idle tenant actors")
		}
	}); err != nil {
		log.WithError(err).Fatal("Invalid idle sweep schedule")
	}
	sweeper.Start()

	verifier, err := auth.NewExternalVerifier(ctx, auth.ExternalConfig{
		IssuerURL: cfg.Auth.IssuerURL,
		Timeout:   cfg.Auth.VerifyTimeout,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize external token verifier")
	}
	authn := middleware.NewAuthenticator(verifier, tokens, log, middleware.WithFailureObserver(metrics))

	health := observability.NewHealthChecker(2 * time.Second)
	health.Require("data-dir", func(context.Context) error {
		_, err := os.Stat(cfg.Storage.DataDir)
		return err
	})
	billingOpts := []billing.Option{billing.WithFallbackObserver(metrics)}

	var provider billing.Provider
	if cfg.Billing.StripeSecretKey != "" {
		stripeProvider, err := billing.NewStripeProvider(billing.StripeConfig{
			SecretKey: cfg.Billing.StripeSecretKey,
			Timeout:   cfg.Billing.Timeout,
			BaseURL:   cfg.Billing.StripeAPIURL,
			Logger:    log,
		})
		if err != nil {
			log.WithError(err).Fatal("Failed to create billing provider")
		}
		provider = stripeProvider
	} else {
		log.Warn("STRIPE_SECRET_KEY not set, billing is disabled")
	}

	var redisCache *billing.RedisPlanCache
	if cfg.Billing.RedisURL != "" {
		redisCache, err = billing.NewRedisPlanCache(cfg.Billing.RedisURL, cfg.Billing.PlanCacheTTL)
		if err != nil {
			log.WithError(err).Fatal("Failed to create Redis plan cache")
		}
		health.Optional("redis", redisCache.Ping)
		billingOpts = append(billingOpts, billing.WithPlanCache(redisCache))
	} else {
		billingOpts = append(billingOpts, billing.WithPlanCache(
			billing.NewMemoryPlanCache(cfg.Billing.PlanCacheSize, cfg.Billing.PlanCacheTTL)))
	}

	if cfg.Directory.SecretKey != "" {
		dir, err := directory.NewClient(directory.Config{
			APIURL:    cfg.Directory.APIURL,
			SecretKey: cfg.Directory.SecretKey,
			Timeout:   cfg.Directory.Timeout,
		})
		if err != nil {
			log.WithError(err).Fatal("Failed to create directory client")
		}
		billingOpts = append(billingOpts, billing.WithDirectory(dir))
	}

	billingService := billing.NewService(registry, provider, billing.Config{
		PriceTiers: cfg.Billing.PriceTiers,
		Timeout:    cfg.Billing.Timeout,
	}, log, billingOpts...)

	server := api.NewServer(api.Deps{
		Tenants:         registry,
		Billing:         billingService,
		Authenticator:   authn,
		Peer:            peer.NewClient(cfg.Server.PublicURL, cfg.Server.ReadTimeout, log),
		Health:          health,
		Metrics:         metrics,
		Gatherer:        promRegistry,
		Log:             log,
		PortalReturnURL: cfg.Billing.AppURL,
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
	})

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(log, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.Register("otel", otelProviders.Shutdown)
	if fileSecret != nil {
		shutdown.Register("internal-secret-watcher", func(context.Context) error {
			return fileSecret.Close()
		})
	}
	if redisCache != nil {
		shutdown.Register("redis", func(context.Context) error {
			return redisCache.Close()
		})
	}
	shutdown.Register("tenant-registry", registry.Shutdown)
	shutdown.Register("idle-sweeper", func(ctx context.Context) error {
		select {
		case <-sweeper.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	go func() {
		log.WithFields(logrus.Fields{
			"addr":     httpServer.Addr,
			"data_dir": cfg.Storage.DataDir,
			"billing":  billingService.Configured(),
		}).Info("Starting tenantd")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	if err := shutdown.WaitForSignal(); err != nil {
		log.WithError(err).Error("Shutdown completed with errors")
		os.Exit(1)
	}
}
