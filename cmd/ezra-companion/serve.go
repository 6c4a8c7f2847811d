package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/Steve-IX/Ezra/pkg/agent"
	"github.com/Steve-IX/Ezra/pkg/api"
	"github.com/Steve-IX/Ezra/pkg/artifacts"
	"github.com/Steve-IX/Ezra/pkg/auth"
	"github.com/Steve-IX/Ezra/pkg/config"
	"github.com/Steve-IX/Ezra/pkg/crypto"
	"github.com/Steve-IX/Ezra/pkg/events"
	"github.com/Steve-IX/Ezra/pkg/llm"
	"github.com/Steve-IX/Ezra/pkg/llm/providers"
	"github.com/Steve-IX/Ezra/pkg/observability"
	"github.com/Steve-IX/Ezra/pkg/planner"
	"github.com/Steve-IX/Ezra/pkg/risk"
	"github.com/Steve-IX/Ezra/pkg/store"
)

func serveCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), stdout)
		},
	}
}

// app is a fully wired companion. close releases every sink.
type app struct {
	handler http.Handler
	signer  *crypto.Ed25519Signer
	router  *llm.Router
	closers []func(context.Context) error
	logger  *slog.Logger
}

func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("shutdown step failed", "error", err)
		}
	}
}

func runServe(ctx context.Context, stdout io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := config.Load()
	logger := setupLogger(stdout, cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(stdout, "[ezra] companion %s starting (data dir %s)\n", version, cfg.DataDir)
	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "[ezra] public key: %s\n", a.signer.PublicKey())

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Plan generation waits on upstream providers.
		WriteTimeout: cfg.ProviderTimeout*time.Duration(1+len(cfg.FallbackProviders)) + 15*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ezra companion listening",
			"addr", srv.Addr,
			"version", version,
			"public_key", a.signer.PublicKey(),
			"providers", a.router.ListAvailable(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			a.close(context.Background())
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	fmt.Fprintln(stdout, "[ezra] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}
	a.close(shutdownCtx)
	return nil
}

func loadSigner(cfg *config.Config) (*crypto.Ed25519Signer, error) {
	if cfg.SigningSeedHex != "" {
		seed, err := hex.DecodeString(cfg.SigningSeedHex)
		if err != nil {
			return nil, fmt.Errorf("EZRA_SIGNING_SEED: %w", err)
		}
		return crypto.NewEd25519SignerFromSeed(seed)
	}
	return crypto.LoadOrGenerateSigner(cfg.KeyFile, cfg.Production)
}

func loadProviders(cfg *config.Config) ([]llm.Provider, error) {
	cfgs := config.ProvidersFromEnv()
	if cfg.ProvidersFile != "" {
		var err error
		if cfgs, err = config.LoadProviders(cfg.ProvidersFile); err != nil {
			return nil, err
		}
	}
	return providers.NewAll(cfgs)
}

// buildApp wires every component from cfg. Optional sinks that fail to
// start are fatal so misconfiguration is caught at boot.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{logger: logger}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	if a.signer, err = loadSigner(cfg); err != nil {
		return nil, fmt.Errorf("signer: %w", err)
	}

	provs, err := loadProviders(cfg)
	if err != nil {
		return nil, fmt.Errorf("providers: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a.router = llm.NewRouter(cfg.DefaultProvider, provs,
		llm.WithCallTimeout(cfg.ProviderTimeout),
		llm.WithCodingProvider(cfg.CodingProvider),
		llm.WithProseProvider(cfg.ProseProvider),
		llm.WithMetrics(llm.NewMetrics(reg)),
		llm.WithLogger(logger),
	)
	if len(a.router.ListAvailable()) == 0 {
		logger.Warn("no LLM provider is available; plan generation will fail until one is configured")
	}

	policy, err := risk.LoadPolicy(cfg.RiskPolicyFile)
	if err != nil {
		return nil, fmt.Errorf("risk policy: %w", err)
	}

	synth := planner.New(a.router,
		planner.WithFallbacks(cfg.FallbackProviders...),
		planner.WithPlanTTL(cfg.PlanTTL),
		planner.WithLogger(logger),
	)

	opts := []agent.Option{agent.WithPolicy(policy), agent.WithLogger(logger)}

	if cfg.Ledger == "sql" {
		db, driver, err := store.Open(ctx, cfg.DatabaseURL, cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("ledger: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return db.Close() })
		ledger := store.NewSQLLedger(db)
		if err := ledger.Init(ctx); err != nil {
			return nil, err
		}
		logger.Info("plan ledger ready", "driver", driver)
		opts = append(opts, agent.WithLedger(ledger))
	}

	blobs, err := artifacts.NewStore(ctx, cfg.Archive, cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	if blobs != nil {
		logger.Info("plan archive ready", "type", cfg.Archive.Type)
		opts = append(opts, agent.WithArchive(artifacts.NewArchive(blobs)))
	}

	if cfg.NATSURL != "" {
		pub, err := events.ConnectNATS(cfg.NATSURL, 5*time.Second)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return pub.Close() })
		opts = append(opts, agent.WithPublisher(pub))
	}

	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:    "ezra-companion",
		ServiceVersion: version,
		Environment:    environment(cfg),
		OTLPEndpoint:   cfg.OTelEndpoint,
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		Enabled:        cfg.OTelEnabled,
		Insecure:       cfg.OTelInsecure,
	})
	if err != nil {
		return nil, fmt.Errorf("observability: %w", err)
	}
	a.closers = append(a.closers, obs.Shutdown)
	opts = append(opts, agent.WithObservability(obs))

	svc := agent.NewService(synth, a.signer, opts...)
	server := api.NewServer(svc, a.router,
		api.WithVersion(version),
		api.WithGatherer(reg),
		api.WithLogger(logger),
	)

	var limiter api.LimiterStore
	switch {
	case cfg.RateLimitRPS <= 0:
	case cfg.RedisAddr != "":
		rl := api.NewRedisLimiter(cfg.RedisAddr, cfg.RateLimitRPS, cfg.RateLimitBurst)
		a.closers = append(a.closers, func(context.Context) error { return rl.Close() })
		limiter = rl
	default:
		ml := api.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		a.closers = append(a.closers, func(context.Context) error { ml.Close(); return nil })
		limiter = ml
	}

	validator := auth.NewJWTValidator(cfg.JWTSecret)
	if validator == nil {
		logger.Warn("EZRA_JWT_SECRET not set; plan endpoints are unauthenticated")
	}

	a.handler = api.Chain(server.Handler(),
		auth.RequestIDMiddleware,
		auth.NewMiddleware(validator),
		auth.RateLimitMiddleware(limiter),
	)
	return a, nil
}

func environment(cfg *config.Config) string {
	if cfg.Production {
		return "production"
	}
	return "development"
}
