package cmd

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/pingup/pingup/internal/adapters/identity"
	"github.com/pingup/pingup/internal/adapters/mail"
	"github.com/pingup/pingup/internal/adapters/runstore"
	"github.com/pingup/pingup/internal/adapters/storage"
	"github.com/pingup/pingup/internal/api"
	"github.com/pingup/pingup/internal/api/middleware"
	"github.com/pingup/pingup/internal/config"
	"github.com/pingup/pingup/internal/core"
	"github.com/pingup/pingup/internal/logging"
	"github.com/pingup/pingup/internal/metrics"
	"github.com/pingup/pingup/internal/retry"
	"github.com/pingup/pingup/internal/stream"
	"github.com/pingup/pingup/internal/workflow"
	"github.com/pingup/pingup/internal/workflows"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server and workflow scheduler",
	Long: `Start the HTTP API (message streams, stories, connections) together
with the workflow scheduler that drives reminders and story expiry.

Examples:
  # Start with defaults (:8080)
  pingup serve

  # Start on a custom address
  pingup serve --addr 0.0.0.0:3000`,
	RunE: runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "",
		"Listen address (overrides server.addr)")
	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}

func runServe(_ *cobra.Command, _ []string) error {
	logger := logging.New(logging.Config{
		Level:  logLevel,
		Format: logFormat,
		Output: os.Stdout,
	})

	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := config.NewValidator().Validate(cfg); err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.Data.Dir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	store, err := storage.NewSQLite(cfg.DomainDBPath())
	if err != nil {
		return fmt.Errorf("opening domain database: %w", err)
	}
	defer store.Close()

	runs, err := runstore.NewSQLite(cfg.RunsDBPath())
	if err != nil {
		return fmt.Errorf("opening run database: %w", err)
	}
	defer runs.Close()
	runs.ClaimLease = cfg.Workflow.ClaimLease

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector())
	promReg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promReg)

	registry := stream.NewRegistry()
	broker := stream.NewBroker(registry, logger, m)

	var mailer core.Mailer
	if cfg.Mail.Enabled {
		smtp, err := mail.NewSMTP(mail.Config{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
		})
		if err != nil {
			return fmt.Errorf("creating mailer: %w", err)
		}
		mailer = smtp
	} else {
		mailer = mail.NewLog(logger)
	}

	policy := retry.Default()
	policy.MaxAttempts = cfg.Workflow.MaxAttempts
	policy.BaseDelay = cfg.Workflow.RetryDelay

	engine := workflow.New(runs,
		workflow.WithRetryPolicy(policy),
		workflow.WithLogger(logger),
		workflow.WithMetrics(m),
	)
	defs := []workflow.Definition{
		workflows.NewConnectionRequestReminder(workflows.ReminderDeps{
			Storage:     store,
			Mailer:      mailer,
			FrontendURL: cfg.FrontendURL,
		}),
		workflows.NewStoryExpiry(store),
		workflows.NewUserCreated(store),
		workflows.NewUserUpdated(store),
		workflows.NewUserDeleted(store),
	}
	for _, def := range defs {
		if err := engine.Register(def); err != nil {
			return fmt.Errorf("registering workflow: %w", err)
		}
	}

	scheduler := workflow.NewScheduler(engine,
		workflow.WithPollInterval(cfg.Workflow.PollInterval),
		workflow.WithBatchSize(cfg.Workflow.BatchSize),
		workflow.WithWorkers(cfg.Workflow.Workers),
		workflow.WithSchedulerLogger(logger),
	)

	secret := []byte(cfg.Auth.Secret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return fmt.Errorf("generating auth secret: %w", err)
		}
		logger.Warn("auth.secret not set, issued tokens will not survive a restart")
	}
	verifier := identity.NewSigned(secret)

	limiter := middleware.NewSubjectLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, 10*time.Minute)

	server := api.NewServer(store, verifier, registry, broker, engine,
		api.WithLogger(logger),
		api.WithRateLimiter(limiter),
		api.WithGatherer(promReg),
		api.WithMetrics(m),
		api.WithWebhookSecret(cfg.Auth.WebhookSecret),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.ListenAndServe(gctx, cfg.Server.Addr); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := scheduler.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited", "error", err)
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
