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

	"github.com/bhrochdi/parentguard/internal/activity"
	"github.com/bhrochdi/parentguard/internal/agent"
	"github.com/bhrochdi/parentguard/internal/api"
	"github.com/bhrochdi/parentguard/internal/config"
	"github.com/bhrochdi/parentguard/internal/credentials"
	"github.com/bhrochdi/parentguard/internal/logger"
	"github.com/bhrochdi/parentguard/internal/policy"
	"github.com/bhrochdi/parentguard/internal/pool"
	"github.com/bhrochdi/parentguard/internal/session"
	"github.com/bhrochdi/parentguard/internal/storage"
	"github.com/bhrochdi/parentguard/internal/syncbridge"
	"github.com/bhrochdi/parentguard/internal/usage"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// Version is set by the build system via -ldflags.
var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "parentguard",
		Short: "Parental control policy and session daemon",
	}

	root.AddCommand(
		runCmd(),
		healthcheckCmd(),
		versionCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// runCmd is the main daemon command.
func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the policy daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon()
		},
	}
}

func runDaemon() error {
	// Optional .env for local development; real deployments use the
	// process environment.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := buildLogger(cfg)
	log.Info().Str("version", Version).Msg("parentguard starting")

	store, err := storage.NewBboltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	ag := agent.NewClient(agent.ClientConfig{
		BaseURL: cfg.AgentURL,
		APIKey:  cfg.AgentAPIKey,
		Timeout: cfg.AgentHTTPTimeout,
		Debug:   cfg.AgentDebug,
	}, log)
	defer ag.Close()

	bridge, err := syncbridge.New(syncbridge.Config{
		Pool: pool.Config{
			Workers:    cfg.PoolWorkers,
			QueueDepth: cfg.PoolQueueDepth,
			MaxRetries: cfg.PoolMaxRetries,
			RetryBase:  cfg.PoolRetryBase,
		},
		CallTimeout: cfg.SyncCallTimeout,
	}, ag, store, log)
	if err != nil {
		return fmt.Errorf("build sync bridge: %w", err)
	}

	policies := policy.NewService(store, log)
	tracker := usage.NewTracker(store, log)
	act := activity.NewLogger(store, cfg.ActivityRetention, log)
	creds := credentials.NewManager(store, log)

	if cfg.BootstrapPassword != "" && cfg.BootstrapPIN != "" {
		if err := creds.Bootstrap(cfg.BootstrapPassword, cfg.BootstrapPIN); err != nil {
			return fmt.Errorf("bootstrap credentials: %w", err)
		}
	}
	configured, err := creds.Configured()
	if err != nil {
		return fmt.Errorf("check credentials: %w", err)
	}
	if !configured {
		return fmt.Errorf("no supervisor credentials: set BOOTSTRAP_PASSWORD and BOOTSTRAP_PIN for first run")
	}

	sessions := session.NewManager(creds, policies, bridge, act, cfg.RecoveryCode, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	bridge.Start(ctx)
	defer bridge.Stop()

	srv := api.NewServer(policies, sessions, bridge, tracker, act, creds, ag, cfg.AgentAPIKey, log)

	apiServer := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", cfg.APIAddr).Msg("api server listening")
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return apiServer.Shutdown(shutdownCtx)
	})

	if cfg.MetricsEnabled {
		metricsServer := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	janitor := syncbridge.NewJanitor(bridge, store, cfg.JanitorInterval, log)
	g.Go(func() error {
		return janitor.Run(gctx)
	})

	return g.Wait()
}

// healthcheckCmd exits 0 if the local API answers.
func healthcheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "healthcheck",
		Short: "Check health endpoint and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			resp, err := http.Get("http://" + cfg.APIAddr + "/healthz") //nolint:noctx
			if err != nil {
				fmt.Fprintf(os.Stderr, "healthcheck failed: %v\n", err)
				os.Exit(1)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				fmt.Fprintf(os.Stderr, "healthcheck returned %d\n", resp.StatusCode)
				os.Exit(1)
			}
			fmt.Println("healthy")
			return nil
		},
	}
}

// versionCmd prints the version and exits.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("parentguard %s\n", Version)
		},
	}
}

// buildLogger constructs a zerolog.Logger based on config.
func buildLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var base zerolog.Logger
	if cfg.LogFormat == "text" {
		cw := zerolog.NewConsoleWriter()
		cw.Out = logger.NewRedactWriter(os.Stderr)
		base = zerolog.New(cw).Level(level).With().Timestamp().Logger()
	} else {
		redactWriter := logger.NewRedactWriter(os.Stderr)
		base = zerolog.New(redactWriter).Level(level).With().Timestamp().Logger()
	}
	return base
}
