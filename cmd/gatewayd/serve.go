package main

import (
	"context"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/relaywire/gatewayd/pkg/breaker"
	"github.com/relaywire/gatewayd/pkg/broker"
	"github.com/relaywire/gatewayd/pkg/environment"
	"github.com/relaywire/gatewayd/pkg/httpapi"
	"github.com/relaywire/gatewayd/pkg/identity"
	"github.com/relaywire/gatewayd/pkg/logging"
	"github.com/relaywire/gatewayd/pkg/ratelimit"
	"github.com/relaywire/gatewayd/pkg/reconnect"
	"github.com/relaywire/gatewayd/pkg/statscache"
)

func newServeCmd() *cobra.Command {
	var dotenv string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(dotenv)
		},
	}
	cmd.Flags().StringVar(&dotenv, "env-file", ".env", "optional .env file to load before reading the environment")
	return cmd
}

func runServe(dotenvPath string) error {
	logger := logging.GetLogger()
	fs := afero.NewOsFs()

	cfg, err := environment.Load(fs, dotenvPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		return err
	}

	facade := broker.New(broker.NewTCPClientFactory(cfg.BrokerAddress), broker.Config{
		Reconnect: reconnect.Config{
			BaseDelay:   cfg.ReconnectBaseDelay,
			MaxDelay:    cfg.ReconnectMaxDelay,
			MaxAttempts: cfg.MaxReconnectAttempts,
		},
		Breaker: breaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			OpenDuration:     cfg.CircuitBreakerOpenDuration,
		},
		Timeout: cfg.OperationTimeout,
	}, logger.WithComponent("broker_facade"))

	ctx, cancel := context.WithTimeout(context.Background(), cfg.OperationTimeout)
	connectErr := facade.Connect(ctx)
	cancel()
	if connectErr != nil {
		logger.Warn("initial broker connect failed, serving in disconnected state", "error", connectErr)
	}

	sup := statscache.NewTaskSupervisor(context.Background())
	stats := statscache.New(func(ctx context.Context) (statscache.Snapshot, error) {
		streams, err := facade.ListStreams(ctx)
		if err != nil {
			return statscache.Snapshot{}, err
		}
		snap := statscache.Snapshot{StreamsCount: len(streams)}
		for _, s := range streams {
			snap.TopicsCount += s.Topics
			snap.TotalMessages += s.MessagesCount
			snap.TotalSizeBytes += s.SizeBytes
		}
		return snap, nil
	}, logger.WithComponent("stats_cache"))
	stats.Start(sup, cfg.HealthCheckInterval)

	extractor := identity.New(cfg.TrustedProxies)
	server := httpapi.NewServer(httpapi.Config{
		Addr:            cfg.ListenAddress,
		APIKey:          cfg.APIKey,
		TrustedProxies:  trustedProxyStrings(cfg.TrustedProxies),
		RateLimit:       ratelimit.Config{RPS: cfg.RateLimitRPS, Burst: cfg.RateLimitBurst},
		AuthFailureRate: ratelimit.Config{RPS: cfg.RateLimitRPS, Burst: cfg.RateLimitBurst},
		StatsTTL:        cfg.StatsCacheTTL,
		Identity:        extractor,
	}, facade, stats, logger.WithComponent("http_api"))

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "addr", cfg.ListenAddress)
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("http server exited", "error", err)
			return err
		}
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", "error", err)
	}
	if err := sup.Shutdown(shutdownCtx); err != nil {
		logger.Warn("stats supervisor shutdown error", "error", err)
	}
	return facade.Close()
}

func trustedProxyStrings(prefixes []netip.Prefix) []string {
	out := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		out = append(out, p.String())
	}
	return out
}
