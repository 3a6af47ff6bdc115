package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/scalevoice/stt-balancer/config"
	"github.com/scalevoice/stt-balancer/internal/balancer"
	"github.com/scalevoice/stt-balancer/internal/httpserver"
	"github.com/scalevoice/stt-balancer/internal/metrics"
	"github.com/scalevoice/stt-balancer/internal/status"
	"github.com/scalevoice/stt-balancer/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment, nil)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	collector := metrics.NewCollector(1000, log)
	collector.Start(ctx)

	lb, err := balancer.New(ctx, workerSpecs(cfg), cfg.DialTimeoutDuration(), log, collector)
	if err != nil {
		log.Error("Failed to initialize balancer", slog.Any("err", err))
		os.Exit(1)
	}

	statusHandler := status.NewHandler(log, lb, collector)

	srv, err := httpserver.New(cfg.Server.Address, statusHandler.Routes())
	if err != nil {
		log.Error("Failed to create status server", slog.Any("err", err))
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start()
	}()

	log.Info("Balancer running",
		slog.Int("workers", len(lb.Workers())),
		slog.String("status_address", cfg.Server.Address))

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error running status server", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

func workerSpecs(cfg *config.Config) []balancer.WorkerSpec {
	specs := make([]balancer.WorkerSpec, 0, len(cfg.Workers))
	for _, wc := range cfg.Workers {
		specs = append(specs, balancer.WorkerSpec{
			Address: wc.Address,
			IP:      wc.IP,
			Port:    wc.Port,
		})
	}
	return specs
}
