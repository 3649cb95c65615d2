package keymerge

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
)

func Main() {
	setLogLevel()
	logger.Info().Msg("starting keymerge")

	cfg, err := LoadConfig(configPath())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	p, err := NewPipeline(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build pipeline")
	}
	defer p.Close()

	if err := registerPipelineMetrics(prometheus.DefaultRegisterer, p); err != nil {
		logger.Warn().Err(err).Msg("failed to register metrics")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := p.Run(ctx); err != nil {
			kscanLogger.Error().Err(err).Msg("scan processor stopped")
		}
	}()

	initInputBackend(ctx, p, cfg)
	initSerialScanner(ctx, p, cfg)
	startStatusServer(ctx, cfg.ListenAddress, p, prometheus.DefaultGatherer)

	if interval := cfg.StatsInterval(); interval > 0 {
		scheduler, err := startStatsJob(p, interval)
		if err != nil {
			statsLogger.Warn().Err(err).Msg("stats job disabled")
		} else {
			defer func() { _ = scheduler.Shutdown() }()
		}
	}

	<-ctx.Done()
	logger.Info().Msg("shutting down")
}
