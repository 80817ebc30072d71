package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/quantgate/qmt-gateway/internal/callback"
	"github.com/quantgate/qmt-gateway/internal/config"
	"github.com/quantgate/qmt-gateway/internal/data"
	"github.com/quantgate/qmt-gateway/internal/executor"
	"github.com/quantgate/qmt-gateway/internal/httpapi"
	"github.com/quantgate/qmt-gateway/internal/logging"
	"github.com/quantgate/qmt-gateway/internal/mode"
	"github.com/quantgate/qmt-gateway/internal/qmt"
	"github.com/quantgate/qmt-gateway/internal/rpc"
	"github.com/quantgate/qmt-gateway/internal/session"
	"github.com/quantgate/qmt-gateway/internal/subscription"
	"github.com/quantgate/qmt-gateway/internal/trading"
)

func main() {
	bootstrap := logging.New(logging.Options{Level: "info", Format: "json"})

	cfg, err := config.Load(&bootstrap)
	if err != nil {
		bootstrap.Fatal().Err(err).Msg("Configuration load failed")
	}

	logger := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	cfg.LogConfig(logger)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Gateway exited with error")
	}
	logger.Info().Msg("Gateway stopped")
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	appMode, err := mode.Parse(cfg.AppMode)
	if err != nil {
		return err
	}
	if appMode.Live() && cfg.VendorDriver == "sim" {
		return fmt.Errorf("mode %s requires a native vendor driver; only the simulated driver is registered", appMode)
	}

	driver, err := qmt.Open(cfg.VendorDriver)
	if err != nil {
		return err
	}
	dataAPI, err := driver.OpenData(cfg.VendorPath)
	if err != nil {
		return err
	}

	guard := mode.NewGuard(appMode)
	exec := executor.New(cfg.ExecutorWorkers, logger)
	dispatcher := callback.New(cfg.CallbackHistory, cfg.MaxQueue, logger)
	sessions := session.NewRegistry(driver, cfg.VendorPath, exec, dispatcher, logger)
	tradingSvc := trading.NewService(guard, sessions, exec, dispatcher, logger)
	dataSvc := data.NewService(dataAPI, exec, data.Timeouts{
		MarketData: cfg.MarketDataTimeout,
		Financial:  cfg.FinancialTimeout,
		Download:   cfg.DownloadTimeout,
	}, cfg.DisableDownload, logger)
	subs := subscription.NewManager(dataAPI, exec, subscription.Options{
		MaxSubscriptions:  cfg.MaxSubscriptions,
		MaxStreamsPerSub:  cfg.MaxStreamsPerSub,
		MaxQueue:          cfg.MaxQueue,
		EnableWholeMarket: cfg.EnableWholeMarket,
		HeartbeatInterval: cfg.HeartbeatInterval,
		HeartbeatTimeout:  cfg.HeartbeatTimeout,
	}, logger)

	httpSrv := httpapi.New(httpapi.Deps{
		Config:     cfg,
		Guard:      guard,
		Trading:    tradingSvc,
		Data:       dataSvc,
		Subs:       subs,
		Dispatcher: dispatcher,
		Sessions:   sessions,
		Logger:     logger,
	})
	rpcSrv := rpc.New(cfg, tradingSvc, dataSvc, subs, dispatcher, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return httpSrv.Start(gctx) })
	g.Go(func() error { return rpcSrv.Start(gctx) })

	err = g.Wait()

	// Shutdown: stop accepts first (done above), then tear down
	// producers and drain the executor with a bounded wait.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	subs.CloseAll(shutdownCtx)
	sessions.CloseAll(shutdownCtx)
	dispatcher.Close()
	if cerr := exec.Close(shutdownCtx); cerr != nil {
		logger.Warn().Err(cerr).Msg("Executor drain timed out")
	}
	return err
}
