package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loyaltyhub/wagateway/config"
	"github.com/loyaltyhub/wagateway/internal/app"
	"github.com/loyaltyhub/wagateway/internal/sessionapi"
	"github.com/loyaltyhub/wagateway/internal/webserver"
	"github.com/loyaltyhub/wagateway/internal/whatsapp"
	"go.uber.org/zap"
)

var cfile = flag.String("c", "/etc/wagateway.yml", "config file")

func main() {
	flag.Parse()

	cfg := config.LoadConfig(*cfile)
	application := app.NewApplication(cfg)
	application.Init(cfg)
	defer application.Release()

	sqlDB, err := application.DB().DB()
	if err != nil {
		zap.S().Fatalf("failed to obtain sql.DB: %v", err)
	}
	factory, err := whatsapp.NewMeowFactory(sqlDB, cfg.Database.Type)
	if err != nil {
		zap.S().Fatalf("failed to initialize whatsapp store: %v", err)
	}

	registry := whatsapp.NewRegistry(factory, cfg.Whatsapp.QRSize)
	if err := whatsapp.NewAuditRecorder(application.DB()).Attach(registry); err != nil {
		zap.S().Fatalf("failed to attach session audit recorder: %v", err)
	}
	dispatcher, err := whatsapp.NewDispatcher(registry, application.DB(), cfg.Whatsapp.SendWorkers)
	if err != nil {
		zap.S().Fatalf("failed to initialize dispatcher: %v", err)
	}
	defer dispatcher.Release()

	// Maintenance jobs: fail stuck pairings, purge old message audit rows.
	if err := application.RegisterJob("@every 30s", func() {
		registry.SweepStale(cfg.Whatsapp.PairingTimeout)
	}); err != nil {
		zap.S().Fatalf("failed to register watchdog job: %v", err)
	}
	if err := application.RegisterJob("@daily", func() {
		dispatcher.PurgeLogs(cfg.Whatsapp.LogRetention)
	}); err != nil {
		zap.S().Fatalf("failed to register purge job: %v", err)
	}

	server := webserver.New(cfg)
	sessionapi.NewHandler(registry, dispatcher).Register(server.Echo())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil {
			zap.S().Errorf("webserver error: %v", err)
		}
	case sig := <-sigCh:
		zap.L().Info("shutting down", zap.String("signal", sig.String()))
	}

	registry.Shutdown()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		zap.S().Warnf("webserver shutdown: %v", err)
	}
}
