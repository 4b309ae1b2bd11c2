package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"convertflow/config"
	"convertflow/converter"
	"convertflow/logger"
	"convertflow/models"
	"convertflow/provider/beacon"
	"convertflow/querysync"
	"convertflow/server"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", config.DefaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(config.ResolveConfigPath(*configPath))
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service":     cfg.Convertflow.Name,
		"version":     cfg.Convertflow.Version,
		"environment": config.AppEnvironment(),
	}).Info("starting convertflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.InitCloudWatch(os.Getenv("AWS_REGION"), "", cfg.Logging.DashboardName)
		logger.StartReport(ctx, log, 30*time.Second)
	}

	provider := beacon.NewClient(cfg)
	queryStore := querysync.NewMemoryStore()

	var conv *converter.Converter
	if cfg.Converter.Enabled {
		conv = converter.New(cfg, provider, queryStore)
		if err := conv.Start(ctx); err != nil {
			log.WithError(err).Error("failed to start converter")
			os.Exit(1)
		}

		conv.LoadCurrencies(ctx)
		conv.PreviewConversion(cfg.Converter.DefaultFrom, cfg.Converter.DefaultTo)
		warmup(conv, cfg)
	} else {
		log.WithComponent("main").Info("converter disabled; running proxy only")
	}

	var srv *server.Server
	if cfg.Server.Enabled {
		srv = server.New(cfg)
		go func() {
			if err := srv.Listen(); err != nil {
				log.WithError(err).Error("proxy server stopped unexpectedly")
			}
		}()
	} else {
		log.WithComponent("main").Info("proxy server disabled")
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	done := make(chan struct{})
	go func() {
		if srv != nil {
			if err := srv.Shutdown(); err != nil {
				log.WithError(err).Warn("proxy server shutdown failed")
			}
		}
		if conv != nil {
			conv.Stop()
		}
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("convertflow stopped")
}

// warmup issues the default-pair request once the catalog is in, so a
// fresh headless session has a populated result to show.
func warmup(conv *converter.Converter, cfg *config.Config) {
	conv.ConvertCurrency(models.ConversionRequest{
		From:      cfg.Converter.DefaultFrom,
		To:        cfg.Converter.DefaultTo,
		Amount:    1,
		Direction: models.SideSource,
	})
}
