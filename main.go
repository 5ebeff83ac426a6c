package main

import (
	"log"

	"go.uber.org/zap"

	"wheel-screener/app"
	"wheel-screener/config"
	"wheel-screener/logger"
)

func main() {
	// Load config from .env file
	cfg := config.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer zl.Sync()

	// Create and start app
	application := app.New(cfg, zl)
	if err := application.Start(); err != nil {
		zl.Fatal("❌ Application stopped", zap.Error(err))
	}
}
