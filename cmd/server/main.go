package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"falldetector/internal/app"
	"falldetector/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	application, err := app.NewApp(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize server: %v", err)
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		log.Printf("Server stopped: %v", err)
		application.Close()
		os.Exit(1)
	}
}
