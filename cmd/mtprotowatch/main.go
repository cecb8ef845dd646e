package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"mtprotowatch/internal/app"
	"mtprotowatch/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfgPath := config.DefaultConfigPath
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	bootstrap, err := app.NewBootstrap(cfgPath)
	if err != nil {
		log.Fatalf("bootstrap failed: %v", err)
	}

	if err := bootstrap.Run(ctx); err != nil {
		log.Fatalf("runtime failed: %v", err)
	}
}
