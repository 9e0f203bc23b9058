package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ogulcanaydogan/orbit-alerts/internal/app"
	"github.com/ogulcanaydogan/orbit-alerts/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("ORBIT_CONFIG"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	a, err := app.New(cfg, app.NewLogger(cfg, os.Stderr))
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-quit
		a.Logger.Info("signal received", "signal", sig.String())
		cancel()
	}()

	return a.Serve(ctx)
}
