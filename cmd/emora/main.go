package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/emora-ai/emora/pkg/emora"
	"github.com/emora-ai/emora/pkg/runner"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the engine config file")
	envFile := flag.String("env", ".env", "optional env file with provider secrets")
	drainTimeout := flag.Duration("drain_timeout", 15*time.Second, "how long to wait for in-flight sessions on shutdown")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		slog.Warn("env_file_load_failed", "path", *envFile, "error", err)
	}

	cfg, err := emora.LoadConfig(*configPath)
	if err != nil {
		slog.Error("config_load_failed", "path", *configPath, "error", err)
		os.Exit(1)
	}

	engine, err := emora.NewEngine(cfg)
	if err != nil {
		slog.Error("engine_init_failed", "error", err)
		os.Exit(1)
	}

	life := runner.NewLifecycleRunner(engine, runner.Hooks{
		OnStart: func() {
			go func() {
				if err := engine.ListenAndServe(); err != nil {
					slog.Error("server_failed", "error", err)
				}
			}()
		},
	}, *drainTimeout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := life.Run(ctx); err != nil {
		slog.Error("shutdown_incomplete", "error", err)
		os.Exit(1)
	}
}
