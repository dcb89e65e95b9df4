package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/facegate/facegate-go/cmd"
	"github.com/facegate/facegate-go/internal/conf"
	"github.com/facegate/facegate-go/internal/logging"
)

func main() {
	cfg, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logging.Init(level)

	rootCmd := cmd.RootCommand(cfg)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "command error: %v\n", err)
		os.Exit(1)
	}
}
