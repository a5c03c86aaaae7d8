package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"kbassist/internal/cli"
	"kbassist/internal/config"
	"kbassist/internal/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		return 1
	}
	// the terminal belongs to the command output; logs go to files only
	cfg.Log.Console = false
	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	env, err := cli.NewEnv(cfg.Client, logger.Named("cli"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx, env, os.Args[1:]); err != nil {
		return 1
	}
	return 0
}
