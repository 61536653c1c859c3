package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	libconfig "parkease/libs/config"
	"parkease/libs/logging"
	"parkease/services/wallet-client/internal/app"
	"parkease/services/wallet-client/internal/cli"
	"parkease/services/wallet-client/internal/config"
	"parkease/services/wallet-client/internal/ui"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logging.NewLogger(logging.WithName("wallet-client"))
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	rt := &cli.Runtime{
		In:  os.Stdin,
		Out: os.Stdout,
		Err: os.Stderr,
	}
	rt.Open = func(ctx context.Context, out io.Writer) (*app.App, error) {
		var opts []libconfig.Option
		if rt.ConfigFile != "" {
			opts = append(opts, libconfig.WithConfigFile(rt.ConfigFile))
		}
		cfg, err := config.Load(opts...)
		if err != nil {
			return nil, err
		}
		logger.Debug("config loaded", zap.String("backend", cfg.Backend.BaseURL), zap.Bool("strict", cfg.App.Strict))
		return app.New(ctx, cfg, logger, ui.NewConsole(out, cfg.Currency()))
	}

	if err := cli.Execute(ctx, rt, os.Args[1:]); err != nil {
		stop()
		_ = logger.Sync()
		os.Exit(1)
	}
}
