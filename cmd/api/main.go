package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/congo-pay/coa_auth/internal/config"
	"github.com/congo-pay/coa_auth/internal/infra"
	"github.com/congo-pay/coa_auth/internal/logging"
	"github.com/congo-pay/coa_auth/internal/routes"
	"github.com/congo-pay/coa_auth/internal/server"
)

func main() {
	flagSet := pflag.NewFlagSet("coa-api", pflag.ContinueOnError)
	configPath := flagSet.StringP("config", "c", "", "path to a YAML config file (environment variables take precedence)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "parse flags: %v\n", err)
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.AppName)

	res, err := infra.Open(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("open resources", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := res.Close(); err != nil {
			logger.Warn("close resources", "error", err)
		}
	}()

	deps := routes.Deps{Store: res.Store, DB: res.DB, SQL: res.SQL, Cache: res.Cache}
	srv, err := server.New(cfg, deps, logger)
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}
