// Command chatrelay runs the chat relay server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"chatrelay/internal/auth"
	"chatrelay/internal/config"
	"chatrelay/internal/gateway"
	"chatrelay/internal/logger"
	"chatrelay/internal/registry"
	"chatrelay/internal/relay"
	"chatrelay/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		host       = flag.String("host", "", "bind address (overrides config)")
		port       = flag.Int("port", 0, "listen port (overrides config)")
		configPath = flag.String("config", "", "path to JSON config file")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	credStore, err := openStore(cfg.Users, log)
	if err != nil {
		return err
	}
	defer credStore.Close()

	authenticator, err := auth.New(credStore, log)
	if err != nil {
		return err
	}

	reg := registry.New()
	router := relay.NewRouter(reg, log)
	server := relay.NewServer(cfg.Server.Addr(), cfg.Server.AcceptTimeout, cfg.Server.WriteBuffer,
		authenticator, reg, router, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var gw *gateway.Gateway
	if cfg.Gateway.Enabled {
		gw = gateway.New(cfg.Gateway, authenticator, reg, router, log)
		go func() {
			if err := gw.Start(); err != nil {
				log.Error("gateway failed", zap.Error(err))
			}
		}()
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe(ctx)
	}()

	consoleStop := relay.RunConsole(os.Stdin, log)

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return err
	case <-consoleStop:
	case sig := <-signalCh:
		log.Info("received signal, shutting down", zap.String("signal", sig.String()))
	}

	server.Shutdown()
	if gw != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := gw.Shutdown(shutdownCtx); err != nil {
			log.Warn("gateway shutdown", zap.Error(err))
		}
	}
	return <-serverErr
}

// openStore builds the configured credential store backend.
func openStore(cfg *config.UsersConfig, log *zap.Logger) (store.CredentialStore, error) {
	switch cfg.Backend {
	case store.BackendSQLite:
		return store.NewSQLiteStore(cfg.Path, log)
	default:
		return store.NewFileStore(cfg.Path), nil
	}
}
