package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/HamelinDavid/smugglrs/internal/config"
	"github.com/HamelinDavid/smugglrs/internal/gateway"
	"github.com/HamelinDavid/smugglrs/internal/keystore"
	"github.com/HamelinDavid/smugglrs/internal/server"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to config.toml")
	keyPath := flag.String("key", keystore.DefaultPath, "path to the pre-shared key file")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if err := run(*configPath, *keyPath, logger); err != nil {
		logger.Fatal().Err(err).Msg("fatal error")
	}
}

func run(configPath, keyPath string, logger zerolog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("relay: load %s: %w", configPath, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		sig := <-sigCh
		logger.Info().Stringer("signal", sig).Msg("shutting down")
		cancel()
	}()

	switch cfg.Mode {
	case config.ModeGateway:
		return gateway.Run(ctx, gateway.Config{Port: cfg.Port, KeyPath: keyPath}, logger.With().Str("role", "gateway").Logger())
	case config.ModeServer:
		return server.Run(ctx, server.Config{
			GatewayAddress: cfg.GatewayAddress,
			GatewayPort:    cfg.Port,
			HTTPProxy:      cfg.HTTPProxy,
			KeyPath:        keyPath,
			Redirects:      cfg.Redirects,
		}, logger.With().Str("role", "server").Logger())
	default:
		return fmt.Errorf("relay: unrecognized mode %q", cfg.Mode)
	}
}
