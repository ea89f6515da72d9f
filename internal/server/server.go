package server

import (
	"context"
	"fmt"
	"time"

	"github.com/HamelinDavid/smugglrs/internal/keystore"
	"github.com/rs/zerolog"
)

// retryInterval is how long the server waits after a failed or ended
// session before dialing the gateway again (spec.md §4.6 "Server
// reconnection"), grounded on the teacher's client reconnect backoff.
const retryInterval = 60 * time.Second

// Run is the server's outer loop: load the pre-shared key once, then dial
// the gateway and run one session to completion, retrying after
// retryInterval on any error or disconnection, until ctx is cancelled.
func Run(ctx context.Context, cfg Config, logger zerolog.Logger) error {
	psk, err := keystore.Load(cfg.KeyPath)
	if err != nil {
		return fmt.Errorf("server: load pre-shared key: %w", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		logger.Info().Str("gateway", cfg.GatewayAddress).Msg("connecting to gateway")
		if err := runSession(cfg, psk, logger); err != nil {
			logger.Error().Err(err).Msg("session ended, retrying after backoff")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}
