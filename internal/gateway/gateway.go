// Package gateway implements the publicly reachable half of the relay: it
// accepts the server's control connection, serves the rendezvous protocol,
// and relays client byte streams to the matched server-side connection
// (spec.md §2 components 3-6).
package gateway

import (
	"context"
	"fmt"
	"net"

	"github.com/HamelinDavid/smugglrs/internal/keystore"
	"github.com/rs/zerolog"
)

// Config is the gateway's runtime configuration, already validated by
// internal/config.
type Config struct {
	// Port is both the control port a server dials into and, for the
	// duration of a session, the port the server's rendezvous dial-ins
	// arrive on (spec.md §4.3 step 7).
	Port uint16
	// KeyPath is the pre-shared key file (spec.md §6 "Key file").
	KeyPath string
}

// Run is the gateway's outer loop (spec.md §4.6): accept a candidate
// control connection, run exactly one session to completion, log any
// error, and go back to accepting. At most one session is ever active,
// satisfying spec.md §3's "at most one control session per gateway
// process" invariant — the same listener is never Accept()ed from by two
// goroutines at once.
func Run(ctx context.Context, cfg Config, logger zerolog.Logger) error {
	psk, err := keystore.LoadOrGenerate(cfg.KeyPath)
	if err != nil {
		return fmt.Errorf("gateway: load pre-shared key: %w", err)
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("gateway: bind control port %d: %w", cfg.Port, err)
	}
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		ln.Close()
		return fmt.Errorf("gateway: expected a TCP listener, got %T", ln)
	}
	defer tcpLn.Close()

	go func() {
		<-ctx.Done()
		tcpLn.Close()
	}()

	logger.Info().Uint16("port", cfg.Port).Msg("gateway listening for control connections")

	for {
		candidate, err := tcpLn.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("gateway: accept control connection: %w", err)
		}

		if sessionErr := runSession(tcpLn, candidate, psk, logger); sessionErr != nil {
			logger.Error().Err(sessionErr).Msg("session ended with error, returning to pairing mode")
		}
	}
}
