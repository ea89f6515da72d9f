package server

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/HamelinDavid/smugglrs/internal/aead"
	"github.com/HamelinDavid/smugglrs/internal/config"
	"github.com/HamelinDavid/smugglrs/internal/proxy"
	"github.com/HamelinDavid/smugglrs/internal/pump"
	"github.com/HamelinDavid/smugglrs/internal/wire"
	"github.com/rs/zerolog"
)

// ticketSize mirrors internal/gateway's rendezvous ticket size; the two
// packages never import each other, so the constant is repeated rather
// than shared across the wire boundary.
const ticketSize = 14

// notificationSize is the plaintext size of a rendezvous notification: a
// 2-byte port plus the ticket (spec.md §4.5 "Rendezvous carrier").
const notificationSize = 2 + ticketSize

// runSession implements spec.md §4.4: dial the gateway, run the handshake,
// advertise the manifest, then serve rendezvous notifications until the
// control connection fails.
func runSession(cfg Config, psk []byte, logger zerolog.Logger) error {
	conn, err := dialGateway(cfg)
	if err != nil {
		return fmt.Errorf("server: dial gateway: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Write(wire.Magic1[:]); err != nil {
		return fmt.Errorf("server: write MAGIC1: %w", err)
	}

	session, err := aead.AnswerChallenge(conn, psk)
	if err != nil {
		return fmt.Errorf("server: handshake: %w", err)
	}
	logger.Info().Msg("handshake complete, sending manifest")

	if err := sendManifest(conn, session, cfg.Redirects); err != nil {
		return fmt.Errorf("server: send manifest: %w", err)
	}

	table := newRedirectTable(cfg.Redirects)
	gatewayAddr := net.JoinHostPort(cfg.GatewayAddress, strconv.Itoa(int(cfg.GatewayPort)))

	for {
		notification := make([]byte, notificationSize+aead.TagSize)
		if _, err := io.ReadFull(conn, notification); err != nil {
			return fmt.Errorf("server: control connection lost: %w", err)
		}
		plaintext, err := session.Decrypt(notification)
		if err != nil {
			return fmt.Errorf("server: decrypt rendezvous notification: %w", err)
		}
		if len(plaintext) != notificationSize {
			return fmt.Errorf("server: rendezvous notification decrypted to %d bytes, want %d", len(plaintext), notificationSize)
		}
		portNumber := binary.BigEndian.Uint16(plaintext[:2])
		ticket := append([]byte(nil), plaintext[2:]...)

		port := wire.Port{Number: portNumber, Protocol: wire.ProtocolTCP}
		localPort, ok := table[port]
		if !ok {
			return fmt.Errorf("server: rendezvous for unknown port %d", portNumber)
		}

		go serveRendezvous(gatewayAddr, session, ticket, localPort, logger)
	}
}

// serveRendezvous implements spec.md §4.5's server role for one client: a
// fresh dial back to the gateway carrying the encrypted ticket echo, a
// fresh dial to the local upstream service, then hand both off to the
// byte-pump. It runs in its own goroutine so a slow or stuck client never
// blocks the control loop from servicing the next rendezvous.
func serveRendezvous(gatewayAddr string, session *aead.Session, ticket []byte, localPort uint16, logger zerolog.Logger) {
	rendezvousConn, err := net.Dial("tcp", gatewayAddr)
	if err != nil {
		logger.Error().Err(err).Msg("rendezvous: dial gateway failed")
		return
	}
	defer rendezvousConn.Close()

	echo, err := session.Encrypt(ticket)
	if err != nil {
		logger.Error().Err(err).Msg("rendezvous: seal ticket echo failed")
		return
	}
	if _, err := rendezvousConn.Write(echo); err != nil {
		logger.Error().Err(err).Msg("rendezvous: write ticket echo failed")
		return
	}

	upstreamAddr := net.JoinHostPort("127.0.0.1", strconv.Itoa(int(localPort)))
	upstreamConn, err := net.Dial("tcp", upstreamAddr)
	if err != nil {
		logger.Error().Err(err).Str("upstream", upstreamAddr).Msg("rendezvous: dial upstream failed")
		return
	}
	defer upstreamConn.Close()

	pump.Run(rendezvousConn, upstreamConn)
}

// sendManifest implements spec.md §4.4 steps 3-4: a length-prefixed AEAD
// frame carrying the port manifest, mirroring the shape
// internal/gateway's readManifest expects byte for byte.
func sendManifest(conn net.Conn, session *aead.Session, redirects []config.Redirect) error {
	manifest := wire.EncodeManifest(manifestPorts(redirects))

	lengthCiphertext, err := session.Encrypt([]byte{byte(len(manifest) + aead.TagSize)})
	if err != nil {
		return fmt.Errorf("seal manifest length: %w", err)
	}
	if _, err := conn.Write(lengthCiphertext); err != nil {
		return fmt.Errorf("write manifest length: %w", err)
	}

	manifestCiphertext, err := session.Encrypt(manifest)
	if err != nil {
		return fmt.Errorf("seal manifest body: %w", err)
	}
	if _, err := conn.Write(manifestCiphertext); err != nil {
		return fmt.Errorf("write manifest body: %w", err)
	}
	return nil
}

func dialGateway(cfg Config) (net.Conn, error) {
	target := net.JoinHostPort(cfg.GatewayAddress, strconv.Itoa(int(cfg.GatewayPort)))
	if cfg.HTTPProxy != "" {
		return proxy.DialConnect(cfg.HTTPProxy, target)
	}
	return net.Dial("tcp", target)
}
