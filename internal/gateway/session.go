package gateway

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/HamelinDavid/smugglrs/internal/aead"
	"github.com/HamelinDavid/smugglrs/internal/pump"
	"github.com/HamelinDavid/smugglrs/internal/wire"
	"github.com/rs/zerolog"
)

// handshakeTimeout is the gateway's read deadline while waiting for
// MAGIC1 and the rest of the handshake, rejecting slow or idle scanners
// (spec.md §4.2 "Timing").
const handshakeTimeout = 1 * time.Second

// rendezvousBudget bounds how long the gateway waits for the server's
// matching dial-in after announcing a ticket (spec.md §4.5 step 2).
const rendezvousBudget = 2000 * time.Millisecond

// rendezvousPollInterval is the granularity at which the gateway re-checks
// the shared control listener while waiting within rendezvousBudget.
const rendezvousPollInterval = 15 * time.Millisecond

// ticketReadTimeout bounds reading a candidate's 30-byte ticket reply
// (spec.md §4.5 step 3).
const ticketReadTimeout = 150 * time.Millisecond

const ticketSize = 14

// runSession owns one full control-session lifecycle: handshake, manifest,
// listener fleet, and the rendezvous event loop, tearing everything down on
// any exit path (spec.md §4.3, §4.5 state machine, §4.6, §5 "Cancellation").
//
// controlListener is the same *net.TCPListener candidate was accepted
// from; it is reused, once the session is established, to accept the
// server's rendezvous dial-ins (spec.md §4.3 step 7).
func runSession(controlListener *net.TCPListener, candidate net.Conn, psk []byte, logger zerolog.Logger) error {
	defer candidate.Close()

	if err := candidate.SetDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		return fmt.Errorf("gateway: set handshake deadline: %w", err)
	}

	magic1 := make([]byte, wire.Magic1Size)
	if _, err := io.ReadFull(candidate, magic1); err != nil {
		logger.Debug().Err(err).Msg("rejecting connection: failed to read MAGIC1")
		return nil
	}
	if !aead.ConstantTimeEqual(magic1, wire.Magic1[:]) {
		logger.Debug().Msg("rejecting connection: MAGIC1 mismatch")
		return nil
	}

	result, err := aead.Challenge(candidate, psk)
	if err != nil {
		logger.Warn().Err(err).Msg("handshake failed")
		return nil
	}

	if err := candidate.SetDeadline(time.Time{}); err != nil {
		return fmt.Errorf("gateway: clear handshake deadline: %w", err)
	}

	session := result.Session
	manifest, err := readManifest(candidate, session)
	if err != nil {
		return fmt.Errorf("gateway: read manifest: %w", err)
	}

	controlPeerIP, err := hostIP(candidate.RemoteAddr())
	if err != nil {
		return fmt.Errorf("gateway: parse control peer address: %w", err)
	}

	logger = logger.With().Str("peer", candidate.RemoteAddr().String()).Logger()
	logger.Info().Int("ports", len(manifest.Ports)).Msg("control session established")

	events := newEventQueue()
	fleet := spawnListenerFleet(manifest.Ports, events, logger)
	defer closeListenerFleet(fleet)
	defer events.close()

	spawnSocketMonitor(candidate, events)

	for {
		ev, ok := events.pop()
		if !ok {
			return nil
		}
		switch ev.kind {
		case eventControlClosed:
			logger.Info().Msg("control connection closed, tearing down session")
			return nil
		case eventNewConnection:
			err := matchRendezvous(controlListener, session, candidate, controlPeerIP, ev.port, ev.conn, logger)
			if err != nil {
				logger.Error().Err(err).Msg("rendezvous failed, tearing down session")
				return err
			}
		}
	}
}

// spawnSocketMonitor issues the single blocking read the gateway performs
// on the control socket after the manifest exchange: the server never
// writes again until the session ends, so any byte or error here is
// anomalous and ends the session (spec.md §4.3 step 5).
func spawnSocketMonitor(conn net.Conn, events *eventQueue) {
	go func() {
		buf := make([]byte, 1)
		_, _ = conn.Read(buf)
		events.push(event{kind: eventControlClosed})
	}()
}

// readManifest implements spec.md §4.3 steps 1-3: a length-prefixed,
// AEAD-protected frame carrying the port manifest.
func readManifest(conn net.Conn, session *aead.Session) (*wire.PortManifest, error) {
	lengthFrame := make([]byte, 1+aead.TagSize)
	if _, err := io.ReadFull(conn, lengthFrame); err != nil {
		return nil, fmt.Errorf("read manifest length frame: %w", err)
	}
	lengthPlaintext, err := session.Decrypt(lengthFrame)
	if err != nil {
		return nil, fmt.Errorf("decrypt manifest length: %w", err)
	}
	if len(lengthPlaintext) != 1 {
		return nil, fmt.Errorf("manifest length frame decrypted to %d bytes, want 1", len(lengthPlaintext))
	}
	length := int(lengthPlaintext[0])

	// The literal "length % 3 == 0" check described by the protocol history
	// can never hold: length is defined as the ciphertext size 3N+16, and
	// 16 mod 3 == 1 for every N. The check that actually catches a
	// malformed length is that it decodes to a whole number of 3-byte
	// records.
	if length < aead.TagSize || (length-aead.TagSize)%wire.PortSize != 0 {
		return nil, fmt.Errorf("invalid manifest length %d", length)
	}

	manifestCiphertext := make([]byte, length)
	if _, err := io.ReadFull(conn, manifestCiphertext); err != nil {
		return nil, fmt.Errorf("read manifest body: %w", err)
	}
	manifestPlaintext, err := session.Decrypt(manifestCiphertext)
	if err != nil {
		return nil, fmt.Errorf("decrypt manifest body: %w", err)
	}
	manifest, err := wire.ParseManifest(manifestPlaintext)
	if err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return manifest, nil
}

// matchRendezvous implements spec.md §4.5's gateway role: announce a fresh
// ticket for the waiting client connection, then wait for the server's
// matching dial-in on the shared control listener.
func matchRendezvous(
	controlListener *net.TCPListener,
	session *aead.Session,
	controlConn net.Conn,
	controlPeerIP net.IP,
	port uint16,
	clientConn net.Conn,
	logger zerolog.Logger,
) error {
	ticket, err := announceTicket(session, controlConn, port)
	if err != nil {
		clientConn.Close()
		return fmt.Errorf("announce rendezvous ticket: %w", err)
	}

	candidate, err := waitForCandidate(controlListener, session, controlPeerIP, ticket, logger)
	if err != nil {
		clientConn.Close()
		return err
	}

	logger.Info().Uint16("port", port).Msg("rendezvous matched, pumping data")
	go func() {
		defer clientConn.Close()
		defer candidate.Close()
		pump.Run(clientConn, candidate)
	}()
	return nil
}

func announceTicket(session *aead.Session, controlConn net.Conn, port uint16) ([]byte, error) {
	ticket := make([]byte, ticketSize)
	if _, err := cryptoRandRead(ticket); err != nil {
		return nil, err
	}

	msg := make([]byte, 2+ticketSize)
	binary.BigEndian.PutUint16(msg[:2], port)
	copy(msg[2:], ticket)

	ciphertext, err := session.Encrypt(msg)
	if err != nil {
		return nil, err
	}
	if _, err := controlConn.Write(ciphertext); err != nil {
		return nil, fmt.Errorf("write rendezvous notification: %w", err)
	}
	return ticket, nil
}

// waitForCandidate polls the shared control listener, bounded by
// rendezvousBudget, discarding any connection that does not come from the
// control peer's IP or does not produce a valid encrypted echo of ticket
// within ticketReadTimeout (spec.md §4.5 steps 2-3, §7 "Rendezvous
// mismatches").
func waitForCandidate(ln *net.TCPListener, session *aead.Session, controlPeerIP net.IP, ticket []byte, logger zerolog.Logger) (net.Conn, error) {
	deadline := time.Now().Add(rendezvousBudget)
	defer ln.SetDeadline(time.Time{})

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("no matching rendezvous candidate within %s", rendezvousBudget)
		}

		step := rendezvousPollInterval
		if remaining < step {
			step = remaining
		}
		if err := ln.SetDeadline(time.Now().Add(step)); err != nil {
			return nil, fmt.Errorf("set rendezvous accept deadline: %w", err)
		}

		candidate, err := ln.Accept()
		if err != nil {
			if isTimeout(err) {
				continue
			}
			return nil, fmt.Errorf("accept rendezvous candidate: %w", err)
		}

		candidateIP, err := hostIP(candidate.RemoteAddr())
		if err != nil || !candidateIP.Equal(controlPeerIP) {
			logger.Debug().Str("candidate", candidate.RemoteAddr().String()).Msg("discarding rendezvous candidate: wrong source IP")
			candidate.Close()
			continue
		}

		if err := candidate.SetReadDeadline(time.Now().Add(ticketReadTimeout)); err != nil {
			candidate.Close()
			continue
		}
		echo := make([]byte, ticketSize+aead.TagSize)
		if _, err := io.ReadFull(candidate, echo); err != nil {
			candidate.Close()
			continue
		}
		plaintext, err := session.Decrypt(echo)
		if err != nil || !aead.ConstantTimeEqual(plaintext, ticket) {
			candidate.Close()
			continue
		}
		_ = candidate.SetReadDeadline(time.Time{})
		return candidate, nil
	}
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

func hostIP(addr net.Addr) (net.IP, error) {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return nil, err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, fmt.Errorf("could not parse IP from %q", addr.String())
	}
	return ip, nil
}
