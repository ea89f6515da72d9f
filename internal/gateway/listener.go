package gateway

import (
	"errors"
	"fmt"
	"net"

	"github.com/HamelinDavid/smugglrs/internal/wire"
	"github.com/rs/zerolog"
)

// portListener is one member of the listener fleet: a bound TCP listener
// for a single manifest port, feeding the session's event queue.
type portListener struct {
	port wire.Port
	ln   net.Listener
}

// spawnListenerFleet binds one TCP listener per TCP entry in manifest.
// A bind failure on one port is logged and skipped — the session proceeds
// with whichever ports did bind (spec.md §4.3 step 4, §7 "Bind failures on
// secondary ports"). UDP entries are acknowledged but never bound (spec.md
// §9 "UDP" — a declared non-goal, not a silent success).
func spawnListenerFleet(ports []wire.Port, events *eventQueue, logger zerolog.Logger) []*portListener {
	fleet := make([]*portListener, 0, len(ports))
	for _, p := range ports {
		if p.Protocol == wire.ProtocolUDP {
			logger.Warn().Uint16("port", p.Number).Msg("ignoring UDP redirect: UDP forwarding is not implemented")
			continue
		}

		ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", p.Number))
		if err != nil {
			logger.Error().Err(err).Uint16("port", p.Number).Msg("failed to bind advertised port, skipping")
			continue
		}

		pl := &portListener{port: p, ln: ln}
		fleet = append(fleet, pl)
		go acceptLoop(pl, events, logger)
	}
	return fleet
}

// acceptLoop feeds the session's event queue until the listener is closed
// by session teardown. A per-accept error (e.g. a transient resource limit)
// is logged and the loop keeps going — only net.ErrClosed, which closeListenerFleet
// causes deliberately, ends it (spec.md §4.3 step 4: a bind failure is fatal
// to that one port at startup, but an accept hiccup on an already-bound
// port must not kill forwarding for the rest of the session).
func acceptLoop(pl *portListener, events *eventQueue, logger zerolog.Logger) {
	for {
		conn, err := pl.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Error().Err(err).Uint16("port", pl.port.Number).Msg("accept error, continuing to serve this port")
			continue
		}
		events.push(event{kind: eventNewConnection, port: pl.port.Number, conn: conn})
	}
}

func closeListenerFleet(fleet []*portListener) {
	for _, pl := range fleet {
		pl.ln.Close()
	}
}
