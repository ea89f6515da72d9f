// Package server implements the private half of the relay: it dials the
// gateway (optionally through an HTTP CONNECT proxy), answers the
// handshake, advertises its redirect table, and originates a fresh
// connection for every rendezvous notification (spec.md §2 component 3,
// §4.4, §4.5 "Server role").
package server

import (
	"github.com/HamelinDavid/smugglrs/internal/config"
	"github.com/HamelinDavid/smugglrs/internal/wire"
)

// Config is the server's runtime configuration.
type Config struct {
	GatewayAddress string
	GatewayPort    uint16
	HTTPProxy      string
	KeyPath        string
	Redirects      []config.Redirect
}

// redirectTable resolves an advertised port back to the server's local
// loopback port (spec.md §3 "Server redirect table").
type redirectTable map[wire.Port]uint16

func newRedirectTable(redirects []config.Redirect) redirectTable {
	t := make(redirectTable, len(redirects))
	for _, r := range redirects {
		t[r.RemotePort] = r.LocalPort
	}
	return t
}

// manifestPorts returns the Port list to advertise, in redirect-table
// order, matching the order EncodeManifest/ParseManifest expect.
func manifestPorts(redirects []config.Redirect) []wire.Port {
	ports := make([]wire.Port, len(redirects))
	for i, r := range redirects {
		ports[i] = r.RemotePort
	}
	return ports
}
