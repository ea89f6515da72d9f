// Package config loads config.toml, the one piece of external configuration
// this system reads. Parsing is deliberately thin: it decodes the file and
// validates shape, but carries no pairing-protocol logic of its own.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/HamelinDavid/smugglrs/internal/wire"
)

const DefaultPath = "config.toml"

// Mode selects which half of the system a process runs as.
type Mode string

const (
	ModeGateway Mode = "gateway"
	ModeServer  Mode = "server"
)

// raw mirrors config.toml's on-disk shape before validation. Redirects is
// left as [][]interface{} because spec.md §6 allows two different arities
// per entry ([remote, protocol] or [remote, local, protocol]).
type raw struct {
	Mode            string          `toml:"mode"`
	Port            int             `toml:"port"`
	GatewayAddress  string          `toml:"gateway_address"`
	HTTPProxy       string          `toml:"http_proxy"`
	Redirects       [][]interface{} `toml:"redirects"`
}

// Redirect is one validated entry from the server's redirects table: a port
// advertised to the outside world, forwarded to a loopback port on the
// server host.
type Redirect struct {
	RemotePort wire.Port
	LocalPort  uint16
}

// Config is the fully validated, mode-specific configuration this process
// runs with.
type Config struct {
	Mode           Mode
	Port           uint16
	GatewayAddress string
	HTTPProxy      string
	Redirects      []Redirect
}

// Load reads and validates path, which must already exist (config parsing
// failures are startup errors, not session errors — there is no running
// session yet to tear down).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var r raw
	if _, err := toml.Decode(string(data), &r); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg := &Config{
		Port:           uint16(r.Port),
		GatewayAddress: r.GatewayAddress,
		HTTPProxy:      r.HTTPProxy,
	}

	switch Mode(r.Mode) {
	case ModeGateway:
		cfg.Mode = ModeGateway
	case ModeServer:
		cfg.Mode = ModeServer
	default:
		return nil, fmt.Errorf("config: mode must be %q or %q, got %q", ModeGateway, ModeServer, r.Mode)
	}

	if cfg.Port == 0 {
		return nil, fmt.Errorf("config: port must be set")
	}

	if cfg.Mode == ModeServer {
		if cfg.GatewayAddress == "" {
			return nil, fmt.Errorf("config: gateway_address is required in server mode")
		}
		redirects, err := parseRedirects(r.Redirects)
		if err != nil {
			return nil, err
		}
		cfg.Redirects = redirects
	}

	return cfg, nil
}

func parseRedirects(entries [][]interface{}) ([]Redirect, error) {
	if len(entries) > wire.MaxManifestPorts {
		return nil, fmt.Errorf("config: %d redirects exceeds the maximum of %d", len(entries), wire.MaxManifestPorts)
	}

	seen := make(map[uint16]bool, len(entries))
	redirects := make([]Redirect, 0, len(entries))
	for i, e := range entries {
		r, err := parseRedirectEntry(e)
		if err != nil {
			return nil, fmt.Errorf("config: redirects[%d]: %w", i, err)
		}
		if seen[r.RemotePort.Number] {
			return nil, fmt.Errorf("config: redirects[%d]: duplicate remote port %d", i, r.RemotePort.Number)
		}
		seen[r.RemotePort.Number] = true
		redirects = append(redirects, r)
	}
	return redirects, nil
}

// parseRedirectEntry accepts the two shapes spec.md §6 defines:
// [server_port, protocol] (local mirrors remote) or
// [remote_port, local_port, protocol].
func parseRedirectEntry(e []interface{}) (Redirect, error) {
	switch len(e) {
	case 2:
		remote, err := toInt(e[0])
		if err != nil {
			return Redirect{}, fmt.Errorf("port: %w", err)
		}
		proto, err := toProtocol(e[1])
		if err != nil {
			return Redirect{}, err
		}
		return Redirect{
			RemotePort: wire.Port{Number: uint16(remote), Protocol: proto},
			LocalPort:  uint16(remote),
		}, nil
	case 3:
		remote, err := toInt(e[0])
		if err != nil {
			return Redirect{}, fmt.Errorf("remote port: %w", err)
		}
		local, err := toInt(e[1])
		if err != nil {
			return Redirect{}, fmt.Errorf("local port: %w", err)
		}
		proto, err := toProtocol(e[2])
		if err != nil {
			return Redirect{}, err
		}
		return Redirect{
			RemotePort: wire.Port{Number: uint16(remote), Protocol: proto},
			LocalPort:  uint16(local),
		}, nil
	default:
		return Redirect{}, fmt.Errorf("expected 2 or 3 elements, got %d", len(e))
	}
}

func toInt(v interface{}) (int64, error) {
	i, ok := v.(int64)
	if !ok {
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
	if i < 0 || i > 65535 {
		return 0, fmt.Errorf("port %d out of range", i)
	}
	return i, nil
}

func toProtocol(v interface{}) (wire.Protocol, error) {
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("expected protocol string, got %T", v)
	}
	switch s {
	case "TCP":
		return wire.ProtocolTCP, nil
	case "UDP":
		return wire.ProtocolUDP, nil
	default:
		return 0, fmt.Errorf("protocol must be \"TCP\" or \"UDP\", got %q", s)
	}
}
