package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/HamelinDavid/smugglrs/internal/wire"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadGatewayConfig(t *testing.T) {
	path := writeConfig(t, `
mode = "gateway"
port = 7000
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != ModeGateway || cfg.Port != 7000 {
		t.Errorf("got %+v", cfg)
	}
}

func TestLoadServerConfigWithShortRedirect(t *testing.T) {
	path := writeConfig(t, `
mode = "server"
port = 7000
gateway_address = "127.0.0.1"

redirects = [
  [9000, "TCP"],
  [53, 5353, "UDP"],
]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Redirects) != 2 {
		t.Fatalf("got %d redirects, want 2", len(cfg.Redirects))
	}
	want0 := Redirect{RemotePort: wire.Port{Number: 9000, Protocol: wire.ProtocolTCP}, LocalPort: 9000}
	if cfg.Redirects[0] != want0 {
		t.Errorf("redirects[0] = %+v, want %+v", cfg.Redirects[0], want0)
	}
	want1 := Redirect{RemotePort: wire.Port{Number: 53, Protocol: wire.ProtocolUDP}, LocalPort: 5353}
	if cfg.Redirects[1] != want1 {
		t.Errorf("redirects[1] = %+v, want %+v", cfg.Redirects[1], want1)
	}
}

func TestLoadServerConfigRejectsDuplicateRemotePort(t *testing.T) {
	path := writeConfig(t, `
mode = "server"
port = 7000
gateway_address = "127.0.0.1"

redirects = [
  [9000, "TCP"],
  [9000, 8080, "TCP"],
]
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected duplicate remote port to be rejected")
	}
}

func TestLoadServerConfigRequiresGatewayAddress(t *testing.T) {
	path := writeConfig(t, `
mode = "server"
port = 7000
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected missing gateway_address to be rejected")
	}
}

func TestLoadRejectsUnknownMode(t *testing.T) {
	path := writeConfig(t, `
mode = "bogus"
port = 7000
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected unknown mode to be rejected")
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
