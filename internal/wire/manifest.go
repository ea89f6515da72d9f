package wire

import "fmt"

// MaxManifestPorts bounds the number of redirects a server may advertise.
// The control protocol carries the manifest's ciphertext length in a single
// byte (written by internal/server's sendManifest, read by internal/gateway's
// readManifest), capping N at (255-16)/3 = 79; this constant keeps the
// slightly tighter bound of 78 (spec.md §4.4 step 3).
// internal/config.parseRedirects is where this cap is actually
// enforced, against the redirect table read from config.toml before any
// manifest is ever encoded.
const MaxManifestPorts = 78

// PortManifest is the server's advertised list of ports, in the order the
// server sent them. Lookups by port are done through the Index map built by
// ParseManifest.
type PortManifest struct {
	Ports []Port
	Index map[Port]int
}

// EncodeManifest concatenates the 3-byte records for ports, in order.
func EncodeManifest(ports []Port) []byte {
	out := make([]byte, 0, len(ports)*PortSize)
	for _, p := range ports {
		b := p.Bytes()
		out = append(out, b[:]...)
	}
	return out
}

// ParseManifest decodes a concatenated sequence of 3-byte port records.
func ParseManifest(raw []byte) (*PortManifest, error) {
	if len(raw)%PortSize != 0 {
		return nil, fmt.Errorf("wire: manifest length %d is not a multiple of %d", len(raw), PortSize)
	}
	n := len(raw) / PortSize
	m := &PortManifest{
		Ports: make([]Port, 0, n),
		Index: make(map[Port]int, n),
	}
	for i := 0; i < n; i++ {
		p, err := PortFromBytes(raw[i*PortSize : (i+1)*PortSize])
		if err != nil {
			return nil, fmt.Errorf("wire: manifest entry %d: %w", i, err)
		}
		m.Index[p] = i
		m.Ports = append(m.Ports, p)
	}
	return m, nil
}
