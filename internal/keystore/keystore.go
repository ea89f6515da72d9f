// Package keystore manages the 32-byte pre-shared key that both endpoints
// need to complete the handshake (spec.md §3, §6). It is the one ambient
// component left on the standard library: a fixed-size flat file has no
// better home in any library the teacher or the rest of the retrieval pack
// carries.
package keystore

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"

	"github.com/HamelinDavid/smugglrs/internal/aead"
)

// DefaultPath is the fixed key file name spec.md §6 mandates.
const DefaultPath = "aeskey.bin"

// LoadOrGenerate is the gateway's key-loading policy: use an existing key
// file if present, otherwise generate and persist a fresh one.
func LoadOrGenerate(path string) ([]byte, error) {
	key, err := Load(path)
	if err == nil {
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	key = make([]byte, aead.KeySize)
	if _, genErr := io.ReadFull(rand.Reader, key); genErr != nil {
		return nil, fmt.Errorf("keystore: generate key: %w", genErr)
	}
	if writeErr := os.WriteFile(path, key, 0600); writeErr != nil {
		return nil, fmt.Errorf("keystore: persist generated key to %s: %w", path, writeErr)
	}
	return key, nil
}

// Load is the server's key-loading policy: refuse to start without a key
// file already in place.
func Load(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, fmt.Errorf("keystore: read %s: %w", path, err)
	}
	if len(data) != aead.KeySize {
		return nil, fmt.Errorf("keystore: %s must be exactly %d bytes, got %d", path, aead.KeySize, len(data))
	}
	return data, nil
}
