package aead

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"sync"
)

// KeySize is the AES-256-GCM key length, and also the size of the
// pre-shared key file.
const KeySize = 32

// NonceSize is the GCM nonce length used throughout the control and
// rendezvous planes.
const NonceSize = 12

// TagSize is the GCM authentication tag length appended to every
// ciphertext.
const TagSize = 16

// nonceCounter is a 12-byte counter, little-endian over bytes: incrementing
// walks from byte 0 upward, bumping the first byte that is not 0xFF and
// zeroing every 0xFF byte passed through along the way.
type nonceCounter [NonceSize]byte

// increment advances the counter in place. It reports an error if the
// counter has exhausted its range (all bytes 0xFF) rather than silently
// wrapping and risking nonce reuse.
func (n *nonceCounter) increment() error {
	for i := 0; i < len(n); i++ {
		if n[i] != 0xFF {
			n[i]++
			return nil
		}
		n[i] = 0
	}
	return fmt.Errorf("aead: nonce counter exhausted")
}

// Session is an AEAD-protected channel: an AES-256-GCM cipher plus a
// monotonically increasing nonce counter. Both encryption and decryption
// operate against the *next* counter value (current+1): encryption commits
// that increment unconditionally before sealing, while decryption only
// commits it once the open succeeds. This is what keeps a gateway and a
// server seeded with the same (key, initial nonce) in lockstep from the
// handshake's very first frame onward, while letting the gateway try (and
// discard) forged or stray rendezvous candidates without burning a nonce
// value that the real peer never used.
//
// A Session is shared across goroutines whenever a caller fans work out
// from the control connection (for instance, a server answering several
// rendezvous notifications concurrently): mu serializes every Encrypt/
// Decrypt call so the nonce counter never races.
type Session struct {
	mu    sync.Mutex
	gcm   cipher.AEAD
	nonce nonceCounter
}

// NewSession builds a Session from a 32-byte key and a 12-byte initial
// nonce value, as derived by the handshake.
func NewSession(key, initialNonce []byte) (*Session, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("aead: key must be %d bytes, got %d", KeySize, len(key))
	}
	if len(initialNonce) != NonceSize {
		return nil, fmt.Errorf("aead: nonce must be %d bytes, got %d", NonceSize, len(initialNonce))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aead: new AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("aead: new GCM: %w", err)
	}
	s := &Session{gcm: gcm}
	copy(s.nonce[:], initialNonce)
	return s, nil
}

// Encrypt advances the nonce counter, then seals plaintext, returning
// ciphertext||tag.
func (s *Session) Encrypt(plaintext []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.nonce.increment(); err != nil {
		return nil, err
	}
	return s.gcm.Seal(nil, s.nonce[:], plaintext, nil), nil
}

// Decrypt opens ciphertext||tag under the next nonce value — the same value
// a correctly synchronized peer would have used to encrypt it — and only
// commits that advance to the session's counter once the open succeeds. A
// failed open (forged ciphertext, stray rendezvous candidate, wrong key)
// leaves the counter untouched so the session can keep waiting for the
// legitimate message at that sequence position.
func (s *Session) Decrypt(ciphertext []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	candidate := s.nonce
	if err := candidate.increment(); err != nil {
		return nil, err
	}
	plaintext, err := s.gcm.Open(nil, candidate[:], ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("aead: decrypt: %w", err)
	}
	s.nonce = candidate
	return plaintext, nil
}
