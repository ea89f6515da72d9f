package aead

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/HamelinDavid/smugglrs/internal/wire"
)

// InitNonceSize is the length of the cleartext nonce the gateway draws to
// protect the one-off PSK-encrypted key-transport message.
const InitNonceSize = 12

// controlMaterialSize is len(control_key) + len(control_nonce).
const controlMaterialSize = KeySize + NonceSize

// ControlMaterial is the (control_key, control_nonce) pair the gateway
// transports to the server under the pre-shared key, seeding the session
// cipher both sides use for the remainder of the pairing.
type ControlMaterial struct {
	Key   [KeySize]byte
	Nonce [NonceSize]byte
}

func (m ControlMaterial) bytes() []byte {
	b := make([]byte, controlMaterialSize)
	copy(b, m.Key[:])
	copy(b[KeySize:], m.Nonce[:])
	return b
}

func controlMaterialFromBytes(b []byte) (ControlMaterial, error) {
	if len(b) != controlMaterialSize {
		return ControlMaterial{}, fmt.Errorf("aead: control material must be %d bytes, got %d", controlMaterialSize, len(b))
	}
	var m ControlMaterial
	copy(m.Key[:], b[:KeySize])
	copy(m.Nonce[:], b[KeySize:])
	return m, nil
}

// pskSeal/pskOpen perform the one-off AEAD operation under the long-lived
// pre-shared key and the handshake's cleartext init_nonce. They operate
// outside of a Session object: this exchange happens exactly once, before
// either side owns a session cipher, and the spec (§4.2 steps 2-3) pins it
// to a fixed nonce value rather than a counter.
func pskSeal(psk, initNonce, plaintext []byte) ([]byte, error) {
	gcm, err := newPSKGCM(psk)
	if err != nil {
		return nil, err
	}
	return gcm.Seal(nil, initNonce, plaintext, nil), nil
}

func pskOpen(psk, initNonce, ciphertext []byte) ([]byte, error) {
	gcm, err := newPSKGCM(psk)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, initNonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("aead: PSK decrypt: %w", err)
	}
	return plaintext, nil
}

func newPSKGCM(psk []byte) (cipher.AEAD, error) {
	if len(psk) != KeySize {
		return nil, fmt.Errorf("aead: PSK must be %d bytes, got %d", KeySize, len(psk))
	}
	block, err := aes.NewCipher(psk)
	if err != nil {
		return nil, fmt.Errorf("aead: new AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("aead: new GCM: %w", err)
	}
	return gcm, nil
}

// ChallengeResult is what the gateway learns from a successful Challenge:
// the session cipher both sides now share.
type ChallengeResult struct {
	Session *Session
}

// Challenge runs the gateway side of the handshake over an already-open
// carrier, assuming the caller has already consumed MAGIC1. It draws fresh
// key material, transports it to the server under the pre-shared key, and
// verifies the server's MAGIC2 proof before handing back the negotiated
// session cipher.
//
// rw must apply the gateway's read/write deadlines (see spec.md §4.2's 1s
// handshake timeout); Challenge itself is deadline-agnostic.
func Challenge(rw io.ReadWriter, psk []byte) (*ChallengeResult, error) {
	initNonce := make([]byte, InitNonceSize)
	if _, err := io.ReadFull(rand.Reader, initNonce); err != nil {
		return nil, fmt.Errorf("aead: generate init_nonce: %w", err)
	}

	var material ControlMaterial
	if _, err := io.ReadFull(rand.Reader, material.Key[:]); err != nil {
		return nil, fmt.Errorf("aead: generate control_key: %w", err)
	}
	if _, err := io.ReadFull(rand.Reader, material.Nonce[:]); err != nil {
		return nil, fmt.Errorf("aead: generate control_nonce: %w", err)
	}

	sealed, err := pskSeal(psk, initNonce, material.bytes())
	if err != nil {
		return nil, fmt.Errorf("aead: seal control material: %w", err)
	}

	if _, err := rw.Write(initNonce); err != nil {
		return nil, fmt.Errorf("aead: write init_nonce: %w", err)
	}
	if _, err := rw.Write(sealed); err != nil {
		return nil, fmt.Errorf("aead: write sealed control material: %w", err)
	}

	magic2Ciphertext := make([]byte, wire.Magic2Size+TagSize)
	if _, err := io.ReadFull(rw, magic2Ciphertext); err != nil {
		return nil, fmt.Errorf("aead: read MAGIC2 response: %w", err)
	}

	session, err := NewSession(material.Key[:], material.Nonce[:])
	if err != nil {
		return nil, fmt.Errorf("aead: build session cipher: %w", err)
	}

	plaintext, err := session.Decrypt(magic2Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("aead: decrypt MAGIC2: %w", err)
	}
	if !ConstantTimeEqual(plaintext, wire.Magic2[:]) {
		return nil, fmt.Errorf("aead: MAGIC2 mismatch, peer does not share our pre-shared key")
	}

	return &ChallengeResult{Session: session}, nil
}

// AnswerChallenge runs the server side of the handshake, the complement to
// Challenge. rw must have already sent MAGIC1 on this carrier.
func AnswerChallenge(rw io.ReadWriter, psk []byte) (*Session, error) {
	initNonce := make([]byte, InitNonceSize)
	if _, err := io.ReadFull(rw, initNonce); err != nil {
		return nil, fmt.Errorf("aead: read init_nonce: %w", err)
	}

	sealed := make([]byte, controlMaterialSize+TagSize)
	if _, err := io.ReadFull(rw, sealed); err != nil {
		return nil, fmt.Errorf("aead: read sealed control material: %w", err)
	}

	plaintext, err := pskOpen(psk, initNonce, sealed)
	if err != nil {
		return nil, fmt.Errorf("aead: open control material (PSK mismatch?): %w", err)
	}
	material, err := controlMaterialFromBytes(plaintext)
	if err != nil {
		return nil, err
	}

	session, err := NewSession(material.Key[:], material.Nonce[:])
	if err != nil {
		return nil, fmt.Errorf("aead: build session cipher: %w", err)
	}

	magic2Ciphertext, err := session.Encrypt(wire.Magic2[:])
	if err != nil {
		return nil, fmt.Errorf("aead: seal MAGIC2: %w", err)
	}
	if _, err := rw.Write(magic2Ciphertext); err != nil {
		return nil, fmt.Errorf("aead: write MAGIC2 response: %w", err)
	}

	return session, nil
}
