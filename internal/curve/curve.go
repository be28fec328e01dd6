// Package curve implements the curve-based identity and authenticated
// encryption used above the raw transport: every peer is named by a
// 32-byte X25519 public key, and every frame after the handshake is
// sealed with XChaCha20-Poly1305 under a key derived from the ECDH
// shared secret.
package curve

import (
	"crypto/ecdh"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/sha3"
)

const (
	// KeySize is the width of a public or private curve key and of a
	// derived AEAD key.
	KeySize = 32
	// XNonceSize is the XChaCha20-Poly1305 extended nonce width.
	XNonceSize = chacha20poly1305.NonceSizeX
)

var ErrKeySize = errors.New("curve: bad key size")

// Identity is the local instance's fixed keypair, generated at
// construction if the caller supplies neither half.
type Identity struct {
	Pub  [KeySize]byte
	priv *ecdh.PrivateKey
}

// GenerateIdentity creates a fresh random identity.
func GenerateIdentity() (*Identity, error) {
	priv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return fromPrivateKey(priv)
}

// NewIdentity builds an Identity from an explicit 32-byte private key.
func NewIdentity(privBytes []byte) (*Identity, error) {
	if len(privBytes) != KeySize {
		return nil, ErrKeySize
	}
	priv, err := ecdh.X25519().NewPrivateKey(privBytes)
	if err != nil {
		return nil, fmt.Errorf("curve: bad private key: %w", err)
	}
	return fromPrivateKey(priv)
}

func fromPrivateKey(priv *ecdh.PrivateKey) (*Identity, error) {
	id := &Identity{priv: priv}
	copy(id.Pub[:], priv.PublicKey().Bytes())
	return id, nil
}

// Bytes returns the raw private key material. Callers that persist it
// are responsible for protecting it at rest.
func (id *Identity) Bytes() []byte {
	return id.priv.Bytes()
}

// ECDH derives the raw shared secret with a remote 32-byte public key.
func (id *Identity) ECDH(peerPub []byte) ([]byte, error) {
	if len(peerPub) != KeySize {
		return nil, ErrKeySize
	}
	pub, err := ecdh.X25519().NewPublicKey(peerPub)
	if err != nil {
		return nil, fmt.Errorf("curve: bad peer key: %w", err)
	}
	return id.priv.ECDH(pub)
}

// SaveTo writes pub.hex/priv.hex into dir, mirroring the on-disk layout
// the instance was seeded from when one is supplied at construction.
func (id *Identity) SaveTo(dir string) error {
	if err := os.WriteFile(filepath.Join(dir, "pub.hex"), []byte(hex.EncodeToString(id.Pub[:])), 0600); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "priv.hex"), []byte(hex.EncodeToString(id.Bytes())), 0600)
}

// LoadIdentity reads a previously saved keypair back from dir.
func LoadIdentity(dir string) (*Identity, error) {
	privHex, err := os.ReadFile(filepath.Join(dir, "priv.hex"))
	if err != nil {
		return nil, err
	}
	priv, err := hex.DecodeString(string(privHex))
	if err != nil {
		return nil, fmt.Errorf("curve: bad priv.hex: %w", err)
	}
	return NewIdentity(priv)
}

// SHA3_256 is the fixed hash used throughout the KDF chain.
func SHA3_256(msg []byte) []byte {
	sum := sha3.Sum256(msg)
	return sum[:]
}

// KDF mixes a domain label with arbitrary key material through
// SHA3-256. No HKDF/HMAC machinery is used — a single fixed-output
// hash is enough for the session-key derivations in this package.
func KDF(label string, parts ...[]byte) []byte {
	buf := make([]byte, 0, len(label))
	buf = append(buf, []byte(label)...)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return SHA3_256(buf)
}

// XSeal seals plaintext under key32 with a fresh random 24-byte nonce,
// returning the nonce alongside the ciphertext.
func XSeal(key32, plaintext, aad []byte) (nonce24, ciphertext []byte, err error) {
	aead, err := newXAEAD(key32)
	if err != nil {
		return nil, nil, err
	}
	nonce := make([]byte, XNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}
	return nonce, aead.Seal(nil, nonce, plaintext, aad), nil
}

// XSealWithNonce seals under an explicit nonce (used once keys are
// derived per-session and nonces are counter-derived, see session.go).
func XSealWithNonce(key32, nonce24, plaintext, aad []byte) ([]byte, error) {
	aead, err := newXAEAD(key32)
	if err != nil {
		return nil, err
	}
	if len(nonce24) != XNonceSize {
		return nil, fmt.Errorf("curve: bad nonce size: need %d", XNonceSize)
	}
	return aead.Seal(nil, nonce24, plaintext, aad), nil
}

// XOpen authenticates and decrypts ciphertext sealed by XSeal/XSealWithNonce.
func XOpen(key32, nonce24, ciphertext, aad []byte) ([]byte, error) {
	aead, err := newXAEAD(key32)
	if err != nil {
		return nil, err
	}
	if len(nonce24) != XNonceSize {
		return nil, fmt.Errorf("curve: bad nonce size: need %d", XNonceSize)
	}
	return aead.Open(nil, nonce24, ciphertext, aad)
}

func newXAEAD(key32 []byte) (aeadCipher, error) {
	if len(key32) != KeySize {
		return nil, fmt.Errorf("curve: bad key size: need %d", KeySize)
	}
	return chacha20poly1305.NewX(key32)
}

type aeadCipher interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}
