// Package wallet holds the engine's single signing key and address helpers.
package wallet

import (
	"crypto/ed25519"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Keypair is the engine's signing identity. The host provides exactly one.
type Keypair struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// FromBase58 parses a base58-encoded 64-byte ed25519 private key
// (seed || public key), the format wallets export.
func FromBase58(encoded string) (*Keypair, error) {
	raw, err := base58.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	switch len(raw) {
	case ed25519.PrivateKeySize:
		priv := ed25519.PrivateKey(raw)
		return &Keypair{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
	case ed25519.SeedSize:
		priv := ed25519.NewKeyFromSeed(raw)
		return &Keypair{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
	default:
		return nil, fmt.Errorf("private key must be %d or %d bytes, got %d",
			ed25519.PrivateKeySize, ed25519.SeedSize, len(raw))
	}
}

// Address returns the base58 public key.
func (k *Keypair) Address() string {
	return base58.Encode(k.pub)
}

// PublicKey returns the raw public key bytes.
func (k *Keypair) PublicKey() ed25519.PublicKey {
	return k.pub
}

// Sign signs msg with the private key.
func (k *Keypair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.priv, msg)
}

// ValidateAddress checks that addr is a well-formed base58 32-byte key.
func ValidateAddress(addr string) error {
	raw, err := base58.Decode(addr)
	if err != nil {
		return fmt.Errorf("decode address: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return fmt.Errorf("address must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return nil
}

// IsOnCurve reports whether addr decompresses to a point on the ed25519
// curve. Wallet and tip accounts must be on-curve; program-derived
// addresses are off-curve.
func IsOnCurve(addr string) (bool, error) {
	raw, err := base58.Decode(addr)
	if err != nil {
		return false, fmt.Errorf("decode address: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return false, fmt.Errorf("address must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	if _, err := new(edwards25519.Point).SetBytes(raw); err != nil {
		return false, nil
	}
	return true, nil
}
