package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const derivationLabel = "resultledger-board-keys-v1"

// DeriveRoleSeed deterministically derives a role seed from a root seed.
func DeriveRoleSeed(rootSeed []byte, role string) ([]byte, error) {
	if len(rootSeed) != ed25519.SeedSize {
		return nil, fmt.Errorf("root seed must be %d bytes", ed25519.SeedSize)
	}
	if err := CheckRole(role); err != nil {
		return nil, err
	}

	h := sha256.New()
	_, _ = h.Write(rootSeed)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(derivationLabel))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte("role:"))
	_, _ = h.Write([]byte(role))
	return h.Sum(nil)[:ed25519.SeedSize], nil
}

// Ed25519PublicKeyString encodes pub as "ed25519:" + base64.
func Ed25519PublicKeyString(pub ed25519.PublicKey) (string, error) {
	if l := len(pub); l != ed25519.PublicKeySize {
		return "", fmt.Errorf("ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, l)
	}
	return AlgEd25519 + ":" + base64.StdEncoding.EncodeToString(pub), nil
}
