package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"golang.org/x/crypto/sha3"
)

const (
	AlgEd25519    = "ed25519"
	AlgDilithium3 = "dilithium3"
)

// ErrBadSignature is returned when a signature does not verify.
var ErrBadSignature = errors.New("keys: signature does not verify")

// Digest hashes message with one of sha256, sha512 or sha3-256.
func Digest(hashAlg string, message []byte) ([]byte, error) {
	switch hashAlg {
	case "sha256":
		s := sha256.Sum256(message)
		return s[:], nil
	case "sha512":
		s := sha512.Sum512(message)
		return s[:], nil
	case "sha3-256":
		s := sha3.Sum256(message)
		return s[:], nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %q", hashAlg)
	}
}

// Signer signs a digest of a message. Sign returns a base64 signature.
type Signer interface {
	Algorithm() string
	PublicKey() string
	Sign(message []byte, hashAlg string) (string, error)
}

// NewSigner builds a signer of the given algorithm from a 32-byte seed.
func NewSigner(alg string, seed []byte) (Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	switch alg {
	case AlgEd25519, "":
		return ed25519Signer{priv: ed25519.NewKeyFromSeed(seed)}, nil
	case AlgDilithium3:
		var s [mode3.SeedSize]byte
		copy(s[:], seed)
		pub, priv := mode3.NewKeyFromSeed(&s)
		return dilithium3Signer{pub: pub, priv: priv}, nil
	default:
		return nil, fmt.Errorf("unsupported signature algorithm: %q", alg)
	}
}

type ed25519Signer struct{ priv ed25519.PrivateKey }

func (ed25519Signer) Algorithm() string { return AlgEd25519 }

func (s ed25519Signer) PublicKey() string {
	k, _ := Ed25519PublicKeyString(s.priv.Public().(ed25519.PublicKey))
	return k
}

// Ed25519 signatures are always taken over sha256(message).
func (s ed25519Signer) Sign(message []byte, hashAlg string) (string, error) {
	if hashAlg != "sha256" {
		return "", fmt.Errorf("ed25519 signs sha256 digests only, got %q", hashAlg)
	}
	digest := sha256.Sum256(message)
	return base64.StdEncoding.EncodeToString(ed25519.Sign(s.priv, digest[:])), nil
}

type dilithium3Signer struct {
	pub  *mode3.PublicKey
	priv *mode3.PrivateKey
}

func (dilithium3Signer) Algorithm() string { return AlgDilithium3 }

func (s dilithium3Signer) PublicKey() string {
	return AlgDilithium3 + ":" + base64.StdEncoding.EncodeToString(s.pub.Bytes())
}

func (s dilithium3Signer) Sign(message []byte, hashAlg string) (string, error) {
	digest, err := Digest(hashAlg, message)
	if err != nil {
		return "", err
	}
	sig := make([]byte, mode3.SignatureSize)
	mode3.SignTo(s.priv, digest, sig)
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify checks a base64 signature against a "<alg>:<base64>" public key.
func Verify(publicKey, hashAlg string, message []byte, signature string) error {
	alg, b64, ok := strings.Cut(publicKey, ":")
	if !ok {
		return fmt.Errorf("malformed public key %q", publicKey)
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return fmt.Errorf("decode public key: %w", err)
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	switch alg {
	case AlgEd25519:
		if hashAlg != "sha256" {
			return fmt.Errorf("ed25519 signs sha256 digests only, got %q", hashAlg)
		}
		if len(raw) != ed25519.PublicKeySize {
			return fmt.Errorf("ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
		}
		digest := sha256.Sum256(message)
		if !ed25519.Verify(ed25519.PublicKey(raw), digest[:], sig) {
			return ErrBadSignature
		}
		return nil
	case AlgDilithium3:
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(raw); err != nil {
			return fmt.Errorf("decode dilithium3 public key: %w", err)
		}
		digest, err := Digest(hashAlg, message)
		if err != nil {
			return err
		}
		if !mode3.Verify(&pk, digest, sig) {
			return ErrBadSignature
		}
		return nil
	default:
		return fmt.Errorf("unsupported signature algorithm: %q", alg)
	}
}
