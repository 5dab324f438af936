package token

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"io"
)

var _ Signer = &SignerECDSA{}

// Signer defines the interface for signing the JWT signing input.
type Signer interface {
	Sign(data []byte) ([]byte, error)
}

// SignerECDSA implements the Signer interface using ECDSA (ES256).
type SignerECDSA struct {
	PrivateKey *ecdsa.PrivateKey // ECDSA private key
	Hash       crypto.Hash       // SHA-256; zero means SHA-256
	Rand       io.Reader         // Entropy source; crypto/rand when nil
}

// Sign generates an ECDSA signature for the given data and returns it in raw r||s form.
// It supports only P-256 keys.
func (se *SignerECDSA) Sign(data []byte) ([]byte, error) {
	if se.PrivateKey == nil {
		return nil, fmt.Errorf("%w: missing private key", ErrSigning)
	}
	if se.PrivateKey.Curve != elliptic.P256() {
		return nil, fmt.Errorf("%w: expected P-256, got %s", ErrKeyType, curveName(se.PrivateKey.Curve))
	}
	hash := se.Hash
	if hash == 0 {
		hash = crypto.SHA256
	}
	if hash != crypto.SHA256 {
		return nil, fmt.Errorf("%w: ES256 requires SHA-256, got %s", ErrSigning, hash)
	}
	random := se.Rand
	if random == nil {
		random = rand.Reader
	}

	h := hash.New()
	h.Write(data)
	digest := h.Sum(nil)

	der, err := ecdsa.SignASN1(random, se.PrivateKey, digest)
	if err != nil {
		return nil, fmt.Errorf("%w: ecdsa sign failed: %v", ErrSigning, err)
	}

	// Round up curveBits to the nearest byte boundary.
	keyBytes := (se.PrivateKey.Curve.Params().BitSize + 7) / 8

	return NormalizeSignature(der, keyBytes)
}

func curveName(c elliptic.Curve) string {
	if c == nil || c.Params() == nil {
		return "unknown curve"
	}
	return c.Params().Name
}
