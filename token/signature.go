package token

import (
	"fmt"
	"math/big"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

// NormalizeSignature converts an ECDSA signature to the fixed width form used by JWS:
// r and s as big-endian integers, each left padded to size bytes, concatenated.
//
// sig may be ASN.1 DER (SEQUENCE { INTEGER r, INTEGER s }) as produced by
// ecdsa.SignASN1, or already in raw form (exactly 2*size bytes).
//
// DER takes precedence: any input that parses as a complete DER signature is
// decoded as one, including a 2*size byte input. DER signatures of exactly 2*size
// bytes are common (a P-256 DER signature is 8 to 72 bytes long), while raw inputs
// that also parse as DER need a 0x30 first byte and matching nested lengths.
// Callers that hold raw signatures from an untrusted source should not rely on
// the passthrough.
func NormalizeSignature(sig []byte, size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: invalid field size %d", ErrSigning, size)
	}

	r, s, ok := parseDERSignature(sig)
	if !ok {
		if len(sig) != 2*size {
			return nil, fmt.Errorf("%w: signature is neither DER nor %d raw bytes (got %d bytes)", ErrSigning, 2*size, len(sig))
		}
		raw := make([]byte, len(sig))
		copy(raw, sig)
		return raw, nil
	}

	if r.Sign() <= 0 || s.Sign() <= 0 {
		return nil, fmt.Errorf("%w: signature integers must be positive", ErrSigning)
	}
	if r.BitLen() > size*8 || s.BitLen() > size*8 {
		return nil, fmt.Errorf("%w: signature integers exceed %d bytes", ErrSigning, size)
	}

	raw := make([]byte, 2*size)
	r.FillBytes(raw[:size])
	s.FillBytes(raw[size:])
	return raw, nil
}

func parseDERSignature(sig []byte) (r, s *big.Int, ok bool) {
	var inner cryptobyte.String
	input := cryptobyte.String(sig)
	r, s = new(big.Int), new(big.Int)
	if !input.ReadASN1(&inner, asn1.SEQUENCE) ||
		!input.Empty() ||
		!inner.ReadASN1Integer(r) ||
		!inner.ReadASN1Integer(s) ||
		!inner.Empty() {
		return nil, nil, false
	}
	return r, s, true
}
