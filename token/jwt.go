package token

// Package token provides utilities for generating and signing the client secret JWT
// used by Sign in with Apple.

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"unicode/utf16"
	"unicode/utf8"
)

// Header defines the JWT header fields.
type Header struct {
	Alg string `json:"alg"` // Algorithm used for signing
	Kid string `json:"kid"` // Key ID registered with Apple
	Typ string `json:"typ"`
}

// Payload defines the JWT payload (claims).
// Field order is the serialization order.
type Payload struct {
	Issuer    string      `json:"iss"` // Team ID
	IssuedAt  NumericDate `json:"iat"`
	ExpiresAt NumericDate `json:"exp"`
	Audience  string      `json:"aud"`
	Subject   string      `json:"sub"` // Services ID or bundle ID
}

// JWTClaims represents a JWT containing a header and a payload.
type JWTClaims struct {
	Header  any
	Payload any
}

// SigningInput returns "<header>.<payload>", the bytes covered by the signature.
func (jwt *JWTClaims) SigningInput() (string, error) {
	header, err := encodeSegment(jwt.Header)
	if err != nil {
		return "", fmt.Errorf("failed to marshal JWT header to JSON: %w", err)
	}
	payload, err := encodeSegment(jwt.Payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal JWT payload to JSON: %w", err)
	}
	return header + "." + payload, nil
}

// SignedString creates a signed JWT string using the provided signer.
//
//	s: The Signer implementation used to sign the JWT.
func (jwt *JWTClaims) SignedString(s Signer) (string, error) {
	str, err := jwt.SigningInput()
	if err != nil {
		return "", err
	}
	sign, err := s.Sign([]byte(str))
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT data: %w", err)
	}

	return str + "." + base64.RawURLEncoding.EncodeToString(sign), nil
}

// encodeSegment renders v as compact, ASCII-only JSON and encodes it with unpadded base64url.
func encodeSegment(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	// Encode terminates every value with a newline.
	return base64.RawURLEncoding.EncodeToString(escapeNonASCII(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))), nil
}

// escapeNonASCII rewrites every non-ASCII rune of a JSON document as a lowercase
// \uXXXX escape, using a UTF-16 surrogate pair above U+FFFF.
// Such runes only occur inside JSON strings, where the escape is equivalent.
func escapeNonASCII(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for len(b) > 0 {
		if b[0] < utf8.RuneSelf {
			out = append(out, b[0])
			b = b[1:]
			continue
		}
		r, size := utf8.DecodeRune(b)
		b = b[size:]
		if r > 0xffff {
			r1, r2 := utf16.EncodeRune(r)
			out = fmt.Appendf(out, `\u%04x\u%04x`, r1, r2)
			continue
		}
		out = fmt.Appendf(out, `\u%04x`, r)
	}
	return out
}
