package token

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verified holds the decoded segments of a client secret that passed Verify.
type Verified struct {
	Header  Header  `json:"header"`
	Payload Payload `json:"payload"`
}

// Verify checks that tokenString is an ES256 client secret for Apple's token
// endpoint, signed by the private half of pub and valid at now.
func Verify(tokenString string, pub *ecdsa.PublicKey, now time.Time) (*Verified, error) {
	if pub == nil {
		return nil, fmt.Errorf("%w: public key is required", ErrInvalidInput)
	}
	if pub.Curve != elliptic.P256() {
		return nil, fmt.Errorf("%w: expected curve P-256, got %s", ErrKeyType, curveName(pub.Curve))
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{Algorithm}),
		jwt.WithAudience(Audience),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)

	claims := &jwt.RegisteredClaims{}
	parsed, err := parser.ParseWithClaims(strings.TrimSpace(tokenString), claims, func(*jwt.Token) (any, error) {
		return pub, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	kid, _ := parsed.Header["kid"].(string)
	typ, _ := parsed.Header["typ"].(string)
	if kid == "" {
		return nil, fmt.Errorf("%w: missing kid header", ErrInvalidToken)
	}
	if claims.IssuedAt == nil {
		return nil, fmt.Errorf("%w: missing iat claim", ErrInvalidToken)
	}

	return &Verified{
		Header: Header{
			Alg: parsed.Method.Alg(),
			Kid: kid,
			Typ: typ,
		},
		Payload: Payload{
			Issuer:    claims.Issuer,
			IssuedAt:  NewNumericDate(claims.IssuedAt.Time),
			ExpiresAt: NewNumericDate(claims.ExpiresAt.Time),
			Audience:  strings.Join(claims.Audience, ","),
			Subject:   claims.Subject,
		},
	}, nil
}
