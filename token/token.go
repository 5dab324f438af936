package token

// Package token provides utilities for generating and caching the client secret
// JWT used by Sign in with Apple.

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

const (
	// Algorithm is the JWS algorithm of every client secret.
	Algorithm = "ES256"
	// Type is the JWT "typ" header value.
	Type = "JWT"
	// Audience is the token endpoint that consumes the client secret.
	Audience = "https://appleid.apple.com"

	// MinValidityDays and MaxValidityDays bound the lifetime of a client secret.
	// Apple rejects secrets valid for more than six months.
	MinValidityDays = 1
	MaxValidityDays = 180

	// DefaultValidityDays is used when the caller does not choose a lifetime.
	DefaultValidityDays = MaxValidityDays

	secondsPerDay = 24 * 60 * 60
)

// RefreshMargin is how long before expiry a cached client secret is replaced.
const RefreshMargin = time.Hour

var _ Provider = &TokenProvider{}

// Option represents a functional option for Generator configuration.
type Option func(*Generator)

// WithLogger sets a custom slog.Logger.
// If not set, logging is disabled (io.Discard).
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithClock replaces time.Now as the source of the "iat" claim.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// WithSigner replaces the default ECDSA signer, e.g. with a key held in an HSM.
// The signer must produce raw 64-byte ES256 signatures; NewGenerator then
// accepts a nil private key.
func WithSigner(s Signer) Option {
	return func(g *Generator) {
		if s != nil {
			g.signer = s
		}
	}
}

// ClientSecret is a signed client secret and its validity window.
type ClientSecret struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Generator builds client secrets for one Services ID.
// It holds no mutable state and is safe for concurrent use.
type Generator struct {
	logger   *slog.Logger     // logger for structured output, can be overridden.
	signer   Signer           // signer is used to sign JWT tokens.
	now      func() time.Time // now supplies the issue time.
	teamID   string           // teamID is the Apple Team ID (iss).
	keyID    string           // keyID is the Apple Key ID (kid).
	clientID string           // clientID is the Services ID or bundle ID (sub).
	days     int              // days is the validity period.
}

// NewGenerator creates a Generator.
// Logging is disabled by default unless WithLogger is specified.
//
// Parameters:
//
//	teamID: The Apple Team ID, used as issuer.
//	keyID: The Apple Key ID of secret.
//	clientID: The client_id the secret authenticates, used as subject.
//	secret: The ECDSA P-256 private key for signing. May be nil when WithSigner is given.
//	days: Validity period, between MinValidityDays and MaxValidityDays.
//	opts: Functional options to configure the Generator.
func NewGenerator(teamID, keyID, clientID string, secret *ecdsa.PrivateKey, days int, opts ...Option) (*Generator, error) {
	if days < MinValidityDays || days > MaxValidityDays {
		return nil, fmt.Errorf("%w: days must be between %d and %d, got %d", ErrInvalidInput, MinValidityDays, MaxValidityDays, days)
	}
	switch {
	case teamID == "":
		return nil, fmt.Errorf("%w: team ID is required", ErrInvalidInput)
	case keyID == "":
		return nil, fmt.Errorf("%w: key ID is required", ErrInvalidInput)
	case clientID == "":
		return nil, fmt.Errorf("%w: client ID is required", ErrInvalidInput)
	}

	g := &Generator{
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
		teamID:   teamID,
		keyID:    keyID,
		clientID: clientID,
		days:     days,
	}

	for _, opt := range opts {
		opt(g)
	}

	// The key is only needed when no external signer was supplied.
	if g.signer == nil {
		if secret == nil {
			return nil, fmt.Errorf("%w: private key is required", ErrInvalidInput)
		}
		if secret.Curve != elliptic.P256() {
			return nil, fmt.Errorf("%w: expected curve P-256, got %s", ErrKeyType, curveName(secret.Curve))
		}
		g.signer = &SignerECDSA{PrivateKey: secret, Hash: crypto.SHA256}
	}

	return g, nil
}

// Generate signs a new client secret issued at the generator's current time.
func (g *Generator) Generate() (*ClientSecret, error) {
	return g.GenerateAt(g.now())
}

// GenerateAt signs a new client secret issued at now, truncated to whole seconds.
func (g *Generator) GenerateAt(now time.Time) (*ClientSecret, error) {
	iat := NewNumericDate(now)
	exp := NewNumericDate(iat.Time().Add(time.Duration(g.days) * secondsPerDay * time.Second))

	jwtToken := JWTClaims{
		Header: Header{
			Alg: Algorithm,
			Kid: g.keyID,
			Typ: Type,
		},
		Payload: Payload{
			Issuer:    g.teamID,
			IssuedAt:  iat,
			ExpiresAt: exp,
			Audience:  Audience,
			Subject:   g.clientID,
		},
	}

	signed, err := jwtToken.SignedString(g.signer)
	if err != nil {
		return nil, fmt.Errorf("failed to sign client secret: %w", err)
	}

	g.logger.Info("Client secret generated",
		slog.String("key_id", g.keyID),
		slog.String("team_id", g.teamID),
		slog.String("client_id", g.clientID),
		slog.String("expires_at", exp.String()),
	)

	return &ClientSecret{
		Token:     signed,
		IssuedAt:  iat.Time(),
		ExpiresAt: exp.Time(),
	}, nil
}

// Provider defines the interface for obtaining client secrets.
type Provider interface {
	// GetToken returns a cached client secret if still valid, or generates a new one.
	//
	// Parameters:
	//   now: The current time, used for expiration checks.
	GetToken(now time.Time) (string, error)
}

// TokenProvider caches the client secret produced by a Generator and replaces it
// RefreshMargin before it expires.
type TokenProvider struct {
	mu        sync.RWMutex  // mu protects access to current.
	generator *Generator    // generator signs new secrets.
	current   *ClientSecret // current is the cached secret.
}

// NewProvider creates a caching Provider around g.
func NewProvider(g *Generator) Provider {
	return &TokenProvider{generator: g}
}

func (p *TokenProvider) fresh(now time.Time) bool {
	return p.current != nil && now.Before(p.current.ExpiresAt.Add(-RefreshMargin))
}

// GetToken returns a valid client secret.
// It reuses the cached secret if still valid, or generates a new one.
//
// Parameters:
//
//	now: The current time, used for expiration checks.
func (p *TokenProvider) GetToken(now time.Time) (string, error) {
	p.mu.RLock()
	if p.fresh(now) {
		defer p.mu.RUnlock()
		return p.current.Token, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	// Re-check cache after acquiring write lock
	if p.fresh(now) {
		return p.current.Token, nil
	}

	secret, err := p.generator.GenerateAt(now)
	if err != nil {
		return "", err
	}
	p.current = secret

	return p.current.Token, nil
}
