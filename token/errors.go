package token

import "errors"

var (
	// ErrInvalidInput reports caller supplied values that are out of range or missing.
	ErrInvalidInput = errors.New("invalid input")
	// ErrKeyFormat reports key material that is not an unencrypted PEM private key.
	ErrKeyFormat = errors.New("invalid key format")
	// ErrKeyType reports a private key that is not an ECDSA P-256 key.
	ErrKeyType = errors.New("unsupported key type")
	// ErrSigning reports a failure of the signature primitive.
	ErrSigning = errors.New("signing failed")
	// ErrInvalidToken reports a client secret that failed verification.
	ErrInvalidToken = errors.New("invalid token")
)
