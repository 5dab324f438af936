package token

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"
)

// ParsePrivateKey parses an unencrypted PEM encoded ECDSA P-256 private key.
// PKCS#8 ("PRIVATE KEY", the format of Apple's .p8 files) and SEC 1
// ("EC PRIVATE KEY") blocks are accepted. Other blocks, such as the
// "EC PARAMETERS" block written by openssl ecparam, are skipped.
func ParsePrivateKey(data []byte) (*ecdsa.PrivateKey, error) {
	block, err := privateKeyBlock(data)
	if err != nil {
		return nil, err
	}
	if strings.Contains(block.Headers["Proc-Type"], "ENCRYPTED") {
		return nil, fmt.Errorf("%w: encrypted PEM keys are not supported", ErrKeyFormat)
	}

	var key any
	switch block.Type {
	case "PRIVATE KEY":
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		key, err = x509.ParseECPrivateKey(block.Bytes)
	case "ENCRYPTED PRIVATE KEY":
		return nil, fmt.Errorf("%w: encrypted PEM keys are not supported", ErrKeyFormat)
	case "RSA PRIVATE KEY":
		return nil, fmt.Errorf("%w: not an ECDSA key (actual type: RSA)", ErrKeyType)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse private key: %v", ErrKeyFormat, err)
	}

	privKey, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an ECDSA key (actual type: %T)", ErrKeyType, key)
	}
	if privKey.Curve != elliptic.P256() {
		return nil, fmt.Errorf("%w: expected curve P-256, got %s", ErrKeyType, curveName(privKey.Curve))
	}

	return privKey, nil
}

// privateKeyBlock returns the first PEM block holding a private key.
func privateKeyBlock(data []byte) (*pem.Block, error) {
	var skipped []string
	for rest := data; ; {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		switch block.Type {
		case "PRIVATE KEY", "EC PRIVATE KEY", "ENCRYPTED PRIVATE KEY", "RSA PRIVATE KEY":
			return block, nil
		}
		skipped = append(skipped, block.Type)
	}
	if len(skipped) == 0 {
		return nil, fmt.Errorf("%w: does not contain valid PEM data", ErrKeyFormat)
	}
	return nil, fmt.Errorf("%w: no private key among PEM blocks %q", ErrKeyFormat, skipped)
}

// LoadPrivateKeyFile loads an ECDSA P-256 private key from a PEM file,
// either PKCS#8 (Apple's .p8) or SEC 1.
//
// Parameters:
//
//	path: The file path to the PEM file.
func LoadPrivateKeyFile(path string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %q: %w", path, err)
	}
	key, err := ParsePrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("private key file %q: %w", path, err)
	}
	return key, nil
}
