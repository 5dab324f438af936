package cli

import (
	"fmt"
	"io"

	"github.com/takimoto3/appleid-secret/internal/config"
	"github.com/takimoto3/appleid-secret/token"
)

// runGenerate validates inputs, signs a client secret and prints it.
// Nothing is written to out unless every step succeeds.
func (a *app) runGenerate(out, errOut io.Writer) error {
	cfg := a.cfg
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.CheckKeyFile(cfg.P8Path); err != nil {
		return err
	}

	key, err := token.LoadPrivateKeyFile(cfg.P8Path)
	if err != nil {
		return err
	}
	a.logger.Debug("Private key loaded", "path", cfg.P8Path)

	g, err := token.NewGenerator(cfg.TeamID, cfg.KeyID, cfg.ClientID, key, cfg.Days,
		token.WithLogger(a.logger),
		token.WithClock(a.now),
	)
	if err != nil {
		return err
	}

	secret, err := g.Generate()
	if err != nil {
		return err
	}

	fmt.Fprintln(out, secret.Token)
	fmt.Fprintf(errOut, "\nExpires (UTC): %s\n", token.NewNumericDate(secret.ExpiresAt))
	return nil
}
