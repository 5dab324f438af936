package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/takimoto3/appleid-secret/internal/config"
	"github.com/takimoto3/appleid-secret/token"
)

func newVerifyCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [token]",
		Short: "Verify a client secret against the public half of --p8-path",
		Long: `Verify checks the ES256 signature, audience, issue time and expiry of a client
secret and prints its decoded header and payload as JSON.

The token is read from the argument, or from stdin when no argument is given.`,
		Args: usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			tokenString, err := readToken(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			return a.runVerify(cmd.OutOrStdout(), tokenString)
		},
	}
}

func readToken(in io.Reader, args []string) (string, error) {
	if len(args) == 1 {
		return strings.TrimSpace(args[0]), nil
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("failed to read token from stdin: %w", err)
	}
	s := strings.TrimSpace(string(data))
	if s == "" {
		return "", fmt.Errorf("%w: no token given", token.ErrInvalidInput)
	}
	return s, nil
}

func (a *app) runVerify(out io.Writer, tokenString string) error {
	if err := config.CheckKeyFile(a.cfg.P8Path); err != nil {
		return err
	}
	key, err := token.LoadPrivateKeyFile(a.cfg.P8Path)
	if err != nil {
		return err
	}

	verified, err := token.Verify(tokenString, &key.PublicKey, a.now())
	if err != nil {
		return err
	}
	a.logger.Info("Client secret verified",
		"key_id", verified.Header.Kid,
		"expires_at", verified.Payload.ExpiresAt.String(),
	)

	b, err := json.MarshalIndent(verified, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal verified token: %w", err)
	}
	fmt.Fprintln(out, string(b))
	return nil
}
