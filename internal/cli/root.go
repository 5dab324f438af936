package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/takimoto3/appleid-secret/internal/config"
	"github.com/takimoto3/appleid-secret/token"
)

// Exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2 // invalid input, reported before any key material is read
)

// app carries state shared by the root command and its subcommands.
type app struct {
	v       *viper.Viper
	cfg     *config.Config
	logger  *slog.Logger
	now     func() time.Time
	cfgFile string
	envFile string
}

// NewRootCommand builds the appleid-secret command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(time.Now)
}

func newRootCommand(now func() time.Time) *cobra.Command {
	a := &app{
		v:   config.InitViper(),
		now: now,
	}

	cmd := &cobra.Command{
		Use:   "appleid-secret",
		Short: "Generate a Sign in with Apple client secret",
		Long: `appleid-secret builds the ES256 signed JWT that Sign in with Apple expects as
client_secret at https://appleid.apple.com/auth/token.

The token is written to stdout and its expiry to stderr.

Environment Variables:
  APPLEID_SECRET_TEAM_ID, APPLEID_SECRET_KEY_ID, APPLEID_SECRET_CLIENT_ID,
  APPLEID_SECRET_P8_PATH, APPLEID_SECRET_DAYS, APPLEID_SECRET_LOG_LEVEL`,
		Example: `  appleid-secret --team-id 4WBYD78AZD --key-id C6KCA9ASH8 \
    --client-id com.example.signin --p8-path AuthKey_C6KCA9ASH8.p8`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		Args:              usageArgs(cobra.NoArgs),
		PersistentPreRunE: a.load,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runGenerate(cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is ./appleid-secret.yaml)")
	cmd.PersistentFlags().StringVar(&a.envFile, "env-file", config.DefaultEnvFile, "dotenv file to load before reading the environment")
	config.BindFlags(cmd, a.v)

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", token.ErrInvalidInput, err)
	})

	cmd.AddCommand(newVerifyCommand(a))

	return cmd
}

// load resolves configuration and the logger before any command runs.
func (a *app) load(cmd *cobra.Command, _ []string) error {
	if err := config.LoadEnvFile(a.envFile, cmd.Flags().Changed("env-file")); err != nil {
		return err
	}

	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	return nil
}

func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return fmt.Errorf("%w: %v", token.ErrInvalidInput, err)
		}
		return nil
	}
}

// ExitCode maps an error returned by the command tree to a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, token.ErrInvalidInput):
		return ExitUsage
	default:
		return ExitFailure
	}
}

// Execute runs the command tree with the process arguments and returns the exit status.
func Execute() int {
	return run(NewRootCommand())
}

func run(cmd *cobra.Command) int {
	err := cmd.Execute()
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
	}
	return ExitCode(err)
}
