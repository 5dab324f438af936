package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/takimoto3/appleid-secret/token"
)

// EnvPrefix prefixes every environment variable read by the tool.
const EnvPrefix = "APPLEID_SECRET"

// DefaultEnvFile is loaded when present unless --env-file points elsewhere.
const DefaultEnvFile = ".env"

// Config holds the client secret parameters.
type Config struct {
	TeamID   string `mapstructure:"team_id"`   // Apple Team ID (iss)
	KeyID    string `mapstructure:"key_id"`    // Apple Key ID (kid)
	ClientID string `mapstructure:"client_id"` // Services ID or bundle ID (sub)
	P8Path   string `mapstructure:"p8_path"`   // Path to AuthKey_XXXXXXXXXX.p8
	Days     int    `mapstructure:"days"`      // Validity period in days
	LogLevel string `mapstructure:"log_level"`
}

// InitViper initializes Viper with config file search paths, environment
// variable mapping and defaults.
func InitViper() *viper.Viper {
	v := viper.New()

	v.SetConfigName("appleid-secret")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "appleid-secret"))
	}

	// APPLEID_SECRET_TEAM_ID, APPLEID_SECRET_P8_PATH, ...
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("days", token.DefaultValidityDays)
	v.SetDefault("log_level", "warn")
}

// BindFlags registers the CLI flags on cmd and binds them to Viper.
// Key file, logging and config source flags are persistent so subcommands share them.
func BindFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.Flags().String("team-id", "", "Apple Team ID (iss)")
	cmd.Flags().String("key-id", "", "Apple Key ID (kid)")
	cmd.Flags().String("client-id", "", "Apple client_id / sub (e.g. Services ID for web)")
	cmd.Flags().Int("days", token.DefaultValidityDays,
		fmt.Sprintf("Validity days (%d-%d, Apple allows at most six months)", token.MinValidityDays, token.MaxValidityDays))

	cmd.PersistentFlags().String("p8-path", "", "Path to AuthKey_XXXXXXXXXX.p8")
	cmd.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")

	v.BindPFlag("team_id", cmd.Flags().Lookup("team-id"))
	v.BindPFlag("key_id", cmd.Flags().Lookup("key-id"))
	v.BindPFlag("client_id", cmd.Flags().Lookup("client-id"))
	v.BindPFlag("days", cmd.Flags().Lookup("days"))
	v.BindPFlag("p8_path", cmd.PersistentFlags().Lookup("p8-path"))
	v.BindPFlag("log_level", cmd.PersistentFlags().Lookup("log-level"))
}

// LoadEnvFile loads KEY=VALUE pairs from a dotenv file into the process
// environment. Variables that are already set are left untouched.
// A missing file is only an error when required is true.
func LoadEnvFile(path string, required bool) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: failed to load env file %q: %v", token.ErrInvalidInput, path, err)
	}
	return nil
}

// Load reads the configuration from file and environment.
// cfgFile overrides the config file search when not empty.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: failed to read config file: %v", token.ErrInvalidInput, err)
		}
		// Config file not found; use flags, environment and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal config: %v", token.ErrInvalidInput, err)
	}

	return &cfg, nil
}

// Validate checks the generation parameters. It never touches the key file.
func (c *Config) Validate() error {
	var missing []string
	for _, f := range []struct{ flag, value string }{
		{"--team-id", c.TeamID},
		{"--key-id", c.KeyID},
		{"--client-id", c.ClientID},
		{"--p8-path", c.P8Path},
	} {
		if f.value == "" {
			missing = append(missing, f.flag)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required %s", token.ErrInvalidInput, strings.Join(missing, ", "))
	}

	if c.Days < token.MinValidityDays || c.Days > token.MaxValidityDays {
		return fmt.Errorf("%w: --days must be between %d and %d", token.ErrInvalidInput, token.MinValidityDays, token.MaxValidityDays)
	}

	return nil
}

// CheckKeyFile reports a missing key file as an input error before any parsing.
func CheckKeyFile(path string) error {
	if path == "" {
		return fmt.Errorf("%w: missing required --p8-path", token.ErrInvalidInput)
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: p8 file not found: %s", token.ErrInvalidInput, path)
		}
		return fmt.Errorf("failed to stat p8 file %q: %w", path, err)
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("%w: invalid log level %q", token.ErrInvalidInput, c.LogLevel)
	}
	return level, nil
}
