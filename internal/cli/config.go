package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of the environment variables that override the command line flags,
// e.g., WINDOWFIELDS_MAX_BUFFERED_DOCUMENTS.
const EnvPrefix = "WINDOWFIELDS"

// Config is the configuration of a command.
type Config struct {
	Stage                string `mapstructure:"stage"`
	Input                string `mapstructure:"input"`
	Sort                 bool   `mapstructure:"sort"`
	InhibitOptimization  bool   `mapstructure:"inhibit-optimization"`
	MaxBufferedDocuments int    `mapstructure:"max-buffered-documents"`
	Format               string `mapstructure:"format"`
	MetricsBindAddress   string `mapstructure:"metrics-bind-address"`
}

// loadConfig merges the flags of a command with the environment.
func loadConfig(cmd *cobra.Command) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if c.Stage == "" {
		return nil, fmt.Errorf("no stage declaration: set --stage or %s_STAGE", EnvPrefix)
	}

	return c, nil
}
