package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

// fileConfig is the subset of the server config chatctl needs.
type fileConfig struct {
	Security struct {
		JWTSecret string `yaml:"jwt_secret"`
		TokenTTL  string `yaml:"token_ttl"`
	} `yaml:"security"`
	Server struct {
		DBPath string `yaml:"db_path"`
	} `yaml:"server"`
}

func loadFileConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

var errNoSecret = errors.New("no signing secret: pass --secret, set CHATZALO_JWT_SECRET or point --config at a server config")

// resolveSecret prefers --secret, then the environment, then the config file.
func resolveSecret(cmd *cobra.Command) (string, error) {
	if s, _ := cmd.Flags().GetString("secret"); strings.TrimSpace(s) != "" {
		return s, nil
	}
	if s := os.Getenv("CHATZALO_JWT_SECRET"); s != "" {
		return s, nil
	}
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		cfg, err := loadFileConfig(path)
		if err != nil {
			return "", err
		}
		if cfg.Security.JWTSecret != "" {
			return cfg.Security.JWTSecret, nil
		}
	}
	return "", errNoSecret
}

// printYAML writes v as YAML.
func printYAML(cmd *cobra.Command, v any) error {
	out, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}
