package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/memohai/chatgate/internal/auth"
	"github.com/memohai/chatgate/internal/config"
)

type tokenOptions struct {
	ConfigPath string
	Operator   string
	ExpiresIn  string
}

func newTokenCmd() *cobra.Command {
	var opts tokenOptions

	cmd := &cobra.Command{
		Use:   "token --operator <name>",
		Short: "Issue an admin bearer token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(opts.Operator) == "" {
				return errors.New("--operator is required")
			}
			cfg, err := loadConfig(opts.ConfigPath)
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.Admin.JWTSecret) == "" {
				return errors.New("[admin] jwt_secret is not set")
			}
			raw := opts.ExpiresIn
			if raw == "" {
				raw = cfg.Admin.JWTExpiresIn
			}
			expiresIn, err := parseExpiresIn(raw)
			if err != nil {
				return err
			}
			token, expiresAt, err := auth.GenerateToken(opts.Operator, cfg.Admin.JWTSecret, expiresIn)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "config file (default $CONFIG_PATH or config.toml)")
	cmd.Flags().StringVar(&opts.Operator, "operator", "", "operator name stored in the token")
	cmd.Flags().StringVar(&opts.ExpiresIn, "expires-in", "", "token lifetime, e.g. 24h (default [admin] jwt_expires_in)")
	return cmd
}

func parseExpiresIn(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = config.DefaultJWTExpiresIn
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid jwt expires_in %q: %w", raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("jwt expires_in must be positive")
	}
	return d, nil
}
