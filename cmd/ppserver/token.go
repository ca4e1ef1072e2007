package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	httpapi "github.com/Blackbeard96/summer-games/internal/interface/http"
)

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		role           string
		ttl            time.Duration
		hashPassphrase string
	)

	cmd := &cobra.Command{
		Use:   "token [subject]",
		Short: "Mint an API token, or hash a teacher passphrase",
		Example: `  ppserver token --role student alice
  ppserver token --role teacher teacher
  ppserver token --hash-passphrase 'correct horse battery staple'`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if hashPassphrase != "" {
				h, err := httpapi.HashPassphrase(hashPassphrase)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), h)
				return nil
			}
			if len(args) != 1 {
				return errors.New("a subject is required")
			}

			r, err := httpapi.ParseRole(role)
			if err != nil {
				return err
			}
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("AUTH_JWT_SECRET must be set to mint tokens the server accepts")
			}
			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}

			tok, exp, err := httpapi.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, ttl).Issue(args[0], r)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", exp.UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", string(httpapi.RoleStudent), "token role (teacher|student)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default AUTH_TOKEN_TTL)")
	cmd.Flags().StringVar(&hashPassphrase, "hash-passphrase", "", "print a bcrypt hash for AUTH_TEACHER_PASSPHRASE_HASH and exit")
	return cmd
}
