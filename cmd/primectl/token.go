package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/captals/primechain/internal/auth"
)

var (
	tokenSecret  string
	tokenIssuer  string
	tokenSubject string
	tokenTTL     time.Duration
	tokenScopes  []string
)

var tokenCmd = &cobra.Command{
	Use:   "token --subject <name>",
	Short: "Issue a submitter token",
	Long: `token signs an HS256 submitter token with the same secret chaind is
configured with (auth.token_secret). The secret can also be supplied via
PRIMECTL_TOKEN_SECRET or token_secret in the config file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := tokenSecret
		if secret == "" {
			secret = viper.GetString("token_secret")
		}
		if secret == "" {
			return errors.New("--secret is required")
		}
		issuer := auth.NewTokenIssuer([]byte(secret), tokenIssuer, tokenTTL)
		signed, err := issuer.Issue(tokenSubject, tokenScopes)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), signed)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSecret, "secret", "", "HMAC secret shared with chaind")
	tokenCmd.Flags().StringVar(&tokenIssuer, "issuer", "primechain", "token issuer; must match chaind auth.issuer")
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "submitter name")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	tokenCmd.Flags().StringSliceVar(&tokenScopes, "scope", []string{auth.ScopeAppend}, "granted scopes")
	_ = tokenCmd.MarkFlagRequired("subject")
}
