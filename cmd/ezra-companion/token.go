package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Steve-IX/Ezra/pkg/auth"
	"github.com/Steve-IX/Ezra/pkg/config"
)

func tokenCmd(stdout io.Writer) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the plan endpoints",
		Long:  `Mint an HS256 bearer token signed with $EZRA_JWT_SECRET.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runToken(stdout, config.Load().JWTSecret, subject, ttl)
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject, usually the device or operator id (required)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func runToken(stdout io.Writer, secret, subject string, ttl time.Duration) error {
	v := auth.NewJWTValidator(secret)
	if v == nil {
		return fmt.Errorf("EZRA_JWT_SECRET is not set")
	}
	tok, err := v.Issue(subject, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, tok)
	return nil
}
