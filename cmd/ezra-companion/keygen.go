package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Steve-IX/Ezra/pkg/config"
	"github.com/Steve-IX/Ezra/pkg/crypto"
)

func keygenCmd(stdout io.Writer) *cobra.Command {
	var (
		out   string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a signing key file",
		Long: `Generate an Ed25519 signing key. The hex seed is written to the key file
(mode 0600) and the base64 public key to <file>.pub.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			if out == "" {
				out = config.Load().KeyFile
			}
			return runKeygen(stdout, out, force)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "key file path (default $EZRA_KEY_FILE)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing key file")
	return cmd
}

func runKeygen(stdout io.Writer, path string, force bool) error {
	if _, err := os.Stat(path); err == nil {
		if !force {
			return fmt.Errorf("key file %s already exists (use --force to replace it)", path)
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("remove old key: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	signer, err := crypto.LoadOrGenerateSigner(path, false)
	if err != nil {
		return err
	}
	abs, _ := filepath.Abs(path)
	fmt.Fprintf(stdout, "key file:   %s\npublic key: %s\n", abs, signer.PublicKey())
	return nil
}
