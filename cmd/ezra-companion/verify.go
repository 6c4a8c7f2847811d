package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Steve-IX/Ezra/pkg/canonicalize"
	"github.com/Steve-IX/Ezra/pkg/contracts"
	"github.com/Steve-IX/Ezra/pkg/crypto"
)

// errVerifyFailed makes the command exit non-zero without extra output.
var errVerifyFailed = errors.New("plan signature is not valid")

func verifyCmd(stdout io.Writer) *cobra.Command {
	var publicKey string
	cmd := &cobra.Command{
		Use:   "verify <plan.json>",
		Short: "Verify a signed plan offline",
		Long: `Verify the embedded signature of a plan file. The file may hold a bare
action plan or a full plan response with an "action_plan" member. Pass
--public-key to also require that the plan was signed by that key.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return runVerify(stdout, data, publicKey)
		},
	}
	cmd.Flags().StringVar(&publicKey, "public-key", "", "base64 public key the plan must be signed with")
	return cmd
}

func runVerify(stdout io.Writer, data []byte, publicKey string) error {
	// Map decoding keeps the last duplicate member; refuse such input up front.
	if _, err := canonicalize.JCS(data); err != nil {
		return fmt.Errorf("parse plan: %w", err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse plan: %w", err)
	}
	if inner, ok := doc["action_plan"]; ok {
		doc = nil
		if err := json.Unmarshal(inner, &doc); err != nil {
			return fmt.Errorf("parse action_plan: %w", err)
		}
	}

	rawSig, ok := doc["signature"]
	if !ok {
		return fmt.Errorf("plan has no embedded signature")
	}
	var sig contracts.Signature
	if err := json.Unmarshal(rawSig, &sig); err != nil {
		return fmt.Errorf("parse signature: %w", err)
	}
	delete(doc, "signature")
	payload, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	valid := crypto.Verify(json.RawMessage(payload), sig)
	if valid && publicKey != "" && strings.TrimSpace(publicKey) != sig.PublicKey {
		fmt.Fprintln(stdout, "signature valid but signed by an untrusted key")
		return errVerifyFailed
	}
	if !valid {
		fmt.Fprintln(stdout, "INVALID")
		return errVerifyFailed
	}
	fmt.Fprintf(stdout, "OK (signed by %s)\n", sig.PublicKey)
	return nil
}
