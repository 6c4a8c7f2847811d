// Command ezra-companion serves the plan signing pipeline and offers offline
// key and plan tooling.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := rootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ezra-companion",
		Short: "Signed action plans for managed devices",
		Long: `ezra-companion turns natural-language device requests into signed,
risk-classified action plans and verifies plans presented by executors.

Run without a subcommand to start the HTTP server.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), stdout)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	cmd.AddCommand(
		serveCmd(stdout),
		keygenCmd(stdout),
		verifyCmd(stdout),
		tokenCmd(stdout),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "ezra-companion version %s\n", version)
			},
		},
	)
	return cmd
}

// setupLogger installs a JSON slog handler at level (DEBUG, INFO, WARN, ERROR).
func setupLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}
