package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for cspgen.
// The root command itself generates a policy; subcommands manage the
// configuration file and the run history.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cspgen --url <url> --output-dir <dir>",
		Short: "Generate a Content-Security-Policy by crawling a website",
		Long: `cspgen crawls a website breadth-first within a page budget, observes which
origins every kind of embedded resource (scripts, stylesheets, fonts, images,
frames, connections) is loaded from, and writes the resulting
Content-Security-Policy to:

  csp_policy.json   the directive set as a JSON document
  web.config        an IIS snippet setting the Content-Security-Policy header

Pages that fail to load are skipped. The run fails only when the start URL
is unreachable or the output directory cannot be written.

Examples:
  # Crawl up to 25 pages
  cspgen --url https://example.com --output-dir ./csp

  # Larger budget, with a markdown audit report
  cspgen -u https://example.com -o ./csp -p 200 --markdown

  # Record the run in the history database
  cspgen -u https://example.com -o ./csp --save`,
		Version:       getVersion(),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runGenerateCmd,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs to stderr as JSON")

	addGenerateFlags(cmd)

	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
