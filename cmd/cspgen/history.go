package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/nao1215/cspgen/internal/config"
	"github.com/nao1215/cspgen/internal/database"
	"github.com/nao1215/cspgen/internal/report"
	"github.com/spf13/cobra"
)

// NewHistoryCmd creates the history command.
// This command lists and shows runs recorded with --save.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [host]",
		Short: "List runs recorded in the history database",
		Long: `History lists the runs recorded with --save, newest first.

Pass a host (as shown in the HOST column) to list only the runs of that site.
Use 'cspgen history show <id>' to print a stored run again.

Examples:
  # List all recorded runs
  cspgen history

  # List the runs for one site
  cspgen history example.com

  # Print the stored policy of run 3 as JSON
  cspgen history show 3

  # Render run 3 as a markdown report
  cspgen history show 3 --markdown`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.PersistentFlags().String("db-dir", config.XDGDataDir(),
		"History database directory")

	cmd.AddCommand(newHistoryShowCmd())

	return cmd
}

// newHistoryShowCmd creates the "history show" command.
func newHistoryShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryShowCmd,
	}

	cmd.Flags().BoolP("markdown", "m", false,
		"Render the run as a markdown report")
	cmd.Flags().BoolP("details", "D", false,
		"Print the whole run (pages and evidence) as JSON")
	cmd.MarkFlagsMutuallyExclusive("markdown", "details")

	return cmd
}

// openHistory opens the existing history database named by --db-dir.
func openHistory(cmd *cobra.Command) (*database.HistoryDB, error) {
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return nil, err
	}
	db, err := database.Open(dbDir, database.Options{CreateIfNotExists: false, EnableWAL: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	return db, nil
}

// runHistoryCmd lists recorded runs.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	db, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	var host string
	if len(args) == 1 {
		host = args[0]
	}

	runs, err := db.ListRuns(context.Background(), host)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		if host != "" {
			fmt.Fprintf(out, "No runs recorded for %s\n", host)
		} else {
			fmt.Fprintln(out, "No runs recorded")
		}
		return nil
	}

	fmt.Fprintf(out, "  %-6s  %-20s  %-30s  %-9s  %s\n", "ID", "Started", "Host", "Pages", "Sources")
	for _, r := range runs {
		pages := strconv.Itoa(r.PagesSucceeded) + "/" + strconv.Itoa(r.PagesAttempted)
		if r.Interrupted {
			pages += "*"
		}
		fmt.Fprintf(out, "  %-6d  %-20s  %-30s  %-9s  %d\n",
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.OriginHost,
			pages,
			r.Policy.Len(),
		)
	}
	fmt.Fprintf(out, "\n%d run(s). Pages are succeeded/attempted; * marks an interrupted crawl.\n", len(runs))

	return nil
}

// runHistoryShowCmd prints one recorded run.
func runHistoryShowCmd(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid run id %q", args[0])
	}

	markdown, err := cmd.Flags().GetBool("markdown")
	if err != nil {
		return err
	}
	details, err := cmd.Flags().GetBool("details")
	if err != nil {
		return err
	}

	db, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	session, err := db.LoadSession(context.Background(), id)
	if errors.Is(err, database.ErrRunNotFound) {
		return fmt.Errorf("no run with id %d (see 'cspgen history')", id)
	}
	if err != nil {
		return err
	}

	var w report.Writer
	switch {
	case markdown:
		w = report.NewMarkdownWriter(cmd.OutOrStdout())
	case details:
		w = report.NewJSONWriter(cmd.OutOrStdout(), report.WithSessionDetails(true))
	default:
		w = report.NewJSONWriter(cmd.OutOrStdout())
	}
	_, err = w.Write(session)
	return err
}
