package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewSearchCmd creates the search command.
func NewSearchCmd() *cobra.Command {
	var (
		caseSensitive bool
		limit         int
	)

	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Search available packages",
		Long:  "Search the synced package records by name substring.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, args[0], caseSensitive, limit)
		},
	}

	cmd.Flags().BoolVar(&caseSensitive, "case-sensitive", false, "Match case exactly")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results (0 for all)")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, caseSensitive bool, limit int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	orch, closeDB, err := newOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeDB() }()

	records, err := orch.Search(cmd.Context(), query, caseSensitive, limit)
	if err != nil {
		return err
	}
	if wantJSON() {
		return printJSON(records)
	}
	if len(records) == 0 {
		fmt.Printf("No packages matching %q\n", query)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, TabWidth, ' ', 0)
	_, _ = fmt.Fprintln(w, "PACKAGE\tVERSION\tREPOSITORY")
	for _, rec := range records {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", rec.Name, rec.Version, rec.RepoName)
	}
	return w.Flush()
}
