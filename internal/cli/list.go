package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewListCmd creates the list command.
func NewListCmd() *cobra.Command {
	var (
		repoName  string
		available bool
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List packages",
		Long: `List installed packages from the local database.

Use --available to list the packages known from synced repositories instead,
and --repo to restrict either listing to one repository.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd, repoName, available, limit)
		},
	}

	cmd.Flags().StringVar(&repoName, "repo", "", "Only list packages from this repository")
	cmd.Flags().BoolVar(&available, "available", false, "List available packages instead of installed ones")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of packages to list (0 for all)")

	return cmd
}

func runList(cmd *cobra.Command, repoName string, available bool, limit int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	orch, closeDB, err := newOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeDB() }()

	if available {
		records, err := orch.ListAvailable(cmd.Context(), repoName)
		if err != nil {
			return err
		}
		if wantJSON() {
			return printJSON(records)
		}
		if len(records) == 0 {
			fmt.Println("No packages available, run `porter sync` first")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, TabWidth, ' ', 0)
		_, _ = fmt.Fprintln(w, "PACKAGE\tVERSION\tREPOSITORY")
		for _, rec := range records {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", rec.Name, rec.Version, rec.RepoName)
		}
		return w.Flush()
	}

	installed, err := orch.ListInstalled(cmd.Context(), repoName, limit)
	if err != nil {
		return err
	}
	if wantJSON() {
		return printJSON(installed)
	}
	if len(installed) == 0 {
		fmt.Println("No packages installed")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, TabWidth, ' ', 0)
	_, _ = fmt.Fprintln(w, "PACKAGE\tVERSION\tREPOSITORY\tINSTALLED")
	for _, pkg := range installed {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			pkg.Name, pkg.Version, pkg.RepoName, pkg.InstalledAt.Format("2006-01-02"))
	}
	return w.Flush()
}
