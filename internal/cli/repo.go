package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewRepoCmd creates the repo command with subcommands.
func NewRepoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repo",
		Short: "Manage repositories",
		Long:  "List configured repositories and their sync state.",
	}

	cmd.AddCommand(newRepoListCmd())

	return cmd
}

func newRepoListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured repositories",
		RunE:  runRepoList,
	}

	return cmd
}

func runRepoList(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	orch, closeDB, err := newOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeDB() }()

	repos := orch.Repositories()
	if wantJSON() {
		return printJSON(repos)
	}
	if len(repos) == 0 {
		fmt.Println("No repositories configured")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, TabWidth, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tURL\tLAST SYNC")
	for _, repo := range repos {
		lastSync := "never"
		if !repo.LastSyncTime.IsZero() {
			lastSync = repo.LastSyncTime.Format("2006-01-02 15:04")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", repo.Name, repo.MetadataURL, lastSync)
	}
	return w.Flush()
}
