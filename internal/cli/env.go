package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewEnvCmd creates the env command.
func NewEnvCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "env",
		Short: "Show the resolved directory layout",
		Long: `Show the directories porter resolves from the configuration,
including any active profile.`,
		RunE: runEnv,
	}

	return cmd
}

func runEnv(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	orch, closeDB, err := newOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeDB() }()

	env := orch.Env()
	if wantJSON() {
		return printJSON(env)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, TabWidth, ' ', 0)
	_, _ = fmt.Fprintf(w, "Root:\t%s\n", env.RootDir)
	_, _ = fmt.Fprintf(w, "Bin:\t%s\n", env.BinDir)
	_, _ = fmt.Fprintf(w, "Database:\t%s\n", env.DBDir)
	_, _ = fmt.Fprintf(w, "Cache:\t%s\n", env.CacheDir)
	_, _ = fmt.Fprintf(w, "Packages:\t%s\n", env.PackagesDir)
	_, _ = fmt.Fprintf(w, "Repositories:\t%s\n", env.ReposDir)
	if env.Profile != "" {
		_, _ = fmt.Fprintf(w, "Profile:\t%s\n", env.Profile)
	}
	return w.Flush()
}
