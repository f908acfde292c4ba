package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewCleanCmd creates the clean command.
func NewCleanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Clean caches and broken state",
		Long: `Empty the staged download cache and run a repair pass over the
installed packages.`,
		RunE: runClean,
	}

	return cmd
}

func runClean(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	orch, closeDB, err := newOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeDB() }()

	res, err := orch.Clean(cmd.Context())
	if err != nil {
		return err
	}

	removed := len(res.Repair.RemovedRows) + len(res.Repair.RemovedSymlinks) + len(res.Repair.RemovedDirs)
	fmt.Printf("Cache cleaned, %d broken entries removed\n", removed)
	return nil
}
