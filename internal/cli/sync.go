package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewSyncCmd creates the sync command.
func NewSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize repository metadata",
		Long: `Synchronize repository metadata by downloading the latest package
lists from all enabled repositories. Repositories sync independently; a
failing repository does not abort the others.`,
		RunE: runSync,
	}

	return cmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	orch, closeDB, err := newOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeDB() }()

	result, err := orch.Sync(cmd.Context())
	if err != nil {
		return err
	}
	if !result.Ok() {
		return fmt.Errorf("some repositories failed to sync")
	}
	return nil
}
