package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewRemoveCmd creates the remove command.
func NewRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "remove PACKAGE...",
		Aliases: []string{"uninstall"},
		Short:   "Remove installed packages",
		Long: `Remove one or more installed packages: the bin symlink, the
installed files, any portable directories and the database record.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runRemove,
	}

	return cmd
}

func runRemove(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	orch, closeDB, err := newOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeDB() }()

	result, err := orch.Remove(cmd.Context(), parseRefs(args))
	if err != nil {
		return err
	}
	if !result.Ok() {
		return fmt.Errorf("some packages failed to remove")
	}
	return nil
}
