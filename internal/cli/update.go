package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/porter/pkg/update"
)

// NewUpdateCmd creates the update command.
func NewUpdateCmd() *cobra.Command {
	var opts update.Options
	var ask bool

	cmd := &cobra.Command{
		Use:   "update [PACKAGE...]",
		Short: "Update installed packages",
		Long: `Update the named packages, or every installed package when no
arguments are given. Only packages whose repository carries a newer version
are reinstalled.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if ask {
				opts.Confirm = func(pkgID, from, to string) bool {
					return confirmPrompt(fmt.Sprintf("Update %s %s -> %s?", pkgID, from, to))
				}
			}
			return runUpdate(cmd, args, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Keep, "keep", 0, "How many previous version directories to keep after an update")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "Reinstall even when the installed version is current")
	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "Skip the confirmation prompt")
	cmd.Flags().BoolVar(&ask, "ask", false, "Ask for confirmation before each update")

	return cmd
}

func runUpdate(cmd *cobra.Command, args []string, opts update.Options) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	orch, closeDB, err := newOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeDB() }()

	result, err := orch.Update(cmd.Context(), parseRefs(args), opts)
	if err != nil {
		return err
	}

	updated := 0
	for _, item := range result.Items {
		if item.Updated {
			updated++
		}
	}
	fmt.Printf("%d of %d packages updated\n", updated, len(result.Items))

	if !result.Ok() {
		return fmt.Errorf("some packages failed to update")
	}
	return nil
}
