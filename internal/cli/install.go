package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/porter/pkg/install"
	"github.com/glorpus-work/porter/pkg/model"
)

// NewInstallCmd creates the install command.
func NewInstallCmd() *cobra.Command {
	var opts install.Options
	var ask bool

	cmd := &cobra.Command{
		Use:   "install PACKAGE...",
		Short: "Install packages",
		Long: `Install one or more packages from the synced repositories.

A package is referenced by name, optionally qualified by repository as
"repo/name". A bare name that exists in several repositories must be
qualified.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if ask {
				opts.Confirm = func(rec *model.PackageRecord) bool {
					return confirmPrompt(fmt.Sprintf("Install %s %s?", rec.PkgID, rec.Version))
				}
			}
			return runInstall(cmd, args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Force, "force", false, "Reinstall even if the same version is already installed")
	cmd.Flags().StringVar(&opts.Portable, "portable", "", "Derive portable home/config/share dirs from this base directory")
	cmd.Flags().StringVar(&opts.PortableHome, "portable-home", "", "Portable home directory")
	cmd.Flags().StringVar(&opts.PortableConfig, "portable-config", "", "Portable config directory")
	cmd.Flags().StringVar(&opts.PortableShare, "portable-share", "", "Portable share directory")
	cmd.Flags().BoolVar(&opts.BinaryOnly, "binary-only", false, "Install the binary without portable directories")
	cmd.Flags().BoolVar(&opts.NoNotes, "no-notes", false, "Suppress post-install notes")
	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "Skip the confirmation prompt")
	cmd.Flags().BoolVar(&ask, "ask", false, "Ask for confirmation before installing")

	return cmd
}

func runInstall(cmd *cobra.Command, args []string, opts install.Options) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	orch, closeDB, err := newOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeDB() }()

	result, err := orch.Install(cmd.Context(), parseRefs(args), opts)
	if err != nil {
		return err
	}

	for _, item := range result.Items {
		if item.Result == nil || len(item.Result.Notes) == 0 {
			continue
		}
		fmt.Printf("\nNotes for %s:\n", item.Result.Name)
		for _, note := range item.Result.Notes {
			fmt.Printf("  %s\n", note)
		}
	}

	if !result.Ok() {
		return fmt.Errorf("some packages failed to install")
	}
	return nil
}
