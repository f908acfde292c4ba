package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/porter/pkg/model"
	"github.com/glorpus-work/porter/pkg/run"
)

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "run PACKAGE [ARGS...]",
		Short: "Run a package without installing it",
		Long: `Download a package into an ephemeral directory, execute it with
the given arguments and clean up afterwards. No installed state is left
behind.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args, yes)
		},
	}

	// Everything after the package name belongs to the executed binary.
	cmd.Flags().SetInterspersed(false)
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}

func runRun(cmd *cobra.Command, args []string, yes bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	orch, closeDB, err := newOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeDB() }()

	opts := run.Options{
		Args:   args[1:],
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Yes:    yes,
	}
	// Prompting needs a terminal; piped stdin belongs to the executed binary.
	if stdinIsTerminal() {
		opts.Confirm = func(rec *model.PackageRecord) bool {
			return confirmPrompt(fmt.Sprintf("Run %s %s?", rec.PkgID, rec.Version))
		}
	}

	res, err := orch.Run(cmd.Context(), model.ParseRef(args[0]), opts)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		os.Exit(res.ExitCode)
	}
	return nil
}
