package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewHealthCmd creates the health command with subcommands.
func NewHealthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check and repair installed packages",
		Long: `Classify every installed package as healthy, broken symlink,
missing install path or checksum drift, and optionally repair the damage.`,
		RunE: runHealthCheck,
	}

	cmd.AddCommand(newHealthRepairCmd())

	return cmd
}

func newHealthRepairCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Repair broken installed state",
		Long: `Remove database rows whose install path is gone, dangling
symlinks in the bin directory and package directories no row references.`,
		RunE: runHealthRepair,
	}

	return cmd
}

func runHealthCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	orch, closeDB, err := newOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeDB() }()

	report, err := orch.CheckHealth(cmd.Context())
	if err != nil {
		return err
	}
	if wantJSON() {
		return printJSON(report)
	}
	if len(report.Items) == 0 {
		fmt.Println("No packages installed")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, TabWidth, ' ', 0)
	_, _ = fmt.Fprintln(w, "PACKAGE\tSTATUS\tDETAIL")
	for _, item := range report.Items {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", item.PkgID, item.Status, item.Detail)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if !report.Healthy() {
		return fmt.Errorf("some packages are unhealthy, run `porter health repair`")
	}
	return nil
}

func runHealthRepair(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	orch, closeDB, err := newOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeDB() }()

	res, err := orch.Repair(cmd.Context())
	if err != nil {
		return err
	}
	if wantJSON() {
		return printJSON(res)
	}

	for _, id := range res.RemovedRows {
		fmt.Printf("Removed broken record %s\n", id)
	}
	for _, link := range res.RemovedSymlinks {
		fmt.Printf("Removed dangling symlink %s\n", link)
	}
	for _, dir := range res.RemovedDirs {
		fmt.Printf("Removed orphaned directory %s\n", dir)
	}
	if len(res.RemovedRows)+len(res.RemovedSymlinks)+len(res.RemovedDirs) == 0 {
		fmt.Println("Nothing to repair")
	}
	return nil
}
