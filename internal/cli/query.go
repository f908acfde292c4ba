package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/porter/pkg/model"
)

// NewQueryCmd creates the query command.
func NewQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "query PACKAGE",
		Aliases: []string{"info"},
		Short:   "Show details for a package",
		Long: `Show the repository record for a package together with its
installed state, if any.`,
		Args: cobra.ExactArgs(1),
		RunE: runQuery,
	}

	return cmd
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	orch, closeDB, err := newOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeDB() }()

	res, err := orch.QueryPackage(cmd.Context(), model.ParseRef(args[0]))
	if err != nil {
		return err
	}
	if wantJSON() {
		return printJSON(res)
	}

	rec := res.Record
	fmt.Printf("Package:    %s\n", rec.Name)
	fmt.Printf("Repository: %s\n", rec.RepoName)
	fmt.Printf("Version:    %s\n", rec.Version)
	if rec.Size > 0 {
		fmt.Printf("Size:       %d bytes\n", rec.Size)
	}
	fmt.Printf("Origin:     %s\n", rec.OriginURL)
	if rec.Checksum != "" {
		fmt.Printf("Checksum:   %s\n", rec.Checksum)
	}
	if res.Installed != nil {
		fmt.Printf("Installed:  %s (%s)\n", res.Installed.Version, res.Installed.InstallPath)
	} else {
		fmt.Println("Installed:  no")
	}
	for _, note := range rec.Notes {
		fmt.Printf("Note:       %s\n", note)
	}
	return nil
}
