package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/porter/pkg/download"
	"github.com/glorpus-work/porter/pkg/orchestrator"
)

// NewDownloadCmd creates the download command.
func NewDownloadCmd() *cobra.Command {
	var (
		githubSpec string
		ociRef     string
		outputDir  string
		checksum   string
		force      bool
		extract    bool
		noPrompt   bool
		filters    download.Filters
	)

	cmd := &cobra.Command{
		Use:   "download [URL]",
		Short: "Download an asset outside the package workflow",
		Long: `Download a single asset from a direct URL, a GitHub release
(--github owner/repo[@tag]) or an OCI registry (--oci ref).

When a release or registry source offers several assets, the regex, glob and
keyword filters narrow the choice down. Regexes take precedence over globs;
matching is case-insensitive unless --exact-case is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := orchestrator.DownloadRequest{
				GitHub:  githubSpec,
				OCI:     ociRef,
				Filters: filters,
				Dir:     outputDir,
				Options: download.Options{
					Checksum:       checksum,
					SkipExisting:   !force,
					ForceOverwrite: force,
					Extract:        extract,
				},
				AllowPrompt: !noPrompt,
				Choose:      chooseAsset,
			}
			if len(args) == 1 {
				req.URL = args[0]
			}
			return runDownload(cmd, req)
		},
	}

	cmd.Flags().StringVar(&githubSpec, "github", "", "Download from a GitHub release (owner/repo[@tag])")
	cmd.Flags().StringVar(&ociRef, "oci", "", "Download from an OCI registry reference")
	cmd.Flags().StringVarP(&outputDir, "output", "d", "", "Directory to download into (default: current directory)")
	cmd.Flags().StringVar(&checksum, "checksum", "", "Expected sha256 of the downloaded file")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	cmd.Flags().BoolVar(&extract, "extract", false, "Extract the downloaded archive next to it")
	cmd.Flags().BoolVar(&noPrompt, "no-prompt", false, "Fail instead of prompting when several assets match")
	cmd.Flags().StringArrayVar(&filters.Regexes, "regex", nil, "Select assets matching this regular expression")
	cmd.Flags().StringArrayVar(&filters.Globs, "glob", nil, "Select assets matching this glob pattern")
	cmd.Flags().StringArrayVar(&filters.MatchKeywords, "match", nil, "Keep only assets containing this keyword")
	cmd.Flags().StringArrayVar(&filters.ExcludeKeywords, "exclude", nil, "Drop assets containing this keyword")
	cmd.Flags().BoolVar(&filters.ExactCase, "exact-case", false, "Match filters case-sensitively")

	return cmd
}

func runDownload(cmd *cobra.Command, req orchestrator.DownloadRequest) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if req.Dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		req.Dir = wd
	}
	if !filepath.IsAbs(req.Dir) {
		abs, err := filepath.Abs(req.Dir)
		if err != nil {
			return err
		}
		req.Dir = abs
	}

	orch, closeDB, err := newOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeDB() }()

	res, err := orch.Download(cmd.Context(), req)
	if err != nil {
		return err
	}
	if res.Skipped {
		fmt.Printf("%s already exists, skipped\n", res.Path)
	} else {
		fmt.Printf("Downloaded %s\n", res.Path)
	}
	return nil
}

// chooseAsset prompts the user to pick one of several matching assets.
func chooseAsset(assets []download.Asset) (download.Asset, error) {
	fmt.Println("Several assets match:")
	for i, asset := range assets {
		fmt.Printf("  [%d] %s\n", i+1, asset.Name)
	}
	fmt.Print("Select asset: ")

	var choice int
	if _, err := fmt.Fscanln(os.Stdin, &choice); err != nil {
		return download.Asset{}, fmt.Errorf("failed to read selection: %w", err)
	}
	if choice < 1 || choice > len(assets) {
		return download.Asset{}, fmt.Errorf("selection %d out of range", choice)
	}
	return assets[choice-1], nil
}
