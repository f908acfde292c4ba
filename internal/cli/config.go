package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/porter/pkg/config"
)

// NewConfigCmd creates the config command with subcommands.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long:  "View and initialize porter configuration settings",
	}

	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigInitCmd(),
	)

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Long:  "Display the current configuration settings",
		RunE:  runConfigShow,
	}

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration file",
		Long:  "Create a configuration file with default settings",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runConfigInit(force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration file")

	return cmd
}

func runConfigShow(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, TabWidth, ' ', 0)
	_, _ = fmt.Fprintln(w, "SETTING\tVALUE")
	_, _ = fmt.Fprintf(w, "root_dir\t%s\n", cfg.Settings.RootDir)
	_, _ = fmt.Fprintf(w, "log_level\t%s\n", cfg.Settings.LogLevel)
	_, _ = fmt.Fprintf(w, "max_concurrent\t%d\n", cfg.Settings.MaxConcurrent)
	_, _ = fmt.Fprintf(w, "max_retries\t%d\n", cfg.Settings.MaxRetries)
	_, _ = fmt.Fprintf(w, "http.timeout\t%s\n", cfg.Settings.HTTP.Timeout)
	_, _ = fmt.Fprintf(w, "http.user_agent\t%s\n", cfg.Settings.HTTP.UserAgent)
	if cfg.ActiveProfile != "" {
		_, _ = fmt.Fprintf(w, "active_profile\t%s\n", cfg.ActiveProfile)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\nRepositories (%d):\n", len(cfg.Repositories))
	for _, repo := range cfg.Repositories {
		status := "enabled"
		if !repo.Enabled {
			status = "disabled"
		}
		fmt.Printf("  %s: %s (%s)\n", repo.Name, repo.URL, status)
	}
	return nil
}

func runConfigInit(force bool) error {
	path, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file %s already exists, use --force to overwrite", path)
	}

	if err := config.DefaultConfig().SaveConfig(path); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}
