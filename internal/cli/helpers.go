package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"

	"github.com/glorpus-work/porter/internal/logger"
	"github.com/glorpus-work/porter/pkg/config"
	"github.com/glorpus-work/porter/pkg/database"
	"github.com/glorpus-work/porter/pkg/download"
	"github.com/glorpus-work/porter/pkg/health"
	"github.com/glorpus-work/porter/pkg/hook"
	"github.com/glorpus-work/porter/pkg/httpclient"
	"github.com/glorpus-work/porter/pkg/install"
	"github.com/glorpus-work/porter/pkg/model"
	"github.com/glorpus-work/porter/pkg/orchestrator"
	"github.com/glorpus-work/porter/pkg/remove"
	"github.com/glorpus-work/porter/pkg/repository"
	"github.com/glorpus-work/porter/pkg/run"
	"github.com/glorpus-work/porter/pkg/update"
)

// These variables are set by the main package.
var (
	ConfigPath   *string
	Verbose      *bool
	NoColor      *bool
	OutputFormat *string
)

// TabWidth is the column padding used by tabular command output.
const TabWidth = 4

// loadConfig loads the configuration from the --config flag or the default
// location and initializes the logger.
func loadConfig() (*config.Config, error) {
	configPath := ""
	if ConfigPath != nil {
		configPath = *ConfigPath
	}
	if configPath == "" {
		defaultPath, err := config.DefaultConfigPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get default config path: %w", err)
		}
		configPath = defaultPath
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if Verbose != nil && *Verbose {
		cfg.Settings.LogLevel = "debug"
	}
	logger.Init(cfg.Settings.LogLevel)

	return cfg, nil
}

// configFilePath resolves the path the configuration is read from and written
// to, without loading it.
func configFilePath() (string, error) {
	if ConfigPath != nil && *ConfigPath != "" {
		return *ConfigPath, nil
	}
	return config.DefaultConfigPath()
}

// newOrchestrator wires the engines behind the facade. The returned closer
// releases the database handle.
func newOrchestrator(cfg *config.Config) (*orchestrator.Orchestrator, func() error, error) {
	client, err := httpclient.New(cfg.Settings.HTTP)
	if err != nil {
		return nil, nil, err
	}

	db, err := database.Open(cfg.DBDir())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open package database: %w", err)
	}

	hooks := hook.NewExecutor()
	if err := hooks.LoadDir(filepath.Join(cfg.Settings.RootDir, "hooks")); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to load hook scripts: %w", err)
	}

	dl := download.NewManager(client, githubClient(cfg, client), cfg.Settings.MaxRetries)
	installEngine := install.NewEngine(cfg, db, dl, hooks)

	orch := orchestrator.New(
		cfg,
		db,
		repository.NewEngine(cfg, db, client),
		installEngine,
		update.NewEngine(cfg, db, installEngine),
		remove.NewEngine(cfg, db, hooks),
		health.NewEngine(cfg, db),
		run.NewEngine(cfg, db, dl),
		dl,
		eventHooks(),
	)
	return orch, db.Close, nil
}

// githubClient builds the release-host client, authenticated when a token is
// configured.
func githubClient(cfg *config.Config, base *http.Client) *github.Client {
	token := cfg.Settings.HTTP.GitHubToken
	if token == "" {
		return github.NewClient(base)
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return github.NewClient(oauth2.NewClient(ctx, src))
}

// eventHooks prints progress events to stdout.
func eventHooks() orchestrator.Hooks {
	return orchestrator.Hooks{OnEvent: func(e orchestrator.Event) {
		switch {
		case e.Phase == "done" && e.ID == "" && e.Msg == "":
			return
		case e.ID != "" && e.Msg != "":
			fmt.Printf("%s %s: %s\n", e.Phase, e.ID, e.Msg)
		case e.ID != "":
			fmt.Printf("%s %s\n", e.Phase, e.ID)
		case e.Msg != "":
			fmt.Printf("%s: %s\n", e.Phase, e.Msg)
		default:
			fmt.Println(e.Phase)
		}
	}}
}

// confirmPrompt asks a yes/no question on stdout and reads the answer from
// stdin. Anything but "y" or "yes" declines.
func confirmPrompt(question string) bool {
	fmt.Printf("%s [y/N]: ", question)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

// stdinIsTerminal reports whether stdin is attached to a terminal.
func stdinIsTerminal() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// parseRefs parses the positional package arguments.
func parseRefs(args []string) []model.PackageRef {
	refs := make([]model.PackageRef, 0, len(args))
	for _, arg := range args {
		refs = append(refs, model.ParseRef(arg))
	}
	return refs
}

// wantJSON reports whether the user asked for JSON output.
func wantJSON() bool {
	return OutputFormat != nil && *OutputFormat == "json"
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
