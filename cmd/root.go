package cmd

import (
	"context"
	"fmt"
	"net/url"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/ciciliostudio/sidekick/internal/agent"
	"github.com/ciciliostudio/sidekick/internal/browser"
	"github.com/ciciliostudio/sidekick/internal/config"
	"github.com/ciciliostudio/sidekick/internal/detect"
	"github.com/ciciliostudio/sidekick/internal/executor"
	"github.com/ciciliostudio/sidekick/internal/history"
	"github.com/ciciliostudio/sidekick/internal/llm"
	"github.com/ciciliostudio/sidekick/internal/logging"
	"github.com/ciciliostudio/sidekick/internal/pending"
	"github.com/ciciliostudio/sidekick/internal/router"
	"github.com/ciciliostudio/sidekick/internal/session"
	"github.com/ciciliostudio/sidekick/internal/ui"
)

var (
	cfgFile        string
	startURL       string
	headless       bool
	verbose        bool
	sidekickConfig *config.Config
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "sidekick",
	Short: "Sidekick - an in-page AI assistant for your browser",
	Long: `Sidekick attaches to a Chrome tab and opens a chat surface that can read
the page, answer questions about it, and carry out form fills, clicks, and
highlights after you confirm each action.`,
	RunE: runChat,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .sidekick/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "V", false, "verbose output")
	rootCmd.Flags().StringVar(&startURL, "url", "", "page to open on start")
	rootCmd.Flags().BoolVar(&headless, "headless", false, "run Chrome headless")
}

// initConfig reads in the config file and environment overrides.
func initConfig() {
	if err := logging.Initialize("."); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logging: %v\n", err)
	}
	logging.SetVerbose(verbose)

	loader := config.NewLoader(".")
	cfg, err := loader.Load()
	if err != nil {
		logging.Warn("Failed to load config: %v", err)
		cfg = config.DefaultConfig()
	}
	sidekickConfig = cfg
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg := sidekickConfig
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if startURL != "" {
		cfg.Browser.StartURL = startURL
	}
	if cmd.Flags().Changed("headless") {
		cfg.Browser.Headless = headless
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Page agent side: browser, detector, executor.
	manager, err := browser.NewManager(cfg.Browser.ChromePath, cfg.Browser.Headless, cfg.Browser.DebugPort)
	if err != nil {
		return err
	}
	defer manager.Close()

	if cfg.Browser.StartURL != "" {
		if err := manager.Navigate(cfg.Browser.StartURL); err != nil {
			logging.Warn("initial navigation failed: %v", err)
		}
	}

	detector := detect.New(detect.DefaultQuietPeriod, detect.DefaultThreshold)
	if err := browser.AttachListeners(manager, detector); err != nil {
		return fmt.Errorf("attaching page listeners: %w", err)
	}

	bus := router.New(0)
	defer bus.Close()

	exec := executor.New(browser.NewDriver(manager), pending.NewStore())
	pageAgent := agent.New(bus, manager, exec, detector)
	pageAgent.SetReinjector(func() error {
		return browser.ReinjectObserver(manager)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pageAgent.Run(ctx)

	// Coordinator side: provider, history, orchestrator.
	client, err := llm.NewClient(cfg.AI)
	if err != nil {
		return err
	}

	var store history.Store
	if cfg.History.Disabled {
		store = history.NewMemoryStore()
	} else {
		store, err = history.NewSQLiteStore(cfg.History.Path)
		if err != nil {
			logging.Warn("history unavailable, falling back to memory: %v", err)
			store = history.NewMemoryStore()
		}
	}
	defer store.Close()

	orch := session.New(bus, client, cfg.AI, store, sessionKey(cfg.Browser.StartURL))

	watcher, err := config.NewWatcher(config.NewLoader("."), func(updated *config.Config) {
		if err := orch.SwapProvider(updated.AI); err != nil {
			logging.Warn("provider swap failed: %v", err)
		}
	})
	if err != nil {
		logging.Debug("config watcher unavailable: %v", err)
	} else {
		defer watcher.Close()
	}

	// Chat surface.
	model := ui.NewModel(bus)
	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("chat surface failed: %w", err)
	}
	return nil
}

// sessionKey derives the transcript key from the start URL's host so a
// returning user continues the same conversation per site.
func sessionKey(startURL string) string {
	if startURL == "" {
		return "default"
	}
	u, err := url.Parse(startURL)
	if err != nil || u.Host == "" {
		return "default"
	}
	return u.Host
}
