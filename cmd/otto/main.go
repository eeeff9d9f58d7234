// Otto is a task assistant with a tiered router: regex fast paths, a slash
// command dialect, an LLM tool loop, and an opt-in external discovery agent.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/ksuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"otto/internal/app"
	"otto/internal/config"
	"otto/internal/llm"
	"otto/internal/router"
)

var (
	cyan   = color.New(color.FgCyan).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func isTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, red("Error: "+err.Error()))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "otto [message]",
		Short: "Otto task assistant",
		Long: `Otto manages tasks and projects through natural language, slash
commands, and an optional external discovery agent. Run with no arguments for
an interactive session, or pass a single message for one-shot mode.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			core, err := app.New(cfg, prometheus.NewRegistry())
			if err != nil {
				return err
			}
			defer core.Close()

			if len(args) > 0 {
				return runOnce(cmd.Context(), core, strings.Join(args, " "))
			}
			return runChat(core)
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (default $HOME/.otto-config.json)")
	flags.String("model", "", "override the chat model")
	flags.Bool("discovery", false, "enable the external discovery tier")
	flags.BoolP("verbose", "v", false, "debug logging")
	_ = viper.BindPFlag("config", flags.Lookup("config"))
	_ = viper.BindPFlag("model", flags.Lookup("model"))
	_ = viper.BindPFlag("discovery", flags.Lookup("discovery"))
	_ = viper.BindPFlag("verbose", flags.Lookup("verbose"))
	viper.SetEnvPrefix("OTTO")
	viper.AutomaticEnv()

	root.AddCommand(newConfigCmd(), newVersionCmd())
	return root
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return cfg, err
	}
	if model := viper.GetString("model"); model != "" {
		cfg.LLMModel = model
	}
	if viper.GetBool("discovery") {
		cfg.DiscoveryEnabled = true
	}
	if viper.GetBool("verbose") {
		cfg.Verbose = true
	}
	if cfg.APIKey == "" {
		return cfg, fmt.Errorf("no API key: set OTTO_API_KEY or run `otto config set api_key <key>`")
	}
	return cfg, nil
}

func runOnce(ctx context.Context, core *app.Core, message string) error {
	resp, err := core.Handle(ctx, router.Request{
		SessionID: ksuid.New().String(),
		UserID:    defaultUserID(),
		Text:      message,
	})
	if err != nil {
		return err
	}
	fmt.Println(resp.Text)
	return nil
}

func runChat(core *app.Core) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessionID := ksuid.New().String()
	userID := defaultUserID()
	var history []llm.Message

	if isTTY() {
		fmt.Println(bold("otto") + gray(" — type /help for commands, /quit to exit"))
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		if isTTY() {
			fmt.Print(cyan("> "))
		}
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			return nil
		}

		resp, err := core.Handle(ctx, router.Request{
			SessionID: sessionID,
			UserID:    userID,
			Text:      line,
			History:   history,
		})
		if err != nil {
			if ctx.Err() != nil {
				fmt.Println()
				return nil
			}
			fmt.Println(red("Error: " + err.Error()))
			continue
		}

		printResponse(resp)
		history = append(history,
			llm.Message{Role: "user", Content: line},
			llm.Message{Role: "assistant", Content: resp.Text},
		)
		if len(history) > 40 {
			history = history[len(history)-40:]
		}
	}
}

func printResponse(resp *router.Response) {
	fmt.Println(resp.Text)
	if !isTTY() {
		return
	}
	meta := fmt.Sprintf("tier %d", resp.Tier)
	if resp.Source != "" {
		meta += " · " + resp.Source
	}
	if resp.Truncated {
		meta += " · " + yellow("partial")
	}
	fmt.Println(gray(meta))
}

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and edit otto configuration",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("config"))
			if err != nil {
				return err
			}
			fmt.Printf("model:       %s\n", cfg.LLMModel)
			fmt.Printf("base_url:    %s\n", cfg.BaseURL)
			fmt.Printf("api_key:     %s\n", maskSecret(cfg.APIKey))
			fmt.Printf("embedding:   %s (%d dims)\n", cfg.EmbeddingModel, cfg.EmbeddingDimensions)
			fmt.Printf("discovery:   %v\n", cfg.DiscoveryEnabled)
			fmt.Printf("tavily_key:  %s\n", maskSecret(cfg.TavilyAPIKey))
			fmt.Printf("servers:     %d configured\n", len(cfg.Servers))
			fmt.Printf("persist:     %s\n", cfg.PersistPath)
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := viper.GetString("config")
			if path == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				path = filepath.Join(home, ".otto-config.json")
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			if err := setConfigKey(&cfg, args[0], args[1]); err != nil {
				return err
			}
			if err := config.Save(cfg, path); err != nil {
				return err
			}
			fmt.Println(green("Saved " + args[0] + " to " + path))
			return nil
		},
	})

	return configCmd
}

func setConfigKey(cfg *config.Config, key, value string) error {
	switch key {
	case "api_key":
		cfg.APIKey = value
	case "base_url":
		cfg.BaseURL = value
	case "model":
		cfg.LLMModel = value
	case "summary_model":
		cfg.SummaryModel = value
	case "embedding_model":
		cfg.EmbeddingModel = value
	case "tavily_api_key":
		cfg.TavilyAPIKey = value
	case "discovery":
		cfg.DiscoveryEnabled = value == "true" || value == "1"
	case "persist_path":
		cfg.PersistPath = value
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return nil
}

func maskSecret(s string) string {
	if s == "" {
		return "(unset)"
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the otto version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("otto 1.0.0")
		},
	}
}

func defaultUserID() string {
	if u := os.Getenv("OTTO_USER"); u != "" {
		return u
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "default"
}
