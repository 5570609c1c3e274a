package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hpungsan/sitesmith/internal/config"
	"github.com/hpungsan/sitesmith/internal/deploy"
	"github.com/hpungsan/sitesmith/internal/editor"
	"github.com/hpungsan/sitesmith/internal/imagekit"
	"github.com/hpungsan/sitesmith/internal/llm"
	"github.com/hpungsan/sitesmith/internal/mcp"
	"github.com/hpungsan/sitesmith/internal/store"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"create": true, "fetch": true, "list": true, "frames": true,
	"generate": true, "edit": true, "export": true, "import": true,
	"deploy": true, "deployments": true, "serve": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v"
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
       _ _                      _ _   _
   ___(_) |_ ___  ___ _ __ ___ (_) |_| |__
  / __| | __/ _ \/ __| '_ ' _ \| | __| '_ \
  \__ \ | ||  __/\__ \ | | | | | | |_| | | |
  |___/_|\__\___||___/_| |_| |_|_|\__|_| |_|

  Build websites by chatting with a model

  Usage: sitesmith <command> [options]
         sitesmith --help

  MCP server mode requires piped input.`)
}

// newLogger writes JSON logs to stderr; stdout belongs to command output
// and the MCP transport.
func newLogger(cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}

// newRegistry wires the editor sessions to the configured services.
// Optional services stay nil when their credentials are missing.
func newRegistry(st store.Store, cfg *config.Config, logger *slog.Logger) *editor.Registry {
	deps := editor.SessionDeps{
		Bridge: st,
		Generator: llm.NewClient(llm.Options{
			APIKey:  cfg.OpenRouterKey,
			BaseURL: cfg.OpenRouterURL,
			Model:   cfg.Model,
			Timeout: cfg.RequestTimeout(),
			Logger:  logger,
		}),
		Logger:       logger,
		SaveCooldown: cfg.SaveCooldown(),
	}
	if cfg.ImageKitPrivateKey != "" {
		deps.Images = imagekit.NewClient(cfg.ImageKitPrivateKey, cfg.ImageKitUploadURL)
	}
	if cfg.VercelToken != "" {
		deps.Deployer = deploy.NewClient(cfg.VercelToken, cfg.VercelAPIURL)
	}
	return editor.NewRegistry(st, deps)
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before opening the store
	if isHelpOrVersion() {
		app := newCLIApp(nil)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: could not determine home directory: %v\n", err)
		os.Exit(1)
	}
	baseDir := filepath.Join(homeDir, ".sitesmith")

	cwd, _ := os.Getwd()
	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	st, err := store.Open(context.Background(), cfg, baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	sessions := newRegistry(st, cfg, logger)
	defer sessions.CloseAll()

	// CLI mode: known subcommand
	if isCLIMode() {
		app := newCLIApp(&appEnv{store: st, cfg: cfg, sessions: sessions, logger: logger})
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'sitesmith --help' for usage.\n")
		os.Exit(1)
	}

	// MCP server mode (default)
	if err := mcp.Run(st, sessions, cfg, Version); err != nil {
		logger.Error("mcp server stopped", "error", err)
		os.Exit(1)
	}
}
