package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/techidiots/webaibridge/internal/config"
	"github.com/techidiots/webaibridge/internal/host"
	"github.com/techidiots/webaibridge/internal/mcp"
	"github.com/techidiots/webaibridge/internal/store"
	"github.com/techidiots/webaibridge/internal/token"
	"github.com/techidiots/webaibridge/internal/workspace"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"host": true, "discover": true, "estimate": true,
	"chips": true, "fetch": true, "files": true, "send": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	// Known subcommand → CLI
	if cliCommands[arg] {
		return true
	}
	// --help or --version → CLI
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false // Default → MCP server
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
  webaibridge: editor/browser AI context bridge

  Usage: webaibridge <command> [options]
         webaibridge --help

  MCP server mode requires piped input.`)
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before store init (no store needed)
	if isHelpOrVersion() {
		app := newCLIApp(nil, nil)
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

	baseDir := filepath.Join(homeDir, ".webaibridge")

	st, err := store.Open(baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	cfg, err := config.Load(baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid config: %v\n", err)
		os.Exit(1)
	}

	// CLI mode: known subcommand
	if isCLIMode() {
		app := newCLIApp(st, cfg)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'webaibridge --help' for usage.\n")
		os.Exit(1)
	}

	// MCP server mode (default): runs a host instance for the current
	// directory and exposes it over stdio.
	if err := runMCP(st, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// runMCP starts a bridge host for the working directory and serves MCP
// tools on stdio. Logs go to stderr: stdout carries the MCP transport.
func runMCP(st *store.Store, cfg *config.Config) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	srv := newHostServer(st, cfg, cwd, logger)
	if _, err := srv.Listen(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Serve(ctx) }()

	return mcp.Run(srv, newEstimator(cfg), Version)
}

// newHostServer wires a host instance from configuration.
func newHostServer(st *store.Store, cfg *config.Config, root string, logger *slog.Logger) *host.Server {
	ws := workspace.New(root, workspace.Options{
		MaxFileSize:     cfg.MaxFileSize,
		MaxFiles:        cfg.MaxFilesPerFolder,
		ExcludePatterns: cfg.ExcludePatterns,
		UseGitignore:    cfg.GitignoreEnabled(),
	})

	return host.NewServer(host.Options{
		PortStart: cfg.PortRangeStart,
		PortEnd:   cfg.PortRangeEnd,
		Workspace: ws,
		Snapshot:  st,
		Responses: st,
		Estimator: newEstimator(cfg),
		Logger:    logger,
	})
}

// newEstimator builds the configured token estimator.
func newEstimator(cfg *config.Config) *token.Estimator {
	return token.NewEstimator(token.Family(cfg.ModelFamily)).WithLimits(cfg.ModelLimits)
}
