// Command loomctl administers a loom knowledge base: schema migrations,
// structural validation, and dangling-reference repair.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	loom "github.com/loomkit/loom"
	"github.com/loomkit/loom/config"
	"github.com/loomkit/loom/db"
	"github.com/loomkit/loom/internal/log"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "0.0.1"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		printHelp()
		return nil
	}

	switch os.Args[1] {
	case "version", "--version", "-v":
		printVersion()
		return nil
	case "help", "--help", "-h":
		printHelp()
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	ctx := context.Background()

	switch os.Args[1] {
	case "migrate":
		return runMigrate(cfg, logger)
	case "validate":
		return runValidate(ctx, cfg, logger)
	case "resolve":
		return runResolve(ctx, cfg, logger)
	default:
		printHelp()
		return fmt.Errorf("unknown command %q", os.Args[1])
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := log.ParseLevel(cfg.LogLevel)
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level, JSON: cfg.LogJSON})
}

// runMigrate applies pending schema migrations.
func runMigrate(cfg *config.Config, logger *slog.Logger) error {
	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	fmt.Println("Migrations applied.")
	return nil
}

// runValidate reports link cycles and supersession chain issues. Findings
// are advisory; the exit code stays zero so CI can decide what to gate on.
func runValidate(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	engine, err := loom.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	cycles, issues, err := engine.Validate(ctx)
	if err != nil {
		return fmt.Errorf("validating knowledge base: %w", err)
	}

	if len(cycles) == 0 && len(issues) == 0 {
		fmt.Println("No structural issues found.")
		return nil
	}

	if len(cycles) > 0 {
		fmt.Printf("Link cycles (%d):\n", len(cycles))
		for _, cycle := range cycles {
			fmt.Printf("  %v\n", cycle)
		}
	}
	if len(issues) > 0 {
		fmt.Printf("Supersession issues (%d):\n", len(issues))
		for _, issue := range issues {
			fmt.Printf("  [%s] %s: %s\n", issue.Type, issue.Path, issue.Detail)
		}
	}
	return nil
}

// runResolve re-resolves supersession declarations whose target path has
// since been indexed.
func runResolve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	engine, err := loom.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	resolved, err := engine.Tracker().ResolveDangling(ctx)
	if err != nil {
		return fmt.Errorf("resolving dangling supersessions: %w", err)
	}
	fmt.Printf("Resolved %d dangling supersession(s).\n", resolved)
	return nil
}

func printVersion() {
	fmt.Printf("loomctl v%s\n", AppVersion)
	fmt.Printf("Build: %s\n", BuildTime)
	fmt.Printf("Commit: %s\n", GitCommit)
}

func printHelp() {
	fmt.Println(`loomctl - knowledge base administration

Usage:
  loomctl <command>

Commands:
  migrate    Apply pending schema migrations
  validate   Report link cycles and supersession chain issues
  resolve    Re-resolve dangling supersession references
  version    Show version information
  help       Show this help

Configuration is read from ~/.loom/config.yaml, ./config.yaml, and
environment variables (DATABASE_URL, LOOM_PROJECT, ...).`)
}
