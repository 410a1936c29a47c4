package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strconv"

	"github.com/BaSui01/pptagent/internal/migration"
)

// =============================================================================
// 🗄️ 数据库迁移命令
// =============================================================================

// runMigrate 处理 migrate 子命令: up, down, steps <n>, force <v>, version, status
func runMigrate(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printMigrateUsage(stderr)
		return 1
	}

	sub, rest := args[0], args[1:]
	if sub == "help" || sub == "-h" || sub == "--help" {
		printMigrateUsage(stdout)
		return 0
	}

	// steps 与 force 需要一个位置参数
	var n int
	switch sub {
	case "steps", "force":
		if len(rest) < 1 {
			fmt.Fprintf(stderr, "Usage: pptagent migrate %s <n>\n", sub)
			return 1
		}
		v, err := strconv.Atoi(rest[0])
		if err != nil {
			fmt.Fprintf(stderr, "Invalid number: %s\n", rest[0])
			return 1
		}
		n, rest = v, rest[1:]
	case "up", "down", "version", "status":
	default:
		fmt.Fprintf(stderr, "Unknown migrate subcommand: %s\n", sub)
		printMigrateUsage(stderr)
		return 1
	}

	fs := flag.NewFlagSet("migrate "+sub, flag.ContinueOnError)
	fs.SetOutput(stderr)
	migrator, err := createMigrator(fs, rest)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to create migrator: %v\n", err)
		return 1
	}
	defer migrator.Close()

	cli := migration.NewCLI(migrator)
	cli.SetOutput(stdout)
	ctx := context.Background()

	switch sub {
	case "up":
		err = cli.RunUp(ctx)
	case "down":
		err = cli.RunDown(ctx)
	case "steps":
		err = cli.RunSteps(ctx, n)
	case "force":
		err = cli.RunForce(ctx, n)
	case "version":
		err = cli.RunVersion(ctx)
	case "status":
		err = cli.RunStatus(ctx)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Migration %s failed: %v\n", sub, err)
		return 1
	}
	return 0
}

// createMigrator 优先使用 --db-type/--db-url，否则读取配置文件中的 database 段
func createMigrator(fs *flag.FlagSet, args []string) (*migration.DefaultMigrator, error) {
	configPath := fs.String("config", "", "Path to config file")
	dbType := fs.String("db-type", "", "Database type (postgres, mysql, sqlite)")
	dbURL := fs.String("db-url", "", "Database connection URL")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *dbType != "" && *dbURL != "" {
		return migration.NewMigratorFromURL(*dbType, *dbURL)
	}

	cfg, err := newLoader(*configPath).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if *dbType != "" {
		cfg.Database.Driver = *dbType
	}
	return migration.NewMigratorFromDatabaseConfig(cfg.Database)
}

func printMigrateUsage(w io.Writer) {
	fmt.Fprintln(w, `Database Migration Commands

Usage:
  pptagent migrate <subcommand> [options]

Subcommands:
  up          Apply all pending migrations
  down        Rollback the last migration
  steps <n>   Apply (n > 0) or rollback (n < 0) n migrations
  force <v>   Force set migration version (use with caution)
  version     Show current migration version
  status      Show migration status

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    Database type: postgres, mysql, sqlite (default: from config)
  --db-url <url>      Database connection URL (default: from config)`)
}
