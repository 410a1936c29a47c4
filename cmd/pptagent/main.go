// =============================================================================
// 📦 pptagent 主入口
// =============================================================================
// LiveKit 幻灯片讲解 Agent 的 Worker 进程
//
// 使用方法:
//
//	pptagent start                        # 生产模式启动 Worker
//	pptagent dev --config config.yaml     # 开发模式（console 日志、配置热重载）
//	pptagent download-files               # 预下载 tokenizer 编码与资源文件
//	pptagent migrate up                   # 运行数据库迁移
//	pptagent health --addr http://localhost:8081
//	pptagent version
//
// =============================================================================
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/pptagent/config"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// envLookup 读取环境变量，测试中替换
var envLookup = os.LookupEnv

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run 分发子命令并返回进程退出码
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}

	switch args[0] {
	case "start":
		return runAgent(modeStart, args[1:], stdout, stderr)
	case "dev":
		return runAgent(modeDev, args[1:], stdout, stderr)
	case "download-files":
		return runDownloadFiles(args[1:], stdout, stderr)
	case "migrate":
		return runMigrate(args[1:], stdout, stderr)
	case "version":
		printVersion(stdout)
		return 0
	case "health":
		return runHealthCheck(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return 1
	}
}

// =============================================================================
// 🖥️ start / dev
// =============================================================================

const (
	modeStart = "start"
	modeDev   = "dev"
)

// newLoader 创建配置加载器，未指定 --config 时读取 PPTAGENT_CONFIG
func newLoader(path string) *config.Loader {
	if path == "" {
		if v, ok := envLookup("PPTAGENT_CONFIG"); ok {
			path = v
		}
	}
	return config.NewLoader().WithConfigPath(path).WithEnvLookup(envLookup)
}

func runAgent(mode string, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(mode, flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	loader := newLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if mode == modeDev {
		config.DevOverrides(cfg)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Invalid config: %v\n", err)
		return 1
	}
	if err := cfg.RequiredKeys(); err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}

	logger, level := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting pptagent",
		zap.String("mode", mode),
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, AppOptions{
		Mode:     mode,
		Config:   cfg,
		Loader:   loader,
		LogLevel: level,
	}, logger)
	if err != nil {
		logger.Error("failed to build application", zap.Error(err))
		return 1
	}

	if err := app.Start(ctx); err != nil {
		logger.Error("failed to start", zap.Error(err))
		app.Shutdown()
		return 1
	}

	code := 0
	if err := app.Wait(ctx); err != nil {
		logger.Error("server failed", zap.Error(err))
		code = 1
	}
	app.Shutdown()

	logger.Info("pptagent stopped")
	return code
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", "http://localhost:8081", "Server address")
	path := fs.String("path", "/healthz", "Health endpoint")
	timeout := fs.Duration("timeout", 5*time.Second, "Request timeout")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	client := &http.Client{Timeout: *timeout}
	resp, err := client.Get(*addr + *path)
	if err != nil {
		fmt.Fprintf(stderr, "Health check failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(stderr, "Health check failed: status %d\n", resp.StatusCode)
		return 1
	}

	fmt.Fprintln(stdout, "OK")
	return 0
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "pptagent %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `pptagent - LiveKit slide presenter agent

Usage:
  pptagent <command> [options]

Commands:
  start           Run the worker in production mode
  dev             Run the worker in development mode (debug logs, config hot reload)
  download-files  Download tokenizer encodings and asset files ahead of time
  migrate         Database migration commands
  version         Show version information
  health          Check worker health
  help            Show this help message

Options for 'start', 'dev' and 'download-files':
  --config <path>   Path to configuration file (YAML), defaults to $PPTAGENT_CONFIG

Examples:
  pptagent start --config /etc/pptagent/config.yaml
  pptagent dev --config config.yaml
  pptagent download-files
  pptagent migrate up
  pptagent health --addr http://localhost:8081
  pptagent version`)
}
