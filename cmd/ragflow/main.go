// RAGFlow 自适应检索增强问答服务入口。
//
// 用法:
//
//	ragflow serve --config config.yaml
//	ragflow ask --thread demo "What is the refund policy?"
//	ragflow graph
//	ragflow health --addr http://localhost:8080
//	ragflow version
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/BaSui01/ragflow/agent/checkpoint"
	"github.com/BaSui01/ragflow/config"
	"github.com/BaSui01/ragflow/types"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "ask":
		err = runAsk(os.Args[2:], os.Stdout)
	case "graph":
		err = runGraph(os.Args[2:], os.Stdout)
	case "health":
		err = runHealthCheck(os.Args[2:], os.Stdout)
	case "version":
		printVersion(os.Stdout)
	case "help", "-h", "--help":
		printUsage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage(os.Stderr)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig 加载并验证配置（默认值 -> YAML -> 环境变量）
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// 💬 ask 命令
// =============================================================================

func runAsk(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	thread := fs.String("thread", "", "Conversation thread id (default thread when empty)")
	newThread := fs.Bool("new-thread", false, "Start a new conversation thread")
	seed := fs.String("seed", "", "JSON file of documents to load into the index first")
	asJSON := fs.Bool("json", false, "Print the full result as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		return fmt.Errorf("usage: ragflow ask [flags] <question>")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	app, err := NewApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	if *seed != "" {
		if _, err := app.Seed(ctx, *seed); err != nil {
			return err
		}
	}
	threadID := *thread
	if *newThread {
		threadID = checkpoint.NewThreadID()
	}

	res, err := app.Session.Invoke(ctx, question, threadID)
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res.State)
	}
	printResult(out, res.ThreadID, res.State.Generation, string(res.State.Route), res.State.Citations, res.State.Steps)
	return nil
}

func printResult(out io.Writer, threadID, answer, route string, citations []types.Citation, steps []types.Step) {
	fmt.Fprintf(out, "%s\n\n", answer)
	fmt.Fprintf(out, "thread: %s  route: %s\n", threadID, route)
	if len(citations) > 0 {
		fmt.Fprintln(out, "sources:")
		for _, c := range citations {
			line := "  - " + c.Source
			if c.Page != nil {
				line += fmt.Sprintf(", page %d", *c.Page)
			}
			if c.Row != nil {
				line += fmt.Sprintf(", row %d", *c.Row)
			}
			fmt.Fprintln(out, line)
		}
	}
	fmt.Fprintln(out, "trace:")
	for _, s := range steps {
		fmt.Fprintf(out, "  [%s] %s\n", s.Name, s.Detail)
	}
}

// =============================================================================
// 🗺️ graph 命令
// =============================================================================

// runGraph 输出编排图的 Mermaid 描述，不需要任何外部服务
func runGraph(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("graph", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	cfg.Checkpoint.Type = "memory"
	cfg.WebSearch.CacheBackend = "memory"
	cfg.VectorStore.Type = "memory"

	app, err := NewApp(context.Background(), cfg, zap.NewNop())
	if err != nil {
		return err
	}
	defer app.Close()
	fmt.Fprintln(out, app.Pipeline.Graph().Mermaid())
	return nil
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(strings.TrimRight(*addr, "/") + "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("health check failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	fmt.Fprintln(out, "OK")
	return nil
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(out io.Writer) {
	fmt.Fprintf(out, "RAGFlow %s\n", Version)
	fmt.Fprintf(out, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(out, "  Git Commit: %s\n", GitCommit)
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, `RAGFlow - adaptive retrieval-augmented question answering

Usage:
  ragflow <command> [options]

Commands:
  serve     Start the HTTP API server
  ask       Answer one question from the command line
  graph     Print the orchestration graph as Mermaid
  health    Check the health of a running server
  version   Print version information
  help      Show this help message

Examples:
  ragflow serve --config /etc/ragflow/config.yaml
  ragflow ask --seed docs.json --new-thread "How do refunds work?"
  ragflow graph > graph.mmd
  ragflow health --addr http://localhost:8080`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Format == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger.With(zap.String("service", "ragflow"))
}
