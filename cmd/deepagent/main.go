package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/kazz187/deepagent/internal/agent"
	"github.com/kazz187/deepagent/internal/config"
	"github.com/kazz187/deepagent/internal/engine"
	"github.com/kazz187/deepagent/internal/executor"
	"github.com/kazz187/deepagent/internal/memory"
	"github.com/kazz187/deepagent/internal/model"
	"github.com/kazz187/deepagent/internal/observer"
	"github.com/kazz187/deepagent/internal/planner"
	"github.com/kazz187/deepagent/internal/server"
	"github.com/kazz187/deepagent/internal/session"
	"github.com/kazz187/deepagent/internal/skill"
	"github.com/kazz187/deepagent/internal/todo"
	"github.com/kazz187/deepagent/internal/toolprovider"
	"github.com/kazz187/deepagent/pkg/clog"
	"github.com/kazz187/deepagent/pkg/storage"
)

var (
	app = kingpin.New("deepagent", "Conversational agent server")

	serveCmd = app.Command("serve", "Run the agent server in the foreground")
	startCmd = app.Command("start", "Start the agent server in the background")
	stopCmd  = app.Command("stop", "Stop a background agent server")
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	env, err := config.LoadEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load env: %v\n", err)
		os.Exit(1)
	}

	switch command {
	case serveCmd.FullCommand():
		if err := serve(env); err != nil {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	case startCmd.FullCommand():
		if err := start(env); err != nil {
			fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
			os.Exit(1)
		}
	case stopCmd.FullCommand():
		if err := stop(env); err != nil {
			fmt.Fprintf(os.Stderr, "failed to stop server: %v\n", err)
			os.Exit(1)
		}
	}
}

func serve(env *config.Env) error {
	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewTextHandler(os.Stderr, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	store, err := newStorage(ctx, env)
	if err != nil {
		return err
	}

	todos := todo.NewStore(store)
	ledger := memory.NewLedger(store)
	sessions := session.NewStore(store)

	modelCfg, err := model.LoadConfig(env.ModelConfigPath, env.ModelProvider)
	if err != nil {
		return fmt.Errorf("failed to load model config: %w", err)
	}
	router := model.NewRouter(modelCfg)

	providers := toolprovider.NewRegistry(logger)
	defer providers.Close()
	providerCfgs, err := toolprovider.LoadConfig(env.MCPConfigPath)
	if err != nil {
		logger.Warn("failed to load tool provider config", "path", env.MCPConfigPath, "error", err)
	} else {
		providers.Configure(providerCfgs)
	}
	watcher := toolprovider.NewWatcher(env.MCPConfigPath, providers, logger)
	go func() {
		if err := watcher.Run(ctx); err != nil {
			logger.Warn("tool provider config watcher stopped", "error", err)
		}
	}()

	skills, err := skill.LoadRegistry(env.SkillConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load skill registry: %w", err)
	}

	var eng engine.Engine
	switch env.AgentEnv.Engine {
	case "claudecode":
		eng = engine.NewClaudeCodeEngine(env.WorkspaceRoot)
	default:
		eng = engine.NewModelEngine(router, logger)
	}

	obs := observer.New(router, logger)
	ag := agent.New(
		agent.Config{MaxConcurrency: env.MaxConcurrency, MaxSteps: env.MaxSteps},
		eng,
		planner.New(router, providers, logger),
		obs,
		executor.New(todos, obs, logger),
		todos, ledger,
		memory.NewSummarizer(ledger, router, logger),
		sessions, providers, skills, logger,
	)
	defer ag.Close()

	srv := server.NewServer(env, ag, todos, ledger, sessions, logger)

	if err := writePIDFile(env.PIDFile); err != nil {
		logger.Warn("failed to write pid file", "path", env.PIDFile, "error", err)
	} else {
		defer os.Remove(env.PIDFile)
	}

	go func() {
		if err := srv.ListenAndServe(ctx); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	// Give active streams time to finish after their contexts are cancelled.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

// start launches "deepagent serve" as a detached process and records its pid.
func start(env *config.Env) error {
	if pid, err := readPIDFile(env.PIDFile); err == nil && processAlive(pid) {
		return fmt.Errorf("server already running with pid %d", pid)
	}

	exe, err := os.Executable()
	if err != nil {
		return err
	}
	cmd := exec.Command(exe, "serve")
	cmd.Env = os.Environ()
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return err
	}
	fmt.Printf("started server with pid %d\n", cmd.Process.Pid)
	return cmd.Process.Release()
}

func stop(env *config.Env) error {
	pid, err := readPIDFile(env.PIDFile)
	if err != nil {
		return fmt.Errorf("no running server found: %w", err)
	}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to signal pid %d: %w", pid, err)
	}
	fmt.Printf("stopped server with pid %d\n", pid)
	return nil
}

func newStorage(ctx context.Context, env *config.Env) (storage.Storage, error) {
	switch env.StorageEnv.Type {
	case "s3":
		store, err := storage.NewS3(ctx, env.S3Bucket, env.S3Prefix, env.S3Region)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 storage: %w", err)
		}
		return store, nil
	default:
		store, err := storage.NewLocal(env.BaseDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create local storage: %w", err)
		}
		return store, nil
	}
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid pid file %s: %w", path, err)
	}
	return pid, nil
}

func processAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}
