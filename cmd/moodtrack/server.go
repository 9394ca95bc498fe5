package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/moodtrack/internal/api"
	"github.com/kalambet/moodtrack/internal/config"
	"github.com/kalambet/moodtrack/internal/modelstore"
	"github.com/kalambet/moodtrack/internal/pipeline"
	"github.com/kalambet/moodtrack/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the moodtrack HTTP server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running moodtrack server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server and model status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the moodtrack MCP tools over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

// services is the wired record store and analyzer shared by serve and mcp.
type services struct {
	store    *storage.Store
	analyzer *pipeline.Analyzer
}

func openServices(cfg config.Config) (*services, error) {
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	models, err := modelstore.Open(cfg.ModelsDir())
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("opening model store: %w", err)
	}
	analyzer := pipeline.NewAnalyzer(store, models, pipeline.Options{
		Seed:     uint64(cfg.Training.Seed),
		Trees:    cfg.Training.Trees,
		MaxDepth: cfg.Training.MaxDepth,
		Timeout:  cfg.TrainingTimeout(),
	})
	return &services{store: store, analyzer: analyzer}, nil
}

func (s *services) Close() {
	if err := s.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
	}
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "moodtrack.pid")
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
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	printVersion()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("moodtrack is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("moodtrack is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := openServices(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	if meta, ok, err := svc.analyzer.Metadata(); err != nil {
		slog.Warn("reading model metadata", "error", err)
	} else if ok && meta.UpdatedAt != nil {
		slog.Info("models loaded", "set_id", meta.SetID, "k", meta.K, "updated_at", meta.UpdatedAt)
	} else {
		slog.Info("no trained models yet, predictions use the recent-mood baseline")
	}
	if cfg.Server.APIToken == "" {
		slog.Warn("server.api_token not set, mutating routes are unauthenticated")
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr: addr,
		Handler: api.NewRouter(api.Deps{
			Store:    svc.store,
			Analyzer: svc.analyzer,
			Token:    cfg.Server.APIToken,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "moodtrack listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	// stdout carries the protocol; logs stay on stderr.
	setupLogging(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := openServices(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	mcpSrv := api.NewMCPServer(api.MCPDeps{Store: svc.store, Analyzer: svc.analyzer})
	slog.Info("MCP server started (stdio transport)")
	if err := server.NewStdioServer(mcpSrv).Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("moodtrack is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop moodtrack (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to moodtrack (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	models, err := modelstore.Open(cfg.ModelsDir())
	if err != nil {
		printStatus("Models", "unavailable: %v", err)
	} else {
		meta, ok, err := models.LoadMeta()
		switch {
		case err != nil:
			printStatus("Models", "unreadable: %v", err)
		case !ok:
			printStatus("Models", "never trained")
		case meta.UpdatedAt == nil:
			printStatus("Models", "%s", meta.Message)
		default:
			printStatus("Models", "k=%d, trained %s", meta.K, meta.UpdatedAt.Format(time.RFC3339))
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	printStatus("Models dir", "%s", cfg.ModelsDir())
	return nil
}
