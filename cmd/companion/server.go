package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
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

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/companion/internal/api"
	"github.com/kalambet/companion/internal/chat"
	"github.com/kalambet/companion/internal/config"
	"github.com/kalambet/companion/internal/events"
	"github.com/kalambet/companion/internal/llm"
	"github.com/kalambet/companion/internal/notify"
	"github.com/kalambet/companion/internal/prefs"
	"github.com/kalambet/companion/internal/reminder"
	"github.com/kalambet/companion/internal/storage"
	"github.com/kalambet/companion/internal/topics"
	"github.com/kalambet/companion/internal/weather"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the companion daemon (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running companion daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show companion system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "companion.pid")
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

func tokenFilePath(dataDir string) string {
	return filepath.Join(dataDir, "token")
}

// resolveToken returns the API bearer token: the configured one if set,
// otherwise a token persisted in the data dir, generated on first start.
func resolveToken(cfg config.Config) (string, error) {
	if cfg.Server.AuthToken != "" {
		return cfg.Server.AuthToken, nil
	}

	path := tokenFilePath(cfg.Storage.DataDir)
	if data, err := os.ReadFile(path); err == nil {
		token := strings.TrimSpace(string(data))
		if token != "" {
			return token, nil
		}
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	token := hex.EncodeToString(buf)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating data dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(token), 0o600); err != nil {
		return "", fmt.Errorf("writing token file: %w", err)
	}
	return token, nil
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "companion version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	token, err := resolveToken(cfg)
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}

	// Write PID file. Check if the daemon is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("companion is already running (PID %d)", pid)
			return fmt.Errorf("daemon already running (PID %d)", pid)
		}
		printWarning("companion is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("daemon already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	bus := events.New()
	bus.OnReminderDue(func(n notify.Notification) {
		slog.Info("reminder due", "id", n.ActionRef, "title", n.Message)
	})

	sessions := chat.NewSessions(store)
	prefsMgr := prefs.NewManager(store)
	aggregator := topics.NewAggregator(store)
	notifications := notify.NewStore(store)
	reminders := reminder.NewManager(store)
	weatherClient := weather.NewClientWithBaseURL(cfg.Weather.BaseURL)

	if cfg.LLM.APIKey == "" {
		slog.Warn("no LLM API key configured, chat replies will degrade to the fallback message")
	}
	completer := llm.NewClientWithBaseURL(cfg.LLM.APIKey, cfg.LLM.BaseURL).WithModel(cfg.LLM.Model)

	chatSvc := chat.NewService(sessions, prefsMgr, aggregator, completer, bus)

	appHandler := api.NewAppHandler(api.AppDeps{
		Store:         store,
		Chat:          chatSvc,
		Sessions:      sessions,
		Prefs:         prefsMgr,
		Reminders:     reminders,
		Notifications: notifications,
		Topics:        aggregator,
		Weather:       weatherClient,
		Token:         token,
	})

	topRouter := chi.NewRouter()
	topRouter.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok", "version": version})
	})
	topRouter.Mount("/", appHandler)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: topRouter,
	}

	// Start the reminder poller.
	poller := reminder.NewPoller(store, notifications, bus, cfg.PollInterval())
	go poller.Run(ctx)

	// Build and start MCP server (stdio transport in a goroutine).
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Chat:          chatSvc,
		Prefs:         prefsMgr,
		Reminders:     reminders,
		Notifications: notifications,
		Topics:        aggregator,
		Weather:       weatherClient,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "companion listening on %s\n", addr)
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

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("companion is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop companion (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to companion (PID %d)", pid)
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

	running := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Daemon", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			running = true
			printStatus("Daemon", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Daemon", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Model", "%s", cfg.LLM.Model)
	if cfg.LLM.APIKey == "" && os.Getenv("COMPANION_LLM_API_KEY") == "" {
		printStatus("LLM key", "not set (chat degrades to fallback replies)")
	} else {
		printStatus("LLM key", "set")
	}

	if running {
		if c, err := newAPIClient(); err == nil {
			if resp, err := c.get(context.Background(), "/reminders"); err == nil {
				var reminders []json.RawMessage
				if decodeJSON(resp, &reminders) == nil {
					printStatus("Reminders", "%d", len(reminders))
				}
			}
			if resp, err := c.get(context.Background(), "/notifications/unread-count"); err == nil {
				var count map[string]int
				if decodeJSON(resp, &count) == nil {
					printStatus("Unread notifications", "%d", count["unread"])
				}
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
