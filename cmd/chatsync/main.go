// ABOUTME: Entry point for the chatsync engine daemon
// ABOUTME: Logs in, runs the entry sync, then follows the live push channel

package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/chatsync/config"
	"github.com/2389/chatsync/dispatch"
	"github.com/2389/chatsync/entry"
	"github.com/2389/chatsync/ephemeral"
	"github.com/2389/chatsync/session"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
       _           _
   ___| |__   __ _| |_ ___ _   _ _ __   ___
  / __| '_ \ / _' | __/ __| | | | '_ \ / __|
 | (__| | | | (_| | |_\__ \ |_| | | | | (__
  \___|_| |_|\__,_|\__|___/\__, |_| |_|\___|
                           |___/
`

const (
	defaultGuardTTL     = time.Minute
	defaultGuardMaxSize = 500
)

// getConfigPath returns the path to the engine config file.
// Priority: CHATSYNC_CONFIG env var > XDG_CONFIG_HOME/chatsync/config.yaml > ~/.config/chatsync/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("CHATSYNC_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "chatsync", "config.yaml")
}

// getDataPath returns the default data directory for server databases.
// Priority: XDG_DATA_HOME/chatsync > ~/.local/share/chatsync
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "chatsync")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: chatsync <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  run --server URL --user LOGIN  Sync a server and follow live events")
		fmt.Println("  init                           Create a starter config file")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "run":
		err = runSync(ctx)
	case "init":
		err = runInit()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runSync(ctx context.Context) error {
	serverURL, loginID, err := parseRunArgs(os.Args[2:])
	if err != nil {
		return err
	}

	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:  %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Data:    %s\n", cfg.Storage.DataDir)
	green.Print("    ▶ ")
	fmt.Printf("Server:  %s\n", serverURL)
	fmt.Println()

	password := os.Getenv("CHATSYNC_PASSWORD")
	if password == "" {
		fmt.Printf("Password for %s: ", loginID)
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
		password = strings.TrimSpace(line)
	}

	guardTTL := cfg.Guard.TTL
	if guardTTL == 0 {
		guardTTL = defaultGuardTTL
	}
	guardMax := cfg.Guard.MaxSize
	if guardMax == 0 {
		guardMax = defaultGuardMaxSize
	}
	guard := ephemeral.NewGuard(guardTTL, guardMax)
	defer guard.Close()

	registry := session.NewRegistry(cfg.Storage.DataDir,
		session.WithRequestTimeout(cfg.Network.RequestTimeout))
	defer registry.Close()
	registry.OnAuthExpired = func(serverURL string) {
		logger.Warn("session expired, log in again", "server", serverURL)
	}

	sess, err := registry.Login(ctx, serverURL, loginID, password)
	if err != nil {
		return err
	}
	logger.Info("session established", "server", sess.ServerURL, "user", sess.UserID)

	orchestrator := entry.NewOrchestrator(sess.Store, sess.Client)
	res, err := orchestrator.Run(ctx, 0)
	if err != nil {
		return fmt.Errorf("initial sync: %w", err)
	}
	logger.Info("initial sync complete",
		"team", res.InitialTeamID,
		"channel", res.InitialChannelID,
		"teams", len(res.Teams),
	)
	go orchestrator.RunDeferred(ctx, res)

	dispatcher := dispatch.NewDispatcher(sess.ServerURL, sess.Store, sess.Client, guard,
		dispatch.WithStatusDelay(cfg.Network.StatusDelay))
	conn := dispatch.Connect(sess, dispatcher, cfg.Network.PushSettings())
	defer conn.Close()

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// parseRunArgs reads --server and --user in both "--flag value" and
// "--flag=value" forms.
func parseRunArgs(args []string) (serverURL, loginID string, err error) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		value := ""
		switch {
		case strings.HasPrefix(arg, "--server="):
			serverURL = strings.TrimPrefix(arg, "--server=")
			continue
		case strings.HasPrefix(arg, "--user="):
			loginID = strings.TrimPrefix(arg, "--user=")
			continue
		case arg == "--server" || arg == "--user":
			if i+1 >= len(args) {
				return "", "", fmt.Errorf("%s requires a value", arg)
			}
			i++
			value = args[i]
		default:
			return "", "", fmt.Errorf("unknown argument: %s", arg)
		}
		if arg == "--server" {
			serverURL = value
		} else {
			loginID = value
		}
	}
	if serverURL == "" || loginID == "" {
		return "", "", fmt.Errorf("both --server and --user are required")
	}
	return serverURL, loginID, nil
}

// runInit writes a starter config file if none exists.
func runInit() error {
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists at %s", configPath)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	starter := fmt.Sprintf(`storage:
  data_dir: %s

network:
  request_timeout: 30s
  ping_interval: 30s
  backoff_min: 1s
  backoff_max: 30s
  status_delay: 200ms

guard:
  ttl: 1m
  max_size: 500

logging:
  level: info
  format: text
`, getDataPath())

	if err := os.WriteFile(configPath, []byte(starter), 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("Created %s\n", configPath)
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(&colorHandler{level: level})
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{level: h.level, attrs: newAttrs, groups: h.groups}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{level: h.level, attrs: h.attrs, groups: newGroups}
}
