package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"reign-dash/internal/config"
	"reign-dash/internal/protocol"
	"reign-dash/internal/session"
	"reign-dash/internal/state"
	"reign-dash/internal/transport"
	"reign-dash/internal/web"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags "-X main.version=v1.0.0"
var version = "dev"

var appState *state.AppState

func main() {
	if err := rootCmd().Execute(); err != nil {
		// Can't rely on logInfo here: slog may not be configured yet
		fmt.Fprintf(os.Stderr, "reign-dash: %v\n", err)
		os.Exit(1)
	}
}

// flags holds command line overrides. Empty values leave the config alone.
type flags struct {
	configPath string
	backend    string
	webPort    string
	logLevel   string
	fragment   string
	classifier string
	stateFile  string
}

func rootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:           "reign-dash",
		Short:         "Live operations dashboard for a reign cluster backend",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			configureLogging(cfg.LogLevel)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	cmd.PersistentFlags().StringVar(&f.configPath, "config", "", "YAML config file (default $"+config.PathEnv+")")
	cmd.PersistentFlags().StringVar(&f.backend, "backend", "", "Backend websocket URI, e.g. ws://localhost:33033/ws")
	cmd.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "Log level: DEBUG, INFO, WARN, ERROR")
	cmd.PersistentFlags().StringVar(&f.classifier, "classifier", "", "Inbound classifier: envelope or substring")
	cmd.Flags().StringVar(&f.webPort, "web-port", "", "Port of the dashboard web UI")
	cmd.Flags().StringVar(&f.fragment, "fragment", "", "Deep link to open at startup, e.g. prod/api")
	cmd.Flags().StringVar(&f.stateFile, "state-file", "", "File the current deep link is persisted to")

	cmd.AddCommand(sendCmd(&f))
	return cmd
}

// loadConfig reads config file and environment, then applies flags.
func loadConfig(f flags) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&cfg.BackendURI, f.backend)
	override(&cfg.WebPort, f.webPort)
	override(&cfg.LogLevel, f.logLevel)
	override(&cfg.Fragment, f.fragment)
	override(&cfg.Classifier, f.classifier)
	override(&cfg.StateFile, f.stateFile)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// configureLogging installs a JSON slog handler at the configured level.
func configureLogging(level string) {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(level),
	})))
}

// run serves the dashboard until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config) error {
	logInfo("Starting reign-dash", "version", version)
	logInfo("Backend configured", "uri", cfg.BackendURI, "classifier", cfg.Classifier)

	appState = state.New(500, cfg.StateFile)
	if cfg.StateFile != "" {
		logDebug("State file configured", "path", cfg.StateFile)
	}
	if cfg.Fragment != "" {
		appState.SetFragment(cfg.Fragment)
	}
	if f := appState.Fragment(); f != "" {
		logInfo("Deep link will be restored", "fragment", f)
	}

	sess := session.New(appState, session.Options{
		URI:        cfg.BackendURI,
		Classifier: protocol.NewClassifier(cfg.Classifier),
		Transport: transport.Options{
			HandshakeTimeout: cfg.HandshakeTimeout,
			WriteTimeout:     cfg.WriteTimeout,
		},
	})

	webServer := web.New(appState, sess, web.Options{
		Port:          cfg.WebPort,
		Version:       version,
		AdminUsername: cfg.AdminUsername,
		AdminPassword: cfg.AdminPassword,
	})
	webServer.Start()

	err := sess.Run(ctx)

	logInfo("Shutting down gracefully", "uri", appState.BackendURI())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := webServer.Shutdown(shutdownCtx); serr != nil {
		logError("Web server shutdown failed", "error", serr)
	}
	return err
}

func logDebug(msg string, attrs ...any) {
	allAttrs := append([]any{"component", "Main"}, attrs...)
	slog.Debug(msg, allAttrs...)

	// Only add to web UI if this level is enabled
	if appState != nil && slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		appState.AddLog("DEBUG", "Main", formatLogMessage("DEBUG", msg, allAttrs...))
	}
}

func logInfo(msg string, attrs ...any) {
	allAttrs := append([]any{"component", "Main"}, attrs...)
	slog.Info(msg, allAttrs...)

	if appState != nil && slog.Default().Enabled(context.Background(), slog.LevelInfo) {
		appState.AddLog("INFO", "Main", formatLogMessage("INFO", msg, allAttrs...))
	}
}

func logError(msg string, attrs ...any) {
	allAttrs := append([]any{"component", "Main"}, attrs...)
	slog.Error(msg, allAttrs...)

	if appState != nil && slog.Default().Enabled(context.Background(), slog.LevelError) {
		appState.AddLog("ERROR", "Main", formatLogMessage("ERROR", msg, allAttrs...))
	}
}

// formatLogMessage formats a message with key-value pairs as JSON for display
func formatLogMessage(level, msg string, attrs ...any) string {
	type logEntry struct {
		Time  string `json:"time"`
		Level string `json:"level"`
		Msg   string `json:"msg"`
	}

	baseJSON, _ := json.Marshal(logEntry{
		Time:  time.Now().UTC().Format(time.RFC3339Nano),
		Level: level,
		Msg:   msg,
	})
	// Drop the closing brace so attributes can follow in order
	parts := []string{string(baseJSON[:len(baseJSON)-1])}

	for i := 0; i+1 < len(attrs); i += 2 {
		key := fmt.Sprint(attrs[i])
		val := attrs[i+1]
		if err, ok := val.(error); ok {
			val = err.Error()
		}
		valJSON, _ := json.Marshal(val)
		parts = append(parts, fmt.Sprintf(`"%s":%s`, key, string(valJSON)))
	}

	return strings.Join(parts, ",") + "}"
}

// parseLogLevel converts a string log level to slog.Level
func parseLogLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
