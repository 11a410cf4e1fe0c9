// Package cmd implements the pburn CLI commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/muesli/termenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/theirongolddev/pburn/internal/config"
	"github.com/theirongolddev/pburn/internal/model"
	"github.com/theirongolddev/pburn/internal/tui/theme"
)

var (
	flagConfigDir string
	flagDebug     bool
	flagNoColor   bool
	flagEnvFile   string
)

var rootCmd = &cobra.Command{
	Use:   "pburn",
	Short: "PackyCode budget monitor",
	Long: "Watch your PackyCode daily and monthly budgets: status reports, a live view,\n" +
		"desktop and webhook alerts, and a background daemon with an HTTP API.",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	RunE:              runStatus,
}

// exitError carries a specific process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// Execute is the main entry point called from main.go.
// The command context is canceled on SIGINT or SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(os.Stderr, "  Error: %v\n", ee.err)
		}
		os.Exit(ee.code)
	}

	fmt.Fprintf(os.Stderr, "  Error: %v\n", err)
	if hint := errorHint(err); hint != "" {
		fmt.Fprintf(os.Stderr, "  %s\n", hint)
	}
	os.Exit(1)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigDir, "config-dir", "", "Config directory (default $XDG_CONFIG_HOME/pburn)")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Verbose logging to stderr")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", ".env", "Load environment variables from this file if it exists")

	registerStatusFlags(rootCmd)
}

// setup runs before every command: loads .env, applies global flags and
// attaches the logger to the command context.
func setup(cmd *cobra.Command, _ []string) error {
	if flagEnvFile != "" {
		if err := godotenv.Load(flagEnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", flagEnvFile, err)
		}
	}
	if flagConfigDir != "" {
		config.SetDir(flagConfigDir)
	}
	if flagNoColor || os.Getenv("NO_COLOR") != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	level := "warn"
	if cfg, err := config.Load(); err == nil {
		theme.SetActive(cfg.Appearance.Theme)
		level = cfg.Logging.Level
	}
	if flagDebug {
		level = "debug"
	}

	logger := newLogger(os.Stderr, level)
	cmd.SetContext(logger.WithContext(cmd.Context()))
	return nil
}

// newLogger writes human-readable output to a terminal and JSON otherwise.
func newLogger(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	out := w
	if f, ok := w.(*os.File); ok && isTerminal(f) {
		out = zerolog.ConsoleWriter{Out: f, TimeFormat: time.TimeOnly, NoColor: flagNoColor}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd())) //nolint:gosec // fd fits in int
}

// loadConfig loads the config file and validates the engine settings.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	if _, err := cfg.Settings(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func errorHint(err error) string {
	var cfgErr *model.ConfigError
	switch {
	case errors.As(err, &cfgErr):
		return fmt.Sprintf("Fix %s in %s or run `pburn config reset`.", cfgErr.Field, config.ConfigPath())
	case errors.Is(err, model.ErrAuth):
		return "Run `pburn config set-token` to store a valid API token."
	case errors.Is(err, model.ErrNetwork):
		return "Check your connection or proxy; `pburn diagnose` runs the full checklist."
	case errors.Is(err, model.ErrParse):
		return "The budget endpoint returned data pburn cannot read; check [api] endpoint."
	}
	return ""
}
