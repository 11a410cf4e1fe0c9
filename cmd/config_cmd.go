package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/pburn/internal/config"
	"github.com/theirongolddev/pburn/internal/credential"
)

var (
	flagResetYes   bool
	flagLegacyPath string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	RunE:  runConfig,
}

var setTokenCmd = &cobra.Command{
	Use:   "set-token [token]",
	Short: "Store the API token in the OS keyring",
	Long: "Store the PackyCode API token. The OS keyring is used when available;\n" +
		"otherwise the token is written to config.toml (mode 0600).",
	Args: cobra.MaximumNArgs(1),
	RunE: runSetToken,
}

var clearTokenCmd = &cobra.Command{
	Use:   "clear-token",
	Short: "Remove the stored API token",
	RunE:  runClearToken,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore default configuration",
	RunE:  runReset,
}

var importLegacyCmd = &cobra.Command{
	Use:   "import-legacy",
	Short: "Import settings from a ~/.packy-usage/config.yaml file",
	RunE:  runImportLegacy,
}

func init() {
	resetCmd.Flags().BoolVarP(&flagResetYes, "yes", "y", false, "Do not ask for confirmation")
	importLegacyCmd.Flags().StringVar(&flagLegacyPath, "path", config.LegacyPath(), "Legacy YAML config to read")

	configCmd.AddCommand(setTokenCmd, clearTokenCmd, resetCmd, importLegacyCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfig(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fmt.Printf("  Config file: %s\n", config.ConfigPath())
	if config.Exists() {
		fmt.Println("  Status: loaded")
	} else {
		fmt.Println("  Status: using defaults (no config file)")
	}
	fmt.Println()

	fmt.Println("  [API]")
	fmt.Printf("    Endpoint: %s\n", cfg.API.Endpoint)
	fmt.Printf("    Timeout:  %s\n", cfg.API.Timeout)
	if cfg.API.Proxy != "" {
		fmt.Printf("    Proxy:    %s\n", cfg.API.Proxy)
	}
	creds := credential.Open(cfg.API.Token)
	if tok, err := creds.Resolve(); err == nil {
		fmt.Printf("    Token:    %s (%s, from %s)\n", tok.Masked(), tok.Kind, tok.Source)
		if !tok.ExpiresAt.IsZero() {
			fmt.Printf("    Expires:  %s\n", tok.ExpiresAt.Local().Format(time.DateTime))
		}
	} else {
		fmt.Println("    Token:    not configured")
	}
	fmt.Println()

	fmt.Println("  [Polling]")
	fmt.Printf("    Interval:    %s\n", cfg.Polling.Interval)
	fmt.Printf("    Retries:     %d (backoff %s, max %s)\n",
		cfg.Polling.RetryCount, cfg.Polling.RetryBackoff, cfg.Polling.RetryBackoffMax)
	fmt.Println()

	fmt.Println("  [Alerts]")
	fmt.Printf("    Warning:  %.0f%%\n", cfg.Alerts.Warning)
	fmt.Printf("    Critical: %.0f%%\n", cfg.Alerts.Critical)
	if o := cfg.Alerts.Daily; o != nil {
		fmt.Printf("    Daily:    %.0f%% / %.0f%%\n", o.Warning, o.Critical)
	}
	if o := cfg.Alerts.Monthly; o != nil {
		fmt.Printf("    Monthly:  %.0f%% / %.0f%%\n", o.Warning, o.Critical)
	}
	fmt.Println()

	fmt.Println("  [Notification]")
	fmt.Printf("    Enabled:  %s\n", onOff(cfg.Notification.Enabled))
	fmt.Printf("    Cooldown: %s\n", cfg.Notification.Cooldown)
	if q, err := cfg.Notification.QuietHours(); err == nil {
		fmt.Printf("    Quiet:    %s\n", describeQuiet(q))
	} else {
		fmt.Printf("    Quiet:    invalid (%v)\n", err)
	}
	fmt.Printf("    Desktop:  %s\n", onOff(cfg.Notification.Desktop))
	if cfg.Notification.WebhookURL != "" {
		fmt.Printf("    Webhook:  %s\n", cfg.Notification.WebhookURL)
	}
	fmt.Println()

	fmt.Println("  [Daemon]")
	fmt.Printf("    Address: %s\n", cfg.Daemon.Addr)
	fmt.Println()

	fmt.Println("  [Appearance]")
	fmt.Printf("    Theme: %s\n", cfg.Appearance.Theme)
	fmt.Println()

	fmt.Println("  Run `pburn setup` to reconfigure.")
	return nil
}

func runSetToken(_ *cobra.Command, args []string) error {
	var token string
	if len(args) == 1 {
		token = args[0]
	} else {
		err := huh.NewInput().
			Title("PackyCode API token").
			Description("An sk- key or a browser session token").
			EchoMode(huh.EchoModePassword).
			Validate(func(s string) error { return credential.Validate(strings.TrimSpace(s), time.Now()) }).
			Value(&token).
			Run()
		if err != nil {
			return err
		}
	}
	token = strings.TrimSpace(token)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	creds := credential.Open(cfg.API.Token)
	err = creds.Set(token)
	switch {
	case err == nil:
		fmt.Println("  Token stored in the OS keyring.")
		return nil
	case !errors.Is(err, credential.ErrNoKeyring):
		return err
	}

	cfg.API.Token = token
	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Println("  No OS keyring available.")
	fmt.Printf("  Token saved in plain text to %s (mode 0600).\n", config.ConfigPath())
	return nil
}

func runClearToken(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := credential.Open(cfg.API.Token).Clear(); err != nil {
		return err
	}
	if cfg.API.Token != "" {
		cfg.API.Token = ""
		if err := config.Save(cfg); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}
	}
	fmt.Println("  Stored token removed.")
	return nil
}

func runReset(_ *cobra.Command, _ []string) error {
	if !flagResetYes {
		confirm := false
		err := huh.NewConfirm().
			Title(fmt.Sprintf("Overwrite %s with defaults?", config.ConfigPath())).
			Description("A token kept in the config file is dropped; the keyring is untouched.").
			Value(&confirm).
			Run()
		if err != nil {
			return err
		}
		if !confirm {
			fmt.Println("  Nothing changed.")
			return nil
		}
	}

	if err := config.Save(config.DefaultConfig()); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Printf("  Defaults written to %s\n", config.ConfigPath())
	return nil
}

func runImportLegacy(_ *cobra.Command, _ []string) error {
	base, err := config.Load()
	if err != nil {
		return err
	}
	cfg, err := config.ImportLegacy(flagLegacyPath, base)
	if err != nil {
		return err
	}
	if _, err := cfg.Settings(); err != nil {
		return fmt.Errorf("imported settings are invalid: %w", err)
	}
	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Printf("  Imported %s into %s\n", flagLegacyPath, config.ConfigPath())
	return nil
}
