// Package cli implements the cage command-line surface: a single cobra
// tree over the lifecycle coordinator, keygen service, and passphrase
// broker, generalized from the teacher's own root/encrypt/decrypt
// command set to cage's lock/unlock/status/rotate/verify/batch/keygen/
// proxy command set.
package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/padlokk/cage/internal/audit"
	"github.com/padlokk/cage/internal/cage"
	"github.com/padlokk/cage/internal/config"
)

// Version is set by main.go.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "cage",
	Short: "Automate age file encryption",
	Long: `cage drives the age encryption tool through typed lock/unlock/rotate/
verify/status/batch operations, automating its passphrase prompts over a
pseudo-terminal so scripts never need to handle age interactively.`,
	Version: Version,
}

var (
	flagConfigPath string
	flagAuditLog   string
	flagVerbose    bool
)

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "path to cage.toml (overrides CAGE_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&flagAuditLog, "audit-log", "", "path to append audit events to (default: stderr only)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose output")
}

// Execute runs the CLI, returning the process exit code.
func Execute(version string) int {
	Version = version
	rootCmd.Version = version

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\ncancelling operation...")
		os.Exit(1)
	}()

	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

// loadConfig resolves cage.toml per the --config flag / CAGE_CONFIG env
// var / XDG search path, falling back to config.Default().
func loadConfig() (config.AgeConfig, error) {
	if flagConfigPath != "" {
		return config.LoadFromPath(flagConfigPath)
	}
	return config.LoadDefault()
}

// newManager resolves the config (per --config / CAGE_CONFIG / the XDG
// search path) and builds a lifecycle coordinator and an audit logger
// targeting --audit-log (or the config's AuditLogPath, or stderr when
// neither is set). The resolved config is returned alongside so callers
// can also build an identity through it.
func newManager() (*cage.Manager, config.AgeConfig, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, config.AgeConfig{}, err
	}
	cfg.AuditLogPath = resolveAuditPath(cfg.AuditLogPath)

	format := audit.FormatText
	if cfg.AuditFormat == "json" {
		format = audit.FormatJSON
	}
	logger, err := audit.New("cage", format, cfg.AuditLogPath)
	if err != nil {
		return nil, config.AgeConfig{}, err
	}
	m, err := cage.New(cfg, logger)
	if err != nil {
		return nil, config.AgeConfig{}, err
	}
	return m, cfg, nil
}

func resolveAuditPath(fromConfig string) string {
	if flagAuditLog != "" {
		return flagAuditLog
	}
	return fromConfig
}
