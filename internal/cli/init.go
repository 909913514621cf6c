package cli

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/padlokk/cage/internal/ageerr"
	"github.com/padlokk/cage/internal/keygen"
)

func init() {
	initCmd.SilenceErrors = true
	initCmd.SilenceUsage = true
	installCmd.SilenceErrors = true
	installCmd.SilenceUsage = true
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(installCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default cage.toml in the current directory",
	RunE:  runInit,
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Verify age and age-keygen are on PATH",
	RunE:  runInstall,
}

const defaultConfigTOML = `[backup]
cleanup_on_success = true
directory = ".cage-backups"
retention = "keep_last:3"

[streaming]
strategy = "auto"
`

func runInit(cmd *cobra.Command, args []string) error {
	const path = "cage.toml"
	if _, err := os.Stat(path); err == nil {
		return ageerr.ConfigurationError("source_path", path, "cage.toml already exists; remove it first")
	}
	if err := os.WriteFile(path, []byte(defaultConfigTOML), 0o644); err != nil {
		return ageerr.FileError("write", path, err)
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}

func runInstall(cmd *cobra.Command, args []string) error {
	if _, err := exec.LookPath("age"); err != nil {
		return ageerr.DependencyMissing("age", "install age (https://github.com/FiloSottile/age)")
	}
	if err := keygen.CheckAgeKeygenAvailable(); err != nil {
		return err
	}
	fmt.Println("age and age-keygen are available on PATH")
	return nil
}
