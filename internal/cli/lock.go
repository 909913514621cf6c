package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/padlokk/cage/internal/cage"
	"github.com/padlokk/cage/internal/config"
)

func init() {
	lockCmd.SilenceErrors = true
	lockCmd.SilenceUsage = true
}

var lockCmd = &cobra.Command{
	Use:   "lock <path>",
	Short: "Encrypt a file or directory with age",
	Long: `Encrypt path (a file, or a directory when --recursive is set) with age.

Without --recipient, lock obtains a passphrase from CAGE_PASSPHRASE,
--stdin-passphrase, or an interactive prompt, and drives age through a
pseudo-terminal. With one or more --recipient flags it encrypts to public
keys instead and never spawns a terminal.

Examples:
  cage lock secret.txt
  cage lock --recursive --backup ./project
  cage lock --recipient age1examplekey... data.db`,
	Args: cobra.ExactArgs(1),
	RunE: runLock,
}

var (
	lockRecursive   bool
	lockPattern     string
	lockBackup      bool
	lockBackupDir   string
	lockInPlace     bool
	lockDangerMode  bool
	lockIAmSure     bool
	lockFormat      string
	lockQuiet       bool
	lockRecipients  []string
	lockIdentFlags  identityFlags
)

func init() {
	rootCmd.AddCommand(lockCmd)

	lockCmd.Flags().BoolVarP(&lockRecursive, "recursive", "r", false, "recurse into directories")
	lockCmd.Flags().StringVar(&lockPattern, "pattern", "", "only lock files whose name contains this substring")
	lockCmd.Flags().BoolVar(&lockBackup, "backup", false, "back up each file before encrypting it")
	lockCmd.Flags().StringVar(&lockBackupDir, "backup-dir", "", "override the configured backup directory")
	lockCmd.Flags().BoolVar(&lockInPlace, "in-place", false, "encrypt the file in place instead of writing a sibling")
	lockCmd.Flags().BoolVar(&lockDangerMode, "danger-mode", false, "with --in-place, skip the recovery file (requires DANGER_MODE=1)")
	lockCmd.Flags().BoolVar(&lockIAmSure, "i-am-sure", false, "with --danger-mode, skip the typed confirmation prompt")
	lockCmd.Flags().StringVar(&lockFormat, "format", "binary", "output format: binary or ascii")
	lockCmd.Flags().BoolVarP(&lockQuiet, "quiet", "q", false, "suppress status output")
	lockCmd.Flags().StringArrayVar(&lockRecipients, "recipient", nil, "age public recipient (repeatable); skips the passphrase broker")
	lockIdentFlags.register(lockCmd)
}

func runLock(cmd *cobra.Command, args []string) error {
	path, err := requireArg(args, "lock")
	if err != nil {
		return err
	}

	m, cfg, err := newManager()
	if err != nil {
		return err
	}
	defer m.Close()

	rep := newReporter(lockQuiet)

	format, err := config.ParseOutputFormat(lockFormat)
	if err != nil {
		return err
	}

	req := cage.LockRequest{
		Input:      path,
		Recipients: lockRecipients,
		Common: cage.CommonOptions{
			Recursive:        lockRecursive,
			PatternFilter:    lockPattern,
			BackupBeforeLock: lockBackup,
			BackupDirOverride: lockBackupDir,
			InPlace: cage.InPlaceOptions{
				Enabled:    lockInPlace,
				DangerMode: lockDangerMode,
				IAmSure:    lockIAmSure,
			},
			Format:  format,
			Verbose: flagVerbose,
		},
	}

	if len(lockRecipients) == 0 {
		id, err := lockIdentFlags.resolve(cfg, m.Logger(), "Passphrase", true)
		if err != nil {
			return err
		}
		req.Identity = id
		defer id.Close()
	}

	rep.status("locking %s", path)
	start := time.Now()
	result, err := m.Lock(req)
	if err != nil {
		rep.errorf("%v", err)
		return err
	}
	if !result.Success() {
		rep.errorf("%d file(s) failed: %v", len(result.FailedFiles), result.FirstError)
		return result.FirstError
	}
	rep.success("locked %d file(s), %s", len(result.ProcessedFiles), rep.throughput(result.ProcessedFiles, start))
	return nil
}
