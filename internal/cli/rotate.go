package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/padlokk/cage/internal/cage"
)

func init() {
	rotateCmd.SilenceErrors = true
	rotateCmd.SilenceUsage = true
}

var rotateCmd = &cobra.Command{
	Use:   "rotate <path>",
	Short: "Re-encrypt a file or directory under a new identity",
	Long: `Decrypt path under the old identity and re-encrypt it under the new
one, replacing it atomically. If re-encryption fails the original file is
left untouched.`,
	Args: cobra.ExactArgs(1),
	RunE: runRotate,
}

var (
	rotateRecursive bool
	rotatePattern   string
	rotateBackup    bool
	rotateQuiet     bool
	rotateOldFlags  identityFlags
	rotateNewFlags  identityFlags
)

func init() {
	rootCmd.AddCommand(rotateCmd)

	rotateCmd.Flags().BoolVarP(&rotateRecursive, "recursive", "r", false, "recurse into directories")
	rotateCmd.Flags().StringVar(&rotatePattern, "pattern", "", "only rotate files whose name contains this substring")
	rotateCmd.Flags().BoolVar(&rotateBackup, "backup", false, "back up each file before rotating it")
	rotateCmd.Flags().BoolVarP(&rotateQuiet, "quiet", "q", false, "suppress status output")

	rotateOldFlags.identityFile = ""
	rotateCmd.Flags().StringVar(&rotateOldFlags.identityFile, "old-identity-file", "", "identity file for the current encryption")
	rotateCmd.Flags().StringVar(&rotateOldFlags.sshIdentity, "old-ssh-identity", "", "ssh identity for the current encryption")
	rotateCmd.Flags().BoolVar(&rotateOldFlags.stdinPassword, "old-stdin-passphrase", false, "read the current passphrase from stdin")

	rotateCmd.Flags().StringVar(&rotateNewFlags.identityFile, "new-identity-file", "", "identity file for the new encryption")
	rotateCmd.Flags().StringVar(&rotateNewFlags.sshIdentity, "new-ssh-identity", "", "ssh identity for the new encryption")
	rotateCmd.Flags().BoolVar(&rotateNewFlags.stdinPassword, "new-stdin-passphrase", false, "read the new passphrase from stdin")
}

func runRotate(cmd *cobra.Command, args []string) error {
	path, err := requireArg(args, "rotate")
	if err != nil {
		return err
	}

	m, cfg, err := newManager()
	if err != nil {
		return err
	}
	defer m.Close()

	rep := newReporter(rotateQuiet)

	oldID, err := rotateOldFlags.resolve(cfg, m.Logger(), "Current passphrase", false)
	if err != nil {
		return err
	}
	defer oldID.Close()

	newID, err := rotateNewFlags.resolve(cfg, m.Logger(), "New passphrase", true)
	if err != nil {
		return err
	}
	defer newID.Close()

	req := cage.RotateRequest{
		Input:       path,
		OldIdentity: oldID,
		NewIdentity: newID,
		Common: cage.CommonOptions{
			Recursive:        rotateRecursive,
			PatternFilter:    rotatePattern,
			BackupBeforeLock: rotateBackup,
			Verbose:          flagVerbose,
		},
	}

	rep.status("rotating %s", path)
	start := time.Now()
	result, err := m.Rotate(req)
	if err != nil {
		rep.errorf("%v", err)
		return err
	}
	if !result.Success() {
		rep.errorf("%d file(s) failed: %v", len(result.FailedFiles), result.FirstError)
		return result.FirstError
	}
	rep.success("rotated %d file(s), %s", len(result.ProcessedFiles), rep.throughput(result.ProcessedFiles, start))
	return nil
}
