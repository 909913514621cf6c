package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/padlokk/cage/internal/cage"
)

func init() {
	unlockCmd.SilenceErrors = true
	unlockCmd.SilenceUsage = true
}

var unlockCmd = &cobra.Command{
	Use:   "unlock <path>",
	Short: "Decrypt a file or directory encrypted with age",
	Long: `Decrypt path (a file, or a directory when --recursive is set).

--selective verifies each file decrypts successfully before removing its
encrypted form; --preserve keeps the encrypted file alongside the
decrypted output.

Examples:
  cage unlock secret.txt.age
  cage unlock --recursive --selective ./project`,
	Args: cobra.ExactArgs(1),
	RunE: runUnlock,
}

var (
	unlockRecursive bool
	unlockPattern   string
	unlockSelective bool
	unlockPreserve  bool
	unlockQuiet     bool
	unlockIdentFlags identityFlags
)

func init() {
	rootCmd.AddCommand(unlockCmd)

	unlockCmd.Flags().BoolVarP(&unlockRecursive, "recursive", "r", false, "recurse into directories")
	unlockCmd.Flags().StringVar(&unlockPattern, "pattern", "", "only unlock files whose name contains this substring")
	unlockCmd.Flags().BoolVar(&unlockSelective, "selective", false, "verify before removing each encrypted file")
	unlockCmd.Flags().BoolVar(&unlockPreserve, "preserve", false, "keep the encrypted file after decrypting")
	unlockCmd.Flags().BoolVarP(&unlockQuiet, "quiet", "q", false, "suppress status output")
	unlockIdentFlags.register(unlockCmd)
}

func runUnlock(cmd *cobra.Command, args []string) error {
	path, err := requireArg(args, "unlock")
	if err != nil {
		return err
	}

	m, cfg, err := newManager()
	if err != nil {
		return err
	}
	defer m.Close()

	rep := newReporter(unlockQuiet)

	id, err := unlockIdentFlags.resolve(cfg, m.Logger(), "Passphrase", false)
	if err != nil {
		return err
	}
	defer id.Close()

	req := cage.UnlockRequest{
		Input:             path,
		Identity:          id,
		Selective:         unlockSelective,
		PreserveEncrypted: unlockPreserve,
		Common: cage.CommonOptions{
			Recursive:     unlockRecursive,
			PatternFilter: unlockPattern,
			Verbose:       flagVerbose,
		},
	}

	rep.status("unlocking %s", path)
	start := time.Now()
	result, err := m.Unlock(req)
	if err != nil {
		rep.errorf("%v", err)
		return err
	}
	if !result.Success() {
		rep.errorf("%d file(s) failed: %v", len(result.FailedFiles), result.FirstError)
		return result.FirstError
	}
	rep.success("unlocked %d file(s), %s", len(result.ProcessedFiles), rep.throughput(result.ProcessedFiles, start))
	return nil
}
