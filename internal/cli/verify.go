package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/padlokk/cage/internal/cage"
)

func init() {
	verifyCmd.SilenceErrors = true
	verifyCmd.SilenceUsage = true
}

var verifyCmd = &cobra.Command{
	Use:   "verify <path>",
	Short: "Trial-decrypt a file or directory without persisting output",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerify,
}

var (
	verifyRecursive bool
	verifyPattern   string
	verifyIdentFlags identityFlags
)

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().BoolVarP(&verifyRecursive, "recursive", "r", false, "recurse into directories")
	verifyCmd.Flags().StringVar(&verifyPattern, "pattern", "", "only verify files whose name contains this substring")
	verifyIdentFlags.register(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	path, err := requireArg(args, "verify")
	if err != nil {
		return err
	}

	m, cfg, err := newManager()
	if err != nil {
		return err
	}
	defer m.Close()

	id, err := verifyIdentFlags.resolve(cfg, m.Logger(), "Passphrase", false)
	if err != nil {
		return err
	}
	defer id.Close()

	result, err := m.Verify(cage.VerifyRequest{
		Input:    path,
		Identity: id,
		Common: cage.CommonOptions{
			Recursive:     verifyRecursive,
			PatternFilter: verifyPattern,
		},
	})
	if err != nil {
		return err
	}

	fmt.Printf("verified: %d  failed: %d  status: %s\n", len(result.VerifiedFiles), len(result.FailedFiles), result.OverallStatus)
	for _, f := range result.FailedFiles {
		fmt.Printf("  failed: %s\n", f)
	}
	if len(result.FailedFiles) > 0 {
		return fmt.Errorf("%d file(s) failed verification", len(result.FailedFiles))
	}
	return nil
}
