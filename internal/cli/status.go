package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/padlokk/cage/internal/cage"
)

func init() {
	statusCmd.SilenceErrors = true
	statusCmd.SilenceUsage = true
}

var statusCmd = &cobra.Command{
	Use:   "status <path>",
	Short: "Report encryption status for a file or directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var (
	statusRecursive bool
	statusPattern   string
)

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVarP(&statusRecursive, "recursive", "r", false, "recurse into directories")
	statusCmd.Flags().StringVar(&statusPattern, "pattern", "", "only count files whose name contains this substring")
}

func runStatus(cmd *cobra.Command, args []string) error {
	path, err := requireArg(args, "status")
	if err != nil {
		return err
	}

	m, _, err := newManager()
	if err != nil {
		return err
	}
	defer m.Close()

	status, err := m.Status(cage.StatusRequest{
		Input: path,
		Common: cage.CommonOptions{
			Recursive:     statusRecursive,
			PatternFilter: statusPattern,
		},
	})
	if err != nil {
		return err
	}

	fmt.Printf("total: %d  encrypted: %d  unencrypted: %d  (%.1f%% encrypted)\n",
		status.TotalFiles, status.EncryptedFiles, status.UnencryptedFiles, status.EncryptionPercentage())
	for _, f := range status.FailedFiles {
		fmt.Printf("  failed to classify: %s\n", f)
	}
	return nil
}
