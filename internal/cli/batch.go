package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/padlokk/cage/internal/ageerr"
	"github.com/padlokk/cage/internal/cage"
)

func init() {
	batchCmd.SilenceErrors = true
	batchCmd.SilenceUsage = true
}

var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Apply lock, unlock, verify, or rotate to every matching file under dir",
	Args:  cobra.ExactArgs(1),
	RunE:  runBatch,
}

var (
	batchOperation string
	batchPattern   string
	batchQuiet     bool
	batchIdentFlags identityFlags
	batchNewFlags   identityFlags
)

func init() {
	rootCmd.AddCommand(batchCmd)
	batchCmd.Flags().StringVar(&batchOperation, "operation", "", "lock | unlock | verify | rotate")
	batchCmd.Flags().StringVar(&batchPattern, "pattern", "", "only match files whose name contains this substring")
	batchCmd.Flags().BoolVarP(&batchQuiet, "quiet", "q", false, "suppress status output")
	batchIdentFlags.register(batchCmd)
	batchCmd.Flags().StringVar(&batchNewFlags.identityFile, "new-identity-file", "", "new identity file (rotate only)")
	batchCmd.Flags().BoolVar(&batchNewFlags.stdinPassword, "new-stdin-passphrase", false, "read new passphrase from stdin (rotate only)")
	_ = batchCmd.MarkFlagRequired("operation")
}

func runBatch(cmd *cobra.Command, args []string) error {
	dir, err := requireArg(args, "batch")
	if err != nil {
		return err
	}

	var op cage.BatchOperation
	switch batchOperation {
	case "lock":
		op = cage.BatchLock
	case "unlock":
		op = cage.BatchUnlock
	case "verify":
		op = cage.BatchVerify
	case "rotate":
		op = cage.BatchRotate
	default:
		return ageerr.InvalidOperation("batch", "--operation must be lock, unlock, verify, or rotate")
	}

	m, cfg, err := newManager()
	if err != nil {
		return err
	}
	defer m.Close()

	rep := newReporter(batchQuiet)

	req := cage.BatchRequest{
		Directory: dir,
		Operation: op,
		Common:    cage.CommonOptions{PatternFilter: batchPattern, Recursive: true, Verbose: flagVerbose},
	}

	confirm := op == cage.BatchLock
	id, err := batchIdentFlags.resolve(cfg, m.Logger(), "Passphrase", confirm)
	if err != nil {
		return err
	}
	defer id.Close()
	req.Identity = id
	if op == cage.BatchRotate {
		newID, err := batchNewFlags.resolve(cfg, m.Logger(), "New passphrase", true)
		if err != nil {
			return err
		}
		defer newID.Close()
		req.NewIdentity = newID
	}

	rep.status("batch %s under %s", batchOperation, dir)
	start := time.Now()
	result, err := m.Batch(req)
	if err != nil {
		rep.errorf("%v", err)
		return err
	}
	if !result.Success() {
		rep.errorf("%d file(s) failed: %v", len(result.FailedFiles), result.FirstError)
		return result.FirstError
	}
	fmt.Fprintf(cmd.OutOrStdout(), "processed %d file(s), %s\n", len(result.ProcessedFiles), rep.throughput(result.ProcessedFiles, start))
	return nil
}
