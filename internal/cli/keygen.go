package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/padlokk/cage/internal/keygen"
)

func init() {
	keygenCmd.SilenceErrors = true
	keygenCmd.SilenceUsage = true
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an age identity and its recipient",
	RunE:  runKeygen,
}

var (
	keygenOutput         string
	keygenInput          string
	keygenRegisterGroups []string
	keygenRecipientsOnly bool
	keygenForce          bool
	keygenExport         bool
	keygenProxy          bool
	keygenJSON           bool
)

func init() {
	rootCmd.AddCommand(keygenCmd)
	keygenCmd.Flags().StringVar(&keygenOutput, "output", "", "identity output path (default: XDG identity directory)")
	keygenCmd.Flags().StringVar(&keygenInput, "input", "", "existing identity file (with --recipients-only)")
	keygenCmd.Flags().StringArrayVar(&keygenRegisterGroups, "register", nil, "recipient group to register the new key with (repeatable)")
	keygenCmd.Flags().BoolVar(&keygenRecipientsOnly, "recipients-only", false, "derive the recipient from --input instead of generating a new key")
	keygenCmd.Flags().BoolVar(&keygenForce, "force", false, "overwrite an existing identity file")
	keygenCmd.Flags().BoolVar(&keygenExport, "export", false, "write the identity to the current directory instead of the default identity store")
	keygenCmd.Flags().BoolVar(&keygenProxy, "proxy", false, "pass through directly to age-keygen with no automation")
	keygenCmd.Flags().BoolVar(&keygenJSON, "json", false, "print the summary as JSON")
}

func runKeygen(cmd *cobra.Command, args []string) error {
	m, _, err := newManager()
	if err != nil {
		return err
	}
	defer m.Close()

	svc := keygen.New(m.Groups())
	summary, err := svc.Generate(keygen.Request{
		OutputPath:     keygenOutput,
		InputPath:      keygenInput,
		RegisterGroups: keygenRegisterGroups,
		RecipientsOnly: keygenRecipientsOnly,
		Force:          keygenForce,
		ProxyMode:      keygenProxy,
		ExportMode:     keygenExport,
	})
	if err != nil {
		return err
	}

	if keygenJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	if summary.OutputPath != "" {
		fmt.Printf("identity written to %s\n", summary.OutputPath)
	}
	if summary.PublicRecipient != "" {
		fmt.Printf("recipient: %s\n", summary.PublicRecipient)
		fmt.Printf("fingerprint (md5): %s\n", summary.FingerprintMD5)
		fmt.Printf("fingerprint (sha256): %s\n", summary.FingerprintSHA256)
	}
	for _, g := range summary.RegisteredGroups {
		fmt.Printf("registered with group: %s\n", g)
	}
	return nil
}
