package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/padlokk/cage/internal/ageerr"
	"github.com/padlokk/cage/internal/audit"
	"github.com/padlokk/cage/internal/config"
	"github.com/padlokk/cage/internal/identity"
	"github.com/padlokk/cage/internal/passphrase"
)

// identityFlags is embedded by every command that needs to resolve an
// Identity: either an explicit identity/ssh-identity file, or a
// passphrase sourced through the broker (env, stdin, or interactive
// prompt, in that priority order).
type identityFlags struct {
	identityFile   string
	sshIdentity    string
	stdinPassword  bool
}

func (f *identityFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.identityFile, "identity-file", "", "age identity file to use instead of a passphrase")
	cmd.Flags().StringVar(&f.sshIdentity, "ssh-identity", "", "ssh private key usable as an age identity")
	cmd.Flags().BoolVar(&f.stdinPassword, "stdin-passphrase", false, "read the passphrase from stdin")
}

// resolve obtains the Identity this command should use, confirming the
// passphrase only when confirm is true (key-generating operations such
// as lock and rotate's new identity).
func (f *identityFlags) resolve(cfg config.AgeConfig, logger audit.Logger, prompt string, confirm bool) (identity.Identity, error) {
	if f.identityFile != "" {
		return identity.FromIdentityFile(f.identityFile), nil
	}
	if f.sshIdentity != "" {
		return identity.FromSshIdentity(f.sshIdentity), nil
	}

	broker := passphrase.NewBroker(cfg, logger)
	mode := passphrase.ModeAuto
	if f.stdinPassword && os.Getenv(passphrase.EnvVar) == "" {
		mode = passphrase.ModeStdin
	}
	pw, err := broker.GetWithMode(prompt, confirm, mode)
	if err != nil {
		return identity.Identity{}, err
	}
	return identity.FromPassphrase(pw), nil
}

func requireArg(args []string, name string) (string, error) {
	if len(args) == 0 || args[0] == "" {
		return "", ageerr.InvalidOperation(name, "a path argument is required")
	}
	return args[0], nil
}
