// Package identity defines the tagged-variant Identity type — "what
// unlocks this" — shared by the passphrase broker, adapter, streaming
// selector, and lifecycle coordinator.
package identity

import "github.com/padlokk/cage/internal/secret"

// Kind tags which case of Identity is populated.
type Kind int

const (
	KindPassphrase Kind = iota
	KindIdentityFile
	KindSshIdentity
	KindPromptPassphrase
)

func (k Kind) String() string {
	switch k {
	case KindPassphrase:
		return "passphrase"
	case KindIdentityFile:
		return "identity_file"
	case KindSshIdentity:
		return "ssh_identity"
	case KindPromptPassphrase:
		return "prompt_passphrase"
	default:
		return "unknown"
	}
}

// Identity is constructed per request and never cloned into logs. The
// passphrase field, when present, is held behind secret.String so it can
// be zeroised once the owning operation completes.
type Identity struct {
	kind       Kind
	passphrase *secret.String
	path       string
}

// FromPassphrase wraps an already-obtained passphrase (e.g. from the
// broker) as a Passphrase identity.
func FromPassphrase(s *secret.String) Identity {
	return Identity{kind: KindPassphrase, passphrase: s}
}

// FromIdentityFile wraps an age identity file path.
func FromIdentityFile(path string) Identity {
	return Identity{kind: KindIdentityFile, path: path}
}

// FromSshIdentity wraps an ssh private key path usable as an age identity.
func FromSshIdentity(path string) Identity {
	return Identity{kind: KindSshIdentity, path: path}
}

// Prompt marks an identity whose passphrase has not yet been obtained;
// the adapter is expected to invoke the broker interactively.
func Prompt() Identity { return Identity{kind: KindPromptPassphrase} }

func (i Identity) Kind() Kind { return i.kind }
func (i Identity) Path() string { return i.path }

// Passphrase returns the wrapped secret and true if this is a Passphrase
// identity with a value already populated.
func (i Identity) Passphrase() (*secret.String, bool) {
	if i.kind != KindPassphrase || i.passphrase == nil {
		return nil, false
	}
	return i.passphrase, true
}

// RequiresPty reports whether this identity can only be driven through
// the PTY automation engine (true for Passphrase/PromptPassphrase) or may
// use the pipe strategy (false for IdentityFile/SshIdentity).
func (i Identity) RequiresPty() bool {
	return i.kind == KindPassphrase || i.kind == KindPromptPassphrase
}

// Close zeroes any secret material owned by this identity.
func (i Identity) Close() {
	if i.passphrase != nil {
		i.passphrase.Close()
	}
}
