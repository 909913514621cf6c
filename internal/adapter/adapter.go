// Package adapter defines the seam between the lifecycle coordinator and
// the PTY automation engine: encrypt/decrypt over files and streams,
// dispatched on Identity kind.
package adapter

import (
	"io"
	"os"

	"github.com/padlokk/cage/internal/ageerr"
	"github.com/padlokk/cage/internal/config"
	"github.com/padlokk/cage/internal/identity"
	"github.com/padlokk/cage/internal/ptyengine"
)

// Adapter is the seam the coordinator drives. Every method's success
// guarantees the declared output exists and is non-empty (file ops) or
// that the full input was consumed (stream ops).
type Adapter interface {
	EncryptFile(src, dst string, id identity.Identity, recipients []string, format config.OutputFormat) error
	DecryptFile(src, dst string, id identity.Identity) error
	EncryptStream(r io.Reader, w io.Writer, id identity.Identity, recipients []string, format config.OutputFormat) (int64, error)
	DecryptStream(r io.Reader, w io.Writer, id identity.Identity) (int64, error)
	EncryptToPath(src, dst string, id identity.Identity, recipients []string, format config.OutputFormat) error
	DecryptToPath(src, dst string, id identity.Identity) error
	HealthCheck() error
}

// PtyAdapter is the production Adapter backed by ptyengine.Engine. Stream
// operations here always go through the staging protocol — the pipe
// protocol for recipient/identity-file operations lives in the streaming
// package, which wraps a PtyAdapter as its staging fallback.
type PtyAdapter struct {
	engine *ptyengine.Engine
	cfg    config.AgeConfig
}

// New constructs a PtyAdapter bound to cfg.
func New(cfg config.AgeConfig) (*PtyAdapter, error) {
	eng, err := ptyengine.New(cfg)
	if err != nil {
		return nil, err
	}
	return &PtyAdapter{engine: eng, cfg: cfg}, nil
}

// Close releases the underlying PTY engine's scratch resources.
func (a *PtyAdapter) Close() error { return a.engine.Close() }

func (a *PtyAdapter) passphraseValue(id identity.Identity) (string, error) {
	s, ok := id.Passphrase()
	if !ok {
		return "", ageerr.InvalidOperation("resolve_identity", "PTY adapter requires a Passphrase identity; use age -R/-i directly for recipient/identity-file operations")
	}
	return s.Value(), nil
}

// EncryptFile drives age under the PTY with a Passphrase identity.
// Recipient-based and identity-file encryption run age directly, without
// a PTY, through ptyengine.ExecuteAge.
//
// Recipients take priority over id: a caller that supplied --recipient
// never needed an Identity in the first place, and the zero-value
// Identity reports KindPassphrase (RequiresPty true), which would
// otherwise misroute a recipients-only call into the passphrase branch.
func (a *PtyAdapter) EncryptFile(src, dst string, id identity.Identity, recipients []string, format config.OutputFormat) error {
	if len(recipients) == 0 && id.RequiresPty() {
		pw, err := a.passphraseValue(id)
		if err != nil {
			return err
		}
		return a.engine.Encrypt(src, dst, pw, format)
	}
	return a.encryptWithRecipientsOrIdentityFile(src, dst, id, recipients, format)
}

func (a *PtyAdapter) encryptWithRecipientsOrIdentityFile(src, dst string, id identity.Identity, recipients []string, format config.OutputFormat) error {
	args := []string{}
	switch {
	case len(recipients) > 0:
		for _, r := range recipients {
			args = append(args, "-r", r)
		}
	case id.Kind() == identity.KindIdentityFile || id.Kind() == identity.KindSshIdentity:
		args = append(args, "-i", id.Path())
	default:
		return ageerr.InvalidOperation("encrypt_file", "no recipients and no identity file supplied for non-passphrase encryption")
	}
	if format == config.FormatAsciiArmor {
		args = append(args, "-a")
	}
	args = append(args, "-o", dst, src)

	agePath := a.cfg.AgeBinaryPath
	if agePath == "" {
		agePath = "age"
	}
	if err := ptyengine.ExecuteAge(agePath, args, nil, io.Discard, io.Discard); err != nil {
		return err
	}
	if _, err := os.Stat(dst); err != nil {
		return ageerr.EncryptionFailed(src, dst, "age exited successfully but output file was not created")
	}
	return nil
}

// DecryptFile drives age under the PTY for a Passphrase identity, or
// hands off to a direct, non-PTY `age -d -i <path>` invocation for
// identity-file/ssh identities (no terminal interaction required).
func (a *PtyAdapter) DecryptFile(src, dst string, id identity.Identity) error {
	if id.RequiresPty() {
		pw, err := a.passphraseValue(id)
		if err != nil {
			return err
		}
		return a.engine.Decrypt(src, dst, pw)
	}

	if id.Kind() != identity.KindIdentityFile && id.Kind() != identity.KindSshIdentity {
		return ageerr.InvalidOperation("decrypt_file", "unsupported identity kind for decryption")
	}
	agePath := a.cfg.AgeBinaryPath
	if agePath == "" {
		agePath = "age"
	}
	args := []string{"-d", "-i", id.Path(), "-o", dst, src}
	if err := ptyengine.ExecuteAge(agePath, args, nil, io.Discard, io.Discard); err != nil {
		return err
	}
	if _, err := os.Stat(dst); err != nil {
		return ageerr.DecryptionFailed(src, dst, "age exited successfully but output file was not created")
	}
	return nil
}

// EncryptStream stages r to a temp file, encrypts it, and copies the
// ciphertext to w. Callers that want the pipe protocol for non-passphrase
// identities should use the streaming package instead of calling this
// directly.
func (a *PtyAdapter) EncryptStream(r io.Reader, w io.Writer, id identity.Identity, recipients []string, format config.OutputFormat) (int64, error) {
	return stageThroughFiles(r, w, func(src, dst string) error {
		return a.EncryptFile(src, dst, id, recipients, format)
	})
}

// DecryptStream is the stream-shaped counterpart of DecryptFile.
func (a *PtyAdapter) DecryptStream(r io.Reader, w io.Writer, id identity.Identity) (int64, error) {
	return stageThroughFiles(r, w, func(src, dst string) error {
		return a.DecryptFile(src, dst, id)
	})
}

// EncryptToPath / DecryptToPath are the explicit-path operations the
// in-place safety layer drives directly.
func (a *PtyAdapter) EncryptToPath(src, dst string, id identity.Identity, recipients []string, format config.OutputFormat) error {
	return a.EncryptFile(src, dst, id, recipients, format)
}

func (a *PtyAdapter) DecryptToPath(src, dst string, id identity.Identity) error {
	return a.DecryptFile(src, dst, id)
}

// HealthCheck delegates to the PTY engine's round-trip probe.
func (a *PtyAdapter) HealthCheck() error { return a.engine.PerformHealthCheck() }

// stageThroughFiles writes r to a scoped temp file, invokes op against
// that file and a temp destination, then copies the result to w and
// cleans up both temp files on every exit path.
func stageThroughFiles(r io.Reader, w io.Writer, op func(src, dst string) error) (int64, error) {
	dir, err := os.MkdirTemp("", "cage-stage-*")
	if err != nil {
		return 0, ageerr.TemporaryResourceError("directory", "create", err)
	}
	defer os.RemoveAll(dir)

	src := dir + "/input"
	dst := dir + "/output"

	in, err := os.OpenFile(src, os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, ageerr.FileError("create", src, err)
	}
	if _, err := io.Copy(in, r); err != nil {
		in.Close()
		return 0, ageerr.IoError("copy", "staging input", err)
	}
	if err := in.Close(); err != nil {
		return 0, ageerr.FileError("close", src, err)
	}

	if err := op(src, dst); err != nil {
		return 0, err
	}

	out, err := os.Open(dst)
	if err != nil {
		return 0, ageerr.FileError("open", dst, err)
	}
	defer out.Close()

	n, err := io.Copy(w, out)
	if err != nil {
		return n, ageerr.IoError("copy", "staging output", err)
	}
	return n, nil
}
