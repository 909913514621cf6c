// Package streaming selects and executes the staging or pipe protocol
// for stream-shaped encrypt/decrypt operations, per the decision table
// driven by (identity kind, caller hint, operation).
package streaming

import (
	"bufio"
	"io"
	"os"
	"os/exec"

	"github.com/padlokk/cage/internal/adapter"
	"github.com/padlokk/cage/internal/ageerr"
	"github.com/padlokk/cage/internal/config"
	"github.com/padlokk/cage/internal/identity"
)

// Strategy is the resolved execution path for one streaming operation.
type Strategy int

const (
	StrategyStaging Strategy = iota
	StrategyPipe
)

func (s Strategy) String() string {
	if s == StrategyPipe {
		return "pipe"
	}
	return "staging"
}

// Resolve implements the decision table from the streaming strategy
// selector: recipients always win (a recipient-only encrypt never needs
// an Identity, so its zero value must never be mistaken for a
// passphrase); absent recipients, a Passphrase/PromptPassphrase identity
// always stages (age reads passphrases only from a controlling
// terminal); an IdentityFile/SshIdentity follows the caller's hint
// (pipe/auto -> pipe, staging -> staging); any other combination (e.g.
// pipe demanded with a passphrase identity) is InvalidOperation rather
// than a silent downgrade.
func Resolve(id identity.Identity, recipients []string, hint config.StreamingStrategyHint) (Strategy, error) {
	if len(recipients) == 0 && id.RequiresPty() {
		if hint == config.StreamingPipe {
			return 0, ageerr.InvalidOperation("resolve_streaming_strategy", "pipe strategy is not available for a passphrase identity; age requires a controlling terminal")
		}
		return StrategyStaging, nil
	}

	switch hint {
	case config.StreamingStaging:
		return StrategyStaging, nil
	case config.StreamingPipe, config.StreamingAuto:
		return StrategyPipe, nil
	default:
		return 0, ageerr.InvalidOperation("resolve_streaming_strategy", "unrecognized streaming strategy hint")
	}
}

// Selector executes an encrypt/decrypt stream operation using the
// resolved strategy, falling back to adapter staging for passphrase
// identities and to a direct age pipe invocation otherwise.
type Selector struct {
	Adapter   adapter.Adapter
	AgeBinary string
}

// New constructs a Selector bound to the given adapter and cfg's age
// binary path (empty resolves to "age" on PATH).
func New(a adapter.Adapter, cfg config.AgeConfig) *Selector {
	bin := cfg.AgeBinaryPath
	if bin == "" {
		bin = "age"
	}
	return &Selector{Adapter: a, AgeBinary: bin}
}

// Encrypt resolves a strategy for id/hint and executes it.
func (s *Selector) Encrypt(r io.Reader, w io.Writer, id identity.Identity, recipients []string, format config.OutputFormat, hint config.StreamingStrategyHint) (int64, Strategy, error) {
	strategy, err := Resolve(id, recipients, hint)
	if err != nil {
		return 0, 0, err
	}
	if strategy == StrategyStaging {
		n, err := s.Adapter.EncryptStream(r, w, id, recipients, format)
		return n, strategy, err
	}
	n, err := s.pipeEncrypt(r, w, id, recipients, format)
	return n, strategy, err
}

// Decrypt resolves a strategy for id/hint and executes it.
func (s *Selector) Decrypt(r io.Reader, w io.Writer, id identity.Identity, hint config.StreamingStrategyHint) (int64, Strategy, error) {
	strategy, err := Resolve(id, nil, hint)
	if err != nil {
		return 0, 0, err
	}
	if strategy == StrategyStaging {
		n, err := s.Adapter.DecryptStream(r, w, id)
		return n, strategy, err
	}
	n, err := s.pipeDecrypt(r, w, id)
	return n, strategy, err
}

// pipeEncrypt spawns age with inherited stdin/stdout pipes and copies
// bytes in both directions with a small buffer, propagating any child
// stderr into the returned error.
func (s *Selector) pipeEncrypt(r io.Reader, w io.Writer, id identity.Identity, recipients []string, format config.OutputFormat) (int64, error) {
	args := []string{}
	switch {
	case len(recipients) > 0:
		for _, rcpt := range recipients {
			args = append(args, "-r", rcpt)
		}
	case id.Kind() == identity.KindIdentityFile || id.Kind() == identity.KindSshIdentity:
		args = append(args, "-i", id.Path())
	default:
		return 0, ageerr.InvalidOperation("pipe_encrypt", "no recipients and no identity file supplied for pipe-mode encryption")
	}
	if format == config.FormatAsciiArmor {
		args = append(args, "-a")
	}
	return s.runPipe(args, r, w)
}

// pipeDecrypt spawns `age -d -i <path>` with inherited stdin/stdout.
func (s *Selector) pipeDecrypt(r io.Reader, w io.Writer, id identity.Identity) (int64, error) {
	if id.Kind() != identity.KindIdentityFile && id.Kind() != identity.KindSshIdentity {
		return 0, ageerr.InvalidOperation("pipe_decrypt", "pipe decryption requires an identity-file or ssh identity")
	}
	args := []string{"-d", "-i", id.Path()}
	return s.runPipe(args, r, w)
}

func (s *Selector) runPipe(args []string, r io.Reader, w io.Writer) (int64, error) {
	cmd := exec.Command(s.AgeBinary, args...)
	cmd.Stdin = bufio.NewReaderSize(r, 64*1024)

	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		return 0, ageerr.TemporaryResourceError("pipe", "create", err)
	}
	cmd.Stderr = stderrW

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stderrW.Close()
		return 0, ageerr.ProcessExecutionFailed(s.AgeBinary, nil, "failed to attach stdout pipe: "+err.Error())
	}

	if err := cmd.Start(); err != nil {
		stderrW.Close()
		return 0, ageerr.ProcessExecutionFailed(s.AgeBinary, nil, "failed to start age: "+err.Error())
	}
	stderrW.Close()

	n, copyErr := io.Copy(w, stdout)

	stderrBytes, _ := io.ReadAll(stderrR)
	waitErr := cmd.Wait()

	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			code := exitErr.ExitCode()
			return n, ageerr.ProcessExecutionFailed(s.AgeBinary, &code, string(stderrBytes))
		}
		return n, ageerr.ProcessExecutionFailed(s.AgeBinary, nil, waitErr.Error())
	}
	if copyErr != nil {
		return n, ageerr.IoError("copy", "pipe output", copyErr)
	}
	return n, nil
}
