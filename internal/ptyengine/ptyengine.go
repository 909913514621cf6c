// Package ptyengine automates the age binary over a real pseudo-terminal
// so age's passphrase prompts can be answered programmatically. age
// refuses to read a passphrase from a plain pipe; handing it a PTY makes
// it believe it has an interactive terminal.
//
// The automation loop, prompt-detection substrings, and timeout/retry
// shape are grounded directly in the original cage::pty_wrap::PtyAgeAutomator
// (portable-pty based), re-expressed over github.com/creack/pty.
package ptyengine

import (
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/creack/pty"

	"github.com/padlokk/cage/internal/ageerr"
	"github.com/padlokk/cage/internal/config"
	"github.com/padlokk/cage/internal/util"
)

// promptPatterns are matched case-insensitively against the rolling PTY
// output buffer. Entries in confirmPatterns take priority over entries
// in passphrasePatterns so a "Confirm passphrase:" prompt is never
// mistaken for the initial prompt.
var (
	passphrasePatterns = []string{"enter passphrase", "passphrase:", "enter password", "password:"}
	confirmPatterns    = []string{"confirm passphrase", "confirm:", "re-enter", "verify passphrase"}
)

const (
	readChunk    = 1024
	pollInterval = 50 * time.Millisecond
	idleInterval = 10 * time.Millisecond
)

// Engine drives age through a PTY. It owns a scratch directory for
// health-check fixtures and the default per-operation timeout.
type Engine struct {
	AgeBinary string
	Timeout   time.Duration
	scratch   string
}

// New constructs an Engine from cage's configuration.
func New(cfg config.AgeConfig) (*Engine, error) {
	scratch, err := os.MkdirTemp("", "cage-pty-*")
	if err != nil {
		return nil, ageerr.TemporaryResourceError("directory", "create", err)
	}
	bin := cfg.AgeBinaryPath
	if bin == "" {
		bin = "age"
	}
	timeout := cfg.OperationTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Engine{AgeBinary: bin, Timeout: timeout, scratch: scratch}, nil
}

// Close removes the engine's scratch directory.
func (e *Engine) Close() error {
	return os.RemoveAll(e.scratch)
}

// Encrypt runs `age -p [-a] -o output input`, answering the passphrase
// (and confirmation) prompt via the PTY.
func (e *Engine) Encrypt(input, output, passphrase string, format config.OutputFormat) error {
	if _, err := os.Stat(input); err != nil {
		return ageerr.FileError("read", input, err)
	}

	args := []string{"-p"}
	if format == config.FormatAsciiArmor {
		args = append(args, "-a")
	}
	args = append(args, "-o", output, input)

	if err := e.runWithPassphrase(args, passphrase, true); err != nil {
		return err
	}
	if _, err := os.Stat(output); err != nil {
		return ageerr.EncryptionFailed(input, output, "age exited successfully but output file was not created")
	}
	return nil
}

// Decrypt runs `age -d -o output input`, answering the passphrase prompt.
func (e *Engine) Decrypt(input, output, passphrase string) error {
	if _, err := os.Stat(input); err != nil {
		return ageerr.FileError("read", input, err)
	}

	args := []string{"-d", "-o", output, input}
	if err := e.runWithPassphrase(args, passphrase, false); err != nil {
		return err
	}
	if _, err := os.Stat(output); err != nil {
		return ageerr.DecryptionFailed(input, output, "age exited successfully but output file was not created")
	}
	return nil
}

// runWithPassphrase spawns age under a PTY, answers the passphrase prompt
// (and, when confirm is true, the confirmation prompt), and waits for
// exit.
func (e *Engine) runWithPassphrase(args []string, passphrase string, confirm bool) error {
	cmd := exec.Command(e.AgeBinary, args...)
	if wd, err := os.Getwd(); err == nil {
		cmd.Dir = wd
	}

	ptmx, err := pty.Start(cmd)
	if err != nil {
		if isBinaryNotFound(err) {
			return ageerr.AgeBinaryNotFound(err.Error())
		}
		return ageerr.ProcessExecutionFailed("age", nil, "failed to spawn age under pty: "+err.Error())
	}
	defer ptmx.Close()

	automationErr := e.automate(ptmx, passphrase, confirm)
	if automationErr != nil {
		// age is still blocked waiting on a prompt it never got the
		// expected answer to (timeout, write failure, or read failure).
		// Kill it on a best-effort basis before reaping, or Wait blocks
		// forever on a child stuck at the other end of the PTY.
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		_ = cmd.Wait()
		return automationErr
	}

	waitErr := cmd.Wait()
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			code := exitErr.ExitCode()
			return ageerr.ProcessExecutionFailed(e.AgeBinary+" "+strings.Join(args, " "), &code, "age exited with a non-zero status")
		}
		return ageerr.ProcessExecutionFailed(e.AgeBinary, nil, waitErr.Error())
	}
	return nil
}

// automate runs the read/detect/write loop: read PTY output into a
// rolling buffer, answer the passphrase prompt the first time it's seen,
// answer the confirmation prompt if confirm is true, and return once the
// PTY reaches EOF or the deadline passes.
func (e *Engine) automate(ptmx *os.File, passphrase string, confirm bool) error {
	var (
		buf            strings.Builder
		sentPassphrase bool
		sentConfirm    bool
		deadline       = time.Now().Add(e.Timeout)
	)

	full := util.GetSmallBuffer()
	defer util.PutSmallBuffer(full)
	chunk := full[:readChunk]

	for {
		if time.Now().After(deadline) {
			return ageerr.OperationTimeout("pty_automation", e.Timeout.Seconds())
		}

		_ = ptmx.SetReadDeadline(time.Now().Add(pollInterval))
		n, err := ptmx.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			text := strings.ToLower(buf.String())

			if !sentPassphrase && containsAny(text, passphrasePatterns) && !strings.Contains(text, "confirm") {
				if werr := writeLine(ptmx, passphrase); werr != nil {
					return ageerr.ProcessExecutionFailed("pty_write_passphrase", nil, werr.Error())
				}
				sentPassphrase = true
				buf.Reset()
				continue
			}

			if confirm && sentPassphrase && !sentConfirm && containsAny(text, confirmPatterns) {
				if werr := writeLine(ptmx, passphrase); werr != nil {
					return ageerr.ProcessExecutionFailed("pty_write_confirm", nil, werr.Error())
				}
				sentConfirm = true
				buf.Reset()
				continue
			}
		}
		if err != nil {
			if isTimeoutOrWouldBlock(err) {
				time.Sleep(0)
				continue
			}
			if err == io.EOF {
				return nil
			}
			// A PTY master returns EIO once the slave side hangs up; that
			// is age exiting, not a transport failure.
			if strings.Contains(err.Error(), "input/output error") {
				return nil
			}
			return ageerr.ProcessExecutionFailed("pty_read", nil, err.Error())
		}
		time.Sleep(idleInterval)
	}
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func writeLine(w io.Writer, line string) error {
	if _, err := io.WriteString(w, line); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func isTimeoutOrWouldBlock(err error) bool {
	if err == nil {
		return false
	}
	if os.IsTimeout(err) {
		return true
	}
	return strings.Contains(err.Error(), "would block")
}

func isBinaryNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "executable file not found") ||
		strings.Contains(msg, "no such file or directory") ||
		strings.Contains(msg, "not found")
}

// CheckAgeBinary runs `age --version` and succeeds only if age is on PATH
// and reports success.
func (e *Engine) CheckAgeBinary() error {
	if _, err := exec.LookPath(e.AgeBinary); err != nil {
		return ageerr.AgeBinaryNotFound("age command not found in PATH: " + err.Error())
	}
	cmd := exec.Command(e.AgeBinary, "--version")
	if err := cmd.Run(); err != nil {
		return ageerr.AgeBinaryNotFound("age --version failed: " + err.Error())
	}
	return nil
}

// PerformHealthCheck exercises a full encrypt/decrypt round trip against
// scratch files to verify the PTY automation path actually works end to
// end, not merely that the binary exists.
func (e *Engine) PerformHealthCheck() error {
	if err := e.CheckAgeBinary(); err != nil {
		return err
	}

	const testContent = "cage pty automation health check"
	const testPassphrase = "health-check-passphrase-do-not-use"

	input := filepath.Join(e.scratch, "health_input.txt")
	encrypted := filepath.Join(e.scratch, "health_encrypted.age")
	decrypted := filepath.Join(e.scratch, "health_decrypted.txt")

	if err := os.WriteFile(input, []byte(testContent), 0o600); err != nil {
		return ageerr.FileError("write", input, err)
	}

	if err := e.Encrypt(input, encrypted, testPassphrase, config.FormatBinary); err != nil {
		return err
	}
	if err := e.Decrypt(encrypted, decrypted, testPassphrase); err != nil {
		return err
	}

	got, err := os.ReadFile(decrypted)
	if err != nil {
		return ageerr.FileError("read", decrypted, err)
	}
	if string(got) != testContent {
		return ageerr.DecryptionFailed(encrypted, decrypted, "content mismatch after health-check round trip")
	}
	return nil
}

// ExecuteAge runs age with arbitrary arguments, passing through stdin,
// stdout, and stderr directly — used by the adapter for age invocations
// that need no passphrase automation (recipients or an identity file).
func ExecuteAge(agePath string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cmd := exec.Command(agePath, args...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			code := exitErr.ExitCode()
			return ageerr.ProcessExecutionFailed(agePath, &code, "age exited with a non-zero status")
		}
		if isBinaryNotFound(err) {
			return ageerr.AgeBinaryNotFound(err.Error())
		}
		return ageerr.ProcessExecutionFailed(agePath, nil, err.Error())
	}
	return nil
}
