// Package passphrase implements the passphrase broker: mode selection
// across environment variable, stdin, and interactive TTY sources, plus
// the strength advisory and command-injection hard-failure checks that
// gate every passphrase before it reaches the PTY automation engine.
//
// It generalizes the teacher's internal/cli password helpers (term-based
// hidden input, stdin fallback) with the broker shape and mode-priority
// rules grounded in the original cage::passphrase::PassphraseManager.
package passphrase

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/Picocrypt/zxcvbn-go"
	"golang.org/x/term"

	"github.com/padlokk/cage/internal/ageerr"
	"github.com/padlokk/cage/internal/audit"
	"github.com/padlokk/cage/internal/config"
	"github.com/padlokk/cage/internal/secret"
)

// Mode selects where a passphrase is sourced from.
type Mode int

const (
	// ModeAuto lets the broker pick the best available mode: environment
	// variable first, then an interactive TTY prompt, else a
	// guidance-bearing error. It never selects stdin; that takes ModeStdin.
	ModeAuto Mode = iota
	ModeEnvironment
	ModeStdin
	ModeInteractive
)

// EnvVar is the environment variable the broker checks in ModeAuto/ModeEnvironment.
const EnvVar = "CAGE_PASSPHRASE"

// Broker sources and validates passphrases.
type Broker struct {
	cfg    config.AgeConfig
	logger audit.Logger

	// stdin/ttyAvailable are overridable for tests; NewBroker fills them
	// by probing the real os.Stdin.
	ttyAvailable bool
	stdinIsTTY   bool
	in           *bufio.Reader
}

// NewBroker builds a Broker bound to cfg, emitting events (if any) to l.
// Pass audit.Null() for l when no audit sink is configured.
func NewBroker(cfg config.AgeConfig, l audit.Logger) *Broker {
	if l == nil {
		l = audit.Null()
	}
	return &Broker{
		cfg:          cfg,
		logger:       l.WithComponent("passphrase"),
		ttyAvailable: term.IsTerminal(int(syscall.Stdin)),
		stdinIsTTY:   term.IsTerminal(int(syscall.Stdin)),
		in:           bufio.NewReader(os.Stdin),
	}
}

// Get requests a passphrase for prompt, auto-selecting a mode, confirming
// the value when confirm is true (interactive mode only). The returned
// secret.String must be Closed by the caller once the passphrase bytes
// are no longer needed.
func (b *Broker) Get(prompt string, confirm bool) (*secret.String, error) {
	return b.GetWithMode(prompt, confirm, ModeAuto)
}

// GetWithMode requests a passphrase using the given mode explicitly.
func (b *Broker) GetWithMode(prompt string, confirm bool, mode Mode) (*secret.String, error) {
	if mode == ModeAuto {
		mode = b.detectBestMode()
	}

	var (
		value string
		err   error
	)
	switch mode {
	case ModeEnvironment:
		value, err = b.readFromEnv(EnvVar)
	case ModeStdin:
		value, err = b.readFromStdin()
	case ModeInteractive:
		value, err = b.promptInteractive(prompt, confirm)
	default:
		return nil, ageerr.PassphraseValidation(
			"no passphrase source available",
			"set CAGE_PASSPHRASE, pass --stdin-passphrase, or run interactively",
		)
	}
	if err != nil {
		return nil, err
	}

	if err := CheckInjection(value); err != nil {
		return nil, err
	}

	b.logger.Redact(value)
	wrapped := secret.NewString(value)
	// value is a Go string and cannot itself be zeroed in place; the
	// caller-visible copy lives only in wrapped, closed on their behalf.
	value = ""
	return wrapped, nil
}

// detectBestMode mirrors the original priority order: CAGE_PASSPHRASE env
// var, then interactive TTY, else an error advising both alternatives.
// Stdin mode is never auto-selected — a caller must request it explicitly
// via --stdin-passphrase, since an interactive terminal's stdin would
// otherwise be silently misread as a passphrase stream.
func (b *Broker) detectBestMode() Mode {
	if v := os.Getenv(EnvVar); v != "" {
		return ModeEnvironment
	}
	if b.ttyAvailable {
		return ModeInteractive
	}
	return ModeInteractive // promptInteractive will surface the no-TTY error
}

func (b *Broker) readFromEnv(name string) (string, error) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return "", ageerr.PassphraseValidation(
			fmt.Sprintf("environment variable %s not set", name),
			"export "+name+" or use an interactive prompt",
		)
	}
	return v, nil
}

func (b *Broker) readFromStdin() (string, error) {
	line, err := b.in.ReadString('\n')
	if err != nil && line == "" {
		return "", ageerr.PassphraseValidation("failed to read passphrase from stdin", err.Error())
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	if line == "" {
		return "", ageerr.PassphraseValidation("empty passphrase from stdin", "provide a non-empty passphrase on stdin")
	}
	return line, nil
}

func (b *Broker) promptInteractive(prompt string, confirm bool) (string, error) {
	if !b.ttyAvailable {
		return "", ageerr.PassphraseValidation(
			"no TTY available for interactive input",
			"use CAGE_PASSPHRASE or --stdin-passphrase",
		)
	}

	pw, err := b.readHidden(prompt)
	if err != nil {
		return "", err
	}
	if pw == "" {
		return "", ageerr.PassphraseValidation("empty passphrase not allowed", "enter a non-empty passphrase")
	}

	if confirm {
		confirmation, err := b.readHidden("Confirm " + prompt)
		if err != nil {
			return "", err
		}
		if pw != confirmation {
			secret.Zero([]byte(confirmation))
			return "", ageerr.PassphraseValidation("passphrases do not match", "retry and enter the same passphrase twice")
		}
	}

	if err := CheckStrength(pw, b.cfg.SecurityLevel); err != nil {
		return "", err
	}
	return pw, nil
}

func (b *Broker) readHidden(prompt string) (string, error) {
	fmt.Fprintf(os.Stderr, "%s: ", prompt)
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", ageerr.PassphraseValidation("failed to read passphrase", err.Error())
	}
	return string(pw), nil
}

// WarnStrength prints non-fatal advisory warnings to stderr about a weak
// passphrase, supplementing the original's length/case heuristics with a
// zxcvbn score. It never fails the request: weak passphrases are allowed
// through with a warning, matching the original's advisory-only stance.
func WarnStrength(pw string) {
	if len(pw) < 8 {
		fmt.Fprintln(os.Stderr, "warning: passphrase is less than 8 characters")
	}
	if len(pw) < 12 && !strings.ContainsAny(pw, "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~") {
		fmt.Fprintln(os.Stderr, "tip: consider adding special characters for stronger security")
	}
	if strings.ToLower(pw) == pw {
		fmt.Fprintln(os.Stderr, "tip: mixing upper and lower case improves security")
	}
	score := zxcvbn.PasswordStrength(pw, nil).Score
	if score <= 1 {
		fmt.Fprintf(os.Stderr, "warning: passphrase strength score %d/4 is weak\n", score)
	}
}

// CheckStrength enforces the strength advisory as a hard failure when
// level is SecurityParanoid; otherwise it only warns via WarnStrength.
func CheckStrength(pw string, level config.SecurityLevel) error {
	score := zxcvbn.PasswordStrength(pw, nil).Score
	if level == config.SecurityParanoid && score <= 1 {
		return ageerr.PassphraseValidation(
			fmt.Sprintf("passphrase strength score %d/4 is too weak for paranoid security level", score),
			"use a longer passphrase with mixed case, digits, and punctuation",
		)
	}
	WarnStrength(pw)
	return nil
}

// injectionPatterns are the shell metacharacter sequences that make a
// passphrase unsafe to ever place on a subprocess argv or in a shell
// context, even though cage itself never shells out with the raw value.
var injectionPatterns = []string{"$(", "`", ";", "&", "|", "\n", "\r", "\x00"}

// CheckInjection hard-fails a passphrase containing a shell injection
// pattern. The offending value is never attached to the returned error —
// only the attack class name is, per the taxonomy's redaction rule.
func CheckInjection(pw string) error {
	for _, p := range injectionPatterns {
		if strings.Contains(pw, p) {
			return ageerr.InjectionAttemptBlocked("command_injection")
		}
	}
	return nil
}

// DetectInsecureUsage scans a command-line argv for a passphrase passed
// directly as an argument (--passphrase/-p VALUE or --passphrase=VALUE).
// It returns the argv index of the offending value and true if found, so
// callers can raise a SecurityValidationFailed without ever logging the
// value itself.
func DetectInsecureUsage(args []string) (index int, cmd string, found bool) {
	for i, arg := range args {
		if arg == "--passphrase" || arg == "-p" {
			if i+1 < len(args) {
				return i + 1, arg, true
			}
		}
		if strings.HasPrefix(arg, "--passphrase=") {
			return i, "--passphrase=", true
		}
	}
	return 0, "", false
}

// InsecureUsageError builds the SecurityValidationFailed error for a
// passphrase detected on argv, recording the argv index and the flag
// name that carried it — never the passphrase value itself.
func InsecureUsageError(args []string) error {
	idx, cmd, found := DetectInsecureUsage(args)
	if !found {
		return nil
	}
	err := ageerr.SecurityValidationFailed("insecure_cli_usage", "passphrase supplied on command line, visible in process list and shell history")
	err.OffendingClass = "insecure_cli_usage"
	err.ArgvIndex = idx
	err.OffendingCmd = cmd
	err.HasArgvIndex = true
	return err
}

// WarnInsecureUsage prints the standard warning about a passphrase
// supplied on the command line, visible in process listings and shell
// history.
func WarnInsecureUsage() {
	fmt.Fprintln(os.Stderr, "WARNING: passphrase provided on command line!")
	fmt.Fprintln(os.Stderr, "  this is insecure and visible in process list and shell history")
	fmt.Fprintln(os.Stderr, "  use an interactive prompt or CAGE_PASSPHRASE instead")
	fmt.Fprintln(os.Stderr, "  for automation, use --stdin-passphrase")
}
