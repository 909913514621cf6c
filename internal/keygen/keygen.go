// Package keygen wraps the age-keygen binary: generating new identities,
// deriving their public recipient, fingerprinting the recipient, and
// optionally registering it with named recipient groups.
package keygen

import (
	"bytes"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/padlokk/cage/internal/ageerr"
)

// Request mirrors the keygen CLI's flag group.
type Request struct {
	OutputPath      string
	InputPath       string
	RegisterGroups  []string
	RecipientsOnly  bool
	Force           bool
	StdoutOnly      bool
	ProxyMode       bool
	ExportMode      bool
}

// Summary is the result of a successful keygen operation.
type Summary struct {
	OutputPath        string   `json:"output_path,omitempty"`
	PublicRecipient   string   `json:"public_recipient,omitempty"`
	FingerprintMD5    string   `json:"fingerprint_md5,omitempty"`
	FingerprintSHA256 string   `json:"fingerprint_sha256,omitempty"`
	RegisteredGroups  []string `json:"registered_groups,omitempty"`
}

// GroupRegistry is the subset of recipient-group management keygen needs
// to validate and record --register requests. The lifecycle coordinator
// supplies the concrete implementation backed by internal/recipient.
type GroupRegistry interface {
	GroupExists(name string) bool
	AddToGroup(name, recipient string) error
}

// Service is the key generation entry point.
type Service struct {
	Groups GroupRegistry
}

// New constructs a Service. groups may be nil when group registration is
// never requested by any caller.
func New(groups GroupRegistry) *Service {
	return &Service{Groups: groups}
}

// Generate runs req and returns a summary, or an error from validation,
// subprocess execution, or filesystem I/O.
func (s *Service) Generate(req Request) (Summary, error) {
	if err := validateRequest(req); err != nil {
		return Summary{}, err
	}

	if req.RecipientsOnly {
		return s.recipientsOnly(req)
	}
	if req.ProxyMode {
		return s.proxyMode()
	}

	if err := CheckAgeKeygenAvailable(); err != nil {
		return Summary{}, err
	}

	outputPath := req.OutputPath
	if outputPath == "" {
		var err error
		if req.ExportMode {
			outputPath, err = ExportIdentityPath()
		} else {
			outputPath, err = DefaultIdentityPath()
		}
		if err != nil {
			return Summary{}, err
		}
	}

	if !req.StdoutOnly {
		if _, err := os.Stat(outputPath); err == nil && !req.Force {
			return Summary{}, ageerr.ConfigurationError("output_path", outputPath, "file already exists; use --force to overwrite")
		}
		if dir := filepath.Dir(outputPath); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return Summary{}, ageerr.FileError("mkdir", dir, err)
			}
		}
	}

	identity, err := runAgeKeygen(nil)
	if err != nil {
		return Summary{}, err
	}

	if !req.StdoutOnly {
		if err := os.WriteFile(outputPath, identity, 0o600); err != nil {
			return Summary{}, ageerr.FileError("write_identity", outputPath, err)
		}
		if err := os.Chmod(outputPath, 0o600); err != nil {
			return Summary{}, ageerr.FileError("set_permissions", outputPath, err)
		}
	}

	publicRecipient, err := extractRecipientFromBytes(identity)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{
		PublicRecipient:   publicRecipient,
		FingerprintMD5:    FingerprintMD5(publicRecipient),
		FingerprintSHA256: FingerprintSHA256(publicRecipient),
	}
	if !req.StdoutOnly {
		summary.OutputPath = outputPath
	}

	if !req.ExportMode && len(req.RegisterGroups) > 0 {
		registered, err := s.registerWithGroups(publicRecipient, req.RegisterGroups)
		if err != nil {
			return Summary{}, err
		}
		summary.RegisteredGroups = registered
	}

	return summary, nil
}

func validateRequest(req Request) error {
	if req.ExportMode && len(req.RegisterGroups) > 0 {
		return ageerr.InvalidOperation("keygen", "--export cannot be used with --register")
	}
	if req.RecipientsOnly && len(req.RegisterGroups) > 0 {
		return ageerr.InvalidOperation("keygen", "--recipients-only cannot be used with --register")
	}
	return nil
}

// recipientsOnly converts an existing identity file (or the proxied
// age-keygen -y call) into its public recipient, without generating a
// new identity.
func (s *Service) recipientsOnly(req Request) (Summary, error) {
	if err := CheckAgeKeygenAvailable(); err != nil {
		return Summary{}, err
	}
	if req.InputPath == "" {
		return Summary{}, ageerr.InvalidOperation("keygen", "--recipients-only requires an input identity path")
	}

	publicRecipient, err := ExtractRecipient(req.InputPath)
	if err != nil {
		return Summary{}, err
	}

	return Summary{
		OutputPath:        req.OutputPath,
		PublicRecipient:   publicRecipient,
		FingerprintMD5:    FingerprintMD5(publicRecipient),
		FingerprintSHA256: FingerprintSHA256(publicRecipient),
	}, nil
}

// proxyMode passes stdin/stdout/stderr straight through to age-keygen,
// capturing nothing.
func (s *Service) proxyMode() (Summary, error) {
	if err := CheckAgeKeygenAvailable(); err != nil {
		return Summary{}, err
	}
	cmd := exec.Command("age-keygen")
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return Summary{}, ageerr.ProcessExecutionFailed("age-keygen", exitCode(err), "")
	}
	return Summary{}, nil
}

func (s *Service) registerWithGroups(recipient string, groups []string) ([]string, error) {
	if s.Groups == nil {
		return nil, ageerr.InvalidOperation("keygen", "recipient group registry required for --register")
	}
	registered := make([]string, 0, len(groups))
	for _, name := range groups {
		if !s.Groups.GroupExists(name) {
			return nil, ageerr.ConfigurationError("register_group", name, "no such recipient group")
		}
		if err := s.Groups.AddToGroup(name, recipient); err != nil {
			return nil, err
		}
		registered = append(registered, name)
	}
	return registered, nil
}

// CheckAgeKeygenAvailable verifies age-keygen is on PATH.
func CheckAgeKeygenAvailable() error {
	if _, err := exec.LookPath("age-keygen"); err != nil {
		return ageerr.DependencyMissing("age-keygen", "install age (https://github.com/FiloSottile/age) to provide age-keygen")
	}
	return nil
}

// DefaultIdentityPath returns "<XDG_CONFIG_HOME or ~/.config>/cage/identities/identity-<UTC YYYYMMDDhhmmss>.cagekey".
func DefaultIdentityPath() (string, error) {
	dir, err := identityDir()
	if err != nil {
		return "", err
	}
	name := "identity-" + formatTimestamp(time.Now()) + ".cagekey"
	return filepath.Join(dir, name), nil
}

// ExportIdentityPath returns a plain current-directory name for --export,
// matching the original's export-to-cwd semantics.
func ExportIdentityPath() (string, error) {
	name := "identity-" + formatTimestamp(time.Now()) + ".cagekey"
	return name, nil
}

func identityDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "cage", "identities"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", ageerr.IoError("resolve_home", "identity_directory", err)
	}
	return filepath.Join(home, ".config", "cage", "identities"), nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format("20060102150405")
}

// ExtractRecipient runs "age-keygen -y <path>" and returns the trimmed
// public recipient line.
func ExtractRecipient(identityPath string) (string, error) {
	out, err := exec.Command("age-keygen", "-y", identityPath).Output()
	if err != nil {
		return "", ageerr.ProcessExecutionFailed("age-keygen -y", exitCode(err), stderrOf(err))
	}
	return strings.TrimSpace(string(out)), nil
}

func extractRecipientFromBytes(identity []byte) (string, error) {
	tmp, err := os.CreateTemp("", "cage-identity-*.tmp")
	if err != nil {
		return "", ageerr.TemporaryResourceError("file", "create", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(identity); err != nil {
		tmp.Close()
		return "", ageerr.FileError("write", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return "", ageerr.FileError("close", tmp.Name(), err)
	}
	return ExtractRecipient(tmp.Name())
}

func runAgeKeygen(args []string) ([]byte, error) {
	cmd := exec.Command("age-keygen", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, ageerr.ProcessExecutionFailed("age-keygen", exitCode(err), stderr.String())
	}
	return stdout.Bytes(), nil
}

// FingerprintMD5 returns the hex-encoded MD5 digest of recipient.
func FingerprintMD5(recipient string) string {
	sum := md5.Sum([]byte(recipient))
	return hex.EncodeToString(sum[:])
}

// FingerprintSHA256 returns the hex-encoded SHA-256 digest of recipient.
func FingerprintSHA256(recipient string) string {
	sum := sha256.Sum256([]byte(recipient))
	return hex.EncodeToString(sum[:])
}

func exitCode(err error) *int {
	var exitErr *exec.ExitError
	if ok := asExitError(err, &exitErr); ok {
		code := exitErr.ExitCode()
		return &code
	}
	return nil
}

func asExitError(err error, target **exec.ExitError) bool {
	if e, ok := err.(*exec.ExitError); ok {
		*target = e
		return true
	}
	return false
}

func stderrOf(err error) string {
	var exitErr *exec.ExitError
	if asExitError(err, &exitErr) {
		return string(exitErr.Stderr)
	}
	return ""
}
