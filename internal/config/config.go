// Package config holds cage's immutable resolved configuration: the
// settings every other component reads but none of them (besides
// AgeConfig itself) is allowed to mutate once the coordinator has been
// constructed.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/padlokk/cage/internal/ageerr"
)

// OutputFormat selects whether age emits binary or ASCII-armored ciphertext.
type OutputFormat int

const (
	FormatBinary OutputFormat = iota
	FormatAsciiArmor
)

func (f OutputFormat) String() string {
	if f == FormatAsciiArmor {
		return "ascii-armor"
	}
	return "binary"
}

// AgeFlag returns the age CLI flag for this format, or "" for binary.
func (f OutputFormat) AgeFlag() string {
	if f == FormatAsciiArmor {
		return "-a"
	}
	return ""
}

// ParseOutputFormat accepts "binary"/"ascii"/"armor" (case-insensitive).
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(s) {
	case "", "binary":
		return FormatBinary, nil
	case "ascii", "armor", "ascii-armor":
		return FormatAsciiArmor, nil
	default:
		return FormatBinary, ageerr.ConfigurationError("format", s, "valid values: binary, ascii")
	}
}

// TtyMethod identifies how age's interactive prompts are automated.
// Only TtyPty is ever selected; the unexported legacy values exist only
// for String(), and cage.toml has no setting for the TTY method.
type TtyMethod int

const (
	TtyPty TtyMethod = iota
	ttyScriptLegacy
	ttyExpectLegacy
)

func (m TtyMethod) String() string {
	switch m {
	case TtyPty:
		return "pty"
	case ttyScriptLegacy:
		return "script"
	case ttyExpectLegacy:
		return "expect"
	default:
		return "unknown"
	}
}

// SecurityLevel governs default timeouts and whether advisory checks
// (weak passphrase, insecure argv usage) become hard failures.
type SecurityLevel int

const (
	SecurityBasic SecurityLevel = iota
	SecurityStandard
	SecurityParanoid
)

func (l SecurityLevel) String() string {
	switch l {
	case SecurityBasic:
		return "basic"
	case SecurityParanoid:
		return "paranoid"
	default:
		return "standard"
	}
}

// ValidationTimeout returns the timeout used for security validation
// passes at this level.
func (l SecurityLevel) ValidationTimeout() time.Duration {
	switch l {
	case SecurityBasic:
		return 5 * time.Second
	case SecurityParanoid:
		return 30 * time.Second
	default:
		return 10 * time.Second
	}
}

// RetentionKind identifies the shape of a RetentionPolicy.
type RetentionKind int

const (
	RetentionKeepAll RetentionKind = iota
	RetentionKeepDays
	RetentionKeepLast
	RetentionKeepLastAndDays
)

// RetentionPolicy describes which backup entries are eligible for
// deletion by the backup registry's retention pass.
type RetentionPolicy struct {
	Kind RetentionKind
	Last int    // KeepLast, KeepLastAndDays
	Days uint32 // KeepDays, KeepLastAndDays
}

func KeepAll() RetentionPolicy { return RetentionPolicy{Kind: RetentionKeepAll} }
func KeepDays(days uint32) RetentionPolicy {
	return RetentionPolicy{Kind: RetentionKeepDays, Days: days}
}
func KeepLast(n int) RetentionPolicy { return RetentionPolicy{Kind: RetentionKeepLast, Last: n} }
func KeepLastAndDays(n int, days uint32) RetentionPolicy {
	return RetentionPolicy{Kind: RetentionKeepLastAndDays, Last: n, Days: days}
}

// ParseRetentionPolicy parses the cage.toml retention grammar:
// keep_all | keep_days:<u32> | keep_last:<usize> | keep_last_and_days:<usize>,<u32>
func ParseRetentionPolicy(s string) (RetentionPolicy, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "keep_all" {
		return KeepAll(), nil
	}

	name, rest, hasArg := strings.Cut(s, ":")
	switch name {
	case "keep_days":
		days, err := strconv.ParseUint(rest, 10, 32)
		if err != nil || !hasArg {
			return RetentionPolicy{}, ageerr.ConfigurationError("backup_retention", s, "keep_days requires a numeric day count")
		}
		return KeepDays(uint32(days)), nil
	case "keep_last":
		n, err := strconv.Atoi(rest)
		if err != nil || !hasArg {
			return RetentionPolicy{}, ageerr.ConfigurationError("backup_retention", s, "keep_last requires a numeric count")
		}
		return KeepLast(n), nil
	case "keep_last_and_days":
		parts := strings.SplitN(rest, ",", 2)
		if !hasArg || len(parts) != 2 {
			return RetentionPolicy{}, ageerr.ConfigurationError("backup_retention", s, "keep_last_and_days requires <n>,<days>")
		}
		n, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
		days, err2 := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 32)
		if err1 != nil || err2 != nil {
			return RetentionPolicy{}, ageerr.ConfigurationError("backup_retention", s, "keep_last_and_days requires <n>,<days>")
		}
		return KeepLastAndDays(n, uint32(days)), nil
	default:
		return RetentionPolicy{}, ageerr.ConfigurationError("backup_retention", s, "valid values: keep_all, keep_days:<n>, keep_last:<n>, keep_last_and_days:<n>,<d>")
	}
}

// StreamingStrategyHint is the caller-supplied preference consulted by
// the streaming strategy selector (component F).
type StreamingStrategyHint int

const (
	StreamingAuto StreamingStrategyHint = iota
	StreamingStaging
	StreamingPipe
)

func ParseStreamingHint(s string) (StreamingStrategyHint, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return StreamingAuto, nil
	case "staging", "temp":
		return StreamingStaging, nil
	case "pipe":
		return StreamingPipe, nil
	default:
		return StreamingAuto, ageerr.ConfigurationError("streaming_strategy", s, "valid values: staging, pipe, auto")
	}
}

// AgeConfig is cage's immutable, resolved configuration. Once handed to
// the lifecycle coordinator it is shared read-only for the lifetime of
// one process invocation.
type AgeConfig struct {
	SourcePath string // empty if defaults were used, no file found

	OutputFormat        OutputFormat
	TtyMethod           TtyMethod
	SecurityLevel       SecurityLevel
	MaxPassphraseLength int
	OperationTimeout    time.Duration

	AgeBinaryPath    string // empty => auto-detect "age" on PATH
	AgeKeygenPath    string // empty => auto-detect "age-keygen" on PATH

	AuditLogging bool
	AuditLogPath string // empty => stderr only
	AuditFormat  string // "text" or "json"

	SecurityValidation bool
	HealthChecks       bool
	MaxRetries         uint32
	RetryDelay         time.Duration
	SecureDeletion     bool
	TempDirOverride    string

	EncryptedFileExtensions []string // default {age, cage, padlock}

	BackupCleanup       bool
	BackupDirectory     string
	BackupRetention     RetentionPolicy
	StreamingStrategy   StreamingStrategyHint
}

// Default returns cage's baseline configuration (Standard security level).
func Default() AgeConfig {
	return AgeConfig{
		OutputFormat:            FormatBinary,
		TtyMethod:               TtyPty,
		SecurityLevel:           SecurityStandard,
		MaxPassphraseLength:     1024,
		OperationTimeout:        30 * time.Second,
		AuditLogging:            true,
		AuditFormat:             "text",
		SecurityValidation:      true,
		HealthChecks:            false,
		MaxRetries:              3,
		RetryDelay:              time.Second,
		SecureDeletion:          true,
		EncryptedFileExtensions: []string{"age", "cage", "padlock"},
		BackupCleanup:           true,
		BackupRetention:         KeepLast(3),
		StreamingStrategy:       StreamingAuto,
	}
}

// Production mirrors the original implementation's "production" preset:
// standard security, audit logging and health checks mandatory.
func Production() AgeConfig {
	c := Default()
	c.AuditLogging = true
	c.SecurityValidation = true
	c.HealthChecks = true
	c.SecureDeletion = true
	c.MaxRetries = 3
	return c
}

// Testing mirrors the original implementation's "testing" preset: paranoid
// validation, fast timeouts, zero retries so failures surface immediately.
func Testing() AgeConfig {
	c := Default()
	c.SecurityLevel = SecurityParanoid
	c.AuditLogging = true
	c.SecurityValidation = true
	c.HealthChecks = true
	c.SecureDeletion = true
	c.MaxRetries = 0
	c.OperationTimeout = 10 * time.Second
	return c
}

// Validate enforces the bounds named in spec §4.B.
func (c AgeConfig) Validate() error {
	if c.MaxPassphraseLength <= 0 {
		return ageerr.ConfigurationError("max_passphrase_length", fmt.Sprint(c.MaxPassphraseLength), "must be greater than 0")
	}
	if c.MaxPassphraseLength > 10_000 {
		return ageerr.ConfigurationError("max_passphrase_length", fmt.Sprint(c.MaxPassphraseLength), "unreasonably large, maximum 10,000 characters")
	}
	if c.OperationTimeout <= 0 {
		return ageerr.ConfigurationError("operation_timeout", c.OperationTimeout.String(), "must be greater than 0 seconds")
	}
	if c.OperationTimeout > time.Hour {
		return ageerr.ConfigurationError("operation_timeout", c.OperationTimeout.String(), "unreasonably large, maximum 1 hour")
	}
	if c.MaxRetries > 10 {
		return ageerr.ConfigurationError("max_retries", fmt.Sprint(c.MaxRetries), "maximum 10 retries allowed")
	}
	if len(c.EncryptedFileExtensions) == 0 {
		return ageerr.ConfigurationError("encrypted_file_extensions", "", "must name at least one extension")
	}
	return nil
}

// IsEncryptedFile reports whether path's extension is in the configured
// encrypted-extension set. No magic-byte sniffing is performed.
func (c AgeConfig) IsEncryptedFile(path string) bool {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return false
	}
	for _, e := range c.EncryptedFileExtensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

// PrimaryExtension returns the first configured extension, with a
// leading dot, used to name new lock output files.
func (c AgeConfig) PrimaryExtension() string {
	if len(c.EncryptedFileExtensions) == 0 {
		return ".age"
	}
	return "." + c.EncryptedFileExtensions[0]
}

// fileConfig mirrors cage.toml's shape for BurntSushi/toml decoding.
type fileConfig struct {
	Backup struct {
		CleanupOnSuccess bool   `toml:"cleanup_on_success"`
		Directory        string `toml:"directory"`
		Retention        string `toml:"retention"`
	} `toml:"backup"`
	Streaming struct {
		Strategy string `toml:"strategy"`
	} `toml:"streaming"`
}

// DefaultConfigPaths returns the ordered list of paths searched by
// LoadDefault, highest priority first: CAGE_CONFIG env override, then
// XDG_CONFIG_HOME, then $HOME/.config, then ./cage.toml.
func DefaultConfigPaths() []string {
	var paths []string
	if p := os.Getenv("CAGE_CONFIG"); p != "" {
		paths = append(paths, p)
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, "cage", "cage.toml"))
	}
	if home := os.Getenv("HOME"); home != "" {
		paths = append(paths, filepath.Join(home, ".config", "cage", "cage.toml"))
	}
	paths = append(paths, "cage.toml")
	return paths
}

// LoadDefault searches DefaultConfigPaths in order and loads the first
// one that exists; if none exist, it returns Default().
func LoadDefault() (AgeConfig, error) {
	for _, path := range DefaultConfigPaths() {
		if _, err := os.Stat(path); err == nil {
			return LoadFromPath(path)
		}
	}
	return Default(), nil
}

// LoadFromPath decodes a cage.toml file at path and layers it over
// Default().
func LoadFromPath(path string) (AgeConfig, error) {
	cfg := Default()

	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return AgeConfig{}, ageerr.ConfigurationError("source_path", path, err.Error())
	}

	cfg.SourcePath = path
	cfg.BackupCleanup = fc.Backup.CleanupOnSuccess
	if fc.Backup.Directory != "" {
		cfg.BackupDirectory = fc.Backup.Directory
	}
	if fc.Backup.Retention != "" {
		policy, err := ParseRetentionPolicy(fc.Backup.Retention)
		if err != nil {
			return AgeConfig{}, err
		}
		cfg.BackupRetention = policy
	}
	if fc.Streaming.Strategy != "" {
		hint, err := ParseStreamingHint(fc.Streaming.Strategy)
		if err != nil {
			return AgeConfig{}, err
		}
		cfg.StreamingStrategy = hint
	}

	if err := cfg.Validate(); err != nil {
		return AgeConfig{}, err
	}
	return cfg, nil
}
