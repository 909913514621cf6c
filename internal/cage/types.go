package cage

import (
	"path/filepath"

	"github.com/padlokk/cage/internal/config"
	"github.com/padlokk/cage/internal/identity"
)

// InPlaceOptions mirrors the in-place flag group carried on every
// request's CommonOptions.
type InPlaceOptions struct {
	Enabled    bool
	DangerMode bool
	IAmSure    bool
}

// CommonOptions collects the option surface shared by every request
// type (spec §3 Data Model).
type CommonOptions struct {
	Recursive               bool
	PatternFilter            string
	BackupBeforeLock         bool
	BackupDirOverride        string
	InPlace                  InPlaceOptions
	Format                   config.OutputFormat
	AuditLogOverride         string
	Verbose                  bool
	ShowProgress             bool
	StreamingStrategyOverride config.StreamingStrategyHint
}

// LockRequest encrypts input, either under an Identity (passphrase
// automation) or a list of recipients (public-key encryption, no PTY).
type LockRequest struct {
	Input      string
	Recipients []string
	Identity   identity.Identity
	Common     CommonOptions
}

// UnlockRequest decrypts input under Identity.
type UnlockRequest struct {
	Input             string
	Identity          identity.Identity
	Common            CommonOptions
	Selective         bool
	PreserveEncrypted bool
}

// RotateRequest decrypts input under OldIdentity and re-encrypts it
// under NewIdentity, replacing it atomically.
type RotateRequest struct {
	Input       string
	OldIdentity identity.Identity
	NewIdentity identity.Identity
	Common      CommonOptions
}

// VerifyRequest attempts a discard-writer decrypt of input under Identity.
type VerifyRequest struct {
	Input    string
	Identity identity.Identity
	Common   CommonOptions
}

// StatusRequest classifies input by configured extension, descending into
// subdirectories only when Common.Recursive is set.
type StatusRequest struct {
	Input  string
	Common CommonOptions
}

// BatchOperation names the operation a BatchRequest applies to every
// matched file.
type BatchOperation int

const (
	BatchLock BatchOperation = iota
	BatchUnlock
	BatchVerify
	BatchRotate
)

func (o BatchOperation) String() string {
	switch o {
	case BatchLock:
		return "lock"
	case BatchUnlock:
		return "unlock"
	case BatchVerify:
		return "verify"
	case BatchRotate:
		return "rotate"
	default:
		return "unknown"
	}
}

// BatchRequest applies Operation to every file under Directory matching
// Common.PatternFilter.
type BatchRequest struct {
	Directory   string
	Operation   BatchOperation
	Identity    identity.Identity
	NewIdentity identity.Identity
	Common      CommonOptions
}

// StreamOperation selects encrypt or decrypt for a StreamRequest.
type StreamOperation int

const (
	StreamEncrypt StreamOperation = iota
	StreamDecrypt
)

// OperationResult aggregates the outcome of a (possibly multi-file)
// operation. Per-file failures are recorded here rather than aborting
// the batch.
type OperationResult struct {
	ProcessedFiles  []string
	FailedFiles     []string
	ExecutionTimeMs int64
	FirstError      error
}

func newOperationResult() *OperationResult {
	return &OperationResult{}
}

func (r *OperationResult) addSuccess(path string) {
	r.ProcessedFiles = append(r.ProcessedFiles, path)
}

func (r *OperationResult) addFailure(path string, err error) {
	r.FailedFiles = append(r.FailedFiles, path)
	if r.FirstError == nil {
		r.FirstError = err
	}
}

// Success reports whether no file failed.
func (r *OperationResult) Success() bool { return len(r.FailedFiles) == 0 }

// RepositoryStatus summarizes encryption state across a path.
type RepositoryStatus struct {
	TotalFiles       int
	EncryptedFiles   int
	UnencryptedFiles int
	FailedFiles      []string
}

// EncryptionPercentage is the derived field named in the data model.
func (s RepositoryStatus) EncryptionPercentage() float64 {
	if s.TotalFiles == 0 {
		return 0
	}
	return 100 * float64(s.EncryptedFiles) / float64(s.TotalFiles)
}

// VerificationResult is the outcome of Verify / BatchVerify.
type VerificationResult struct {
	VerifiedFiles []string
	FailedFiles   []string
	OverallStatus string
}

func lockOutputPath(input string, cfg config.AgeConfig) string {
	return input + cfg.PrimaryExtension()
}

func unlockOutputPath(input string, cfg config.AgeConfig) string {
	ext := filepath.Ext(input)
	if ext == "" {
		return input
	}
	trimmed := ext[1:]
	for _, e := range cfg.EncryptedFileExtensions {
		if trimmed == e {
			return input[:len(input)-len(ext)]
		}
	}
	return input + ".decrypted"
}
