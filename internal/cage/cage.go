// Package cage implements the lifecycle coordinator: the public façade
// that accepts typed requests, validates preconditions, resolves the
// streaming strategy, drives the adapter, manages backups and in-place
// safety, and emits audit events for every operation.
//
// Grounded in the original cage::lifecycle::CrudManager, generalized
// from its direct adapter calls to route through this module's typed
// Identity/streaming/backup/in-place components.
package cage

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/padlokk/cage/internal/adapter"
	"github.com/padlokk/cage/internal/ageerr"
	"github.com/padlokk/cage/internal/audit"
	"github.com/padlokk/cage/internal/backup"
	"github.com/padlokk/cage/internal/config"
	"github.com/padlokk/cage/internal/identity"
	"github.com/padlokk/cage/internal/inplace"
	"github.com/padlokk/cage/internal/streaming"
)

var reservedParanoidRoots = []string{"/etc", "/proc", "/sys", "/dev"}

const maxHistory = 500

// historyRecord is one bounded in-memory diagnostic entry.
type historyRecord struct {
	OperationID string
	Operation   string
	Path        string
	Success     bool
	DurationMs  int64
	Details     map[string]string
}

// Manager is the lifecycle coordinator (spec component J): the only
// type application callers (the CLI, or a library consumer) construct
// directly.
type Manager struct {
	cfg      config.AgeConfig
	adapter  adapter.Adapter
	selector *streaming.Selector
	backups  *backup.Manager
	groups   *GroupStore
	logger   audit.Logger
	history  []historyRecord
}

// New constructs a Manager from cfg, building its own PtyAdapter. logger
// may be nil (becomes audit.Null()).
func New(cfg config.AgeConfig, logger audit.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = audit.Null()
	}

	a, err := adapter.New(cfg)
	if err != nil {
		return nil, err
	}

	backupDir := cfg.BackupDirectory
	if backupDir == "" {
		backupDir = ".cage-backups"
	}

	return &Manager{
		cfg:      cfg,
		adapter:  a,
		selector: streaming.New(a, cfg),
		backups:  backup.NewManager(backupDir, cfg.BackupRetention),
		groups:   NewGroupStore(),
		logger:   logger,
	}, nil
}

// Close releases the underlying adapter's resources.
func (m *Manager) Close() error {
	if closer, ok := m.adapter.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// Groups exposes the coordinator's recipient-group registry for
// authority management operations (create/list/add/remove/audit).
func (m *Manager) Groups() *GroupStore { return m.groups }

// Logger exposes the coordinator's audit sink so callers (the CLI's
// passphrase broker, in particular) can register redactions against the
// same sinks the coordinator itself logs to.
func (m *Manager) Logger() audit.Logger { return m.logger }

// HealthCheck delegates to the adapter's round-trip self-test.
func (m *Manager) HealthCheck() error {
	err := m.adapter.HealthCheck()
	audit.HealthCheck(m.logger, err == nil, detailOf(err))
	return err
}

// ============================================================================
// Lock
// ============================================================================

// Lock encrypts req.Input (a file or, with Common.Recursive, a directory).
func (m *Manager) Lock(req LockRequest) (*OperationResult, error) {
	opID := uuid.NewString()
	start := time.Now()
	audit.OperationStart(m.logger, opID, "lock", req.Input)

	if err := m.validatePreconditions(req.Input, req.Common); err != nil {
		audit.OperationFailure(m.logger, opID, "lock", err)
		return nil, err
	}
	if len(req.Recipients) == 0 {
		if err := validatePassphraseIdentity(m.cfg, req.Identity); err != nil {
			audit.OperationFailure(m.logger, opID, "lock", err)
			return nil, err
		}
	}
	if _, err := streaming.Resolve(req.Identity, req.Recipients, effectiveHint(m.cfg, req.Common)); err != nil {
		audit.OperationFailure(m.logger, opID, "lock", err)
		return nil, err
	}

	result := newOperationResult()
	info, err := os.Stat(req.Input)
	if err != nil {
		return nil, ageerr.FileError("stat", req.Input, err)
	}

	if info.IsDir() {
		m.lockTree(req, result)
	} else {
		m.lockOne(req, result)
	}

	result.ExecutionTimeMs = time.Since(start).Milliseconds()
	m.finish(opID, "lock", req.Input, result)
	return result, nil
}

func (m *Manager) lockTree(req LockRequest, result *OperationResult) {
	files, err := enumerateFiles(req.Input, req.Common.PatternFilter, req.Common.Recursive)
	if err != nil {
		result.addFailure(req.Input, err)
		return
	}
	for _, f := range files {
		fileReq := req
		fileReq.Input = f
		m.lockOne(fileReq, result)
	}
}

func (m *Manager) lockOne(req LockRequest, result *OperationResult) {
	if req.Common.BackupBeforeLock {
		if err := m.createBackup(req.Input, req.Common.BackupDirOverride); err != nil {
			result.addFailure(req.Input, err)
			return
		}
	}

	var err error
	if req.Common.InPlace.Enabled {
		err = m.lockInPlace(req)
	} else {
		dst := lockOutputPath(req.Input, m.cfg)
		err = m.adapter.EncryptFile(req.Input, dst, req.Identity, req.Recipients, req.Common.Format)
	}

	m.logEncryption(req.Input, req.Identity, req.Recipients, err == nil)
	if err != nil {
		result.addFailure(req.Input, err)
		return
	}
	result.addSuccess(req.Input)
}

func (m *Manager) lockInPlace(req LockRequest) error {
	if err := inplace.Validate(inplace.Options(req.Common.InPlace), req.Input, os.Stdin, os.Stderr); err != nil {
		return err
	}
	pw, err := passphraseForRecovery(req.Identity)
	if err != nil {
		return err
	}
	op := inplace.New(req.Input)
	return op.ExecuteLock(pw, req.Common.InPlace.DangerMode, func(src, dst, _ string) error {
		return m.adapter.EncryptToPath(src, dst, req.Identity, req.Recipients, req.Common.Format)
	})
}

// ============================================================================
// Unlock
// ============================================================================

// Unlock decrypts req.Input.
func (m *Manager) Unlock(req UnlockRequest) (*OperationResult, error) {
	opID := uuid.NewString()
	start := time.Now()
	audit.OperationStart(m.logger, opID, "unlock", req.Input)

	if err := m.validatePreconditions(req.Input, req.Common); err != nil {
		audit.OperationFailure(m.logger, opID, "unlock", err)
		return nil, err
	}
	if err := validatePassphraseIdentity(m.cfg, req.Identity); err != nil {
		audit.OperationFailure(m.logger, opID, "unlock", err)
		return nil, err
	}

	result := newOperationResult()
	info, err := os.Stat(req.Input)
	if err != nil {
		return nil, ageerr.FileError("stat", req.Input, err)
	}

	var files []string
	if info.IsDir() {
		files, err = enumerateEncryptedFiles(req.Input, req.Common.PatternFilter, req.Common.Recursive, m.cfg)
		if err != nil {
			return nil, err
		}
	} else {
		files = []string{req.Input}
	}

	for _, f := range files {
		if req.Selective {
			if verr := m.verifyFile(f, req.Identity); verr != nil {
				result.addFailure(f, verr)
				continue
			}
		}
		if err := m.unlockOne(f, req); err != nil {
			result.addFailure(f, err)
			continue
		}
		result.addSuccess(f)
	}

	result.ExecutionTimeMs = time.Since(start).Milliseconds()
	m.finish(opID, "unlock", req.Input, result)
	return result, nil
}

func (m *Manager) unlockOne(file string, req UnlockRequest) error {
	var err error
	if req.Common.InPlace.Enabled {
		err = m.unlockInPlace(file, req)
	} else {
		dst := unlockOutputPath(file, m.cfg)
		err = m.adapter.DecryptFile(file, dst, req.Identity)
		if err == nil && !req.PreserveEncrypted {
			_ = os.Remove(file)
		}
	}
	m.logDecryption(file, req.Identity, err == nil)
	return err
}

func (m *Manager) unlockInPlace(file string, req UnlockRequest) error {
	if err := inplace.Validate(inplace.Options(req.Common.InPlace), file, os.Stdin, os.Stderr); err != nil {
		return err
	}
	pw, err := passphraseForRecovery(req.Identity)
	if err != nil {
		return err
	}
	op := inplace.New(file)
	return op.ExecuteUnlock(pw, func(src, dst, _ string) error {
		return m.adapter.DecryptToPath(src, dst, req.Identity)
	})
}

// verifyFile performs a trial decrypt into a discard writer, used by
// selective unlock to screen candidates before the real decrypt.
func (m *Manager) verifyFile(file string, id identity.Identity) error {
	f, err := os.Open(file)
	if err != nil {
		return ageerr.FileError("open", file, err)
	}
	defer f.Close()
	_, err = m.adapter.DecryptStream(f, io.Discard, id)
	return err
}

// ============================================================================
// Rotate
// ============================================================================

// Rotate decrypts req.Input under OldIdentity and re-encrypts it under
// NewIdentity, replacing it atomically. On re-encrypt failure the
// original is left untouched.
func (m *Manager) Rotate(req RotateRequest) (*OperationResult, error) {
	opID := uuid.NewString()
	start := time.Now()
	audit.OperationStart(m.logger, opID, "rotate", req.Input)

	if err := m.validatePreconditions(req.Input, req.Common); err != nil {
		audit.OperationFailure(m.logger, opID, "rotate", err)
		return nil, err
	}

	result := newOperationResult()
	info, err := os.Stat(req.Input)
	if err != nil {
		return nil, ageerr.FileError("stat", req.Input, err)
	}

	var files []string
	if info.IsDir() {
		files, err = enumerateEncryptedFiles(req.Input, req.Common.PatternFilter, req.Common.Recursive, m.cfg)
		if err != nil {
			return nil, err
		}
	} else {
		files = []string{req.Input}
	}

	for _, f := range files {
		if req.Common.BackupBeforeLock {
			if err := m.createBackup(f, req.Common.BackupDirOverride); err != nil {
				result.addFailure(f, err)
				continue
			}
		}
		if err := m.rotateOne(f, req); err != nil {
			result.addFailure(f, err)
			continue
		}
		result.addSuccess(f)
	}

	result.ExecutionTimeMs = time.Since(start).Milliseconds()
	m.finish(opID, "rotate", req.Input, result)
	return result, nil
}

func (m *Manager) rotateOne(file string, req RotateRequest) error {
	dir, err := os.MkdirTemp("", "cage-rotate-*")
	if err != nil {
		return ageerr.TemporaryResourceError("directory", "create", err)
	}
	defer os.RemoveAll(dir)

	plaintext := filepath.Join(dir, "plain")
	reencrypted := filepath.Join(dir, "cipher")

	if err := m.adapter.DecryptFile(file, plaintext, req.OldIdentity); err != nil {
		return err
	}
	if err := m.adapter.EncryptFile(plaintext, reencrypted, req.NewIdentity, nil, req.Common.Format); err != nil {
		// Re-encrypt failed; the original file was never touched.
		return err
	}
	if err := os.Rename(reencrypted, file); err != nil {
		return ageerr.FileError("atomic_replace", file, err)
	}
	return nil
}

// ============================================================================
// Verify
// ============================================================================

// Verify attempts a discard-writer decrypt of each candidate file,
// recording pass/fail per file without aborting the batch.
func (m *Manager) Verify(req VerifyRequest) (*VerificationResult, error) {
	opID := uuid.NewString()
	audit.OperationStart(m.logger, opID, "verify", req.Input)

	if _, err := os.Stat(req.Input); err != nil {
		err = ageerr.FileError("stat", req.Input, err)
		audit.OperationFailure(m.logger, opID, "verify", err)
		return nil, err
	}

	info, _ := os.Stat(req.Input)
	var files []string
	var err error
	if info.IsDir() {
		files, err = enumerateEncryptedFiles(req.Input, req.Common.PatternFilter, req.Common.Recursive, m.cfg)
		if err != nil {
			return nil, err
		}
	} else {
		files = []string{req.Input}
	}

	result := &VerificationResult{OverallStatus: "verification completed"}
	for _, f := range files {
		if err := m.verifyFile(f, req.Identity); err != nil {
			result.FailedFiles = append(result.FailedFiles, f)
		} else {
			result.VerifiedFiles = append(result.VerifiedFiles, f)
		}
	}
	if len(result.FailedFiles) > 0 {
		result.OverallStatus = "verification failed"
	}

	audit.OperationComplete(m.logger, opID, "verify", 0)
	return result, nil
}

// ============================================================================
// Status
// ============================================================================

// Status classifies files under req.Input by configured extension,
// without attempting decryption.
func (m *Manager) Status(req StatusRequest) (*RepositoryStatus, error) {
	if _, err := os.Stat(req.Input); err != nil {
		return nil, ageerr.FileError("stat", req.Input, err)
	}

	info, _ := os.Stat(req.Input)
	status := &RepositoryStatus{}

	var files []string
	if info.IsDir() {
		var err error
		files, err = enumerateFiles(req.Input, req.Common.PatternFilter, req.Common.Recursive)
		if err != nil {
			return nil, err
		}
	} else {
		files = []string{req.Input}
	}

	for _, f := range files {
		status.TotalFiles++
		if m.cfg.IsEncryptedFile(f) {
			status.EncryptedFiles++
		} else {
			status.UnencryptedFiles++
		}
	}

	audit.StatusCheck(m.logger, req.Input, status.TotalFiles, status.EncryptedFiles, status.UnencryptedFiles)
	return status, nil
}

// ============================================================================
// Batch
// ============================================================================

// Batch applies req.Operation to every file under req.Directory matching
// the common pattern filter.
func (m *Manager) Batch(req BatchRequest) (*OperationResult, error) {
	opID := uuid.NewString()
	start := time.Now()
	audit.OperationStart(m.logger, opID, "batch_"+req.Operation.String(), req.Directory)

	info, err := os.Stat(req.Directory)
	if err != nil || !info.IsDir() {
		err := ageerr.InvalidOperation("batch", "directory path required")
		audit.OperationFailure(m.logger, opID, "batch", err)
		return nil, err
	}

	result := newOperationResult()
	switch req.Operation {
	case BatchLock:
		m.lockTree(LockRequest{Input: req.Directory, Identity: req.Identity, Common: req.Common}, result)
	case BatchUnlock:
		sub, err := m.Unlock(UnlockRequest{Input: req.Directory, Identity: req.Identity, Common: req.Common})
		if err != nil {
			return nil, err
		}
		result = sub
	case BatchVerify:
		vr, err := m.Verify(VerifyRequest{Input: req.Directory, Identity: req.Identity, Common: req.Common})
		if err != nil {
			return nil, err
		}
		result.ProcessedFiles = vr.VerifiedFiles
		result.FailedFiles = vr.FailedFiles
	case BatchRotate:
		sub, err := m.Rotate(RotateRequest{
			Input:       req.Directory,
			OldIdentity: req.Identity,
			NewIdentity: req.NewIdentity,
			Common:      req.Common,
		})
		if err != nil {
			return nil, err
		}
		result = sub
	default:
		err := ageerr.InvalidOperation("batch", "unsupported batch operation")
		audit.OperationFailure(m.logger, opID, "batch", err)
		return nil, err
	}

	result.ExecutionTimeMs = time.Since(start).Milliseconds()
	m.finish(opID, "batch_"+req.Operation.String(), req.Directory, result)
	return result, nil
}

// ============================================================================
// Stream
// ============================================================================

// Stream runs one streaming encrypt/decrypt through the streaming
// strategy selector, used by the proxy CLI command and library callers
// that hold readers/writers rather than paths.
func (m *Manager) Stream(op StreamOperation, r io.Reader, w io.Writer, id identity.Identity, recipients []string, format config.OutputFormat, common CommonOptions) (int64, error) {
	hint := effectiveHint(m.cfg, common)
	switch op {
	case StreamEncrypt:
		n, _, err := m.selector.Encrypt(r, w, id, recipients, format, hint)
		m.logEncryption("<stream>", id, recipients, err == nil)
		return n, err
	case StreamDecrypt:
		n, _, err := m.selector.Decrypt(r, w, id, hint)
		m.logDecryption("<stream>", id, err == nil)
		return n, err
	default:
		return 0, ageerr.InvalidOperation("stream", "unsupported stream operation")
	}
}

// ============================================================================
// Shared helpers
// ============================================================================

func (m *Manager) validatePreconditions(path string, common CommonOptions) error {
	info, err := os.Stat(path)
	if err != nil {
		return ageerr.FileError("stat", path, err)
	}
	if info.IsDir() && !common.Recursive {
		return ageerr.InvalidOperation("precondition", "directory requires the recursive flag")
	}
	if m.cfg.HealthChecks {
		if err := m.HealthCheck(); err != nil {
			return err
		}
	}
	return m.validateOutputPath(path)
}

func (m *Manager) validateOutputPath(path string) error {
	clean := filepath.Clean(path)
	if strings.Contains(clean, "..") {
		return ageerr.SecurityValidationFailed("path_traversal", "output path must not contain '..'")
	}
	if m.cfg.SecurityLevel == config.SecurityParanoid {
		abs, err := filepath.Abs(clean)
		if err == nil {
			for _, root := range reservedParanoidRoots {
				if abs == root || strings.HasPrefix(abs, root+string(filepath.Separator)) {
					return ageerr.SecurityValidationFailed("reserved_path", "paranoid mode forbids writes under "+root)
				}
			}
		}
	}
	return nil
}

func validatePassphraseIdentity(cfg config.AgeConfig, id identity.Identity) error {
	s, ok := id.Passphrase()
	if !ok {
		return nil
	}
	value := s.Value()
	if value == "" {
		return ageerr.PassphraseValidation("empty_passphrase", "passphrase must not be empty")
	}
	if len(value) > cfg.MaxPassphraseLength {
		return ageerr.PassphraseValidation("passphrase_too_long", "passphrase exceeds configured maximum length")
	}
	return nil
}

func passphraseForRecovery(id identity.Identity) (string, error) {
	s, ok := id.Passphrase()
	if !ok {
		return "", ageerr.InvalidOperation("in_place", "in-place operations require a Passphrase identity")
	}
	return s.Value(), nil
}

func effectiveHint(cfg config.AgeConfig, common CommonOptions) config.StreamingStrategyHint {
	if common.StreamingStrategyOverride != config.StreamingAuto {
		return common.StreamingStrategyOverride
	}
	return cfg.StreamingStrategy
}

func (m *Manager) createBackup(path, dirOverride string) error {
	if dirOverride == "" {
		_, err := m.backups.CreateBackupWithRetention(path)
		return err
	}
	override := backup.NewManager(dirOverride, m.cfg.BackupRetention)
	_, err := override.CreateBackupWithRetention(path)
	return err
}

func (m *Manager) logEncryption(path string, id identity.Identity, recipients []string, success bool) {
	hash := ""
	if len(recipients) > 0 {
		hash = audit.HashRecipients(recipients)
	}
	audit.Encryption(m.logger, path, id.Kind().String(), len(recipients), hash, "", "", success)
}

func (m *Manager) logDecryption(path string, id identity.Identity, success bool) {
	audit.Decryption(m.logger, path, id.Kind().String(), "", success)
}

func (m *Manager) finish(opID, operation, path string, result *OperationResult) {
	success := result.Success()
	if success {
		audit.OperationComplete(m.logger, opID, operation, result.ExecutionTimeMs)
	} else {
		audit.OperationFailure(m.logger, opID, operation, result.FirstError)
	}
	m.recordHistory(historyRecord{
		OperationID: opID,
		Operation:   operation,
		Path:        path,
		Success:     success,
		DurationMs:  result.ExecutionTimeMs,
		Details: map[string]string{
			"processed_files": strconv.Itoa(len(result.ProcessedFiles)),
			"failed_files":    strconv.Itoa(len(result.FailedFiles)),
		},
	})
}

func (m *Manager) recordHistory(rec historyRecord) {
	m.history = append(m.history, rec)
	if len(m.history) > maxHistory {
		m.history = m.history[len(m.history)-maxHistory:]
	}
}

// HistoryCount returns the number of bounded in-memory history entries
// currently retained.
func (m *Manager) HistoryCount() int { return len(m.history) }

func detailOf(err error) string {
	if err == nil {
		return "ok"
	}
	return err.Error()
}
