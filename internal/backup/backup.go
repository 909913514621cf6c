// Package backup implements the backup registry: a generation-numbered
// ledger of per-source-file backup copies, persisted atomically as JSON,
// with retention policies that govern which generations are eligible for
// deletion.
package backup

import (
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/padlokk/cage/internal/ageerr"
	"github.com/padlokk/cage/internal/config"
)

const registryFileName = ".cage_backups.json"

// Entry is one backup copy of a source file.
type Entry struct {
	BackupPath  string    `json:"backup_path"`
	CreatedAt   time.Time `json:"created_at"`
	SizeBytes   int64     `json:"size_bytes"`
	Generation  int       `json:"generation"`
	Fingerprint string    `json:"fingerprint_sha3_256"`
}

// Registry maps a source-file path to its ordered backup entries.
// Persisted at "<backup_dir>/.cage_backups.json" as { "files": { "<source>": [...] } }.
type Registry struct {
	Entries map[string][]Entry `json:"files"`
}

func newRegistry() *Registry {
	return &Registry{Entries: make(map[string][]Entry)}
}

// Manager owns the backup directory, retention policy, and in-memory
// registry for the duration of one coordinator batch.
type Manager struct {
	dir       string
	retention config.RetentionPolicy
	registry  *Registry
	loaded    bool
}

// NewManager constructs a Manager rooted at dir with the given retention
// policy. The registry is loaded lazily on first use.
func NewManager(dir string, retention config.RetentionPolicy) *Manager {
	return &Manager{dir: dir, retention: retention, registry: newRegistry()}
}

func (m *Manager) registryPath() string {
	return filepath.Join(m.dir, registryFileName)
}

// Load reads the on-disk registry if present; a missing file is not an
// error — it starts an empty registry.
func (m *Manager) Load() error {
	if m.loaded {
		return nil
	}
	data, err := os.ReadFile(m.registryPath())
	if err != nil {
		if os.IsNotExist(err) {
			m.loaded = true
			return nil
		}
		return ageerr.FileError("read", m.registryPath(), err)
	}
	var reg Registry
	if err := json.Unmarshal(data, &reg); err != nil {
		return ageerr.ConfigurationError("backup_registry", m.registryPath(), "failed to parse registry: "+err.Error())
	}
	if reg.Entries == nil {
		reg.Entries = make(map[string][]Entry)
	}
	m.registry = &reg
	m.loaded = true
	return nil
}

// save persists the registry atomically: write "<path>.tmp", fsync, then
// rename over the canonical file.
func (m *Manager) save() error {
	if err := os.MkdirAll(m.dir, 0o700); err != nil {
		return ageerr.FileError("mkdir", m.dir, err)
	}
	data, err := json.MarshalIndent(m.registry, "", "  ")
	if err != nil {
		return ageerr.IoError("marshal", m.registryPath(), err)
	}
	tmp := m.registryPath() + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return ageerr.FileError("create", tmp, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return ageerr.FileError("write", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return ageerr.FileError("fsync", tmp, err)
	}
	if err := f.Close(); err != nil {
		return ageerr.FileError("close", tmp, err)
	}
	if err := os.Rename(tmp, m.registryPath()); err != nil {
		return ageerr.FileError("rename", m.registryPath(), err)
	}
	return nil
}

// CreateBackupWithRetention computes the next generation for source
// (max existing generation + 1, else 1), copies source into the backup
// directory under a generation-encoded filename, registers the entry,
// applies the retention policy, and persists the registry.
func (m *Manager) CreateBackupWithRetention(source string) (Entry, error) {
	if err := m.Load(); err != nil {
		return Entry{}, err
	}

	existing := m.registry.Entries[source]
	generation := 1
	for _, e := range existing {
		if e.Generation >= generation {
			generation = e.Generation + 1
		}
	}

	base := filepath.Base(source)
	backupName := base + ".gen" + strconv.Itoa(generation) + ".bak"
	backupPath := filepath.Join(m.dir, backupName)

	size, fingerprint, err := copyFile(source, backupPath)
	if err != nil {
		return Entry{}, err
	}

	entry := Entry{
		BackupPath:  backupPath,
		CreatedAt:   time.Now().UTC(),
		SizeBytes:   size,
		Generation:  generation,
		Fingerprint: fingerprint,
	}
	m.registry.Entries[source] = append(existing, entry)

	if err := m.applyRetention(source); err != nil {
		return Entry{}, err
	}
	if err := m.save(); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// ListBackups returns the entries registered for source.
func (m *Manager) ListBackups(source string) ([]Entry, error) {
	if err := m.Load(); err != nil {
		return nil, err
	}
	return append([]Entry(nil), m.registry.Entries[source]...), nil
}

// RestoreBackupGeneration copies the identified backup generation over
// the current source file, then asserts the copy's SHA3-256 fingerprint
// matches the one recorded for that generation.
func (m *Manager) RestoreBackupGeneration(source string, generation int) error {
	if err := m.Load(); err != nil {
		return err
	}
	for _, e := range m.registry.Entries[source] {
		if e.Generation == generation {
			_, fingerprint, err := copyFile(e.BackupPath, source)
			if err != nil {
				return err
			}
			if e.Fingerprint != "" && fingerprint != e.Fingerprint {
				return ageerr.RepositoryOperationFailed("restore_backup_generation", source, "restored content fingerprint does not match the recorded backup entry; backup may be corrupted")
			}
			return nil
		}
	}
	return ageerr.RepositoryOperationFailed("restore_backup_generation", source, "no such generation registered")
}

// RegistryStats returns (tracked_file_count, total_backup_count).
func (m *Manager) RegistryStats() (int, int) {
	tracked := len(m.registry.Entries)
	total := 0
	for _, entries := range m.registry.Entries {
		total += len(entries)
	}
	return tracked, total
}

// applyRetention deletes entries (and their backup files) ineligible
// under the current retention policy for source, keeping entries sorted
// descending by CreatedAt with ties broken by higher generation winning.
func (m *Manager) applyRetention(source string) error {
	entries := m.registry.Entries[source]
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].Generation > entries[j].Generation
		}
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})

	keep := make([]bool, len(entries))
	switch m.retention.Kind {
	case config.RetentionKeepAll:
		for i := range keep {
			keep[i] = true
		}
	case config.RetentionKeepLast:
		for i := range entries {
			keep[i] = i < m.retention.Last
		}
	case config.RetentionKeepDays:
		cutoff := time.Now().UTC().AddDate(0, 0, -int(m.retention.Days))
		for i, e := range entries {
			keep[i] = !e.CreatedAt.Before(cutoff)
		}
	case config.RetentionKeepLastAndDays:
		cutoff := time.Now().UTC().AddDate(0, 0, -int(m.retention.Days))
		for i, e := range entries {
			keep[i] = i < m.retention.Last || !e.CreatedAt.Before(cutoff)
		}
	default:
		for i := range keep {
			keep[i] = true
		}
	}

	var kept []Entry
	for i, e := range entries {
		if keep[i] {
			kept = append(kept, e)
			continue
		}
		if err := os.Remove(e.BackupPath); err != nil && !os.IsNotExist(err) {
			return ageerr.FileError("remove_backup", e.BackupPath, err)
		}
	}
	m.registry.Entries[source] = kept
	return nil
}

// copyFile copies src to dst, returning the byte count and the hex-encoded
// SHA3-256 fingerprint of the copied content, computed in the same pass
// as the copy rather than re-reading the file afterward.
func copyFile(src, dst string) (int64, string, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, "", ageerr.FileError("open", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, "", ageerr.FileError("create", dst, err)
	}
	defer out.Close()

	h := sha3.New256()
	n, err := io.Copy(io.MultiWriter(out, h), in)
	if err != nil {
		return 0, "", ageerr.IoError("copy", src+" -> "+dst, err)
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}
