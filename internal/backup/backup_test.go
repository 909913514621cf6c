package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/padlokk/cage/internal/config"
)

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCreateBackupWithRetentionIncrementsGeneration(t *testing.T) {
	srcDir := t.TempDir()
	backupDir := t.TempDir()
	source := writeSource(t, srcDir, "data.txt", "v1")

	m := NewManager(backupDir, config.KeepAll())

	e1, err := m.CreateBackupWithRetention(source)
	if err != nil {
		t.Fatalf("CreateBackupWithRetention: %v", err)
	}
	if e1.Generation != 1 {
		t.Errorf("expected generation 1, got %d", e1.Generation)
	}

	writeSource(t, srcDir, "data.txt", "v2")
	e2, err := m.CreateBackupWithRetention(source)
	if err != nil {
		t.Fatalf("CreateBackupWithRetention: %v", err)
	}
	if e2.Generation != 2 {
		t.Errorf("expected generation 2, got %d", e2.Generation)
	}

	entries, err := m.ListBackups(source)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
}

func TestRestoreBackupGeneration(t *testing.T) {
	srcDir := t.TempDir()
	backupDir := t.TempDir()
	source := writeSource(t, srcDir, "data.txt", "original")

	m := NewManager(backupDir, config.KeepAll())
	if _, err := m.CreateBackupWithRetention(source); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(source, []byte("corrupted"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := m.RestoreBackupGeneration(source, 1); err != nil {
		t.Fatalf("RestoreBackupGeneration: %v", err)
	}

	got, err := os.ReadFile(source)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "original" {
		t.Errorf("expected restored content 'original', got %q", got)
	}
}

func TestRetentionKeepLastDeletesOlderGenerations(t *testing.T) {
	srcDir := t.TempDir()
	backupDir := t.TempDir()
	source := writeSource(t, srcDir, "data.txt", "v1")

	m := NewManager(backupDir, config.KeepLast(2))
	for i := 0; i < 4; i++ {
		if _, err := m.CreateBackupWithRetention(source); err != nil {
			t.Fatal(err)
		}
		time.Sleep(time.Millisecond)
	}

	entries, err := m.ListBackups(source)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 surviving entries under KeepLast(2), got %d", len(entries))
	}
	if entries[0].Generation != 4 || entries[1].Generation != 3 {
		t.Errorf("expected generations 4,3 (newest first) to survive, got %d,%d", entries[0].Generation, entries[1].Generation)
	}
}

func TestRegistryStats(t *testing.T) {
	srcDir := t.TempDir()
	backupDir := t.TempDir()
	sourceA := writeSource(t, srcDir, "a.txt", "a")
	sourceB := writeSource(t, srcDir, "b.txt", "b")

	m := NewManager(backupDir, config.KeepAll())
	m.CreateBackupWithRetention(sourceA)
	m.CreateBackupWithRetention(sourceA)
	m.CreateBackupWithRetention(sourceB)

	tracked, total := m.RegistryStats()
	if tracked != 2 {
		t.Errorf("expected 2 tracked files, got %d", tracked)
	}
	if total != 3 {
		t.Errorf("expected 3 total backups, got %d", total)
	}
}

func TestPersistenceSurvivesReload(t *testing.T) {
	srcDir := t.TempDir()
	backupDir := t.TempDir()
	source := writeSource(t, srcDir, "data.txt", "v1")

	m1 := NewManager(backupDir, config.KeepAll())
	if _, err := m1.CreateBackupWithRetention(source); err != nil {
		t.Fatal(err)
	}

	m2 := NewManager(backupDir, config.KeepAll())
	entries, err := m2.ListBackups(source)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected reloaded registry to have 1 entry, got %d", len(entries))
	}
}
