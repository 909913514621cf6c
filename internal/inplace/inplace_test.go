package inplace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateRequiresExplicitEnable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	os.WriteFile(path, []byte("x"), 0o600)

	err := Validate(Options{Enabled: false}, path, strings.NewReader(""), &strings.Builder{})
	if err == nil {
		t.Fatal("expected error when in-place is not explicitly enabled")
	}
}

func TestValidateRequiresFileExists(t *testing.T) {
	err := Validate(Options{Enabled: true}, "/nonexistent/path", strings.NewReader(""), &strings.Builder{})
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidateDangerModeRequiresEnvVar(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	os.WriteFile(path, []byte("x"), 0o600)
	t.Setenv("DANGER_MODE", "")

	err := Validate(Options{Enabled: true, DangerMode: true, IAmSure: true}, path, strings.NewReader(""), &strings.Builder{})
	if err == nil {
		t.Fatal("expected error when DANGER_MODE env var is unset")
	}
}

func TestValidateDangerModeWithIAmSureSkipsPrompt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	os.WriteFile(path, []byte("x"), 0o600)
	t.Setenv("DANGER_MODE", "1")

	err := Validate(Options{Enabled: true, DangerMode: true, IAmSure: true}, path, strings.NewReader(""), &strings.Builder{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateDangerModePromptsAndRequiresExactPhrase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	os.WriteFile(path, []byte("x"), 0o600)
	t.Setenv("DANGER_MODE", "1")

	var stderr strings.Builder
	err := Validate(Options{Enabled: true, DangerMode: true, IAmSure: false}, path, strings.NewReader("nope\n"), &stderr)
	if err == nil {
		t.Fatal("expected error for wrong confirmation phrase")
	}

	err = Validate(Options{Enabled: true, DangerMode: true, IAmSure: false}, path, strings.NewReader("DELETE MY FILE\n"), &stderr)
	if err != nil {
		t.Fatalf("expected exact phrase to confirm, got error: %v", err)
	}
}

func TestExecuteLockCreatesRecoveryFileAndReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secret.txt")
	if err := os.WriteFile(path, []byte("plaintext"), 0o640); err != nil {
		t.Fatal(err)
	}

	op := New(path)
	err := op.ExecuteLock("passphrase", false, func(src, dst, passphrase string) error {
		return os.WriteFile(dst, []byte("ciphertext"), 0o600)
	})
	if err != nil {
		t.Fatalf("ExecuteLock: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "ciphertext" {
		t.Errorf("expected original to be replaced with ciphertext, got %q", got)
	}

	if _, err := os.Stat(RecoveryPath(path)); err != nil {
		t.Error("expected recovery file to exist after non-danger-mode lock")
	}
	recoveryContent, _ := os.ReadFile(RecoveryPath(path))
	if !strings.Contains(string(recoveryContent), "passphrase") {
		t.Error("expected recovery file to contain the passphrase")
	}

	if _, err := os.Stat(TempPath(path)); !os.IsNotExist(err) {
		t.Error("expected temp ciphertext sibling to be gone after successful rename")
	}
}

func TestExecuteLockDangerModeSkipsRecoveryFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secret.txt")
	os.WriteFile(path, []byte("plaintext"), 0o640)

	op := New(path)
	err := op.ExecuteLock("passphrase", true, func(src, dst, passphrase string) error {
		return os.WriteFile(dst, []byte("ciphertext"), 0o600)
	})
	if err != nil {
		t.Fatalf("ExecuteLock: %v", err)
	}
	if _, err := os.Stat(RecoveryPath(path)); !os.IsNotExist(err) {
		t.Error("expected no recovery file in danger mode")
	}
}

func TestExecuteLockCleansUpOnEncryptFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secret.txt")
	os.WriteFile(path, []byte("plaintext"), 0o640)

	op := New(path)
	err := op.ExecuteLock("passphrase", false, func(src, dst, passphrase string) error {
		return os.ErrInvalid
	})
	if err == nil {
		t.Fatal("expected encrypt failure to propagate")
	}

	if _, err := os.Stat(TempPath(path)); !os.IsNotExist(err) {
		t.Error("expected temp file to be cleaned up after failure")
	}
	if _, err := os.Stat(RecoveryPath(path)); !os.IsNotExist(err) {
		t.Error("expected recovery file to be cleaned up after failure")
	}

	got, _ := os.ReadFile(path)
	if string(got) != "plaintext" {
		t.Error("original file must be untouched after a failed in-place operation")
	}
}
