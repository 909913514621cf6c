package keygen

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func requireAgeKeygen(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("age-keygen"); err != nil {
		t.Skipf("age-keygen not found on PATH: %v", err)
	}
}

type fakeGroups struct {
	exists  map[string]bool
	added   map[string][]string
	addErr  error
}

func newFakeGroups(names ...string) *fakeGroups {
	exists := make(map[string]bool)
	for _, n := range names {
		exists[n] = true
	}
	return &fakeGroups{exists: exists, added: make(map[string][]string)}
}

func (f *fakeGroups) GroupExists(name string) bool { return f.exists[name] }

func (f *fakeGroups) AddToGroup(name, recipient string) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.added[name] = append(f.added[name], recipient)
	return nil
}

func TestValidateRequestRejectsExportWithRegister(t *testing.T) {
	req := Request{ExportMode: true, RegisterGroups: []string{"family"}}
	if err := validateRequest(req); err == nil {
		t.Fatal("expected error for --export with --register")
	}
}

func TestValidateRequestRejectsRecipientsOnlyWithRegister(t *testing.T) {
	req := Request{RecipientsOnly: true, RegisterGroups: []string{"family"}}
	if err := validateRequest(req); err == nil {
		t.Fatal("expected error for --recipients-only with --register")
	}
}

func TestFingerprintsAreDeterministic(t *testing.T) {
	const recipient = "age1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq"
	if FingerprintMD5(recipient) != FingerprintMD5(recipient) {
		t.Error("expected stable md5 fingerprint")
	}
	if FingerprintSHA256(recipient) == FingerprintMD5(recipient) {
		t.Error("expected distinct hash outputs")
	}
	if len(FingerprintSHA256(recipient)) != 64 {
		t.Errorf("expected 64 hex chars for sha256, got %d", len(FingerprintSHA256(recipient)))
	}
	if len(FingerprintMD5(recipient)) != 32 {
		t.Errorf("expected 32 hex chars for md5, got %d", len(FingerprintMD5(recipient)))
	}
}

func TestGenerateRefusesOverwriteWithoutForce(t *testing.T) {
	requireAgeKeygen(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "id.cagekey")
	if err := os.WriteFile(out, []byte("existing"), 0o600); err != nil {
		t.Fatal(err)
	}

	s := New(nil)
	_, err := s.Generate(Request{OutputPath: out})
	if err == nil {
		t.Fatal("expected error when output path exists without --force")
	}
}

func TestGenerateWritesIdentityAndDerivesRecipient(t *testing.T) {
	requireAgeKeygen(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "id.cagekey")

	s := New(nil)
	summary, err := s.Generate(Request{OutputPath: out})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if summary.OutputPath != out {
		t.Errorf("expected output path %s, got %s", out, summary.OutputPath)
	}
	if summary.PublicRecipient == "" {
		t.Error("expected a derived public recipient")
	}
	if summary.FingerprintMD5 == "" || summary.FingerprintSHA256 == "" {
		t.Error("expected both fingerprints to be populated")
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatal("expected identity file to exist")
	}
	info, err := os.Stat(out)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("expected mode 0600, got %v", info.Mode().Perm())
	}
}

func TestGenerateRegistersWithGroups(t *testing.T) {
	requireAgeKeygen(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "id.cagekey")
	groups := newFakeGroups("family")

	s := New(groups)
	summary, err := s.Generate(Request{OutputPath: out, RegisterGroups: []string{"family"}})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(summary.RegisteredGroups) != 1 || summary.RegisteredGroups[0] != "family" {
		t.Errorf("expected registered_groups [family], got %v", summary.RegisteredGroups)
	}
	if len(groups.added["family"]) != 1 {
		t.Error("expected recipient to be added to the group store")
	}
}

func TestGenerateRejectsUnknownGroup(t *testing.T) {
	requireAgeKeygen(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "id.cagekey")
	groups := newFakeGroups("family")

	s := New(groups)
	_, err := s.Generate(Request{OutputPath: out, RegisterGroups: []string{"nonexistent"}})
	if err == nil {
		t.Fatal("expected error for unknown recipient group")
	}
}

func TestRecipientsOnlyFromExistingIdentity(t *testing.T) {
	requireAgeKeygen(t)
	dir := t.TempDir()
	idPath := filepath.Join(dir, "id.cagekey")

	s := New(nil)
	genSummary, err := s.Generate(Request{OutputPath: idPath})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	summary, err := s.Generate(Request{RecipientsOnly: true, InputPath: idPath})
	if err != nil {
		t.Fatalf("recipients-only Generate: %v", err)
	}
	if summary.PublicRecipient != genSummary.PublicRecipient {
		t.Errorf("expected recipients-only to reproduce %q, got %q", genSummary.PublicRecipient, summary.PublicRecipient)
	}
}
