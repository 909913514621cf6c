package adapter

import (
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/padlokk/cage/internal/config"
	"github.com/padlokk/cage/internal/identity"
	"github.com/padlokk/cage/internal/secret"
)

func requireAge(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("age"); err != nil {
		t.Skip("age binary not available in test environment")
	}
}

func writeFile(path, contents string) error {
	return os.WriteFile(path, []byte(contents), 0o600)
}

// testRecipient generates a throwaway age identity via age-keygen and
// returns its public recipient line.
func testRecipient(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("age-keygen"); err != nil {
		t.Skip("age-keygen not found on PATH")
	}
	out, err := exec.Command("age-keygen").Output()
	if err != nil {
		t.Fatalf("age-keygen: %v", err)
	}
	for _, line := range strings.Split(string(out), "\n") {
		if strings.HasPrefix(line, "# public key: ") {
			return strings.TrimPrefix(line, "# public key: ")
		}
	}
	t.Fatal("age-keygen output had no public key comment")
	return ""
}

func TestEncryptFileRejectsZeroValueIdentityWithoutRecipients(t *testing.T) {
	a, err := New(config.Testing())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	id := identity.Identity{}
	err = a.EncryptFile("in", "out", id, nil, config.FormatBinary)
	if err == nil {
		t.Fatal("expected error for unsupported identity/recipient combination")
	}
}

func TestEncryptFileRecipientsOverrideZeroValueIdentity(t *testing.T) {
	requireAge(t)
	a, err := New(config.Testing())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	dir := t.TempDir()
	src := dir + "/plain.txt"
	if err := writeFile(src, "recipients-only content"); err != nil {
		t.Fatal(err)
	}
	dst := dir + "/plain.txt.age"

	// The zero-value Identity reports Kind() == KindPassphrase, so this
	// call must route on recipients rather than mistake it for a
	// passphrase identity with no passphrase attached.
	var zero identity.Identity
	recipients := []string{testRecipient(t)}
	if err := a.EncryptFile(src, dst, zero, recipients, config.FormatBinary); err != nil {
		t.Fatalf("EncryptFile with recipients and zero-value identity: %v", err)
	}
}

func TestEncryptStreamDecryptStreamRoundTrip(t *testing.T) {
	requireAge(t)
	a, err := New(config.Testing())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	pw := secret.NewString("stream round trip passphrase")
	defer pw.Close()
	id := identity.FromPassphrase(pw)

	var ciphertext strings.Builder
	n, err := a.EncryptStream(strings.NewReader("hello streaming world"), &ciphertext, id, nil, config.FormatBinary)
	if err != nil {
		t.Fatalf("EncryptStream: %v", err)
	}
	if n == 0 {
		t.Fatal("expected non-zero ciphertext length")
	}

	var plaintext strings.Builder
	if _, err := a.DecryptStream(strings.NewReader(ciphertext.String()), &plaintext, id); err != nil {
		t.Fatalf("DecryptStream: %v", err)
	}
	if plaintext.String() != "hello streaming world" {
		t.Errorf("unexpected roundtrip content: %q", plaintext.String())
	}
}

func TestHealthCheck(t *testing.T) {
	requireAge(t)
	a, err := New(config.Testing())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()
	if err := a.HealthCheck(); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}
