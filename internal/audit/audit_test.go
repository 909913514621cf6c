package audit

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"testing"
)

func TestHashRecipientsIsOrderIndependent(t *testing.T) {
	a := HashRecipients([]string{"age1abc", "age1xyz"})
	b := HashRecipients([]string{"age1xyz", "age1abc"})
	if a != b {
		t.Errorf("expected order-independent hash, got %q vs %q", a, b)
	}
	if len(a) != 32 {
		t.Errorf("expected 32-char md5 hex digest, got %d chars: %s", len(a), a)
	}
}

func TestTextFormatNeverLeaksPassphrase(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter("cage", FormatText, &buf)
	l.Redact("hunter2")

	Encryption(l, "/tmp/hunter2.txt", "passphrase", 0, "", "staging", "", true)
	l.Emit(LevelError, "operation_failure", Err(errors.New("bad passphrase hunter2 supplied")))

	out := buf.String()
	if strings.Contains(out, "hunter2") {
		t.Errorf("passphrase leaked into text log: %s", out)
	}
}

func TestJSONFormatNeverLeaksPassphrase(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter("cage", FormatJSON, &buf)
	l.Redact("swordfish")

	Decryption(l, "/tmp/secret.age", "passphrase", "staging", false)
	l.Emit(LevelWarn, "warn", String("detail", "rejected candidate swordfish"))

	out := buf.String()
	if strings.Contains(out, "swordfish") {
		t.Errorf("passphrase leaked into json log: %s", out)
	}
	if !strings.Contains(out, `"component":"cage"`) {
		t.Errorf("expected component field in json output: %s", out)
	}
}

func TestEventsCarryRequiredFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter("cage", FormatJSON, &buf)

	Encryption(l, "/tmp/a.age", "recipient", 3, HashRecipients([]string{"r1", "r2", "r3"}), "pipe", "M", true)

	out := buf.String()
	for _, want := range []string{
		`"event":"encryption"`,
		`"identity_type":"recipient"`,
		`"recipient_count":3`,
		`"streaming_strategy":"pipe"`,
		`"success":true`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected json output to contain %q, got %s", want, out)
		}
	}
}

func TestNullLoggerDiscardsEverything(t *testing.T) {
	l := Null()
	l.Redact("whatever")
	l.Emit(LevelError, "operation_failure", Err(errors.New("boom")))
	// No assertion beyond "does not panic" — the null logger has no sink.
}

func TestMultipleEventsAreAppendedNotOverwritten(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter("cage", FormatText, &buf)
	for i := 0; i < 5; i++ {
		Info(l, "status_check", Int("iteration", i))
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d: %q", len(lines), buf.String())
	}
	for i, line := range lines {
		if !strings.Contains(line, "iteration="+strconv.Itoa(i)) {
			t.Errorf("line %d missing iteration field: %s", i, line)
		}
	}
}
