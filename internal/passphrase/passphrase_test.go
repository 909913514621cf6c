package passphrase

import (
	"testing"

	"github.com/padlokk/cage/internal/ageerr"
	"github.com/padlokk/cage/internal/audit"
	"github.com/padlokk/cage/internal/config"
)

func TestCheckInjectionBlocksShellMetacharacters(t *testing.T) {
	cases := []string{
		"hello$(whoami)",
		"hello`whoami`",
		"a;b",
		"a&b",
		"a|b",
		"a\nb",
		"a\x00b",
	}
	for _, c := range cases {
		if err := CheckInjection(c); err == nil {
			t.Errorf("expected injection error for %q", c)
		} else if !ageerr.Is(err, ageerr.InjectionAttemptBlocked("command_injection")) {
			t.Errorf("expected InjectionAttemptBlocked kind for %q, got %v", c, err)
		}
	}
}

func TestCheckInjectionNeverCarriesValue(t *testing.T) {
	err := CheckInjection("secret$(rm -rf /)value")
	var aerr *ageerr.Error
	if !ageerr.As(err, &aerr) {
		t.Fatal("expected *ageerr.Error")
	}
	if aerr.Error() == "" {
		t.Fatal("expected non-empty message")
	}
	for _, field := range []string{aerr.AttackClass} {
		if field == "secret$(rm -rf /)value" {
			t.Fatal("error must never carry the offending passphrase value")
		}
	}
}

func TestCheckInjectionAllowsOrdinaryPassphrase(t *testing.T) {
	if err := CheckInjection("correct horse battery staple"); err != nil {
		t.Errorf("unexpected error for benign passphrase: %v", err)
	}
}

func TestDetectInsecureUsageFindsFlagValue(t *testing.T) {
	idx, cmd, found := DetectInsecureUsage([]string{"cage", "lock", "--passphrase", "hunter2", "file.txt"})
	if !found {
		t.Fatal("expected to detect insecure usage")
	}
	if idx != 3 || cmd != "--passphrase" {
		t.Errorf("unexpected index/cmd: %d %q", idx, cmd)
	}
}

func TestDetectInsecureUsageFindsEqualsForm(t *testing.T) {
	_, cmd, found := DetectInsecureUsage([]string{"cage", "lock", "--passphrase=hunter2"})
	if !found || cmd != "--passphrase=" {
		t.Errorf("expected to detect --passphrase= form, got cmd=%q found=%v", cmd, found)
	}
}

func TestDetectInsecureUsageNoneFound(t *testing.T) {
	_, _, found := DetectInsecureUsage([]string{"cage", "lock", "file.txt"})
	if found {
		t.Error("did not expect to detect insecure usage")
	}
}

func TestInsecureUsageErrorCarriesArgvContext(t *testing.T) {
	err := InsecureUsageError([]string{"cage", "--passphrase", "hunter2"})
	var aerr *ageerr.Error
	if !ageerr.As(err, &aerr) {
		t.Fatal("expected *ageerr.Error")
	}
	if !aerr.HasArgvIndex || aerr.ArgvIndex != 2 {
		t.Errorf("expected argv index 2, got %+v", aerr)
	}
}

func TestCheckStrengthHardFailsOnlyUnderParanoid(t *testing.T) {
	weak := "abc"
	if err := CheckStrength(weak, config.SecurityStandard); err != nil {
		t.Errorf("standard level should not hard-fail a weak passphrase: %v", err)
	}
	if err := CheckStrength(weak, config.SecurityParanoid); err == nil {
		t.Error("paranoid level should hard-fail a weak passphrase")
	}
}

func TestGetWithModeEnvironment(t *testing.T) {
	t.Setenv(EnvVar, "correct horse battery staple")
	b := &Broker{cfg: config.Default(), logger: audit.Null()}

	s, err := b.GetWithMode("passphrase", false, ModeEnvironment)
	if err != nil {
		t.Fatalf("GetWithMode: %v", err)
	}
	defer s.Close()
	if s.Value() != "correct horse battery staple" {
		t.Errorf("unexpected value: %q", s.Value())
	}
}

func TestGetWithModeEnvironmentMissing(t *testing.T) {
	t.Setenv(EnvVar, "")
	b := &Broker{cfg: config.Default(), logger: audit.Null()}
	if _, err := b.GetWithMode("passphrase", false, ModeEnvironment); err == nil {
		t.Error("expected error when env var unset")
	}
}

func TestGetWithModeEnvironmentRejectsInjection(t *testing.T) {
	t.Setenv(EnvVar, "bad$(rm -rf /)value")
	b := &Broker{cfg: config.Default(), logger: audit.Null()}
	_, err := b.GetWithMode("passphrase", false, ModeEnvironment)
	if err == nil {
		t.Fatal("expected injection to be blocked")
	}
	if !ageerr.Is(err, ageerr.InjectionAttemptBlocked("command_injection")) {
		t.Errorf("expected InjectionAttemptBlocked, got %v", err)
	}
}
