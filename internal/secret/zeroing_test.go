package secret

import "testing"

func TestZeroOverwritesBuffer(t *testing.T) {
	b := []byte("hunter2hunter2")
	Zero(b)
	for i, c := range b {
		if c != 0 {
			t.Fatalf("byte %d not zeroed: %v", i, b)
		}
	}
}

func TestStringCloseZeroesAndClears(t *testing.T) {
	s := NewString("correct horse battery staple")
	if s.Value() != "correct horse battery staple" {
		t.Fatalf("unexpected value before close: %q", s.Value())
	}
	if s.Len() != len("correct horse battery staple") {
		t.Fatalf("unexpected length: %d", s.Len())
	}

	s.Close()
	if s.Value() != "" {
		t.Errorf("value should be empty after Close, got %q", s.Value())
	}
	if s.Len() != 0 {
		t.Errorf("len should be 0 after Close, got %d", s.Len())
	}

	// Idempotent.
	s.Close()
}

func TestZeroAllHandlesEmptyAndNil(t *testing.T) {
	ZeroAll(nil, []byte{}, []byte("x"))
}
