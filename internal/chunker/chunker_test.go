package chunker

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestPlanCoversFileExactlyWithoutOverlap(t *testing.T) {
	specs, err := Plan(250, 100)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(specs) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(specs))
	}
	var covered int64
	for i, s := range specs {
		if s.ID != i {
			t.Errorf("spec %d has id %d", i, s.ID)
		}
		if s.Start != covered {
			t.Errorf("spec %d starts at %d, want %d", i, s.Start, covered)
		}
		covered = s.EndInclusive + 1
	}
	if covered != 250 {
		t.Errorf("chunks cover up to %d, want 250", covered)
	}
	if specs[2].Size != 50 {
		t.Errorf("expected final chunk size 50, got %d", specs[2].Size)
	}
}

func TestPlanRejectsNonPositiveChunkSize(t *testing.T) {
	if _, err := Plan(100, 0); err == nil {
		t.Error("expected error for zero chunk size")
	}
}

func TestProcessCoversWholeFileAndClearsCheckpoint(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "source.bin")
	content := bytes.Repeat([]byte("x"), 250)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}

	c := New(path, 100)
	var got []byte
	summary, err := c.Process(func(spec Spec, data []byte) error {
		got = append(got, data...)
		return nil
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !summary.CheckpointCleared {
		t.Error("expected checkpoint cleared on full traversal")
	}
	if summary.ChunksProcessed != 3 {
		t.Errorf("expected 3 chunks processed, got %d", summary.ChunksProcessed)
	}
	if !bytes.Equal(got, content) {
		t.Error("reassembled content does not match source")
	}
	if _, err := os.Stat(path + ".cage-chunks.json"); !os.IsNotExist(err) {
		t.Error("expected checkpoint file to be removed")
	}
}

func TestProcessResumesAfterHandlerFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "source.bin")
	content := bytes.Repeat([]byte("y"), 250)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}

	c := New(path, 100)
	failAt := 1
	calls := 0
	_, err := c.Process(func(spec Spec, data []byte) error {
		if calls == failAt {
			return errors.New("boom")
		}
		calls++
		return nil
	})
	if err == nil {
		t.Fatal("expected handler error to halt processing")
	}
	if _, err := os.Stat(path + ".cage-chunks.json"); err != nil {
		t.Fatal("expected checkpoint to remain on disk after failure")
	}

	var resumed []int
	summary, err := c.Process(func(spec Spec, data []byte) error {
		resumed = append(resumed, spec.ID)
		return nil
	})
	if err != nil {
		t.Fatalf("resumed Process: %v", err)
	}
	if !summary.CheckpointCleared {
		t.Error("expected checkpoint cleared after successful resume")
	}
	if len(resumed) != 2 {
		t.Errorf("expected 2 remaining chunks processed on resume, got %d (%v)", len(resumed), resumed)
	}
}

func TestProcessRefusesResumeWhenFileSizeChanged(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "source.bin")
	if err := os.WriteFile(path, bytes.Repeat([]byte("z"), 250), 0o600); err != nil {
		t.Fatal(err)
	}

	c := New(path, 100)
	_, err := c.Process(func(spec Spec, data []byte) error {
		if spec.ID == 1 {
			return errors.New("stop after first chunk")
		}
		return nil
	})
	if err == nil {
		t.Fatal("expected halt on second chunk")
	}

	if err := os.WriteFile(path, bytes.Repeat([]byte("z"), 300), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err = c.Process(func(spec Spec, data []byte) error { return nil })
	if err == nil {
		t.Fatal("expected ConfigurationError on file size mismatch")
	}
}
