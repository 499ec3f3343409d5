package signature

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOfChangesWithContent(t *testing.T) {
	p := filepath.Join(t.TempDir(), "a.wiki")
	if err := os.WriteFile(p, []byte("one"), 0o644); err != nil {
		t.Fatal(err)
	}
	info, _ := os.Stat(p)
	first := Of(info)
	if len(first) != Size {
		t.Fatalf("len = %d", len(first))
	}

	if err := os.WriteFile(p, []byte("three"), 0o644); err != nil {
		t.Fatal(err)
	}
	info, _ = os.Stat(p)
	if Equal(first, Of(info)) {
		t.Error("size change not detected")
	}
}

func TestOfChangesWithMtime(t *testing.T) {
	p := filepath.Join(t.TempDir(), "b.wiki")
	_ = os.WriteFile(p, []byte("same"), 0o644)
	info, _ := os.Stat(p)
	first := Of(info)

	later := info.ModTime().Add(3 * time.Second)
	if err := os.Chtimes(p, later, later); err != nil {
		t.Fatal(err)
	}
	info, _ = os.Stat(p)
	if Equal(first, Of(info)) {
		t.Error("mtime change not detected")
	}
}

func TestEqualEmpty(t *testing.T) {
	if Equal(nil, nil) {
		t.Error("empty signatures must not match")
	}
}
