package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/wikistore/internal/apperr"
	"github.com/starford/wikistore/internal/signature"
)

func tempDataDir(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	s := tempDataDir(t)
	content := []byte("Hello\r\nWorld\n")
	sig, err := s.Write("Page.wiki", content)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(sig) != signature.Size {
		t.Errorf("signature len = %d", len(sig))
	}
	got, err := s.Read("Page.wiki")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
	if NormalizeText(got) != "Hello\nWorld\n" {
		t.Errorf("normalized = %q", NormalizeText(got))
	}
}

func TestReadMissingIsNotFound(t *testing.T) {
	s := tempDataDir(t)
	_, err := s.Read("nope.wiki")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	s := tempDataDir(t)
	_, _ = s.Write("del.wiki", []byte("bye"))
	if err := s.Delete("del.wiki"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, _ := s.Exists("del.wiki"); ok {
		t.Error("file still exists")
	}
	if err := s.Delete("del.wiki"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}

func TestMove(t *testing.T) {
	s := tempDataDir(t)
	_, _ = s.Write("old.wiki", []byte("data"))
	if err := s.Move("old.wiki", "new.wiki"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	got, err := s.Read("new.wiki")
	if err != nil {
		t.Fatalf("Read after move: %v", err)
	}
	if string(got) != "data" {
		t.Errorf("content = %q", got)
	}
	if _, err := s.Read("old.wiki"); err == nil {
		t.Error("old name should not exist")
	}
}

func TestList(t *testing.T) {
	s := tempDataDir(t)
	_, _ = s.Write("a.wiki", []byte("a"))
	_, _ = s.Write("b.wiki", []byte("b"))
	_, _ = s.Write("blob.data", []byte("not a page"))

	items, err := s.List(".wiki")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("len = %d, want 2", len(items))
	}
	for _, it := range items {
		sig, _ := s.Signature(it.Name)
		if !signature.Equal(sig, it.Signature) {
			t.Errorf("%s: listed signature differs from Signature()", it.Name)
		}
	}
}

func TestSignatureDetectsExternalChange(t *testing.T) {
	s := tempDataDir(t)
	sig, _ := s.Write("ext.wiki", []byte("a"))

	p := filepath.Join(s.Root(), "ext.wiki")
	if err := os.WriteFile(p, []byte("changed outside"), 0o644); err != nil {
		t.Fatal(err)
	}
	now, err := s.Signature("ext.wiki")
	if err != nil {
		t.Fatal(err)
	}
	if signature.Equal(sig, now) {
		t.Error("external change not detected")
	}
}

func TestInvalidNamesRejected(t *testing.T) {
	s := tempDataDir(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.wiki",
		"/etc/shadow",
		"sub/page.wiki",
		"",
	}
	for _, p := range cases {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for name %q", p)
		}
		if _, err := s.Write(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
	}
}

func TestAtomicWriteLeavesNoTemp(t *testing.T) {
	s := tempDataDir(t)
	_, _ = s.Write("atomic.wiki", []byte("original content"))

	updated := []byte("updated content")
	if _, err := s.Write("atomic.wiki", updated); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("atomic.wiki")
	if string(got) != string(updated) {
		t.Errorf("expected updated content, got %q", got)
	}

	matches, _ := filepath.Glob(filepath.Join(s.root, tempPrefix+"*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestRewriteChangesSignature(t *testing.T) {
	s := tempDataDir(t)
	_, _ = s.Write("sig.wiki", []byte("same"))
	p := filepath.Join(s.Root(), "sig.wiki")
	past := time.Now().Add(-time.Hour)
	_ = os.Chtimes(p, past, past)
	first, _ := s.Signature("sig.wiki")

	second, _ := s.Write("sig.wiki", []byte("same"))
	if signature.Equal(first, second) {
		t.Error("rewrite should produce a new signature")
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "wikistore-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}

func TestStagedRestoreKeepsPreviousFile(t *testing.T) {
	s := tempDataDir(t)
	if _, err := s.Write("page.wiki", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	p := filepath.Join(s.Root(), "page.wiki")
	past := time.Now().Add(-time.Hour).Truncate(time.Second)
	_ = os.Chtimes(p, past, past)
	before, _ := s.Signature("page.wiki")

	st, err := s.Stage("page.wiki", []byte("v2 longer"))
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if got, _ := s.Read("page.wiki"); string(got) != "v1" {
		t.Fatalf("staging must not touch the target, got %q", got)
	}
	if err := st.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	after, _ := s.Signature("page.wiki")
	if !signature.Equal(after, st.Signature) {
		t.Error("committed file should carry the staged signature")
	}

	if err := st.Restore(); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if got, _ := s.Read("page.wiki"); string(got) != "v1" {
		t.Errorf("expected previous content back, got %q", got)
	}
	restored, _ := s.Signature("page.wiki")
	if !signature.Equal(before, restored) {
		t.Error("restore should bring back the previous signature")
	}
	st.Release()

	matches, _ := filepath.Glob(filepath.Join(s.root, tempPrefix+"*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestStagedRestoreRemovesNewFile(t *testing.T) {
	s := tempDataDir(t)
	st, err := s.Stage("fresh.wiki", []byte("new"))
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if err := st.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := st.Restore(); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if ok, _ := s.Exists("fresh.wiki"); ok {
		t.Error("restoring a new file should remove it")
	}
}

func TestStagedReleaseWithoutCommit(t *testing.T) {
	s := tempDataDir(t)
	st, err := s.Stage("never.wiki", []byte("x"))
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	st.Release()
	if ok, _ := s.Exists("never.wiki"); ok {
		t.Error("uncommitted stage must not create the target")
	}
	matches, _ := filepath.Glob(filepath.Join(s.root, tempPrefix+"*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}
