package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	"github.com/starford/wikistore/internal/apperr"
	"github.com/starford/wikistore/internal/signature"
)

const tempPrefix = ".wikistore-tmp-"

// FS implements Provider on top of a billy filesystem rooted at the data directory.
type FS struct {
	root string // absolute path to data directory
	fs   billy.Filesystem
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs, fs: osfs.New(abs)}, nil
}

// Root returns the absolute data directory.
func (f *FS) Root() string { return f.root }

// checkName rejects names that would leave the flat data directory.
func checkName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.IsAbs(name) {
		return fmt.Errorf("storage: invalid file name %q", name)
	}
	return nil
}

func notFound(op, name string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: %s %s: %w", op, name, apperr.ErrNotFound)
	}
	return err
}

// Read returns the raw bytes of a content file.
func (f *FS) Read(name string) ([]byte, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	data, err := util.ReadFile(f.fs, name)
	if err != nil {
		return nil, apperr.Read("storage: read "+name, notFound("read", name, err))
	}
	return data, nil
}

// Write atomically replaces name with content.
func (f *FS) Write(name string, content []byte) ([]byte, error) {
	st, err := f.Stage(name, content)
	if err != nil {
		return nil, err
	}
	if err := st.Commit(); err != nil {
		st.Release()
		return nil, err
	}
	st.Release()
	return st.Signature, nil
}

// Stage writes content to a temporary file next to name without touching
// name itself.
func (f *FS) Stage(name string, content []byte) (*Staged, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	tmpName, err := f.writeTemp(content)
	if err != nil {
		return nil, apperr.Write("storage: write "+name, err)
	}
	info, err := f.fs.Stat(tmpName)
	if err != nil {
		_ = f.fs.Remove(tmpName)
		return nil, apperr.Write("storage: write "+name, fmt.Errorf("stat temp: %w", err))
	}
	return &Staged{Signature: signature.Of(info), fs: f, name: name, tmp: tmpName}, nil
}

// writeTemp writes content to a fresh temp file: create → write → fsync → close.
func (f *FS) writeTemp(content []byte) (string, error) {
	tmp, err := f.fs.TempFile("", tempPrefix)
	if err != nil {
		return "", fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = f.fs.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return "", fmt.Errorf("write temp: %w", err)
	}
	if s, ok := tmp.(interface{ Sync() error }); ok {
		if err := s.Sync(); err != nil {
			return "", fmt.Errorf("fsync: %w", err)
		}
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp: %w", err)
	}
	success = true
	return tmpName, nil
}

// keep preserves the current file name under prev, keeping its
// modification time so its signature survives a restore.
func (f *FS) keep(name, prev string) error {
	if err := os.Link(filepath.Join(f.root, name), filepath.Join(f.root, prev)); err == nil {
		return nil
	}
	info, err := f.fs.Stat(name)
	if err != nil {
		return err
	}
	data, err := util.ReadFile(f.fs, name)
	if err != nil {
		return err
	}
	if err := util.WriteFile(f.fs, prev, data, 0o644); err != nil {
		return err
	}
	if ch, ok := f.fs.(billy.Change); ok {
		return ch.Chtimes(prev, info.ModTime(), info.ModTime())
	}
	return nil
}

// Delete removes a content file.
func (f *FS) Delete(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := f.fs.Remove(name); err != nil {
		return apperr.Write("storage: delete "+name, notFound("delete", name, err))
	}
	return nil
}

// Move renames a content file.
func (f *FS) Move(oldName, newName string) error {
	if err := checkName(oldName); err != nil {
		return err
	}
	if err := checkName(newName); err != nil {
		return err
	}
	if err := f.fs.Rename(oldName, newName); err != nil {
		return apperr.Write("storage: move "+oldName, notFound("move", oldName, err))
	}
	return nil
}

// Signature recomputes the size+mtime signature of name.
func (f *FS) Signature(name string) ([]byte, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	info, err := f.fs.Stat(name)
	if err != nil {
		return nil, apperr.Read("storage: stat "+name, notFound("stat", name, err))
	}
	return signature.Of(info), nil
}

// Stat returns the metadata of name.
func (f *FS) Stat(name string) (FileMeta, error) {
	if err := checkName(name); err != nil {
		return FileMeta{}, err
	}
	info, err := f.fs.Stat(name)
	if err != nil {
		return FileMeta{}, apperr.Read("storage: stat "+name, notFound("stat", name, err))
	}
	return FileMeta{Name: name, Size: info.Size(), ModTime: info.ModTime(), Signature: signature.Of(info)}, nil
}

// Exists reports whether name is present in the data directory.
func (f *FS) Exists(name string) (bool, error) {
	if err := checkName(name); err != nil {
		return false, err
	}
	_, err := f.fs.Lstat(name)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, apperr.Read("storage: stat "+name, err)
}

// List returns metadata for every regular file ending in suffix.
func (f *FS) List(suffix string) ([]FileMeta, error) {
	infos, err := f.fs.ReadDir("")
	if err != nil {
		return nil, apperr.Read("storage: list", err)
	}
	var out []FileMeta
	for _, info := range infos {
		name := info.Name()
		if info.IsDir() || !strings.HasSuffix(name, suffix) || strings.HasPrefix(name, tempPrefix) {
			continue
		}
		out = append(out, FileMeta{
			Name:      name,
			Size:      info.Size(),
			ModTime:   info.ModTime(),
			Signature: signature.Of(info),
		})
	}
	return out, nil
}

// NormalizeText converts CRLF and lone CR line endings to LF.
func NormalizeText(data []byte) string {
	s := strings.ReplaceAll(string(data), "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
