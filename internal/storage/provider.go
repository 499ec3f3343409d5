// Package storage is the content store: one file per page (and per external
// data block) in a flat data directory.
package storage

import "time"

// FileMeta describes a file in the data directory.
type FileMeta struct {
	Name      string
	Size      int64
	ModTime   time.Time
	Signature []byte
}

// Provider is the interface for content file operations. Names are
// relative to the data directory and never contain separators.
type Provider interface {
	// Read returns the raw bytes of name, or an error wrapping apperr.ErrNotFound.
	Read(name string) ([]byte, error)
	// Write atomically replaces name and returns the new file signature.
	Write(name string, content []byte) ([]byte, error)
	// Stage prepares a replacement of name that Commit swaps in later.
	Stage(name string, content []byte) (*Staged, error)
	// Delete removes name.
	Delete(name string) error
	// Move renames oldName to newName.
	Move(oldName, newName string) error
	// Signature recomputes the signature of name from the file system.
	Signature(name string) ([]byte, error)
	// Stat returns the metadata of name, or an error wrapping apperr.ErrNotFound.
	Stat(name string) (FileMeta, error)
	// Exists reports whether name is present.
	Exists(name string) (bool, error)
	// List returns metadata for every file ending in suffix.
	List(suffix string) ([]FileMeta, error)
	// Root is the absolute path of the data directory.
	Root() string
}
