package storage

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/starford/wikistore/internal/apperr"
)

// Staged is a file write prepared next to its target. Commit swaps it into
// place while keeping the previous file aside; Restore undoes whatever has
// happened so far and Release drops the leftovers.
//
// A caller writing a file together with a cache row stages the file before
// the transaction, commits it as the last step inside the transaction and
// restores it when the transaction fails.
type Staged struct {
	// Signature is the signature the file has once committed.
	Signature []byte

	fs        *FS
	name      string
	tmp       string
	prev      string
	committed bool
}

// Commit replaces the target with the staged content. A failed Commit
// leaves the target untouched.
func (s *Staged) Commit() error {
	if s.committed {
		return nil
	}
	op := "storage: write " + s.name
	exists, err := s.fs.Exists(s.name)
	if err != nil {
		return err
	}
	if exists {
		prev := s.tmp + ".prev"
		if err := s.fs.keep(s.name, prev); err != nil {
			return apperr.Write(op, fmt.Errorf("keep previous: %w", err))
		}
		s.prev = prev
	}
	if err := s.fs.fs.Rename(s.tmp, s.name); err != nil {
		s.dropPrev()
		return apperr.Write(op, fmt.Errorf("rename: %w", err))
	}
	s.committed = true
	return nil
}

// Restore puts the previous file back, or removes the target when there
// was none. Before Commit it only discards the staged content.
func (s *Staged) Restore() error {
	if !s.committed {
		s.Release()
		return nil
	}
	op := "storage: restore " + s.name
	if s.prev != "" {
		if err := s.fs.fs.Rename(s.prev, s.name); err != nil {
			return apperr.Write(op, err)
		}
		s.prev = ""
	} else if err := s.fs.fs.Remove(s.name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apperr.Write(op, err)
	}
	s.committed = false
	s.tmp = ""
	return nil
}

// Release removes the kept previous file after a successful commit, or
// the staged content when it was never committed.
func (s *Staged) Release() {
	if !s.committed && s.tmp != "" {
		_ = s.fs.fs.Remove(s.tmp)
		s.tmp = ""
	}
	s.dropPrev()
}

func (s *Staged) dropPrev() {
	if s.prev != "" {
		_ = s.fs.fs.Remove(s.prev)
		s.prev = ""
	}
}
