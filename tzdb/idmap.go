package tzdb

import (
	"fmt"
	"iter"

	"github.com/ngrash/go-tzdb/tzstream"
)

// IDMap is a read-only view of the canonical ID map: every known zone
// ID, aliases included, mapped to its canonical ID.
type IDMap struct {
	s *tzstream.Stream
}

// Get returns the canonical ID for id.
func (m IDMap) Get(id string) (string, bool) { return m.s.CanonicalID(id) }

// Len returns the number of IDs.
func (m IDMap) Len() int { return m.s.CanonicalLen() }

// All yields every ID and its canonical ID, sorted by ID.
func (m IDMap) All() iter.Seq2[string, string] { return m.s.Canonical() }

// Set always fails with ErrNotSupported.
func (m IDMap) Set(id, canonical string) error {
	return fmt.Errorf("set %q: %w", id, ErrNotSupported)
}

// Delete always fails with ErrNotSupported.
func (m IDMap) Delete(id string) error {
	return fmt.Errorf("delete %q: %w", id, ErrNotSupported)
}
