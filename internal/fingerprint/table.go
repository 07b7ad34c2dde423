package fingerprint

import (
	"fmt"
	"sort"
)

// Table maps image identifiers to fingerprints. It is immutable once built:
// NewTable copies its input and Table exposes read methods only, so it can be
// shared between goroutines without locking.
type Table struct {
	entries  map[string]Fingerprint
	ids      []string
	hashSize int
	kind     Kind
}

// NewTable freezes entries into a Table. All fingerprints must be
// comparable with each other.
func NewTable(entries map[string]Fingerprint) (*Table, error) {
	t := &Table{
		entries: make(map[string]Fingerprint, len(entries)),
		ids:     make([]string, 0, len(entries)),
	}

	first := true
	var ref Fingerprint
	for id, fp := range entries {
		if first {
			ref = fp
			first = false
		} else if !fp.Comparable(ref) {
			return nil, fmt.Errorf("%w: %q has hash size %d (%s), table uses %d (%s)",
				ErrPreconditionViolation, id, fp.HashSize, fp.Kind, ref.HashSize, ref.Kind)
		}
		t.entries[id] = fp
		t.ids = append(t.ids, id)
	}
	sort.Strings(t.ids)

	t.hashSize = ref.HashSize
	t.kind = ref.Kind
	return t, nil
}

// Len returns the number of entries.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.ids)
}

// IDs returns the identifiers in lexicographic order.
func (t *Table) IDs() []string {
	if t == nil {
		return nil
	}
	ids := make([]string, len(t.ids))
	copy(ids, t.ids)
	return ids
}

// Get returns the fingerprint for id.
func (t *Table) Get(id string) (Fingerprint, bool) {
	if t == nil {
		return Fingerprint{}, false
	}
	fp, ok := t.entries[id]
	return fp, ok
}

// HashSize returns the hash size shared by all entries, 0 for an empty table.
func (t *Table) HashSize() int {
	if t == nil {
		return 0
	}
	return t.hashSize
}

// Kind returns the algorithm shared by all entries.
func (t *Table) Kind() Kind {
	if t == nil {
		return ""
	}
	return t.kind
}
