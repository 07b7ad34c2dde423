package fingerprint

import (
	"errors"
	"reflect"
	"testing"
)

func avg(bits uint64) Fingerprint {
	return Fingerprint{Bits: bits, HashSize: 8, Kind: KindAverage}
}

func TestNewTable_SortedIDs(t *testing.T) {
	table, err := NewTable(map[string]Fingerprint{
		"c.jpg": avg(3),
		"a.jpg": avg(1),
		"b.jpg": avg(2),
	})
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}

	want := []string{"a.jpg", "b.jpg", "c.jpg"}
	if got := table.IDs(); !reflect.DeepEqual(got, want) {
		t.Errorf("IDs() = %v, want %v", got, want)
	}
	if table.Len() != 3 {
		t.Errorf("Len() = %d, want 3", table.Len())
	}
	if table.HashSize() != 8 || table.Kind() != KindAverage {
		t.Errorf("table params = (%d, %s)", table.HashSize(), table.Kind())
	}
}

func TestNewTable_CopiesInput(t *testing.T) {
	entries := map[string]Fingerprint{"a.jpg": avg(1)}
	table, err := NewTable(entries)
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}

	entries["a.jpg"] = avg(99)
	entries["b.jpg"] = avg(2)

	fp, ok := table.Get("a.jpg")
	if !ok || fp.Bits != 1 {
		t.Errorf("Get(a.jpg) = %v, %v; want bits 1", fp, ok)
	}
	if table.Len() != 1 {
		t.Errorf("Len() = %d after mutating input, want 1", table.Len())
	}

	ids := table.IDs()
	ids[0] = "mutated"
	if table.IDs()[0] != "a.jpg" {
		t.Error("IDs() should return a copy")
	}
}

func TestNewTable_RejectsMixedHashSizes(t *testing.T) {
	_, err := NewTable(map[string]Fingerprint{
		"a.jpg": avg(1),
		"b.jpg": {Bits: 1, HashSize: 16, Kind: KindAverage},
	})
	if !errors.Is(err, ErrPreconditionViolation) {
		t.Errorf("NewTable error = %v, want ErrPreconditionViolation", err)
	}
}

func TestNewTable_Empty(t *testing.T) {
	table, err := NewTable(nil)
	if err != nil {
		t.Fatalf("NewTable(nil) failed: %v", err)
	}
	if table.Len() != 0 || len(table.IDs()) != 0 {
		t.Error("empty table should have no entries")
	}
}

func TestNilTable(t *testing.T) {
	var table *Table
	if table.Len() != 0 || table.IDs() != nil || table.HashSize() != 0 {
		t.Error("nil table should behave as empty")
	}
	if _, ok := table.Get("x"); ok {
		t.Error("nil table Get should report missing")
	}
}
