package slabq

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAllSlabIDs(t *testing.T) {
	dir := t.TempDir()

	names := []string{
		"orders-1.index", "orders-1.data",
		"orders-2.index", "orders-2.data",
		"orders-10.index",
		"orders.position",  // not a slab file, must be ignored
		"other-3.index",    // different name prefix, must be ignored
		"orders-abc.index", // not numeric, must be ignored
	}
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
			t.Fatalf("failed to seed %s: %v", name, err)
		}
	}

	ids, err := allSlabIDs(dir, "orders")
	if err != nil {
		t.Fatalf("allSlabIDs returned error: %v", err)
	}

	expect := []uint64{1, 2, 10}
	if len(ids) != len(expect) {
		t.Fatalf("Failed test: expect %v, actual %v", expect, ids)
	}
	for i := range expect {
		if ids[i] != expect[i] {
			t.Errorf("Failed test: expect %v, actual %v", expect, ids)
			break
		}
	}
}

func TestHeadAndTailSlabID(t *testing.T) {
	ids := []uint64{5, 1, 3}
	if head := headSlabID(ids); head != 1 {
		t.Errorf("Failed test: headSlabID = %d, want 1", head)
	}
	if tail := tailSlabID(ids); tail != 5 {
		t.Errorf("Failed test: tailSlabID = %d, want 5", tail)
	}
	if tail := tailSlabID(nil); tail != 0 {
		t.Errorf("Failed test: tailSlabID(nil) = %d, want 0", tail)
	}
}
