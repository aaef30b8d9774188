package slabq

import (
	"os"
	"regexp"
	"sort"
	"strconv"
)

// slabIndexPattern matches filenames of the form "<name>-<digits>.index":
// no sign, at least one digit, leading zeros accepted. Generalized from
// ChronicleBlockingQueue.slabIndex/isSlabIndex (manual substring scanning)
// into a single regexp.
func slabIndexPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(name) + `-([0-9]+)\.index$`)
}

// allSlabIDs scans dir for "<name>-<digits>.index" files and returns the
// slab ids they name, in ascending order. Only .index files contribute;
// .data files are ignored here.
func allSlabIDs(dir, name string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, wrapIOFailure("read storage directory", err)
	}

	pattern := slabIndexPattern(name)
	ids := make([]uint64, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := pattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		id, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			continue // not representable; treat as not a slab file
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// headSlabID returns the minimum id in ids. Callers must not pass an empty
// slice; an empty directory is handled by the queue engine creating slab 1
// on first open (see New), not by this function.
func headSlabID(ids []uint64) uint64 {
	head := ids[0]
	for _, id := range ids[1:] {
		if id < head {
			head = id
		}
	}
	return head
}

// tailSlabID returns the maximum id in ids, or 0 if ids is empty.
func tailSlabID(ids []uint64) uint64 {
	if len(ids) == 0 {
		return 0
	}
	tail := ids[0]
	for _, id := range ids[1:] {
		if id > tail {
			tail = id
		}
	}
	return tail
}
