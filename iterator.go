package slabq

// Iterator is a read-only, weakly-consistent forward traversal over a
// Queue's elements. It never mutates the consumer cursor and never
// deletes slab files, so multiple iterators (and a concurrent consumer)
// can coexist. "Weakly consistent" means an iterator may or may not
// observe elements appended after it was created, but it never observes
// an element out of order and never repeats one.
type Iterator[T any] struct {
	q    *Queue[T]
	tl   *tailer
	slab uint64
}

// newIterator starts a traversal positioned just before the consumer
// cursor's current read position, using its own tailer independent of the
// queue's cached one.
func newIterator[T any](q *Queue[T]) (*Iterator[T], error) {
	q.consumerMu.Lock()
	slab := uint64(q.cursor.slab())
	idx := q.cursor.index()
	q.consumerMu.Unlock()

	seg := q.segmentFor(slab)
	tl, err := newTailer(seg)
	if err != nil {
		return nil, err
	}
	if idx < 0 {
		tl.ToStart()
	} else if _, err := tl.ToIndex(idx); err != nil {
		tl.Close()
		return nil, err
	}

	return &Iterator[T]{q: q, tl: tl, slab: slab}, nil
}

// Next returns the next element in order, or (zero, false, nil) once the
// traversal has caught up to the slab currently receiving appends.
func (it *Iterator[T]) Next() (T, bool, error) {
	var zero T
	for {
		idx, ok, err := it.tl.Next()
		if err != nil {
			return zero, false, err
		}
		if ok {
			raw, err := it.tl.Read()
			if err != nil {
				return zero, false, err
			}
			val, err := it.q.deserializer.Deserialize(bytesReader(raw))
			if err != nil {
				return zero, false, &CorruptStateError{Slab: it.slab, Index: idx, Err: err}
			}
			return *val, true, nil
		}

		// No more committed excerpts in this slab. If it is still the one
		// receiving appends, the traversal has caught up; stop here
		// rather than guessing at a successor that may never be created.
		if it.slab == it.q.activeSlabID.Load() {
			return zero, false, nil
		}

		nextSlab := it.slab + 1
		ntl, err := newTailer(it.q.segmentFor(nextSlab))
		if err != nil {
			return zero, false, err
		}
		it.tl.Close()
		it.tl = ntl
		it.slab = nextSlab
		it.tl.ToStart()
	}
}

// Close releases the iterator's independent tailer. It is safe to call
// Close without exhausting the iterator.
func (it *Iterator[T]) Close() error {
	return it.tl.Close()
}
