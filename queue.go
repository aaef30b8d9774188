package slabq

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// Queue is a persistent, file-backed blocking FIFO queue of T. A single
// producer and a single consumer may operate on a Queue concurrently
// without additional synchronization; multiple producers or multiple
// consumers require external serialization.
type Queue[T any] struct {
	dir             string
	name            string
	maxSlabs        uint32 // 0 = unbounded
	slabBlockSize   uint64
	messageCapacity uint32
	serializer      Serializer[T]
	deserializer    Deserializer[T]
	equal           func(a, b T) bool
	logger          *slog.Logger
	pollInterval    time.Duration

	cursor *cursorFile

	// stateMu guards liveSlabCount and slab file deletion together: the
	// live slab count is mutated from both the producer (rollover) and
	// the consumer (deletion) side.
	stateMu       sync.Mutex
	liveSlabCount uint32
	tailSlab      uint64 // highest slab id ever allocated; producer-owned

	activeSlabID atomic.Uint64 // published slab id currently receiving appends

	producerMu    sync.Mutex
	cachedAppend  *appender
	appendSlabID  uint64
	appendIsValid bool

	consumerMu   sync.Mutex
	cachedTail   *tailer
	tailSlabID   uint64
	tailIsValid  bool

	notEmpty *signal
	notFull  *signal

	closed  bool
	closeMu sync.Mutex
}

// New creates or opens a persistent queue rooted at storageDir.
func New[T any](storageDir string, opts ...Option[T]) (*Queue[T], error) {
	if err := validateStorageDir(storageDir); err != nil {
		return nil, err
	}

	var o options[T]
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}

	name := defaultName
	if o.name != nil {
		name = *o.name
	}
	var maxSlabs uint32
	if o.maxSlabs != nil {
		maxSlabs = *o.maxSlabs
	} else {
		maxSlabs = defaultMaxSlabs
	}
	slabBlockSize := uint64(defaultSlabBlockSize)
	if o.slabBlockSize != nil {
		slabBlockSize = *o.slabBlockSize
	}
	messageCapacity := uint32(defaultMsgCapacity)
	if o.messageCapacity != nil {
		messageCapacity = *o.messageCapacity
	}
	serializer := Serializer[T](jsonSerializer[T]{})
	if o.serializer != nil {
		serializer = o.serializer
	}
	deserializer := Deserializer[T](jsonDeserializer[T]{})
	if o.deserializer != nil {
		deserializer = o.deserializer
	}
	equal := defaultEqual[T]
	if o.equal != nil {
		equal = o.equal
	}
	logger := slog.Default()
	if o.logger != nil {
		logger = o.logger
	}
	pollInterval := time.Duration(defaultPollInterval)
	if o.pollInterval != nil {
		pollInterval = *o.pollInterval
	}
	sweepOrphans := true
	if o.sweepOrphans != nil {
		sweepOrphans = *o.sweepOrphans
	}

	ids, err := allSlabIDs(storageDir, name)
	if err != nil {
		return nil, err
	}

	var head, tail uint64
	if len(ids) == 0 {
		// Empty directory: create slab 1 rather than propagate a sentinel
		// slab id that every other piece of code would need to special-case.
		head, tail = 1, 1
		first, err := newAppender(newSegment(storageDir, name, 1, slabBlockSize, messageCapacity))
		if err != nil {
			return nil, err
		}
		first.Close()
	} else {
		head, tail = headSlabID(ids), tailSlabID(ids)
	}

	cursorPath := filepath.Join(storageDir, name+".position")
	cursor, created, err := newCursorFile(cursorPath)
	if err != nil {
		return nil, err
	}
	if created {
		cursor.setSlab(uint32(head))
		cursor.setIndex(-1)
	}

	q := &Queue[T]{
		dir:             storageDir,
		name:            name,
		maxSlabs:        maxSlabs,
		slabBlockSize:   slabBlockSize,
		messageCapacity: messageCapacity,
		serializer:      serializer,
		deserializer:    deserializer,
		equal:           equal,
		logger:          logger,
		pollInterval:    pollInterval,
		cursor:          cursor,
		tailSlab:        tail,
		liveSlabCount:   uint32(tail - head + 1),
		notEmpty:        newSignal(),
		notFull:         newSignal(),
	}
	q.activeSlabID.Store(tail)

	if sweepOrphans {
		cursorSlab := uint64(cursor.slab())
		q.sweepOrphanSlabs(cursorSlab)
		if cursorSlab > head && cursorSlab <= tail {
			q.liveSlabCount = uint32(tail - cursorSlab + 1)
		}
	}

	return q, nil
}

// sweepOrphanSlabs removes slab files left behind by a crash between a
// cursor advance and the corresponding slab deletion: any slab id strictly
// less than the cursor's current slab (cursorHead) has already been fully
// consumed and should have been deleted.
func (q *Queue[T]) sweepOrphanSlabs(cursorHead uint64) {
	ids, err := allSlabIDs(q.dir, q.name)
	if err != nil {
		return
	}
	for _, id := range ids {
		if id < cursorHead {
			seg := newSegment(q.dir, q.name, id, q.slabBlockSize, q.messageCapacity)
			if err := seg.delete(); err != nil {
				q.logger.Warn("failed to sweep orphan slab", "slab", id, "error", err)
			} else {
				q.logger.Info("swept orphan slab", "slab", id)
			}
		}
	}
}

func (q *Queue[T]) segmentFor(id uint64) *segment {
	return newSegment(q.dir, q.name, id, q.slabBlockSize, q.messageCapacity)
}

// appenderFor returns the cached appender for id, opening a new one (and
// closing the previous) if it doesn't already point at id.
func (q *Queue[T]) appenderFor(id uint64) (*appender, error) {
	if q.appendIsValid && q.appendSlabID == id {
		return q.cachedAppend, nil
	}
	if q.appendIsValid {
		q.cachedAppend.Close()
	}
	a, err := newAppender(q.segmentFor(id))
	if err != nil {
		return nil, err
	}
	q.cachedAppend = a
	q.appendSlabID = id
	q.appendIsValid = true
	return a, nil
}

// tailerFor returns the cached tailer for id, opening a new one (and
// closing the previous) if it doesn't already point at id.
func (q *Queue[T]) tailerFor(id uint64) (*tailer, error) {
	if q.tailIsValid && q.tailSlabID == id {
		return q.cachedTail, nil
	}
	if q.tailIsValid {
		q.cachedTail.Close()
	}
	t, err := newTailer(q.segmentFor(id))
	if err != nil {
		return nil, err
	}
	q.cachedTail = t
	q.tailSlabID = id
	q.tailIsValid = true
	return t, nil
}

// Offer attempts to append e without blocking, returning false if the
// queue is at its configured slab limit. It never blocks.
func (q *Queue[T]) Offer(e *T) (bool, error) {
	if e == nil {
		return false, ErrNullElement
	}
	q.producerMu.Lock()
	defer q.producerMu.Unlock()

	active := q.activeSlabID.Load()
	ap, err := q.appenderFor(active)
	if err != nil {
		return false, err
	}

	if err := ap.StartExcerpt(); err != nil {
		if !errors.Is(err, errSlabFull) {
			return false, err
		}
		rolled, rollErr := q.rollActiveSlab(active)
		if rollErr != nil {
			return false, rollErr
		}
		if !rolled {
			return false, nil // at max slabs
		}
		active = q.activeSlabID.Load()
		ap, err = q.appenderFor(active)
		if err != nil {
			return false, err
		}
		// This retry must succeed: the new slab is empty.
		if err := ap.StartExcerpt(); err != nil {
			return false, err
		}
	}

	if err := q.serializer.Serialize(e, ap); err != nil {
		ap.Discard()
		return false, err
	}
	if _, err := ap.Commit(); err != nil {
		return false, err
	}

	q.notEmpty.broadcast()
	return true, nil
}

// rollActiveSlab allocates slab active+1 and switches the cached appender
// to it, returning false if the configured slab limit has been reached.
func (q *Queue[T]) rollActiveSlab(active uint64) (bool, error) {
	q.stateMu.Lock()
	defer q.stateMu.Unlock()

	if q.maxSlabs > 0 && q.liveSlabCount >= q.maxSlabs {
		return false, nil
	}

	newID := active + 1
	if q.appendIsValid {
		q.cachedAppend.Close()
		q.appendIsValid = false
	}
	a, err := newAppender(q.segmentFor(newID))
	if err != nil {
		return false, err
	}
	q.cachedAppend = a
	q.appendSlabID = newID
	q.appendIsValid = true

	q.tailSlab = newID
	q.liveSlabCount++
	q.activeSlabID.Store(newID) // publishing write: release semantics

	q.logger.Info("rolled over to new slab", "slab", newID)
	return true, nil
}

// Add appends e, returning ErrQueueFull if the queue is at its configured
// slab limit.
func (q *Queue[T]) Add(e *T) error {
	ok, err := q.Offer(e)
	if err != nil {
		return err
	}
	if !ok {
		return ErrQueueFull
	}
	return nil
}

// Put appends e, blocking until space is available or ctx is done.
func (q *Queue[T]) Put(ctx context.Context, e *T) error {
	if e == nil {
		return ErrNullElement
	}
	for {
		ok, err := q.Offer(e)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if err := q.notFull.wait(ctx, q.pollInterval); err != nil {
			return err
		}
	}
}

// OfferTimeout appends e, blocking until space is available or timeout
// elapses, whichever comes first. Returns false if the deadline elapses
// before success.
func (q *Queue[T]) OfferTimeout(ctx context.Context, e *T, timeout time.Duration) (bool, error) {
	if e == nil {
		return false, ErrNullElement
	}
	deadline := time.Now().Add(timeout)
	for {
		ok, err := q.Offer(e)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, nil
		}
		waitCtx, cancel := context.WithTimeout(ctx, remaining)
		err = q.notFull.wait(waitCtx, q.pollInterval)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return false, nil
			}
			return false, err
		}
	}
}

// Poll removes and returns the head of the queue, or (zero, false) if the
// queue is empty. It never blocks.
func (q *Queue[T]) Poll() (T, bool, error) {
	q.consumerMu.Lock()
	defer q.consumerMu.Unlock()

	var zero T
	slab := uint64(q.cursor.slab())
	tl, err := q.tailerFor(slab)
	if err != nil {
		return zero, false, err
	}
	if err := q.seekToCursor(tl, slab); err != nil {
		return zero, false, err
	}

	idx, ok, err := tl.Next()
	if err != nil {
		return zero, false, err
	}
	if ok {
		val, err := q.readAt(tl, slab, idx)
		if err != nil {
			return zero, false, err
		}
		q.cursor.setIndex(idx)
		return *val, true, nil
	}

	if slab == q.activeSlabID.Load() {
		return zero, false, nil // caught up to the writer
	}

	// Rollover: advance cursor, switch tailer, delete the drained slab.
	newSlab := uint64(q.cursor.incrementSlabAndResetIndex())
	ntl, err := q.tailerFor(newSlab)
	if err != nil {
		return zero, false, err
	}
	ntl.ToStart()
	if err := q.deleteSlab(slab); err != nil {
		return zero, false, err
	}

	idx2, ok2, err := ntl.Next()
	if err != nil {
		return zero, false, err
	}
	if !ok2 {
		return zero, false, nil
	}
	val, err := q.readAt(ntl, newSlab, idx2)
	if err != nil {
		return zero, false, err
	}
	q.cursor.setIndex(idx2)
	return *val, true, nil
}

// deleteSlab removes a drained slab's files and updates the live slab
// count, under the same mutex that guards rollover admission.
func (q *Queue[T]) deleteSlab(id uint64) error {
	q.stateMu.Lock()
	defer q.stateMu.Unlock()

	if err := q.segmentFor(id).delete(); err != nil {
		return err
	}
	q.liveSlabCount--
	q.logger.Info("deleted drained slab", "slab", id)
	q.notFull.broadcast()
	return nil
}

// seekToCursor positions tl at the cursor's last-read index for slab, or at
// the start if the cursor has never read from this slab.
func (q *Queue[T]) seekToCursor(tl *tailer, slab uint64) error {
	idx := q.cursor.index()
	if idx == -1 {
		tl.ToStart()
		return nil
	}
	found, err := tl.ToIndex(idx)
	if err != nil {
		return err
	}
	if !found {
		return &CorruptStateError{Slab: slab, Index: idx}
	}
	return nil
}

func (q *Queue[T]) readAt(tl *tailer, slab uint64, idx int32) (*T, error) {
	raw, err := tl.Read()
	if err != nil {
		return nil, err
	}
	val, err := q.deserializer.Deserialize(bytesReader(raw))
	if err != nil {
		return nil, &CorruptStateError{Slab: slab, Index: idx, Err: err}
	}
	return val, nil
}

// Peek returns the head of the queue without removing it, or (zero, false)
// if the queue is empty. It never blocks and never mutates the cursor.
func (q *Queue[T]) Peek() (T, bool, error) {
	q.consumerMu.Lock()
	defer q.consumerMu.Unlock()

	var zero T
	slab := uint64(q.cursor.slab())
	tl, err := q.tailerFor(slab)
	if err != nil {
		return zero, false, err
	}
	if err := q.seekToCursor(tl, slab); err != nil {
		return zero, false, err
	}

	idx, ok, err := tl.Next()
	if err != nil {
		return zero, false, err
	}
	if ok {
		val, err := q.readAt(tl, slab, idx)
		if err != nil {
			return zero, false, err
		}
		// Undo the tailer's advance so a second Peek observes the same
		// excerpt instead of skipping ahead.
		tl.pos = idx - 1
		return *val, true, nil
	}

	if slab == q.activeSlabID.Load() {
		return zero, false, nil
	}

	// Speculatively read the first excerpt of the successor slab via a
	// throwaway tailer, without disturbing the cached one or the cursor.
	peekTl, err := newTailer(q.segmentFor(slab + 1))
	if err != nil {
		return zero, false, err
	}
	defer peekTl.Close()
	peekTl.ToStart()
	idx2, ok2, err := peekTl.Next()
	if err != nil {
		return zero, false, err
	}
	if !ok2 {
		return zero, false, nil
	}
	val, err := q.readAt(peekTl, slab+1, idx2)
	if err != nil {
		return zero, false, err
	}
	return *val, true, nil
}

// Take removes and returns the head of the queue, blocking until an
// element is available or ctx is done.
func (q *Queue[T]) Take(ctx context.Context) (T, error) {
	for {
		val, ok, err := q.Poll()
		if err != nil {
			var zero T
			return zero, err
		}
		if ok {
			return val, nil
		}
		if err := q.notEmpty.wait(ctx, q.pollInterval); err != nil {
			var zero T
			return zero, err
		}
	}
}

// PollTimeout removes and returns the head of the queue, blocking until an
// element is available or timeout elapses, whichever comes first.
func (q *Queue[T]) PollTimeout(ctx context.Context, timeout time.Duration) (T, bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		val, ok, err := q.Poll()
		if err != nil {
			var zero T
			return zero, false, err
		}
		if ok {
			return val, true, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			var zero T
			return zero, false, nil
		}
		waitCtx, cancel := context.WithTimeout(ctx, remaining)
		err = q.notEmpty.wait(waitCtx, q.pollInterval)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				var zero T
				return zero, false, nil
			}
			var zero T
			return zero, false, err
		}
	}
}

// Element returns the head of the queue without removing it, returning
// ErrEmptyQueue if the queue is empty.
func (q *Queue[T]) Element() (T, error) {
	val, ok, err := q.Peek()
	if err != nil {
		return val, err
	}
	if !ok {
		return val, ErrEmptyQueue
	}
	return val, nil
}

// Remove removes and returns the head of the queue, returning
// ErrEmptyQueue if the queue is empty.
func (q *Queue[T]) Remove() (T, error) {
	val, ok, err := q.Poll()
	if err != nil {
		return val, err
	}
	if !ok {
		return val, ErrEmptyQueue
	}
	return val, nil
}

// DrainTo transfers up to maxElements from q to dst via repeated Poll,
// returning the number of elements transferred. It rejects dst == q. If dst
// rejects an element (for example with ErrQueueFull), DrainTo returns the
// count so far and that error; the rejected element has already been
// removed from q.
func (q *Queue[T]) DrainTo(dst *Queue[T], maxElements int) (int, error) {
	if dst == q {
		return 0, errors.Join(ErrInvalidConfiguration, errors.New("drainTo: dst must not be the queue itself"))
	}
	n := 0
	for n < maxElements {
		val, ok, err := q.Poll()
		if err != nil {
			return n, err
		}
		if !ok {
			break
		}
		if err := dst.Add(&val); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Size returns the number of elements currently in the queue, computed by
// iterating the whole queue. O(N): no running element count is persisted
// anywhere, only slab-level excerpt counts.
func (q *Queue[T]) Size() (int, error) {
	it, err := q.Iterator()
	if err != nil {
		return 0, err
	}
	defer it.Close()
	n := 0
	for {
		_, ok, err := it.Next()
		if err != nil {
			return n, err
		}
		if !ok {
			break
		}
		n++
	}
	return n, nil
}

// Contains reports whether value is present, scanning linearly via an
// iterator and the queue's configured equality function.
func (q *Queue[T]) Contains(value T) (bool, error) {
	it, err := q.Iterator()
	if err != nil {
		return false, err
	}
	defer it.Close()
	for {
		v, ok, err := it.Next()
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		if q.equal(v, value) {
			return true, nil
		}
	}
}

// ContainsAll reports whether every element of values is present.
func (q *Queue[T]) ContainsAll(values []T) (bool, error) {
	for _, v := range values {
		ok, err := q.Contains(v)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// RemainingCapacity reports math.MaxInt: the queue is bounded by slab
// count, not element count, so there is no finite element capacity to
// report.
func (q *Queue[T]) RemainingCapacity() int {
	return math.MaxInt
}

// ToArray returns a snapshot of the queue's elements, in order.
func (q *Queue[T]) ToArray() ([]T, error) {
	it, err := q.Iterator()
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var out []T
	for {
		v, ok, err := it.Next()
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, v)
	}
}

// Remove operations on arbitrary elements are unsupported: the append-only
// slab model provides no out-of-order deletion, and honoring them would
// require rewriting committed slab files in place.

// RemoveValue is unsupported: the append-only slab model has no way to
// delete a single element out of order.
func (q *Queue[T]) RemoveValue(T) error { return ErrUnsupportedOperation }

// RemoveAll is unsupported for the same reason as RemoveValue.
func (q *Queue[T]) RemoveAll([]T) error { return ErrUnsupportedOperation }

// RetainAll is unsupported for the same reason as RemoveValue.
func (q *Queue[T]) RetainAll([]T) error { return ErrUnsupportedOperation }

// Clear is unsupported: truncating slabs out from under a concurrent
// producer or consumer would corrupt their cursor position.
func (q *Queue[T]) Clear() error { return ErrUnsupportedOperation }

// Iterator returns a read-only, weakly-consistent traversal from the
// current cursor position forward across slab boundaries.
func (q *Queue[T]) Iterator() (*Iterator[T], error) {
	return newIterator(q)
}

// Close releases the cached tailer, cached appender, and cursor file
// mapping. Idempotent; further operations after Close are undefined.
func (q *Queue[T]) Close() error {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if q.tailIsValid {
		record(q.cachedTail.Close())
	}
	if q.appendIsValid {
		record(q.cachedAppend.Close())
	}
	record(q.cursor.close())
	return firstErr
}

func bytesReader(b []byte) io.Reader {
	return &sliceReader{b: b}
}

// sliceReader is a minimal io.Reader over a byte slice, avoiding a
// bytes.Reader allocation's extra fields we don't need.
type sliceReader struct {
	b   []byte
	pos int
}

func (r *sliceReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.pos:])
	r.pos += n
	return n, nil
}
