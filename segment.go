package slabq

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// indexRecordSize is the size of one excerpt's (offset, length) record in
// a slab's .index file.
const indexRecordSize = 16

// errSlabFull is returned by appender.StartExcerpt when the slab's
// committed data size has reached slab_block_size. It is not exported:
// callers observe it only indirectly via Offer returning false (or
// retrying into a new slab).
var errSlabFull = fmt.Errorf("slabq: slab full")

// segment is the append-only log for a single slab, backed by
// "<name>-<id>.data" and "<name>-<id>.index".
type segment struct {
	dir             string
	name            string
	id              uint64
	maxDataBytes    uint64
	maxMessageBytes uint32
}

func slabFileBase(dir, name string, id uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%d", name, id))
}

func dataPath(dir, name string, id uint64) string  { return slabFileBase(dir, name, id) + ".data" }
func indexPath(dir, name string, id uint64) string { return slabFileBase(dir, name, id) + ".index" }

func newSegment(dir, name string, id uint64, maxDataBytes uint64, maxMessageBytes uint32) *segment {
	return &segment{dir: dir, name: name, id: id, maxDataBytes: maxDataBytes, maxMessageBytes: maxMessageBytes}
}

// committedDataSize returns the current size of the slab's .data file (0 if
// it doesn't exist yet), used for the rollover fullness pre-check.
func (s *segment) committedDataSize() (uint64, error) {
	info, err := os.Stat(dataPath(s.dir, s.name, s.id))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, wrapIOFailure("stat slab data file", err)
	}
	return uint64(info.Size()), nil
}

// excerptCount returns the number of committed excerpts in this slab (the
// .index file's size divided by the record size), 0 if the file doesn't
// exist yet.
func (s *segment) excerptCount() (int32, error) {
	info, err := os.Stat(indexPath(s.dir, s.name, s.id))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, wrapIOFailure("stat slab index file", err)
	}
	return int32(info.Size() / indexRecordSize), nil
}

func (s *segment) delete() error {
	if err := os.Remove(indexPath(s.dir, s.name, s.id)); err != nil && !os.IsNotExist(err) {
		return wrapIOFailure("delete slab index file", err)
	}
	if err := os.Remove(dataPath(s.dir, s.name, s.id)); err != nil && !os.IsNotExist(err) {
		return wrapIOFailure("delete slab data file", err)
	}
	return nil
}

// appender is the write handle for a segment's active slab. Only one
// excerpt may be in progress at a time: StartExcerpt, write via the
// appender as an io.Writer, then Commit.
type appender struct {
	seg      *segment
	dataFile *os.File
	idxFile  *os.File
	dataEnd  uint64 // current committed data size, tracked to avoid re-stat
	buf      *bytes.Buffer
}

// newAppender opens (creating if necessary) the slab's data/index files for
// writing.
func newAppender(seg *segment) (*appender, error) {
	dataFile, err := os.OpenFile(dataPath(seg.dir, seg.name, seg.id), os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, wrapIOFailure("open slab data file for append", err)
	}
	idxFile, err := os.OpenFile(indexPath(seg.dir, seg.name, seg.id), os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		dataFile.Close()
		return nil, wrapIOFailure("open slab index file for append", err)
	}
	dataSize, err := seg.committedDataSize()
	if err != nil {
		dataFile.Close()
		idxFile.Close()
		return nil, err
	}
	return &appender{seg: seg, dataFile: dataFile, idxFile: idxFile, dataEnd: dataSize}, nil
}

// StartExcerpt begins a new excerpt, refusing with errSlabFull if the slab
// has already reached its configured data budget.
func (a *appender) StartExcerpt() error {
	if a.dataEnd >= a.seg.maxDataBytes {
		return errSlabFull
	}
	a.buf = getExcerptBuf()
	return nil
}

// Write implements io.Writer, accumulating bytes for the excerpt in
// progress. Satisfies the Serializer[T] contract of writing into the
// segment's current write cursor.
func (a *appender) Write(p []byte) (int, error) {
	return a.buf.Write(p)
}

// Commit finishes the in-progress excerpt: validates it against
// message_capacity, appends its bytes to the data file, appends its
// (offset, length) record to the index file, and returns its assigned
// index.
func (a *appender) Commit() (int32, error) {
	defer func() {
		putExcerptBuf(a.buf)
		a.buf = nil
	}()

	length := uint64(a.buf.Len())
	if a.seg.maxMessageBytes > 0 && length > uint64(a.seg.maxMessageBytes) {
		return 0, ErrMessageTooLarge
	}

	offset := a.dataEnd
	if _, err := a.dataFile.WriteAt(a.buf.Bytes(), int64(offset)); err != nil {
		return 0, wrapIOFailure("write slab data", err)
	}

	count, err := a.seg.excerptCount()
	if err != nil {
		return 0, err
	}

	var record [indexRecordSize]byte
	binary.LittleEndian.PutUint64(record[0:8], offset)
	binary.LittleEndian.PutUint64(record[8:16], length)
	if _, err := a.idxFile.WriteAt(record[:], int64(count)*indexRecordSize); err != nil {
		return 0, wrapIOFailure("write slab index", err)
	}

	a.dataEnd += length
	return count, nil
}

// Discard abandons the in-progress excerpt without writing anything.
func (a *appender) Discard() {
	if a.buf != nil {
		putExcerptBuf(a.buf)
		a.buf = nil
	}
}

func (a *appender) Close() error {
	err1 := a.dataFile.Close()
	err2 := a.idxFile.Close()
	if err1 != nil {
		return wrapIOFailure("close slab data file", err1)
	}
	if err2 != nil {
		return wrapIOFailure("close slab index file", err2)
	}
	return nil
}

// tailer is the read handle for a segment. pos is the index of the
// "current" excerpt; -1 means positioned before the first excerpt.
type tailer struct {
	seg      *segment
	dataFile *os.File
	idxFile  *os.File
	pos      int32
}

func newTailer(seg *segment) (*tailer, error) {
	dataFile, err := os.OpenFile(dataPath(seg.dir, seg.name, seg.id), os.O_RDONLY|os.O_CREATE, 0644)
	if err != nil {
		return nil, wrapIOFailure("open slab data file for read", err)
	}
	idxFile, err := os.OpenFile(indexPath(seg.dir, seg.name, seg.id), os.O_RDONLY|os.O_CREATE, 0644)
	if err != nil {
		dataFile.Close()
		return nil, wrapIOFailure("open slab index file for read", err)
	}
	return &tailer{seg: seg, dataFile: dataFile, idxFile: idxFile, pos: -1}, nil
}

// ToStart positions the tailer before the first excerpt.
func (t *tailer) ToStart() {
	t.pos = -1
}

// ToIndex positions the tailer at (not past) idx, reporting whether idx is
// a valid committed excerpt.
func (t *tailer) ToIndex(idx int32) (bool, error) {
	count, err := t.seg.excerptCount()
	if err != nil {
		return false, err
	}
	if idx < 0 || idx >= count {
		return false, nil
	}
	t.pos = idx
	return true, nil
}

// Next advances to the next excerpt, reporting whether one exists.
func (t *tailer) Next() (int32, bool, error) {
	count, err := t.seg.excerptCount()
	if err != nil {
		return 0, false, err
	}
	next := t.pos + 1
	if next >= count {
		return 0, false, nil
	}
	t.pos = next
	return next, true, nil
}

// Read returns the bytes of the excerpt currently positioned at.
func (t *tailer) Read() ([]byte, error) {
	if t.pos < 0 {
		return nil, fmt.Errorf("slabq: tailer not positioned at an excerpt")
	}
	var record [indexRecordSize]byte
	if _, err := t.idxFile.ReadAt(record[:], int64(t.pos)*indexRecordSize); err != nil {
		return nil, wrapIOFailure("read slab index record", err)
	}
	offset := binary.LittleEndian.Uint64(record[0:8])
	length := binary.LittleEndian.Uint64(record[8:16])

	buf := make([]byte, length)
	if _, err := io.ReadFull(io.NewSectionReader(t.dataFile, int64(offset), int64(length)), buf); err != nil {
		return nil, wrapIOFailure("read slab data", err)
	}
	return buf, nil
}

func (t *tailer) Close() error {
	err1 := t.dataFile.Close()
	err2 := t.idxFile.Close()
	if err1 != nil {
		return wrapIOFailure("close slab data file", err1)
	}
	if err2 != nil {
		return wrapIOFailure("close slab index file", err2)
	}
	return nil
}
