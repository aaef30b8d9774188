package slabq

import (
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// cursorFile is the 8-byte memory-mapped consumer read position, packing
// (slab_id:u32 high, excerpt_index:i32 low) into a single atomically
// updatable 64-bit word. It mirrors ChroniclePosition from the original
// Chronicle-backed implementation, translated onto golang.org/x/sys/unix's
// mmap and sync/atomic's 64-bit primitives.
type cursorFile struct {
	f    *os.File
	data []byte // 8-byte mmap region
}

// newCursorFile opens (creating if necessary) the position file at path,
// truncating/extending it to exactly 8 bytes, and maps it. created reports
// whether the file was newly created (and therefore zero-valued) by this
// call.
func newCursorFile(path string) (cf *cursorFile, created bool, err error) {
	_, statErr := os.Stat(path)
	created = os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, false, wrapIOFailure("open cursor file", err)
	}
	if err := f.Truncate(8); err != nil {
		f.Close()
		return nil, false, wrapIOFailure("truncate cursor file", err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, 8, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, false, wrapIOFailure("mmap cursor file", err)
	}

	return &cursorFile{f: f, data: data}, created, nil
}

func (c *cursorFile) word() *int64 {
	return (*int64)(unsafe.Pointer(&c.data[0]))
}

// load performs a volatile 64-bit read.
func (c *cursorFile) load() int64 {
	return atomic.LoadInt64(c.word())
}

// store performs an ordered 64-bit write.
func (c *cursorFile) store(v int64) {
	atomic.StoreInt64(c.word(), v)
}

// cas performs a compare-and-swap, returning whether it succeeded.
func (c *cursorFile) cas(expected, next int64) bool {
	return atomic.CompareAndSwapInt64(c.word(), expected, next)
}

// slab returns the high 32 bits, the consumer's current slab id.
func (c *cursorFile) slab() uint32 {
	return uint32(uint64(c.load()) >> 32)
}

// index returns the low 32 bits, the last-read excerpt index (-1 = none).
func (c *cursorFile) index() int32 {
	return int32(uint32(c.load()))
}

// setSlab updates the slab id, preserving the index.
func (c *cursorFile) setSlab(newSlab uint32) {
	for {
		old := c.load()
		next := int64(uint64(newSlab)<<32) | (old & 0xFFFFFFFF)
		if c.cas(old, next) {
			return
		}
	}
}

// setIndex updates the excerpt index, preserving the slab id. i is masked
// to its low 32 bits so the -1 sentinel round-trips correctly.
func (c *cursorFile) setIndex(i int32) {
	for {
		old := c.load()
		next := (old &^ 0xFFFFFFFF) | int64(uint32(i))
		if c.cas(old, next) {
			return
		}
	}
}

// incrementSlabAndResetIndex atomically sets the cursor to
// (slab+1, -1) in a single 64-bit write and returns the new slab id.
func (c *cursorFile) incrementSlabAndResetIndex() uint32 {
	for {
		old := c.load()
		newSlab := uint32(uint64(old)>>32) + 1
		next := int64(uint64(newSlab)<<32) | 0xFFFFFFFF // index becomes -1
		if c.cas(old, next) {
			return newSlab
		}
	}
}

// close unmaps and closes the underlying file.
func (c *cursorFile) close() error {
	if err := unix.Munmap(c.data); err != nil {
		c.f.Close()
		return wrapIOFailure("munmap cursor file", err)
	}
	if err := c.f.Close(); err != nil {
		return wrapIOFailure("close cursor file", err)
	}
	return nil
}
