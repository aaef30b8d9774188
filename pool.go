package slabq

import (
	"bytes"
	"sync"
)

// excerptBufferSize seeds the scratch buffer pool's initial capacity.
// Adjustable via SetExcerptBufferSize.
var excerptBufferSize = 64 * 1024

// excerptBufPool pools the scratch buffers an appender serializes an
// excerpt into before committing it, so Offer doesn't allocate a fresh
// buffer on every call.
var excerptBufPool = sync.Pool{
	New: func() any {
		return bytes.NewBuffer(make([]byte, 0, excerptBufferSize))
	},
}

// SetExcerptBufferSize changes the initial capacity used for newly created
// pooled excerpt buffers.
func SetExcerptBufferSize(size int) {
	excerptBufferSize = size
	excerptBufPool.New = func() any {
		return bytes.NewBuffer(make([]byte, 0, excerptBufferSize))
	}
}

func getExcerptBuf() *bytes.Buffer {
	buf := excerptBufPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

func putExcerptBuf(buf *bytes.Buffer) {
	excerptBufPool.Put(buf)
}
