package inference

import (
	"sync"
)

const (
	// initialScanBufSize is the starting size of a pooled SSE scan buffer
	initialScanBufSize = 64 * 1024
	// maxStreamLineBytes bounds a single SSE line; chunks carrying long
	// generations stay well under this
	maxStreamLineBytes = 4 * 1024 * 1024
)

// scanBufPool reuses SSE scan buffers across generations. A benchmark run
// opens one stream per work item, so without pooling each item would
// allocate a fresh 64KB buffer.
var scanBufPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, initialScanBufSize)
		return &buf
	},
}

// getScanBuf retrieves a scan buffer from the pool.
// Caller must call putScanBuf() when done to return it to the pool.
func getScanBuf() *[]byte {
	return scanBufPool.Get().(*[]byte)
}

// putScanBuf returns a scan buffer to the pool for reuse
func putScanBuf(buf *[]byte) {
	scanBufPool.Put(buf)
}
