// Package pools holds the sync.Pool allocators shared by the HTTP
// response path, adapted from entitydb's storage/pools buffer and
// encoder pools to the two buffer sizes this repository's handlers
// actually need: small JSON responses and larger binary posting dumps.
package pools

import (
	"bytes"
	"sync"
)

// ResponseBufferPool holds reusable buffers for encoding a query
// response before it is written to the socket.
var ResponseBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 4096))
	},
}

// BinaryBufferPool holds reusable buffers for assembling the `i=`
// binary posting-record response (spec §6), sized larger since a
// posting dump can run to many records.
var BinaryBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 64*1024))
	},
}

// GetResponseBuffer returns a reset buffer sized for a JSON response.
func GetResponseBuffer() *bytes.Buffer {
	buf := ResponseBufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutResponseBuffer returns buf to the pool, discarding it instead if it
// has grown unusually large so the pool doesn't retain bloated buffers.
func PutResponseBuffer(buf *bytes.Buffer) {
	if buf.Cap() > 1<<20 {
		return
	}
	ResponseBufferPool.Put(buf)
}

// GetBinaryBuffer returns a reset buffer sized for a binary posting dump.
func GetBinaryBuffer() *bytes.Buffer {
	buf := BinaryBufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBinaryBuffer returns buf to the pool, discarding it instead if it
// has grown unusually large.
func PutBinaryBuffer(buf *bytes.Buffer) {
	if buf.Cap() > 16<<20 {
		return
	}
	BinaryBufferPool.Put(buf)
}
