package memcache

import (
	"bytes"
	"compress/zlib"
	"io"
	"sync"

	"github.com/pior/memcache/internal"
)

// DefaultCompressionThreshold is the value size, in bytes, at or above which
// Compressor compresses a stored value. Values below it round-trip
// uncompressed, since zlib's framing overhead isn't worth it for small
// payloads.
const DefaultCompressionThreshold = 128

// Compressor compresses values before they're stored and decompresses them
// after they're read back. Implementations must be safe for concurrent use.
type Compressor interface {
	// Compress returns data unchanged (ok=false) if it's under threshold,
	// or its compressed form (ok=true) otherwise.
	Compress(data []byte) (out []byte, ok bool, err error)
	Decompress(data []byte) ([]byte, error)
}

// zlibCompressor wraps the standard library's compress/zlib, matching the
// ZLIB_COMPRESSED encoding bit the library this was modeled on sets.
type zlibCompressor struct {
	threshold int
	scratch   *internal.BytePool
	writers   sync.Pool // *zlib.Writer
}

// NewZlibCompressor returns a Compressor that compresses values at or above
// thresholdBytes using zlib. A non-positive threshold disables compression.
func NewZlibCompressor(thresholdBytes int) Compressor {
	if thresholdBytes <= 0 {
		return noopCompressor{}
	}
	c := &zlibCompressor{threshold: thresholdBytes, scratch: internal.NewBytePool(thresholdBytes)}
	c.writers.New = func() any { return zlib.NewWriter(io.Discard) }
	return c
}

// Compress writes into a pooled scratch buffer, then copies the result into
// a right-sized slice the caller can keep: the scratch buffer itself always
// goes back to the pool, so nothing above us can ever hold a reference into
// it.
func (c *zlibCompressor) Compress(data []byte) ([]byte, bool, error) {
	if c.threshold <= 0 || len(data) < c.threshold {
		return data, false, nil
	}

	buf := bytes.NewBuffer(c.scratch.Get())
	defer func() { c.scratch.Put(buf.Bytes()[:0]) }()

	w := c.writers.Get().(*zlib.Writer)
	defer c.writers.Put(w)
	w.Reset(buf)

	if _, err := w.Write(data); err != nil {
		return nil, false, err
	}
	if err := w.Close(); err != nil {
		return nil, false, err
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, true, nil
}

func (c *zlibCompressor) Decompress(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	buf := bytes.NewBuffer(c.scratch.Get())
	defer func() { c.scratch.Put(buf.Bytes()[:0]) }()

	if _, err := io.Copy(buf, r); err != nil {
		return nil, err
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

// noopCompressor never compresses. Selected by WithCompression(0).
type noopCompressor struct{}

func (noopCompressor) Compress(data []byte) ([]byte, bool, error) { return data, false, nil }
func (noopCompressor) Decompress(data []byte) ([]byte, error)     { return data, nil }
