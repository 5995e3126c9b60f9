package internal

import "sync"

// BytePool recycles scratch []byte buffers for callers that repeatedly
// encode/decode into a throwaway slice (e.g. a compressor's EncodeAll/
// DecodeAll destination). Get returns a zero-length slice with at least
// initialCap of spare capacity; Put returns it to the pool for reuse.
type BytePool struct {
	pool       sync.Pool
	initialCap int
}

func NewBytePool(initialCap int) *BytePool {
	p := &BytePool{initialCap: initialCap}
	p.pool.New = func() any {
		return make([]byte, 0, p.initialCap)
	}
	return p
}

func (p *BytePool) Get() []byte {
	return p.pool.Get().([]byte)[:0]
}

func (p *BytePool) Put(buf []byte) {
	p.pool.Put(buf) //nolint:staticcheck // intentionally store the slice header, not a pointer
}
