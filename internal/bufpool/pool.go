package bufpool

import (
	"sync"
)

// Pool hands out byte slices of one fixed length, e.g. frame headers.
// Slices are stored by pointer so Put does not allocate.
type Pool struct {
	pool sync.Pool
	size int
}

// New returns a pool of size-byte slices. It panics if size is not positive.
func New(size int) *Pool {
	if size <= 0 {
		panic("bufpool: size must be positive")
	}
	p := &Pool{size: size}
	p.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return p
}

// Get returns a slice of exactly the pool's size. Contents are unspecified.
func (p *Pool) Get() []byte {
	bp := p.pool.Get().(*[]byte)
	if cap(*bp) < p.size {
		return make([]byte, p.size)
	}
	return (*bp)[:p.size]
}

// Put recycles b. Slices smaller than the pool's size are dropped.
func (p *Pool) Put(b []byte) {
	if cap(b) < p.size {
		return
	}
	b = b[:p.size]
	p.pool.Put(&b)
}
