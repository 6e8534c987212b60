package handlebars

import (
	"bytes"
	"strings"
	"sync"
)

// ----------------------------- Buffer pools ---------------------------------

var bufPool = sync.Pool{New: func() any { return new(bytes.Buffer) }}

var stringBuilderPool = sync.Pool{New: func() any { return new(strings.Builder) }}

func getBuffer() *bytes.Buffer {
	b := bufPool.Get().(*bytes.Buffer)
	b.Reset()
	return b
}

// putBuffer returns b to the pool unless it grew too large to be worth keeping.
func putBuffer(b *bytes.Buffer) {
	if b.Cap() > 64<<10 {
		return
	}
	bufPool.Put(b)
}
