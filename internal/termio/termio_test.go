package termio

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWriterFlushWritesEverything(t *testing.T) {
	var out lockedBuffer
	w := newWriter(&out)
	for i := 0; i < 100; i++ {
		fmt.Fprintf(w, "line %d\n", i)
	}
	w.flush()

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 100 {
		t.Fatalf("expected 100 lines after flush, got %d", len(lines))
	}
	if lines[0] != "line 0" || lines[99] != "line 99" {
		t.Fatalf("lines out of order: %q ... %q", lines[0], lines[99])
	}
}

func TestWriterCopiesCallerBuffer(t *testing.T) {
	var out lockedBuffer
	w := newWriter(&out)
	buf := []byte("first\n")
	_, _ = w.Write(buf)
	copy(buf, "XXXXX\n")
	w.flush()
	if out.String() != "first\n" {
		t.Fatalf("writer kept a reference to the caller's buffer: %q", out.String())
	}
}

func TestConcurrentWritesStayWhole(t *testing.T) {
	var out lockedBuffer
	w := newWriter(&out)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				fmt.Fprintf(w, "worker-%d item-%d\n", id, i)
			}
		}(g)
	}
	wg.Wait()
	w.flush()

	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if !strings.HasPrefix(line, "worker-") || !strings.Contains(line, " item-") {
			t.Fatalf("torn line %q", line)
		}
	}
}
