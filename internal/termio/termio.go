// Package termio serializes console output. Writes are queued and copied to
// the terminal by one goroutine per stream, so lines from concurrent downloads
// never interleave mid-line and slow terminals never stall a transfer.
package termio

import (
	"io"
	"os"
	"sync"

	"golang.org/x/term"
)

type chunk struct {
	data []byte
	done chan struct{} // set for flush markers
}

type writer struct {
	out io.Writer
	ch  chan chunk
}

func newWriter(out io.Writer) *writer {
	w := &writer{out: out, ch: make(chan chunk, 1024)}
	go w.loop()
	return w
}

func (w *writer) loop() {
	for c := range w.ch {
		if c.done != nil {
			close(c.done)
			continue
		}
		_, _ = w.out.Write(c.data)
	}
}

func (w *writer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	buf := make([]byte, len(p))
	copy(buf, p)
	w.ch <- chunk{data: buf}
	return len(p), nil
}

// flush blocks until everything queued before it has been written.
func (w *writer) flush() {
	done := make(chan struct{})
	w.ch <- chunk{done: done}
	<-done
}

type manager struct {
	once   sync.Once
	stdout *writer
	stderr *writer
}

var global manager

func Init() {
	global.once.Do(func() {
		global.stdout = newWriter(os.Stdout)
		global.stderr = newWriter(os.Stderr)
	})
}

func Stdout() io.Writer {
	Init()
	return global.stdout
}

func Stderr() io.Writer {
	Init()
	return global.stderr
}

// Flush waits until queued stdout and stderr output has been written. Call it
// before exiting.
func Flush() {
	Init()
	global.stdout.flush()
	global.stderr.flush()
}

// Interactive reports whether both stdin and stdout are terminals.
func Interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}
