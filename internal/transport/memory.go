package transport

import (
	"context"
	"net"
)

// Memory is an in-process transport built on net.Pipe. It is both the
// Listener and the Dialer, which lets tests run a server and its clients
// without touching the network.
type Memory struct {
	q *queue
}

// NewMemory returns an open in-memory transport.
func NewMemory() *Memory {
	return &Memory{q: newQueue()}
}

func (m *Memory) Accept(ctx context.Context) (Conn, error) {
	return m.q.accept(ctx)
}

// Dial returns the client end of a new pipe and queues the server end.
func (m *Memory) Dial(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	client, server := net.Pipe()
	if !m.q.push(server) {
		_ = client.Close()
		return nil, ErrClosed
	}
	return client, nil
}

func (m *Memory) Addr() net.Addr {
	return memoryAddr{}
}

func (m *Memory) Close() error {
	if m.q.close() {
		m.q.drain()
	}
	return nil
}

type memoryAddr struct{}

func (memoryAddr) Network() string { return "memory" }
func (memoryAddr) String() string  { return "memory" }
