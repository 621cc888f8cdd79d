// Package channel provides the byte streams Karma readers and writers run on.
//
// A Channel is any io.ReadWriteCloser. Closing a channel makes pending and later
// reads fail, which is how a caller cancels a blocked karma read.
package channel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
)

// ErrClosed is returned by operations on a closed memory channel.
var ErrClosed = errors.New("channel: closed")

// Channel is a bidirectional byte stream.
type Channel interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Memory is an in-memory channel. Reads consume what earlier writes appended
// and report io.EOF when the buffer is drained.
type Memory struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

// NewMemory returns an empty memory channel.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	return m.buf.Read(p)
}

func (m *Memory) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	return m.buf.Write(p)
}

// Close discards any unread bytes.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.closed = true
	m.buf.Reset()
	return nil
}

// Len returns the number of unread bytes.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buf.Len()
}

// Pipe returns two connected, synchronous channels. Each write blocks until the
// peer has read all of it.
func Pipe() (Channel, Channel) {
	a, b := net.Pipe()
	return a, b
}

// Dial connects to addr on the named network.
func Dial(ctx context.Context, network, addr string) (Channel, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("channel: dial %s %s: %w", network, addr, err)
	}
	return conn, nil
}

// OpenFile opens path with the given flags, creating it with mode 0644 when
// flag includes os.O_CREATE.
func OpenFile(path string, flag int) (Channel, error) {
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, err
	}
	return f, nil
}
