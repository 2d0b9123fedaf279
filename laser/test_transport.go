package laser

import (
	"bytes"
	"io"
	"sync"
	"time"
)

// TestTransport is a test helper that simulates a blocking transport using
// channels. Reads block until data is queued with SendData, like a real
// socket would, and every write is recorded.
type TestTransport struct {
	mu         sync.Mutex
	readChan   chan []byte
	buf        []byte
	closed     bool
	stream     []byte
	written    chan []byte
	writeDelay time.Duration
}

// NewTestTransport creates a new test transport for testing.
func NewTestTransport() *TestTransport {
	return &TestTransport{
		readChan: make(chan []byte, 16),
		written:  make(chan []byte, 64),
	}
}

func (t *TestTransport) Read(p []byte) (int, error) {
	if len(t.buf) == 0 {
		data, ok := <-t.readChan
		if !ok {
			return 0, io.EOF
		}
		t.buf = data
	}
	n := copy(p, t.buf)
	t.buf = t.buf[n:]
	return n, nil
}

// Write appends p to the recorded stream one byte at a time, sleeping for
// the write delay after each byte so that unsynchronized writers would
// interleave.
func (t *TestTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	closed, delay := t.closed, t.writeDelay
	t.mu.Unlock()
	if closed {
		return 0, io.ErrClosedPipe
	}

	for _, b := range p {
		t.mu.Lock()
		t.stream = append(t.stream, b)
		t.mu.Unlock()
		if delay > 0 {
			time.Sleep(delay)
		}
	}

	select {
	case t.written <- bytes.Clone(p):
	default:
	}
	return len(p), nil
}

func (t *TestTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.readChan)
	return nil
}

// Hangup simulates the peer closing the connection.
func (t *TestTransport) Hangup() {
	t.Close()
}

// Closed reports whether the transport has been closed.
func (t *TestTransport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// SendData queues data to be read by the transport.
// This simulates receiving data from the scanner.
func (t *TestTransport) SendData(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.readChan <- []byte(data)
	}
}

// SetWriteDelay sets the per-byte write delay.
func (t *TestTransport) SetWriteDelay(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeDelay = d
}

// Written returns a channel that receives a copy of every write.
func (t *TestTransport) Written() <-chan []byte {
	return t.written
}

// Stream returns everything written so far.
func (t *TestTransport) Stream() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return bytes.Clone(t.stream)
}
