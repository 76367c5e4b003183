package discovery

import (
	"errors"
	"sync"

	"tarun-kavipurapu/lanfetch/pkg/protocol"
)

// fakeTransport is an in-memory transport.Transport.
type fakeTransport struct {
	mu       sync.Mutex
	ch       chan protocol.RPC
	sent     [][]byte
	closed   bool
	failSend int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{ch: make(chan protocol.RPC, 256)}
}

// deliver queues a datagram as if it arrived from ip. It reports false once closed.
func (f *fakeTransport) deliver(ip string, payload []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	select {
	case f.ch <- protocol.RPC{From: ip, Payload: payload}:
	default:
	}
	return true
}

func (f *fakeTransport) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("closed")
	}
	if f.failSend > 0 {
		f.failSend--
		return errors.New("network unreachable")
	}
	f.sent = append(f.sent, append([]byte(nil), payload...))
	return nil
}

func (f *fakeTransport) Consume() <-chan protocol.RPC {
	return f.ch
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.ch)
	}
	return nil
}

func (f *fakeTransport) Addr() string { return "fake" }

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// sentMessages decodes everything sent so far.
func (f *fakeTransport) sentMessages() []protocol.MulticastMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.MulticastMessage, 0, len(f.sent))
	for _, b := range f.sent {
		if m, err := protocol.DecodeMulticast(b); err == nil {
			out = append(out, m)
		}
	}
	return out
}
