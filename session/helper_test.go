package session

import (
	"net"
	"sync"
	"testing"

	"github.com/cyberinferno/frontend-session/sched"
)

// fakeSocket records every transport interaction so tests can assert on the
// close protocol and message forwarding.
type fakeSocket struct {
	mu          sync.Mutex
	sent        [][]byte
	batches     [][][]byte
	closing     []string
	disconnects int
	addr        net.Addr
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		addr: &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4010},
	}
}

func (f *fakeSocket) Send(msg []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSocket) SendBatch(msgs [][]byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, msgs)
	return nil
}

func (f *fakeSocket) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	return nil
}

func (f *fakeSocket) RemoteAddr() net.Addr {
	return f.addr
}

func (f *fakeSocket) Closing(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closing = append(f.closing, reason)
}

func (f *fakeSocket) disconnectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects
}

func (f *fakeSocket) closingReasons() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]string, len(f.closing))
	copy(cp, f.closing)
	return cp
}

func (f *fakeSocket) sentMessages() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([][]byte, len(f.sent))
	copy(cp, f.sent)
	return cp
}

func (f *fakeSocket) sentBatches() [][][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([][][]byte, len(f.batches))
	copy(cp, f.batches)
	return cp
}

// newTestService builds a service on a loop the test controls. The loop is
// stopped via t.Cleanup.
func newTestService(t *testing.T, singleSession bool) (*Service, *sched.Loop) {
	t.Helper()

	loop := sched.NewLoop()
	loop.Start()
	t.Cleanup(loop.Stop)

	svc := NewService(Config{
		SingleSession: singleSession,
		Loop:          loop,
	})

	return svc, loop
}

// await runs an asynchronous registry operation and returns the error its
// callback delivered, after flushing the scheduler loop.
func await(t *testing.T, loop *sched.Loop, start func(Callback)) error {
	t.Helper()

	errCh := make(chan error, 1)
	start(func(err error) {
		errCh <- err
	})

	loop.Sync()

	select {
	case err := <-errCh:
		return err
	default:
		t.Fatal("callback was not invoked")
		return nil
	}
}
