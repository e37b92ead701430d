// Package session implements the session-identity layer of a frontend
// server: the Session record kept per live connection, the FrontendSession
// projection handed to application handlers, and the Service registry that
// owns the sid table and the uid index.
package session

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/cyberinferno/frontend-session/notify"
	"github.com/cyberinferno/frontend-session/settings"
)

// Event names emitted by Session and FrontendSession.
const (
	// EventBind fires after a session is bound to a uid. Args: uid string.
	EventBind = "bind"

	// EventUnbind fires after a session is unbound from a uid. Args: uid string.
	EventUnbind = "unbind"

	// EventClosed fires exactly once when a session goes through the closed
	// transition. Args: *FrontendSession (a fresh snapshot), reason string.
	EventClosed = "closed"
)

// Callback is the completion callback for asynchronous registry operations.
// err is nil on success. Unless documented otherwise, callbacks are delivered
// on the scheduler loop, never synchronously from the triggering call.
type Callback func(err error)

// Session is the server-side record of one live client connection. It holds
// the connection's identity (sid, owning frontend, optional bound uid), a
// free-form settings store, and exclusive ownership of the transport Socket.
//
// A Session is created by Service.Create and destroyed exactly once by
// Closed; the uid field is managed by the Service, which enforces the binding
// invariants before touching it.
type Session struct {
	id         uint32
	frontendID string
	socket     Socket
	service    *Service // non-owning; used for deregistration on close
	emitter    *notify.Emitter
	closed     atomic.Bool

	mu       sync.RWMutex
	uid      string
	settings settings.Store
}

func newSession(sid uint32, frontendID string, socket Socket, svc *Service) *Session {
	return &Session{
		id:         sid,
		frontendID: frontendID,
		socket:     socket,
		service:    svc,
		emitter:    notify.NewEmitter(),
		settings:   settings.NewStore(),
	}
}

// ID returns the session id, unique among live sessions on this frontend.
func (s *Session) ID() uint32 {
	return s.id
}

// FrontendID returns the identifier of the frontend instance owning the session.
func (s *Session) FrontendID() string {
	return s.frontendID
}

// UID returns the bound user identifier, or "" while the session is unbound.
func (s *Session) UID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.uid
}

// IsClosed reports whether the session has gone through the closed transition.
func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// bind and unbind are the registry-internal identity primitives. The Service
// calls them under its own lock after its invariant checks pass; they perform
// no policy checking themselves. The matching notifications are emitted by
// the Service once the registry lock is released.
func (s *Session) bind(uid string) {
	s.mu.Lock()
	s.uid = uid
	s.mu.Unlock()
}

func (s *Session) unbind() {
	s.mu.Lock()
	s.uid = ""
	s.mu.Unlock()
}

func (s *Session) emitBind(uid string) {
	s.emitter.Emit(EventBind, uid)
}

func (s *Session) emitUnbind(uid string) {
	s.emitter.Emit(EventUnbind, uid)
}

// On subscribes a handler to one of the session's lifecycle events
// (EventBind, EventUnbind, EventClosed).
//
// Parameters:
//   - event: The event name to subscribe to
//   - handler: Function invoked synchronously when the event fires
func (s *Session) On(event string, handler notify.Handler) {
	s.emitter.On(event, handler)
}

// Set merges one key into the session's settings store. The value is
// deep-copied so later mutation of what it was built from cannot leak in.
//
// Parameters:
//   - key: The settings key
//   - value: The value to store
func (s *Session) Set(key string, value settings.Value) {
	s.mu.Lock()
	s.settings[key] = value.Clone()
	s.mu.Unlock()
}

// SetAll merges an entire mapping into the settings store, overwriting
// existing keys.
//
// Parameters:
//   - values: The settings to merge in
func (s *Session) SetAll(values settings.Store) {
	s.mu.Lock()
	s.settings.Merge(values)
	s.mu.Unlock()
}

// Get reads one settings value.
//
// Parameters:
//   - key: The settings key to look up
//
// Returns:
//   - The value and true if set, or a zero Value and false otherwise
func (s *Session) Get(key string) (settings.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.settings[key]
	return v, ok
}

// Remove deletes one key from the settings store. It operates strictly on
// settings; identity fields are not reachable through it. No-op when the key
// is not set.
//
// Parameters:
//   - key: The settings key to delete
func (s *Session) Remove(key string) {
	s.mu.Lock()
	delete(s.settings, key)
	s.mu.Unlock()
}

// Send forwards one message to the socket unchanged.
//
// Parameters:
//   - msg: The encoded message bytes
//
// Returns:
//   - An error if the transport write failed
func (s *Session) Send(msg []byte) error {
	return s.socket.Send(msg)
}

// SendBatch forwards several messages to the socket unchanged.
//
// Parameters:
//   - msgs: The encoded messages
//
// Returns:
//   - An error if the transport write failed
func (s *Session) SendBatch(msgs [][]byte) error {
	return s.socket.SendBatch(msgs)
}

// RemoteAddr returns the remote address exposed by the session's socket.
func (s *Session) RemoteAddr() net.Addr {
	return s.socket.RemoteAddr()
}

// ToFrontendSession projects the session into the restricted view handed to
// application handlers. Identity fields are copied and the settings store is
// deep-copied at projection time; later direct mutation of the session's
// settings is not reflected unless re-projected.
//
// Returns:
//   - A new FrontendSession snapshot of this session
func (s *Session) ToFrontendSession() *FrontendSession {
	s.mu.RLock()
	fs := &FrontendSession{
		id:         s.id,
		frontendID: s.frontendID,
		uid:        s.uid,
		settings:   s.settings.Clone(),
		session:    s,
		service:    s.service,
		emitter:    notify.NewEmitter(),
	}
	s.mu.RUnlock()

	return fs
}

// Closed runs the session's terminal transition. It is idempotent: only the
// first call has any effect. The session is deregistered from the Service,
// an EventClosed notification carrying a fresh FrontendSession snapshot and
// the reason is emitted, the socket is told that closing has begun, and the
// actual socket disconnect is deferred to the next scheduler tick so
// synchronous closed listeners run before the connection is torn down.
//
// Parameters:
//   - reason: Why the session is closing (e.g. "kicked by admin", "socket error")
func (s *Session) Closed(reason string) {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}

	s.service.removeClosed(s.id, reason)

	fs := s.ToFrontendSession()
	s.emitter.Emit(EventClosed, fs, reason)

	s.socket.Closing(reason)

	s.service.loop.Post(func() {
		_ = s.socket.Disconnect()
	})
}
