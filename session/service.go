package session

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/cyberinferno/frontend-session/logger"
	"github.com/cyberinferno/frontend-session/metrics"
	"github.com/cyberinferno/frontend-session/sched"
	"github.com/cyberinferno/frontend-session/settings"
)

// defaultTombstoneTTL is how long a closed sid's reason stays queryable
// through ClosedReason when no TTL is configured.
const defaultTombstoneTTL = 2 * time.Minute

// Config holds construction-time settings for a Service.
type Config struct {
	// SingleSession restricts every uid to at most one bound session at a
	// time. Fixed for the lifetime of the service.
	SingleSession bool

	// Loop is the scheduler loop deferred callbacks are delivered on. When
	// nil, the service creates, starts, and owns a private loop, stopping it
	// in Close.
	Loop *sched.Loop

	// Logger receives the service's structured log output. When nil, output
	// is discarded.
	Logger logger.Logger

	// Metrics receives registry instrumentation. May be nil.
	Metrics *metrics.Collector

	// TombstoneTTL is how long ClosedReason remembers a closed sid.
	// Defaults to two minutes when zero or negative.
	TombstoneTTL time.Duration
}

// Service is the process-wide session registry of one frontend instance. It
// owns the sid table and the uid index and is the only component that
// mutates them; Sessions and FrontendSessions go through it for every
// identity change.
//
// For every registered session with a non-empty uid, the session appears
// exactly once in exactly one uid bucket, and that bucket's key matches the
// session's uid. Both structures change together under one lock.
type Service struct {
	singleSession bool
	loop          *sched.Loop
	ownsLoop      bool
	log           logger.Logger
	metrics       *metrics.Collector
	tombstones    *cache.Cache

	mu       sync.RWMutex
	sessions map[uint32]*Session
	uids     uidIndex
}

// NewService creates a session registry with the given configuration.
//
// Parameters:
//   - cfg: Construction-time settings; zero value is usable
//
// Returns:
//   - A new Service ready for use
func NewService(cfg Config) *Service {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	loop := cfg.Loop
	ownsLoop := false
	if loop == nil {
		loop = sched.NewLoop()
		loop.Start()
		ownsLoop = true
	}

	ttl := cfg.TombstoneTTL
	if ttl <= 0 {
		ttl = defaultTombstoneTTL
	}

	return &Service{
		singleSession: cfg.SingleSession,
		loop:          loop,
		ownsLoop:      ownsLoop,
		log:           log.With(logger.Field{Key: "component", Value: "session_service"}),
		metrics:       cfg.Metrics,
		tombstones:    cache.New(ttl, ttl),
		sessions:      make(map[uint32]*Session),
		uids:          make(uidIndex),
	}
}

// Create constructs and registers a new Session for an accepted connection.
// The caller (the transport layer) must guarantee sid uniqueness: a duplicate
// sid silently overwrites the previous registry entry, which is logged as a
// warning but not otherwise defended against.
//
// Parameters:
//   - sid: The pre-validated unique session id
//   - frontendID: Identifier of the owning frontend instance
//   - socket: The transport connection handle, exclusively owned by the session
//
// Returns:
//   - The registered Session
func (svc *Service) Create(sid uint32, frontendID string, socket Socket) *Session {
	s := newSession(sid, frontendID, socket, svc)

	svc.mu.Lock()
	if _, exists := svc.sessions[sid]; exists {
		svc.log.Warn("session id reused; previous registry entry overwritten",
			logger.Field{Key: "sid", Value: sid})
	}
	svc.sessions[sid] = s
	svc.mu.Unlock()

	svc.metrics.SessionOpened()
	svc.log.Debug("session created",
		logger.Field{Key: "sid", Value: sid},
		logger.Field{Key: "frontend_id", Value: frontendID})

	return s
}

// Bind binds session sid to uid. Outcomes, all delivered through cb on the
// scheduler loop even when synchronously determinable:
//   - ErrSessionNotFound when sid is unregistered
//   - success (no state change) when the session is already bound to uid
//   - ErrAlreadyBound when the session is bound to a different uid
//   - ErrSingleSessionViolation when the single-session policy is enabled
//     and uid already has a bound session
//   - success: the session is appended to uid's bucket, its uid is set, an
//     EventBind notification fires, and cb receives nil
//
// Parameters:
//   - sid: The session id to bind
//   - uid: The user identifier to bind it to
//   - cb: Completion callback; may be nil
func (svc *Service) Bind(sid uint32, uid string, cb Callback) {
	svc.mu.Lock()
	s, ok := svc.sessions[sid]
	if !ok {
		svc.mu.Unlock()
		svc.fail(cb, fmt.Errorf("bind sid %d to uid %q: %w", sid, uid, ErrSessionNotFound))
		return
	}

	if cur := s.UID(); cur != "" {
		if cur == uid {
			// Rebinding to the same uid is a uniform no-op success.
			svc.mu.Unlock()
			svc.deliver(cb, nil)
			return
		}

		svc.mu.Unlock()
		svc.fail(cb, fmt.Errorf("bind sid %d to uid %q: already bound to %q: %w",
			sid, uid, cur, ErrAlreadyBound))
		return
	}

	if svc.singleSession && len(svc.uids[uid]) > 0 {
		svc.mu.Unlock()
		svc.fail(cb, fmt.Errorf("bind sid %d to uid %q: %w", sid, uid, ErrSingleSessionViolation))
		return
	}

	if !svc.uids.add(uid, s) {
		// Defensive duplicate guard: already in the bucket, nothing to do.
		svc.mu.Unlock()
		svc.deliver(cb, nil)
		return
	}

	s.bind(uid)
	svc.mu.Unlock()

	s.emitBind(uid)
	svc.metrics.Bound()
	svc.log.Debug("session bound",
		logger.Field{Key: "sid", Value: sid},
		logger.Field{Key: "uid", Value: uid})
	svc.deliver(cb, nil)
}

// Unbind reverses Bind. Outcomes, delivered through cb on the scheduler loop:
//   - ErrSessionNotFound when sid is unregistered
//   - ErrNotBound when the session's current uid is empty or differs from uid
//   - success: the session leaves uid's bucket (the bucket is erased when it
//     becomes empty), its uid is cleared, an EventUnbind notification fires,
//     and cb receives nil
//
// Parameters:
//   - sid: The session id to unbind
//   - uid: The user identifier it must currently be bound to
//   - cb: Completion callback; may be nil
func (svc *Service) Unbind(sid uint32, uid string, cb Callback) {
	svc.mu.Lock()
	s, ok := svc.sessions[sid]
	if !ok {
		svc.mu.Unlock()
		svc.fail(cb, fmt.Errorf("unbind sid %d from uid %q: %w", sid, uid, ErrSessionNotFound))
		return
	}

	if cur := s.UID(); cur == "" || cur != uid {
		svc.mu.Unlock()
		svc.fail(cb, fmt.Errorf("unbind sid %d from uid %q: %w", sid, uid, ErrNotBound))
		return
	}

	svc.uids.remove(uid, s)
	s.unbind()
	svc.mu.Unlock()

	s.emitUnbind(uid)
	svc.metrics.Unbound()
	svc.log.Debug("session unbound",
		logger.Field{Key: "sid", Value: sid},
		logger.Field{Key: "uid", Value: uid})
	svc.deliver(cb, nil)
}

// Remove unconditionally deregisters a session from the sid table and, if
// bound, from its uid bucket. Synchronous, no callback; no-op when sid is
// unregistered. The session's own uid field is left intact so listeners of a
// concurrent close still observe the identity the session had.
//
// Parameters:
//   - sid: The session id to deregister
func (svc *Service) Remove(sid uint32) {
	if s := svc.remove(sid); s != nil {
		svc.metrics.SessionRemoved()
	}
}

// remove deregisters sid from both structures within one critical section
// and returns the removed session, or nil when sid was unregistered.
func (svc *Service) remove(sid uint32) *Session {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	s, ok := svc.sessions[sid]
	if !ok {
		return nil
	}

	delete(svc.sessions, sid)
	if uid := s.UID(); uid != "" {
		svc.uids.remove(uid, s)
	}

	return s
}

// removeClosed is the deregistration path of the closed transition: it
// removes the session and records a tombstone so late operations on the sid
// can be told apart from an unknown sid for a while.
func (svc *Service) removeClosed(sid uint32, reason string) {
	s := svc.remove(sid)
	if s == nil {
		return
	}

	svc.tombstones.Set(tombstoneKey(sid), reason, cache.DefaultExpiration)
	svc.metrics.SessionRemoved()
	svc.metrics.SessionClosed()
	svc.log.Info("session closed",
		logger.Field{Key: "sid", Value: sid},
		logger.Field{Key: "uid", Value: s.UID()},
		logger.Field{Key: "reason", Value: reason})
}

// Import writes one key into the session's settings store. Unlike the
// bind family, the callback is invoked synchronously.
//
// Parameters:
//   - sid: The target session id
//   - key: The settings key
//   - value: The value to store
//   - cb: Completion callback; may be nil
func (svc *Service) Import(sid uint32, key string, value settings.Value, cb Callback) {
	svc.mu.RLock()
	s, ok := svc.sessions[sid]
	svc.mu.RUnlock()

	if !ok {
		svc.invoke(cb, fmt.Errorf("import setting %q into sid %d: %w", key, sid, ErrSessionNotFound))
		return
	}

	s.Set(key, value)
	svc.invoke(cb, nil)
}

// ImportAll merges an entire settings mapping into the session's store.
// Callback delivery is synchronous, as in Import.
//
// Parameters:
//   - sid: The target session id
//   - values: The settings to merge in
//   - cb: Completion callback; may be nil
func (svc *Service) ImportAll(sid uint32, values settings.Store, cb Callback) {
	svc.mu.RLock()
	s, ok := svc.sessions[sid]
	svc.mu.RUnlock()

	if !ok {
		svc.invoke(cb, fmt.Errorf("import settings into sid %d: %w", sid, ErrSessionNotFound))
		return
	}

	s.SetAll(values)
	svc.invoke(cb, nil)
}

// Kick closes every session currently bound to uid via the closed
// transition. Always succeeds: no bound sessions means nothing to do. The
// target set is snapshotted before any closure so the closures' own registry
// mutations cannot disturb the iteration. cb is delivered on the scheduler
// loop after all closures were triggered.
//
// Parameters:
//   - uid: The user identifier whose sessions are closed
//   - reason: Close reason forwarded to every session
//   - cb: Completion callback; may be nil
func (svc *Service) Kick(uid string, reason string, cb Callback) {
	svc.mu.RLock()
	targets := svc.uids.snapshot(uid)
	svc.mu.RUnlock()

	for _, s := range targets {
		s.Closed(reason)
	}

	svc.metrics.Kicked()
	svc.log.Info("kicked uid",
		logger.Field{Key: "uid", Value: uid},
		logger.Field{Key: "reason", Value: reason},
		logger.Field{Key: "sessions", Value: len(targets)})
	svc.deliver(cb, nil)
}

// KickBySessionID closes exactly one session if present; same always-succeed
// contract as Kick.
//
// Parameters:
//   - sid: The session id to close
//   - reason: Close reason forwarded to the session
//   - cb: Completion callback; may be nil
func (svc *Service) KickBySessionID(sid uint32, reason string, cb Callback) {
	svc.mu.RLock()
	s, ok := svc.sessions[sid]
	svc.mu.RUnlock()

	if ok {
		s.Closed(reason)
		svc.metrics.Kicked()
		svc.log.Info("kicked session",
			logger.Field{Key: "sid", Value: sid},
			logger.Field{Key: "reason", Value: reason})
	}

	svc.deliver(cb, nil)
}

// Get returns the session registered under sid, or nil.
func (svc *Service) Get(sid uint32) *Session {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	return svc.sessions[sid]
}

// GetByUID returns the sessions currently bound to uid in binding order, or
// nil when the uid has no bound sessions. The returned slice is a copy.
func (svc *Service) GetByUID(uid string) []*Session {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	return svc.uids.snapshot(uid)
}

// ClientAddress returns the remote address exposed by the session's socket,
// or nil when sid is unregistered.
//
// Parameters:
//   - sid: The session id to look up
//
// Returns:
//   - The remote net.Addr, or nil
func (svc *Service) ClientAddress(sid uint32) net.Addr {
	svc.mu.RLock()
	s, ok := svc.sessions[sid]
	svc.mu.RUnlock()

	if !ok {
		return nil
	}

	return s.RemoteAddr()
}

// Count returns the number of registered sessions.
func (svc *Service) Count() int {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	return len(svc.sessions)
}

// ClosedReason reports the close reason of a recently closed sid, if the sid
// went through the closed transition within the tombstone TTL. Lets callers
// distinguish a just-kicked sid from one that never existed.
//
// Parameters:
//   - sid: The session id to look up
//
// Returns:
//   - The close reason and true, or "" and false
func (svc *Service) ClosedReason(sid uint32) (string, bool) {
	v, ok := svc.tombstones.Get(tombstoneKey(sid))
	if !ok {
		return "", false
	}

	return v.(string), true
}

// ForEachSession calls fn for every registered session. Iteration happens
// over a snapshot, so fn may freely remove or close sessions.
//
// Parameters:
//   - fn: Function called once per session
func (svc *Service) ForEachSession(fn func(*Session)) {
	svc.mu.RLock()
	snapshot := make([]*Session, 0, len(svc.sessions))
	for _, s := range svc.sessions {
		snapshot = append(snapshot, s)
	}
	svc.mu.RUnlock()

	for _, s := range snapshot {
		fn(s)
	}
}

// ForEachBoundSession calls fn for every session currently bound to a uid.
// Iteration happens over a snapshot, as in ForEachSession.
//
// Parameters:
//   - fn: Function called once per bound session
func (svc *Service) ForEachBoundSession(fn func(*Session)) {
	svc.mu.RLock()
	var snapshot []*Session
	svc.uids.forEach(func(s *Session) {
		snapshot = append(snapshot, s)
	})
	svc.mu.RUnlock()

	for _, s := range snapshot {
		fn(s)
	}
}

// Close closes every registered session with the given reason, waits for the
// deferred socket disconnects to run, and stops the scheduler loop if the
// service owns it. Call once during frontend shutdown.
//
// Parameters:
//   - reason: Close reason forwarded to every session
func (svc *Service) Close(reason string) {
	svc.mu.RLock()
	targets := make([]*Session, 0, len(svc.sessions))
	for _, s := range svc.sessions {
		targets = append(targets, s)
	}
	svc.mu.RUnlock()

	for _, s := range targets {
		s.Closed(reason)
	}

	svc.loop.Sync()
	if svc.ownsLoop {
		svc.loop.Stop()
	}

	svc.log.Info("session service closed",
		logger.Field{Key: "sessions_closed", Value: len(targets)})
}

// deliver posts the callback to the scheduler loop, giving callers the
// uniform fire-now-observe-later contract.
func (svc *Service) deliver(cb Callback, err error) {
	if cb == nil {
		return
	}

	svc.loop.Post(func() {
		cb(err)
	})
}

// fail logs the failure and delivers it through the callback.
func (svc *Service) fail(cb Callback, err error) {
	svc.log.Warn("session operation rejected", logger.Field{Key: "error", Value: err.Error()})
	svc.deliver(cb, err)
}

// invoke runs the callback synchronously; used by the import family only.
func (svc *Service) invoke(cb Callback, err error) {
	if err != nil {
		svc.log.Warn("session operation rejected", logger.Field{Key: "error", Value: err.Error()})
	}

	if cb != nil {
		cb(err)
	}
}

func tombstoneKey(sid uint32) string {
	return strconv.FormatUint(uint64(sid), 10)
}
