package session

import (
	"fmt"
	"sync"

	"github.com/cyberinferno/frontend-session/notify"
	"github.com/cyberinferno/frontend-session/settings"
)

// FrontendSession is the restricted, serializable view of a Session handed to
// application handler code. Identity fields and the settings store are copied
// at projection time, so handlers can never mutate transport internals
// directly; identity-changing operations are forwarded back to the Service.
//
// The uid and settings held here are local mirrors: a successful Bind/Unbind
// updates only this view's uid, and Set writes only this view's settings
// until Push/PushAll copies them back into the source Session.
type FrontendSession struct {
	id         uint32
	frontendID string
	session    *Session
	service    *Service
	emitter    *notify.Emitter

	mu       sync.RWMutex
	uid      string
	settings settings.Store
}

// Snapshot is the serializable subset of a frontend session, safe to send
// across a process boundary or to logs.
type Snapshot struct {
	ID         uint32         `json:"id"`
	FrontendID string         `json:"frontendId"`
	UID        string         `json:"uid,omitempty"`
	Settings   settings.Store `json:"settings"`
}

// ID returns the session id.
func (fs *FrontendSession) ID() uint32 {
	return fs.id
}

// FrontendID returns the identifier of the owning frontend instance.
func (fs *FrontendSession) FrontendID() string {
	return fs.frontendID
}

// UID returns this view's uid mirror. It reflects the uid at projection time
// plus any Bind/Unbind performed through this view; it is not live-linked to
// the source session.
func (fs *FrontendSession) UID() string {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.uid
}

// Bind forwards to Service.Bind and, on success, updates the local uid
// mirror before invoking cb. Callback delivery follows the Service contract
// (deferred to the scheduler loop).
//
// Parameters:
//   - uid: The user identifier to bind
//   - cb: Completion callback; may be nil
func (fs *FrontendSession) Bind(uid string, cb Callback) {
	fs.service.Bind(fs.id, uid, func(err error) {
		if err == nil {
			fs.mu.Lock()
			fs.uid = uid
			fs.mu.Unlock()
		}

		if cb != nil {
			cb(err)
		}
	})
}

// Unbind forwards to Service.Unbind and, on success, clears the local uid
// mirror before invoking cb.
//
// Parameters:
//   - uid: The user identifier to unbind
//   - cb: Completion callback; may be nil
func (fs *FrontendSession) Unbind(uid string, cb Callback) {
	fs.service.Unbind(fs.id, uid, func(err error) {
		if err == nil {
			fs.mu.Lock()
			fs.uid = ""
			fs.mu.Unlock()
		}

		if cb != nil {
			cb(err)
		}
	})
}

// Set writes one key into the local settings copy. No Service round-trip
// happens until Push or PushAll.
//
// Parameters:
//   - key: The settings key
//   - value: The value to store
func (fs *FrontendSession) Set(key string, value settings.Value) {
	fs.mu.Lock()
	fs.settings[key] = value.Clone()
	fs.mu.Unlock()
}

// Get reads one value from the local settings copy.
//
// Parameters:
//   - key: The settings key to look up
//
// Returns:
//   - The value and true if set, or a zero Value and false otherwise
func (fs *FrontendSession) Get(key string) (settings.Value, bool) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	v, ok := fs.settings[key]
	return v, ok
}

// Remove deletes one key from the local settings copy. Scoped strictly to
// settings; identity fields are not reachable through it.
//
// Parameters:
//   - key: The settings key to delete
func (fs *FrontendSession) Remove(key string) {
	fs.mu.Lock()
	delete(fs.settings, key)
	fs.mu.Unlock()
}

// Push copies one locally-set settings value back into the source Session
// through Service.Import. The callback follows the Import contract
// (synchronous delivery). Fails when the key is not set locally.
//
// Parameters:
//   - key: The local settings key to push
//   - cb: Completion callback; may be nil
func (fs *FrontendSession) Push(key string, cb Callback) {
	fs.mu.RLock()
	value, ok := fs.settings[key]
	fs.mu.RUnlock()

	if !ok {
		if cb != nil {
			cb(fmt.Errorf("push setting %q for sid %d: not set", key, fs.id))
		}

		return
	}

	fs.service.Import(fs.id, key, value, cb)
}

// PushAll copies the entire local settings snapshot back into the source
// Session through Service.ImportAll. The callback follows the ImportAll
// contract (synchronous delivery).
//
// Parameters:
//   - cb: Completion callback; may be nil
func (fs *FrontendSession) PushAll(cb Callback) {
	fs.mu.RLock()
	snapshot := fs.settings.Clone()
	fs.mu.RUnlock()

	fs.service.ImportAll(fs.id, snapshot, cb)
}

// On subscribes a handler both on this view and on the underlying Session,
// so session-originated notifications (e.g. EventClosed) reach handler code
// subscribed only at the frontend-session layer.
//
// Parameters:
//   - event: The event name to subscribe to
//   - handler: Function invoked synchronously when the event fires
func (fs *FrontendSession) On(event string, handler notify.Handler) {
	fs.emitter.On(event, handler)
	fs.session.On(event, handler)
}

// Export returns the serializable subset of this view: id, frontendId, uid,
// and a deep copy of the local settings. Nothing else is included.
//
// Returns:
//   - A Snapshot of this frontend session
func (fs *FrontendSession) Export() Snapshot {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	return Snapshot{
		ID:         fs.id,
		FrontendID: fs.frontendID,
		UID:        fs.uid,
		Settings:   fs.settings.Clone(),
	}
}
