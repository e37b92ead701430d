package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/frontend-session/settings"
)

func TestService_Create(t *testing.T) {
	svc, _ := newTestService(t, false)

	s := svc.Create(1, "f1", newFakeSocket())
	require.NotNil(t, s)
	assert.Equal(t, uint32(1), s.ID())
	assert.Equal(t, "f1", s.FrontendID())
	assert.Empty(t, s.UID())
	assert.Equal(t, 1, svc.Count())
	assert.Same(t, s, svc.Get(1))
}

func TestService_Bind(t *testing.T) {
	t.Run("unknown sid fails with session not found", func(t *testing.T) {
		svc, loop := newTestService(t, false)

		err := await(t, loop, func(cb Callback) { svc.Bind(99, "u1", cb) })
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("success sets uid and indexes the session", func(t *testing.T) {
		svc, loop := newTestService(t, false)
		s := svc.Create(1, "f1", newFakeSocket())

		err := await(t, loop, func(cb Callback) { svc.Bind(1, "u1", cb) })
		require.NoError(t, err)

		assert.Equal(t, "u1", s.UID())
		bound := svc.GetByUID("u1")
		require.Len(t, bound, 1)
		assert.Same(t, s, bound[0])
	})

	t.Run("rebinding to the same uid is a no-op success", func(t *testing.T) {
		svc, loop := newTestService(t, false)
		svc.Create(1, "f1", newFakeSocket())

		require.NoError(t, await(t, loop, func(cb Callback) { svc.Bind(1, "u1", cb) }))
		require.NoError(t, await(t, loop, func(cb Callback) { svc.Bind(1, "u1", cb) }))

		assert.Len(t, svc.GetByUID("u1"), 1, "duplicate bind must not grow the bucket")
	})

	t.Run("binding to a different uid fails with already bound", func(t *testing.T) {
		svc, loop := newTestService(t, false)
		s := svc.Create(1, "f1", newFakeSocket())

		require.NoError(t, await(t, loop, func(cb Callback) { svc.Bind(1, "u1", cb) }))

		err := await(t, loop, func(cb Callback) { svc.Bind(1, "u2", cb) })
		assert.ErrorIs(t, err, ErrAlreadyBound)
		assert.Equal(t, "u1", s.UID(), "failed bind must not change the uid")
		assert.Nil(t, svc.GetByUID("u2"))
	})

	t.Run("emits bind notification with the uid", func(t *testing.T) {
		svc, loop := newTestService(t, false)
		s := svc.Create(1, "f1", newFakeSocket())

		var got []any
		s.On(EventBind, func(args ...any) { got = args })

		require.NoError(t, await(t, loop, func(cb Callback) { svc.Bind(1, "u1", cb) }))
		require.Len(t, got, 1)
		assert.Equal(t, "u1", got[0])
	})

	t.Run("callback runs only after the call returned", func(t *testing.T) {
		svc, loop := newTestService(t, false)
		svc.Create(1, "f1", newFakeSocket())

		var returned atomic.Bool
		var observed atomic.Bool
		svc.Bind(1, "u1", func(err error) {
			observed.Store(returned.Load())
		})
		returned.Store(true)

		loop.Sync()
		assert.True(t, observed.Load(), "callback must not run inside the Bind call frame")
	})
}

func TestService_Bind_singleSession(t *testing.T) {
	t.Run("second session for a uid is rejected when enabled", func(t *testing.T) {
		svc, loop := newTestService(t, true)
		svc.Create(1, "f1", newFakeSocket())
		svc.Create(2, "f1", newFakeSocket())

		require.NoError(t, await(t, loop, func(cb Callback) { svc.Bind(1, "u1", cb) }))

		err := await(t, loop, func(cb Callback) { svc.Bind(2, "u1", cb) })
		assert.ErrorIs(t, err, ErrSingleSessionViolation)
		assert.Len(t, svc.GetByUID("u1"), 1)
	})

	t.Run("rebinding the same session stays a no-op when enabled", func(t *testing.T) {
		svc, loop := newTestService(t, true)
		svc.Create(1, "f1", newFakeSocket())

		require.NoError(t, await(t, loop, func(cb Callback) { svc.Bind(1, "u1", cb) }))
		require.NoError(t, await(t, loop, func(cb Callback) { svc.Bind(1, "u1", cb) }))
	})

	t.Run("multiple sessions per uid are allowed when disabled", func(t *testing.T) {
		svc, loop := newTestService(t, false)
		svc.Create(1, "f1", newFakeSocket())
		svc.Create(2, "f1", newFakeSocket())

		require.NoError(t, await(t, loop, func(cb Callback) { svc.Bind(1, "u1", cb) }))
		require.NoError(t, await(t, loop, func(cb Callback) { svc.Bind(2, "u1", cb) }))

		bound := svc.GetByUID("u1")
		require.Len(t, bound, 2)
		assert.Equal(t, uint32(1), bound[0].ID(), "bucket keeps binding order")
		assert.Equal(t, uint32(2), bound[1].ID())
	})
}

func TestService_Unbind(t *testing.T) {
	t.Run("unknown sid fails with session not found", func(t *testing.T) {
		svc, loop := newTestService(t, false)

		err := await(t, loop, func(cb Callback) { svc.Unbind(99, "u1", cb) })
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("unbound session fails with not bound", func(t *testing.T) {
		svc, loop := newTestService(t, false)
		svc.Create(1, "f1", newFakeSocket())

		err := await(t, loop, func(cb Callback) { svc.Unbind(1, "u1", cb) })
		assert.ErrorIs(t, err, ErrNotBound)
	})

	t.Run("wrong uid fails with not bound", func(t *testing.T) {
		svc, loop := newTestService(t, false)
		s := svc.Create(1, "f1", newFakeSocket())

		require.NoError(t, await(t, loop, func(cb Callback) { svc.Bind(1, "u1", cb) }))

		err := await(t, loop, func(cb Callback) { svc.Unbind(1, "u2", cb) })
		assert.ErrorIs(t, err, ErrNotBound)
		assert.Equal(t, "u1", s.UID())
	})

	t.Run("success clears uid and erases an emptied bucket", func(t *testing.T) {
		svc, loop := newTestService(t, false)
		s := svc.Create(1, "f1", newFakeSocket())

		require.NoError(t, await(t, loop, func(cb Callback) { svc.Bind(1, "u1", cb) }))
		require.NoError(t, await(t, loop, func(cb Callback) { svc.Unbind(1, "u1", cb) }))

		assert.Empty(t, s.UID())
		assert.Nil(t, svc.GetByUID("u1"), "last unbind must erase the bucket, not leave it empty")
	})

	t.Run("other sessions of the uid keep their binding", func(t *testing.T) {
		svc, loop := newTestService(t, false)
		svc.Create(1, "f1", newFakeSocket())
		s2 := svc.Create(2, "f1", newFakeSocket())

		require.NoError(t, await(t, loop, func(cb Callback) { svc.Bind(1, "u1", cb) }))
		require.NoError(t, await(t, loop, func(cb Callback) { svc.Bind(2, "u1", cb) }))
		require.NoError(t, await(t, loop, func(cb Callback) { svc.Unbind(1, "u1", cb) }))

		bound := svc.GetByUID("u1")
		require.Len(t, bound, 1)
		assert.Same(t, s2, bound[0])
	})

	t.Run("emits unbind notification with the uid", func(t *testing.T) {
		svc, loop := newTestService(t, false)
		s := svc.Create(1, "f1", newFakeSocket())

		var got []any
		s.On(EventUnbind, func(args ...any) { got = args })

		require.NoError(t, await(t, loop, func(cb Callback) { svc.Bind(1, "u1", cb) }))
		require.NoError(t, await(t, loop, func(cb Callback) { svc.Unbind(1, "u1", cb) }))
		require.Len(t, got, 1)
		assert.Equal(t, "u1", got[0])
	})
}

func TestService_Remove(t *testing.T) {
	t.Run("deregisters from both structures", func(t *testing.T) {
		svc, loop := newTestService(t, false)
		svc.Create(1, "f1", newFakeSocket())
		require.NoError(t, await(t, loop, func(cb Callback) { svc.Bind(1, "u1", cb) }))

		svc.Remove(1)
		assert.Nil(t, svc.Get(1))
		assert.Nil(t, svc.GetByUID("u1"))
		assert.Equal(t, 0, svc.Count())
	})

	t.Run("unknown sid is a no-op", func(t *testing.T) {
		svc, _ := newTestService(t, false)
		assert.NotPanics(t, func() { svc.Remove(99) })
	})
}

func TestService_Import(t *testing.T) {
	t.Run("unknown sid fails synchronously with session not found", func(t *testing.T) {
		svc, _ := newTestService(t, false)

		var got error
		invoked := false
		svc.Import(99, "score", settings.Int(10), func(err error) {
			invoked = true
			got = err
		})

		require.True(t, invoked, "import callback must be synchronous")
		assert.ErrorIs(t, got, ErrSessionNotFound)
	})

	t.Run("writes one key into the session settings", func(t *testing.T) {
		svc, _ := newTestService(t, false)
		s := svc.Create(1, "f1", newFakeSocket())

		var got error
		svc.Import(1, "score", settings.Int(10), func(err error) { got = err })
		require.NoError(t, got)

		v, ok := s.Get("score")
		require.True(t, ok)
		assert.True(t, settings.Int(10).Equal(v))
	})

	t.Run("import all merges the mapping", func(t *testing.T) {
		svc, _ := newTestService(t, false)
		s := svc.Create(1, "f1", newFakeSocket())
		s.Set("hp", settings.Int(50))

		var got error
		svc.ImportAll(1, settings.Store{
			"hp":   settings.Int(100),
			"name": settings.String("arthas"),
		}, func(err error) { got = err })
		require.NoError(t, got)

		hp, _ := s.Get("hp")
		name, _ := s.Get("name")
		assert.True(t, settings.Int(100).Equal(hp))
		assert.True(t, settings.String("arthas").Equal(name))
	})

	t.Run("import all with unknown sid fails", func(t *testing.T) {
		svc, _ := newTestService(t, false)

		var got error
		svc.ImportAll(99, settings.Store{"a": settings.Int(1)}, func(err error) { got = err })
		assert.ErrorIs(t, got, ErrSessionNotFound)
	})
}

func TestService_Kick(t *testing.T) {
	t.Run("closes every session bound to the uid", func(t *testing.T) {
		svc, loop := newTestService(t, false)
		sock1 := newFakeSocket()
		sock2 := newFakeSocket()
		s1 := svc.Create(1, "f1", sock1)
		s2 := svc.Create(2, "f1", sock2)
		svc.Create(3, "f1", newFakeSocket()) // unbound bystander

		require.NoError(t, await(t, loop, func(cb Callback) { svc.Bind(1, "42", cb) }))
		require.NoError(t, await(t, loop, func(cb Callback) { svc.Bind(2, "42", cb) }))
		require.Equal(t, 3, svc.Count())

		require.NoError(t, await(t, loop, func(cb Callback) { svc.Kick("42", "admin", cb) }))

		assert.True(t, s1.IsClosed())
		assert.True(t, s2.IsClosed())
		assert.Equal(t, 1, svc.Count(), "count must drop by exactly the kicked sessions")
		assert.Nil(t, svc.GetByUID("42"))
		assert.Nil(t, svc.Get(1))
		assert.Nil(t, svc.Get(2))

		assert.Equal(t, 1, sock1.disconnectCount())
		assert.Equal(t, 1, sock2.disconnectCount())
		assert.Equal(t, []string{"admin"}, sock1.closingReasons())
		assert.Equal(t, []string{"admin"}, sock2.closingReasons())
	})

	t.Run("uid with no sessions is a no-op success", func(t *testing.T) {
		svc, loop := newTestService(t, false)

		err := await(t, loop, func(cb Callback) { svc.Kick("ghost", "admin", cb) })
		assert.NoError(t, err)
	})

	t.Run("records tombstones for kicked sids", func(t *testing.T) {
		svc, loop := newTestService(t, false)
		svc.Create(1, "f1", newFakeSocket())
		require.NoError(t, await(t, loop, func(cb Callback) { svc.Bind(1, "u1", cb) }))

		require.NoError(t, await(t, loop, func(cb Callback) { svc.Kick("u1", "banned", cb) }))

		reason, ok := svc.ClosedReason(1)
		require.True(t, ok)
		assert.Equal(t, "banned", reason)

		_, ok = svc.ClosedReason(99)
		assert.False(t, ok)
	})
}

func TestService_KickBySessionID(t *testing.T) {
	t.Run("closes exactly one session", func(t *testing.T) {
		svc, loop := newTestService(t, false)
		sock := newFakeSocket()
		s := svc.Create(1, "f1", sock)
		other := svc.Create(2, "f1", newFakeSocket())

		require.NoError(t, await(t, loop, func(cb Callback) { svc.KickBySessionID(1, "cheating", cb) }))

		assert.True(t, s.IsClosed())
		assert.False(t, other.IsClosed())
		assert.Equal(t, 1, sock.disconnectCount())
	})

	t.Run("unknown sid is a no-op success", func(t *testing.T) {
		svc, loop := newTestService(t, false)

		err := await(t, loop, func(cb Callback) { svc.KickBySessionID(99, "x", cb) })
		assert.NoError(t, err)
	})
}

func TestService_ClientAddress(t *testing.T) {
	svc, _ := newTestService(t, false)
	sock := newFakeSocket()
	svc.Create(1, "f1", sock)

	assert.Equal(t, sock.addr, svc.ClientAddress(1))
	assert.Nil(t, svc.ClientAddress(99))
}

func TestService_ForEach(t *testing.T) {
	svc, loop := newTestService(t, false)
	svc.Create(1, "f1", newFakeSocket())
	svc.Create(2, "f1", newFakeSocket())
	svc.Create(3, "f1", newFakeSocket())
	require.NoError(t, await(t, loop, func(cb Callback) { svc.Bind(1, "u1", cb) }))
	require.NoError(t, await(t, loop, func(cb Callback) { svc.Bind(2, "u2", cb) }))

	t.Run("for each session visits all", func(t *testing.T) {
		seen := make(map[uint32]bool)
		svc.ForEachSession(func(s *Session) { seen[s.ID()] = true })
		assert.Len(t, seen, 3)
	})

	t.Run("for each bound session visits only bound", func(t *testing.T) {
		seen := make(map[uint32]bool)
		svc.ForEachBoundSession(func(s *Session) { seen[s.ID()] = true })
		assert.Len(t, seen, 2)
		assert.True(t, seen[1])
		assert.True(t, seen[2])
	})

	t.Run("removal during iteration is safe", func(t *testing.T) {
		visited := 0
		svc.ForEachSession(func(s *Session) {
			visited++
			svc.Remove(s.ID())
		})
		assert.Equal(t, 3, visited)
		assert.Equal(t, 0, svc.Count())
	})
}

// Scenario from the session lifecycle: two sessions of one user kicked at once.
func TestService_kick_scenario(t *testing.T) {
	svc, loop := newTestService(t, false)
	s1 := svc.Create(1, "f1", newFakeSocket())
	s2 := svc.Create(2, "f1", newFakeSocket())

	require.NoError(t, await(t, loop, func(cb Callback) { svc.Bind(1, "42", cb) }))
	require.NoError(t, await(t, loop, func(cb Callback) { svc.Bind(2, "42", cb) }))
	require.Len(t, svc.GetByUID("42"), 2)

	require.NoError(t, await(t, loop, func(cb Callback) { svc.Kick("42", "admin", cb) }))

	assert.True(t, s1.IsClosed())
	assert.True(t, s2.IsClosed())
	assert.Nil(t, svc.GetByUID("42"))
	assert.Nil(t, svc.Get(1))
	assert.Nil(t, svc.Get(2))
	assert.Equal(t, 0, svc.Count())
}

func TestService_Close(t *testing.T) {
	svc := newOwnedLoopService(t)

	sock1 := newFakeSocket()
	sock2 := newFakeSocket()
	s1 := svc.Create(1, "f1", sock1)
	s2 := svc.Create(2, "f1", sock2)

	svc.Close("shutdown")

	assert.True(t, s1.IsClosed())
	assert.True(t, s2.IsClosed())
	assert.Equal(t, 0, svc.Count())
	assert.Equal(t, 1, sock1.disconnectCount())
	assert.Equal(t, 1, sock2.disconnectCount())
}

// newOwnedLoopService builds a service that owns its private loop, the
// default production configuration.
func newOwnedLoopService(t *testing.T) *Service {
	t.Helper()
	return NewService(Config{})
}

func TestService_concurrent_operations(t *testing.T) {
	svc, loop := newTestService(t, false)

	const users = 20
	const sessionsPerUser = 5

	var wg sync.WaitGroup
	wg.Add(users)
	for u := 0; u < users; u++ {
		go func(u int) {
			defer wg.Done()
			uid := fmt.Sprintf("u%d", u)
			for i := 0; i < sessionsPerUser; i++ {
				sid := uint32(u*sessionsPerUser + i + 1)
				svc.Create(sid, "f1", newFakeSocket())
				svc.Bind(sid, uid, nil)
			}
		}(u)
	}
	wg.Wait()
	loop.Sync()

	require.Equal(t, users*sessionsPerUser, svc.Count())

	wg.Add(users)
	for u := 0; u < users; u++ {
		go func(u int) {
			defer wg.Done()
			svc.Kick(fmt.Sprintf("u%d", u), "load test", nil)
		}(u)
	}
	wg.Wait()
	loop.Sync()

	assert.Equal(t, 0, svc.Count())
	for u := 0; u < users; u++ {
		assert.Nil(t, svc.GetByUID(fmt.Sprintf("u%d", u)))
	}
}

func TestService_errors_are_wrapped_sentinels(t *testing.T) {
	svc, loop := newTestService(t, false)

	err := await(t, loop, func(cb Callback) { svc.Bind(7, "u1", cb) })
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSessionNotFound))
	assert.Contains(t, err.Error(), "sid 7")
}
