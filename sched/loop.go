// Package sched implements a single-consumer task loop. The session registry
// delivers every asynchronous callback through a Loop so callers observe a
// uniform contract: a call always returns before its callback runs, whether
// or not the outcome was known synchronously.
package sched

import (
	"sync"

	"github.com/eapache/queue"
)

// Task is a unit of deferred work executed by a Loop. Tasks must not panic;
// a panic in a task takes the loop goroutine down with it.
type Task func()

// Loop is a FIFO task queue drained by a single goroutine. Post never blocks
// and never runs the task inline, so posting from inside a task (or while
// holding locks) is safe. Tasks run one at a time, in posting order.
type Loop struct {
	mu       sync.Mutex
	cond     *sync.Cond
	tasks    *queue.Queue
	started  bool
	stopping bool
	done     chan struct{}
}

// NewLoop returns a Loop ready to accept tasks. Tasks posted before Start are
// queued and run once the loop is started.
//
// Returns:
//   - A pointer to a new Loop
func NewLoop() *Loop {
	l := &Loop{
		tasks: queue.New(),
		done:  make(chan struct{}),
	}
	l.cond = sync.NewCond(&l.mu)

	return l
}

// Start launches the consumer goroutine. Calling Start more than once is a
// no-op, as is starting a stopped loop.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started || l.stopping {
		return
	}

	l.started = true
	go l.run()
}

// Post enqueues a task for execution on the loop goroutine. It never blocks
// and never executes the task inline. Tasks posted after Stop are dropped.
// Nil tasks are ignored.
//
// Parameters:
//   - task: The function to run on the loop goroutine
func (l *Loop) Post(task Task) {
	if task == nil {
		return
	}

	l.mu.Lock()
	if l.stopping {
		l.mu.Unlock()
		return
	}

	l.tasks.Add(task)
	l.cond.Signal()
	l.mu.Unlock()
}

// Sync blocks until every task posted before the call has executed. It
// returns immediately when the loop is not running. Useful for orderly
// shutdown and for tests that need deferred callbacks to have fired.
func (l *Loop) Sync() {
	var wg sync.WaitGroup
	wg.Add(1)

	l.mu.Lock()
	if !l.started || l.stopping {
		l.mu.Unlock()
		return
	}

	l.tasks.Add(Task(wg.Done))
	l.cond.Signal()
	l.mu.Unlock()

	wg.Wait()
}

// Stop drains the queue and stops the consumer goroutine: tasks already
// posted still run, then the loop exits. Stop blocks until the drain is
// complete. Safe to call multiple times and safe to call on a loop that was
// never started.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.stopping {
		done := l.done
		started := l.started
		l.mu.Unlock()
		if started {
			<-done
		}
		return
	}

	l.stopping = true
	started := l.started
	l.cond.Signal()
	l.mu.Unlock()

	if started {
		<-l.done
	}
}

// run is the consumer goroutine. It executes tasks in FIFO order and exits
// once the loop is stopping and the queue is empty.
func (l *Loop) run() {
	for {
		l.mu.Lock()
		for l.tasks.Length() == 0 && !l.stopping {
			l.cond.Wait()
		}

		if l.tasks.Length() == 0 {
			l.mu.Unlock()
			close(l.done)
			return
		}

		task := l.tasks.Remove().(Task)
		l.mu.Unlock()

		task()
	}
}
