// Package queue runs pipeline tasks strictly first-in-first-out on a bounded
// number of slots. One slot is the default: a single renderer process
// dominates memory, so serialization is the backpressure mechanism that keeps
// the host alive, not an optimization target.
package queue

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

type Task func(ctx context.Context)

type entry struct {
	id   string
	task Task
}

type Queue struct {
	slots  *semaphore.Weighted
	notify chan struct{}

	mu      sync.Mutex
	backlog []entry
	active  int
}

func New(slots int) *Queue {
	if slots <= 0 {
		slots = 1
	}
	return &Queue{
		slots:  semaphore.NewWeighted(int64(slots)),
		notify: make(chan struct{}, 1),
	}
}

// Submit appends a task to the backlog and wakes the dispatcher. It never
// blocks; admission control has already bounded the backlog.
func (q *Queue) Submit(id string, task Task) {
	q.mu.Lock()
	q.backlog = append(q.backlog, entry{id: id, task: task})
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Depth returns backlog plus in-flight tasks. The admission controller
// compares this against the configured maximum.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.backlog) + q.active
}

// Run dispatches tasks until ctx is cancelled, then waits for in-flight tasks
// to finish. Tasks are started in submission order: a slot is acquired before
// the next entry is popped. A task failure or panic never stops dispatch.
func (q *Queue) Run(ctx context.Context) {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		if err := q.slots.Acquire(ctx, 1); err != nil {
			return
		}

		e, ok := q.pop()
		if !ok {
			q.slots.Release(1)
			select {
			case <-ctx.Done():
				return
			case <-q.notify:
			}
			continue
		}

		wg.Add(1)
		go func(e entry) {
			defer wg.Done()
			defer q.slots.Release(1)
			defer q.finish()
			defer func() {
				if r := recover(); r != nil {
					slog.Error("queue: task panicked", "job", e.id, "panic", r)
				}
			}()
			e.task(ctx)
		}(e)
	}
}

func (q *Queue) pop() (entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.backlog) == 0 {
		return entry{}, false
	}
	e := q.backlog[0]
	q.backlog = q.backlog[1:]
	q.active++
	return e, true
}

func (q *Queue) finish() {
	q.mu.Lock()
	q.active--
	q.mu.Unlock()
}
