package cart

import (
	"context"
	"sync"
)

type writeJob func()

// writeLanes runs jobs sequentially per product id. While a lane is busy only the newest
// submitted job is kept; older pending jobs are dropped.
type writeLanes struct {
	mu     sync.Mutex
	lanes  map[int64]*lane
	active int
	idle   chan struct{}
}

type lane struct {
	pending writeJob
}

func newWriteLanes() *writeLanes {
	idle := make(chan struct{})
	close(idle)
	return &writeLanes{
		lanes: make(map[int64]*lane),
		idle:  idle,
	}
}

// submit schedules job on the lane for key and reports whether it replaced a pending job.
func (w *writeLanes) submit(key int64, job writeJob) bool {
	w.mu.Lock()
	if l, busy := w.lanes[key]; busy {
		replaced := l.pending != nil
		l.pending = job
		w.mu.Unlock()
		return replaced
	}

	l := &lane{}
	w.lanes[key] = l
	if w.active == 0 {
		w.idle = make(chan struct{})
	}
	w.active++
	w.mu.Unlock()

	go w.run(key, l, job)
	return false
}

func (w *writeLanes) run(key int64, l *lane, job writeJob) {
	for job != nil {
		job()

		w.mu.Lock()
		job = l.pending
		l.pending = nil
		if job == nil {
			delete(w.lanes, key)
			w.active--
			if w.active == 0 {
				close(w.idle)
			}
		}
		w.mu.Unlock()
	}
}

// wait blocks until every lane is drained or ctx is done.
func (w *writeLanes) wait(ctx context.Context) error {
	w.mu.Lock()
	idle := w.idle
	w.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
