package repo

import "sync"

// eventLoop is the single serialized mutation authority of the core. Every
// mutation of the write queue, the server cache, and the listener registries
// runs as a closure on this loop, which gives the per-view event ordering
// guarantees without per-structure locking. Posting never blocks the caller;
// the queue is unbounded so loop-internal code may post freely without risk
// of deadlock.
type eventLoop struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	closed  bool
	stopped chan struct{}
}

func newEventLoop(capacity int) *eventLoop {
	l := &eventLoop{
		queue:   make([]func(), 0, capacity),
		stopped: make(chan struct{}),
	}
	l.cond = sync.NewCond(&l.mu)
	go l.run()
	return l
}

// post schedules f onto the loop. It reports false once the loop is closed,
// in which case f will never run.
func (l *eventLoop) post(f func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.queue = append(l.queue, f)
	l.cond.Signal()
	return true
}

// flush blocks until every closure posted before it has run.
func (l *eventLoop) flush() {
	done := make(chan struct{})
	if !l.post(func() { close(done) }) {
		return
	}
	<-done
}

// close stops the loop after draining already-posted work.
func (l *eventLoop) close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.stopped
		return
	}
	l.closed = true
	l.cond.Signal()
	l.mu.Unlock()
	<-l.stopped
}

func (l *eventLoop) run() {
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.cond.Wait()
		}
		if len(l.queue) == 0 {
			l.mu.Unlock()
			close(l.stopped)
			return
		}
		f := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()
		f()
	}
}
