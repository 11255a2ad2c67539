package handoff

import "context"

// Executor runs continuations posted from any goroutine on whichever
// goroutine calls Execute or Run. Continuations run in posting order.
type Executor struct {
	queue  Queue[func()]
	notify chan struct{}
}

func NewExecutor() *Executor {
	return &Executor{notify: make(chan struct{}, 1)}
}

// Push enqueues fn and wakes a blocked consumer. Nil is ignored.
func (e *Executor) Push(fn func()) {
	if fn == nil {
		return
	}
	e.queue.Push(fn)
	select {
	case e.notify <- struct{}{}:
	default:
	}
}

// Execute runs at most one continuation. With block set it waits for one to
// arrive; otherwise it returns false immediately when nothing is pending.
func (e *Executor) Execute(block bool) bool {
	for {
		if fn, ok := e.queue.Pop(); ok {
			fn()
			return true
		}
		if !block {
			return false
		}
		<-e.notify
	}
}

// ExecuteContext is the blocking form of Execute that gives up when ctx ends.
func (e *Executor) ExecuteContext(ctx context.Context) error {
	for {
		if fn, ok := e.queue.Pop(); ok {
			fn()
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.notify:
		}
	}
}

// Drain runs every pending continuation without blocking and reports how many ran.
func (e *Executor) Drain() int {
	n := 0
	for e.Execute(false) {
		n++
	}
	return n
}

// Run consumes continuations until ctx ends.
func (e *Executor) Run(ctx context.Context) error {
	for {
		if err := e.ExecuteContext(ctx); err != nil {
			return err
		}
	}
}

func (e *Executor) Pending() int {
	return e.queue.Len()
}
