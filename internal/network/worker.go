package network

// Worker is a joinable handle on one background sub-operation.
type Worker struct {
	name string
	done chan struct{}
}

func startWorker(name string, fn func()) *Worker {
	w := &Worker{name: name, done: make(chan struct{})}
	go func() {
		defer close(w.done)
		fn()
	}()
	return w
}

func (w *Worker) Name() string {
	return w.name
}

// Wait blocks until the worker returns. A nil worker is already done.
func (w *Worker) Wait() {
	if w == nil {
		return
	}
	<-w.done
}

func (w *Worker) Done() <-chan struct{} {
	if w == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return w.done
}

func (w *Worker) finished() bool {
	select {
	case <-w.Done():
		return true
	default:
		return false
	}
}
