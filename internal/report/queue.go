package report

import (
	"github.com/danmuck/squirrel/internal/handoff"
	"github.com/danmuck/squirrel/internal/logging"
	"github.com/danmuck/squirrel/internal/observability"
	"github.com/rs/zerolog"
)

// Queue collects errors from background goroutines. Every reported error
// is logged and counted; hooks run on the reporting goroutine.
type Queue struct {
	items handoff.Queue[*Error]
	hooks []func(*Error)
	log   zerolog.Logger
}

func NewQueue(hooks ...func(*Error)) *Queue {
	return &Queue{
		hooks: hooks,
		log:   logging.Logger("report"),
	}
}

// Report enqueues err. A nil queue or nil error is a no-op.
func (q *Queue) Report(err *Error) {
	if q == nil || err == nil {
		return
	}
	q.log.Warn().
		Str("kind", err.Kind.String()).
		Str("op", err.Op).
		Err(err.Err).
		Msg("report.Queue.Report")
	observability.RecordError(err.Kind.String())
	q.items.Push(err)
	for _, hook := range q.hooks {
		hook(err)
	}
}

func (q *Queue) Pop() (*Error, bool) {
	if q == nil {
		return nil, false
	}
	return q.items.Pop()
}

// Drain removes and returns every pending error, oldest first.
func (q *Queue) Drain() []*Error {
	var out []*Error
	for {
		e, ok := q.Pop()
		if !ok {
			return out
		}
		out = append(out, e)
	}
}

func (q *Queue) Len() int {
	if q == nil {
		return 0
	}
	return q.items.Len()
}
