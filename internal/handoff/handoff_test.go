package handoff

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/squirrel/internal/testutil/testlog"
)

func TestQueueFIFO(t *testing.T) {
	testlog.Start(t)
	var q Queue[int]
	if _, ok := q.Pop(); ok {
		t.Fatalf("expected empty queue")
	}
	for i := 0; i < 5; i++ {
		q.Push(i)
	}
	if q.Len() != 5 {
		t.Fatalf("len: got %d", q.Len())
	}
	for i := 0; i < 5; i++ {
		v, ok := q.Pop()
		if !ok || v != i {
			t.Fatalf("pop %d: got (%d,%v)", i, v, ok)
		}
	}
}

func TestExecutorNonBlockingOnEmpty(t *testing.T) {
	testlog.Start(t)
	e := NewExecutor()
	if e.Execute(false) {
		t.Fatalf("expected no continuation")
	}
	if n := e.Drain(); n != 0 {
		t.Fatalf("drain: got %d", n)
	}
}

func TestExecutorRunsInPostingOrder(t *testing.T) {
	testlog.Start(t)
	e := NewExecutor()
	var got []int
	for i := 0; i < 4; i++ {
		i := i // per-iteration copy (Go 1.22 loop semantics)
		e.Push(func() { got = append(got, i) })
	}
	if n := e.Drain(); n != 4 {
		t.Fatalf("drain: got %d", n)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("order: got %v", got)
		}
	}
}

func TestExecutorBlockingWakesOnPush(t *testing.T) {
	testlog.Start(t)
	e := NewExecutor()
	ran := make(chan struct{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		e.Push(func() { close(ran) })
	}()
	if !e.Execute(true) {
		t.Fatalf("blocking execute returned false")
	}
	select {
	case <-ran:
	default:
		t.Fatalf("continuation did not run on the consumer")
	}
}

func TestExecutorConcurrentProducers(t *testing.T) {
	testlog.Start(t)
	e := NewExecutor()
	const producers, each = 8, 50
	var wg sync.WaitGroup
	count := 0
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := 0; k < each; k++ {
				e.Push(func() { count++ })
			}
		}()
	}
	wg.Wait()
	e.Drain()
	if count != producers*each {
		t.Fatalf("count: got %d", count)
	}
}

func TestExecutorRunStopsOnCancel(t *testing.T) {
	testlog.Start(t)
	e := NewExecutor()
	ctx, cancel := context.WithCancel(context.Background())
	e.Push(cancel)
	if err := e.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("run: got %v", err)
	}
}
