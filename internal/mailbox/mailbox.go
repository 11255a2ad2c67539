// Package mailbox is a cross-process FIFO of records, one per direction
// between the background daemon and the foreground app.
//
// Each channel is a store file holding concatenated records plus a counting
// signal with one unit per stored record. Writers append under an exclusive
// file lock and then post the signal; readers consume a unit, then take the
// front record under the same lock.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/danmuck/squirrel/internal/logging"
	"github.com/danmuck/squirrel/internal/observability"
	"github.com/danmuck/squirrel/internal/protocol/record"
	"github.com/danmuck/squirrel/internal/report"
	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
)

type Channel int

const (
	// Service is read by the daemon.
	Service Channel = iota
	// Application is read by the foreground app.
	Application
)

var (
	ErrClosed         = errors.New("mailbox: closed")
	ErrUnknownChannel = errors.New("mailbox: unknown channel")
	ErrCorrupt        = errors.New("mailbox: store corrupt, discarded")
	ErrEmpty          = errors.New("mailbox: signalled but store empty")
)

func (c Channel) String() string {
	switch c {
	case Service:
		return "service"
	case Application:
		return "application"
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}

func (c Channel) names() (store, sem string) {
	switch c {
	case Service:
		return "sqrl_msg_svc", "sqrl_sem_svc"
	default:
		return "sqrl_msg_app", "sqrl_sem_app"
	}
}

// signal is a cross-process counting semaphore.
type signal interface {
	Post() error
	// Wait consumes one unit, blocking until one is available or ctx ends.
	Wait(ctx context.Context) error
	// TryWait consumes one unit if available without blocking.
	TryWait() (bool, error)
	Close() error
}

type channel struct {
	id    Channel
	mu    sync.Mutex
	store *os.File
	lock  *flock.Flock
	sig   signal
}

type Mailbox struct {
	dir      string
	log      zerolog.Logger
	mu       sync.Mutex
	closed   bool
	channels [2]*channel
}

// Open attaches to both channels in dir, creating their files as needed.
// It does not clear existing contents.
func Open(dir string) (*Mailbox, error) {
	if dir == "" {
		dir = DefaultDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, report.File("mailbox open", err)
	}
	m := &Mailbox{dir: dir, log: logging.Logger("mailbox")}
	for _, id := range []Channel{Service, Application} {
		ch, err := openChannel(dir, id)
		if err != nil {
			_ = m.Close()
			return nil, report.File("mailbox open "+id.String(), err)
		}
		m.channels[id] = ch
	}
	m.log.Debug().Str("dir", dir).Msg("mailbox.Open attached")
	return m, nil
}

func openChannel(dir string, id Channel) (*channel, error) {
	storeName, semName := id.names()
	storePath := filepath.Join(dir, storeName)
	store, err := os.OpenFile(storePath, os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return nil, err
	}
	sig, err := openSignal(dir, semName)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return &channel{
		id:    id,
		store: store,
		lock:  flock.New(storePath + ".lock"),
		sig:   sig,
	}, nil
}

func (m *Mailbox) Dir() string {
	return m.dir
}

func (m *Mailbox) channel(id Channel) (*channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if id != Service && id != Application {
		return nil, ErrUnknownChannel
	}
	return m.channels[id], nil
}

// Write appends rec to ch and posts one signal unit.
func (m *Mailbox) Write(id Channel, rec record.Record) error {
	ch, err := m.channel(id)
	if err != nil {
		return report.File("mailbox write", err)
	}
	b, err := record.Encode(rec)
	if err != nil {
		return report.Argument("mailbox write", err)
	}
	if err := ch.append(b); err != nil {
		return report.File("mailbox write", err)
	}
	if err := ch.sig.Post(); err != nil {
		return report.File("mailbox signal", err)
	}
	observability.RecordMailbox(id.String(), "write")
	m.log.Debug().Str("channel", id.String()).Str("kind", rec.Kind.String()).Str("addr", rec.Address.String()).
		Msg("mailbox.Mailbox.Write")
	return nil
}

func (m *Mailbox) Read(id Channel) (record.Record, error) {
	return m.ReadContext(context.Background(), id)
}

// ReadContext blocks until ch holds a record or ctx ends, then removes and
// returns the oldest record.
func (m *Mailbox) ReadContext(ctx context.Context, id Channel) (record.Record, error) {
	ch, err := m.channel(id)
	if err != nil {
		return record.Record{}, report.File("mailbox read", err)
	}
	if err := ch.sig.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return record.Record{}, ctx.Err()
		}
		return record.Record{}, report.File("mailbox wait", err)
	}
	rec, err := ch.take()
	if err != nil {
		return record.Record{}, report.File("mailbox read", err)
	}
	observability.RecordMailbox(id.String(), "read")
	return rec, nil
}

// Clear drains ch's signal and truncates its store.
func (m *Mailbox) Clear(id Channel) error {
	ch, err := m.channel(id)
	if err != nil {
		return report.File("mailbox clear", err)
	}
	drained := 0
	for {
		ok, err := ch.sig.TryWait()
		if err != nil {
			return report.File("mailbox clear", err)
		}
		if !ok {
			break
		}
		drained++
	}
	if err := ch.truncate(); err != nil {
		return report.File("mailbox clear", err)
	}
	m.log.Debug().Str("channel", id.String()).Int("drained", drained).Msg("mailbox.Mailbox.Clear")
	return nil
}

func (m *Mailbox) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	var errs []error
	for i, ch := range m.channels {
		if ch == nil {
			continue
		}
		errs = append(errs, ch.sig.Close(), ch.store.Close(), ch.lock.Close())
		m.channels[i] = nil
	}
	return errors.Join(errs...)
}

func (c *channel) withLock(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.lock.Lock(); err != nil {
		return err
	}
	defer func() { _ = c.lock.Unlock() }()
	return fn()
}

func (c *channel) append(b []byte) error {
	return c.withLock(func() error {
		if _, err := c.store.Seek(0, io.SeekEnd); err != nil {
			return err
		}
		n, err := c.store.Write(b)
		if err != nil {
			return err
		}
		if n != len(b) {
			return io.ErrShortWrite
		}
		return nil
	})
}

// take removes the front record: header first, then the rest of it, then
// the remainder of the store is shifted to offset zero.
func (c *channel) take() (record.Record, error) {
	var rec record.Record
	err := c.withLock(func() error {
		info, err := c.store.Stat()
		if err != nil {
			return err
		}
		size := info.Size()
		if size == 0 {
			return ErrEmpty
		}

		head := make([]byte, record.HeaderLen)
		if _, err := c.store.ReadAt(head, 0); err != nil {
			return c.discard(err)
		}
		n, err := record.PeekLength(head)
		if err != nil || int64(n) > size {
			return c.discard(err)
		}
		buf := make([]byte, n)
		if _, err := c.store.ReadAt(buf, 0); err != nil {
			return err
		}
		rec, err = record.Decode(buf)
		if err != nil {
			return c.discard(err)
		}

		rest := make([]byte, size-int64(n))
		if len(rest) > 0 {
			if _, err := c.store.ReadAt(rest, int64(n)); err != nil {
				return err
			}
			if _, err := c.store.WriteAt(rest, 0); err != nil {
				return err
			}
		}
		return c.store.Truncate(int64(len(rest)))
	})
	return rec, err
}

// discard empties a store whose front record cannot be framed.
func (c *channel) discard(cause error) error {
	if err := c.store.Truncate(0); err != nil {
		return errors.Join(ErrCorrupt, cause, err)
	}
	if cause == nil {
		return ErrCorrupt
	}
	return errors.Join(ErrCorrupt, cause)
}

func (c *channel) truncate() error {
	return c.withLock(func() error {
		return c.store.Truncate(0)
	})
}
