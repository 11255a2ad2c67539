package mailbox

import (
	"context"
	"errors"
	"net/netip"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/squirrel/internal/protocol/record"
	"github.com/danmuck/squirrel/internal/report"
	"github.com/danmuck/squirrel/internal/testutil/testlog"
)

const (
	envHelperDir   = "SQUIRREL_MAILBOX_HELPER_DIR"
	envHelperCount = "SQUIRREL_MAILBOX_HELPER_COUNT"
)

// TestMain lets the test binary double as a second mailbox process.
func TestMain(m *testing.M) {
	if dir := os.Getenv(envHelperDir); dir != "" {
		os.Exit(runHelperWriter(dir))
	}
	os.Exit(m.Run())
}

func runHelperWriter(dir string) int {
	count, err := strconv.Atoi(os.Getenv(envHelperCount))
	if err != nil {
		return 2
	}
	box, err := Open(dir)
	if err != nil {
		return 3
	}
	defer box.Close()
	for i := 0; i < count; i++ {
		name := "helper-" + strconv.Itoa(i)
		if err := box.Write(Application, record.Response(name, netip.AddrFrom4([4]byte{10, 9, 0, byte(i)}))); err != nil {
			return 4
		}
	}
	return 0
}

func openTemp(t *testing.T) *Mailbox {
	t.Helper()
	box, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = box.Close() })
	return box
}

func addr(last byte) netip.Addr {
	return netip.AddrFrom4([4]byte{192, 168, 0, last})
}

func TestWriteReadFIFO(t *testing.T) {
	testlog.Start(t)
	box := openTemp(t)

	if err := box.Write(Application, record.Response("alice", addr(1))); err != nil {
		t.Fatalf("write 1: %v", err)
	}
	if err := box.Write(Application, record.Response("bob", addr(2))); err != nil {
		t.Fatalf("write 2: %v", err)
	}
	if err := box.Write(Application, record.Connection(addr(3))); err != nil {
		t.Fatalf("write 3: %v", err)
	}

	want := []struct {
		kind record.Kind
		name string
		addr netip.Addr
	}{
		{record.KindResponse, "alice", addr(1)},
		{record.KindResponse, "bob", addr(2)},
		{record.KindConnection, "", addr(3)},
	}
	for i, w := range want {
		got, err := box.Read(Application)
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if got.Kind != w.kind || got.Name() != w.name || got.Address != w.addr {
			t.Fatalf("read %d: got %+v name=%q", i, got, got.Name())
		}
	}

	info, err := os.Stat(filepath.Join(box.Dir(), "sqrl_msg_app"))
	if err != nil {
		t.Fatalf("stat store: %v", err)
	}
	if info.Size() != 0 {
		t.Fatalf("store not compacted: %d bytes left", info.Size())
	}
}

func TestChannelsAreIndependent(t *testing.T) {
	testlog.Start(t)
	box := openTemp(t)
	if err := box.Write(Service, record.Connection(addr(7))); err != nil {
		t.Fatalf("write: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := box.ReadContext(ctx, Application); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected application channel to stay empty, got %v", err)
	}
	got, err := box.Read(Service)
	if err != nil || got.Address != addr(7) {
		t.Fatalf("service read: %+v %v", got, err)
	}
}

func TestReadBlocksUntilWrite(t *testing.T) {
	testlog.Start(t)
	box := openTemp(t)
	done := make(chan record.Record, 1)
	go func() {
		rec, err := box.Read(Service)
		if err == nil {
			done <- rec
		}
	}()

	select {
	case <-done:
		t.Fatalf("read returned before any write")
	case <-time.After(50 * time.Millisecond):
	}
	if err := box.Write(Service, record.Connection(addr(9))); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case rec := <-done:
		if rec.Address != addr(9) {
			t.Fatalf("read: got %+v", rec)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("read never woke")
	}
}

func TestClearDropsPendingRecords(t *testing.T) {
	testlog.Start(t)
	box := openTemp(t)
	for i := 0; i < 3; i++ {
		if err := box.Write(Application, record.Connection(addr(byte(i)))); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	if err := box.Clear(Application); err != nil {
		t.Fatalf("clear: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := box.ReadContext(ctx, Application); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected empty channel after clear, got %v", err)
	}

	if err := box.Write(Application, record.Response("after", addr(42))); err != nil {
		t.Fatalf("write after clear: %v", err)
	}
	got, err := box.Read(Application)
	if err != nil || got.Name() != "after" {
		t.Fatalf("read after clear: %+v %v", got, err)
	}
}

func TestConcurrentWritersKeepRecordsWhole(t *testing.T) {
	testlog.Start(t)
	box := openTemp(t)
	const writers, each = 4, 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		w := w // per-iteration copy (Go 1.22 loop semantics)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				name := "w" + strconv.Itoa(w) + "-" + strconv.Itoa(i)
				if err := box.Write(Service, record.Response(name, addr(byte(w)))); err != nil {
					t.Errorf("write: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	seen := make(map[string]bool)
	for n := 0; n < writers*each; n++ {
		rec, err := box.Read(Service)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if seen[rec.Name()] {
			t.Fatalf("duplicate record %q", rec.Name())
		}
		seen[rec.Name()] = true
	}
	if len(seen) != writers*each {
		t.Fatalf("records: got %d", len(seen))
	}
}

func TestWriterInSecondProcess(t *testing.T) {
	testlog.Start(t)
	box := openTemp(t)

	const count = 5
	cmd := exec.Command(os.Args[0], "-test.run=^$")
	cmd.Env = append(os.Environ(),
		envHelperDir+"="+box.Dir(),
		envHelperCount+"="+strconv.Itoa(count),
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("helper process: %v\n%s", err, out)
	}

	for i := 0; i < count; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		rec, err := box.ReadContext(ctx, Application)
		cancel()
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if want := "helper-" + strconv.Itoa(i); rec.Name() != want {
			t.Fatalf("read %d: got %q want %q", i, rec.Name(), want)
		}
	}
}

func TestClosedMailboxReportsFileError(t *testing.T) {
	testlog.Start(t)
	box, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := box.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := box.Write(Service, record.Connection(addr(1))); !errors.Is(err, report.ErrFile) || !errors.Is(err, ErrClosed) {
		t.Fatalf("write after close: %v", err)
	}
	if err := box.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestCorruptStoreIsDiscarded(t *testing.T) {
	testlog.Start(t)
	box := openTemp(t)
	if err := box.Write(Service, record.Connection(addr(1))); err != nil {
		t.Fatalf("write: %v", err)
	}
	store := filepath.Join(box.Dir(), "sqrl_msg_svc")
	if err := os.WriteFile(store, []byte{0xff, 0, 3, 0}, 0o666); err != nil {
		t.Fatalf("corrupt store: %v", err)
	}
	if _, err := box.Read(Service); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected corrupt store error, got %v", err)
	}
	info, err := os.Stat(store)
	if err != nil || info.Size() != 0 {
		t.Fatalf("store not discarded: %v %v", info, err)
	}
}
