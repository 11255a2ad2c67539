package network

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/squirrel/internal/report"
	"github.com/danmuck/squirrel/internal/testutil/testlog"
)

func TestBcastComputesSubnetBroadcast(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"192.168.1.23/24": "192.168.1.255",
		"10.1.2.3/8":      "10.255.255.255",
		"172.16.5.4/30":   "172.16.5.7",
	}
	for cidr, want := range cases {
		ip, ipnet, err := net.ParseCIDR(cidr)
		if err != nil {
			t.Fatalf("parse %s: %v", cidr, err)
		}
		ipnet.IP = ip.To4()
		if got := bcast(ipnet).IP.String(); got != want {
			t.Fatalf("%s: got %s want %s", cidr, got, want)
		}
	}
}

func TestBroadcastAddressFallsBack(t *testing.T) {
	testlog.Start(t)
	for _, in := range []string{"", "not-an-ip", "127.0.0.1", "::1", "203.0.113.250"} {
		if got := BroadcastAddress(in); got != LimitedBroadcast {
			t.Fatalf("%q: got %s", in, got)
		}
	}
}

func TestResolveIdentityPrefersConfig(t *testing.T) {
	testlog.Start(t)
	reports := report.NewQueue()
	id := ResolveIdentity(Config{Name: "alice", Address: "10.0.0.5"}, reports)
	if id != (Identity{Name: "alice", Address: "10.0.0.5"}) {
		t.Fatalf("identity: got %+v", id)
	}
	if reports.Len() != 0 {
		t.Fatalf("unexpected reports: %v", reports.Drain())
	}
}

func TestResolveIdentityReportsLookupFailuresAsSocketErrors(t *testing.T) {
	testlog.Start(t)
	name, addr := lookupDisplayName, lookupLocalAddress
	t.Cleanup(func() { lookupDisplayName, lookupLocalAddress = name, addr })
	lookupDisplayName = func() (string, error) { return "", ErrNoDisplayName }
	lookupLocalAddress = func() (string, error) { return "", ErrNoLocalAddress }

	reports := report.NewQueue()
	if id := ResolveIdentity(Config{}, reports); id != (Identity{}) {
		t.Fatalf("identity: got %+v", id)
	}
	errs := reports.Drain()
	if len(errs) != 2 {
		t.Fatalf("reports: got %v", errs)
	}
	if !errors.Is(errs[0], report.ErrSocket) || !errors.Is(errs[0], ErrNoDisplayName) {
		t.Fatalf("display name report: %v", errs[0])
	}
	if !errors.Is(errs[1], report.ErrSocket) || !errors.Is(errs[1], ErrNoLocalAddress) {
		t.Fatalf("local address report: %v", errs[1])
	}
}

func TestResolveDisplayNameUsesEnvironment(t *testing.T) {
	testlog.Start(t)
	t.Setenv("USER", "squirrel-test")
	name, err := ResolveDisplayName()
	if err != nil || name == "" {
		t.Fatalf("display name: %q %v", name, err)
	}
}

func TestRegistryAddIsIdempotent(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry()
	if !r.Add(Peer{Name: "b", Address: "10.0.0.2"}) {
		t.Fatalf("first add must be new")
	}
	if r.Add(Peer{Name: "b", Address: "10.0.0.2"}) {
		t.Fatalf("second add must be known")
	}
	if !r.Add(Peer{Name: "a", Address: "10.0.0.2"}) {
		t.Fatalf("same address with another name is a distinct peer")
	}
	peers := r.Peers()
	if len(peers) != 2 || peers[0].Name != "a" {
		t.Fatalf("peers: got %+v", peers)
	}
	r.Reset()
	if r.Len() != 0 {
		t.Fatalf("reset: got %d", r.Len())
	}
}

func TestDirSinkSanitizesNames(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	sink := DirSink{Dir: dir}
	cases := map[string]string{
		"report.pdf":          "report.pdf",
		"../../etc/passwd":    "passwd",
		`C:\Users\a\file.txt`: "file.txt",
	}
	for in, want := range cases {
		got, err := sink.SavePath(in)
		if err != nil {
			t.Fatalf("%q: %v", in, err)
		}
		if got != filepath.Join(dir, want) {
			t.Fatalf("%q: got %s", in, got)
		}
	}
	for _, bad := range []string{"", "..", "/"} {
		if _, err := sink.SavePath(bad); !errors.Is(err, ErrInvalidFileName) {
			t.Fatalf("%q: expected invalid name, got %v", bad, err)
		}
	}
}

func TestSaveToReportsWriteFailure(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatalf("setup: %v", err)
	}
	reports := report.NewQueue()
	var gotErr error
	save := SaveTo(DirSink{Dir: blocker}, reports, func(_ string, err error) { gotErr = err })
	save(File{Name: "x.txt", Data: []byte("x")})
	if gotErr == nil {
		t.Fatalf("expected write under a regular file to fail")
	}
	if errs := reports.Drain(); len(errs) != 1 || !errors.Is(errs[0], report.ErrFile) {
		t.Fatalf("reports: got %v", errs)
	}
}
