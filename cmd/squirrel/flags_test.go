package main

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/squirrel/internal/report"
	"github.com/danmuck/squirrel/internal/testutil/testlog"
)

func parseForTest(t *testing.T, args ...string) (cli, error) {
	t.Helper()
	return parseArgs(args, io.Discard, io.Discard, func(int) {})
}

func tempFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("hi"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestParseArgsModes(t *testing.T) {
	testlog.Start(t)
	file := tempFile(t)
	cases := []struct {
		args []string
		want mode
	}{
		{nil, modeListen},
		{[]string{file}, modeSend},
		{[]string{"--to", "bob", file}, modeSend},
		{[]string{"--receive", "192.168.1.7"}, modeReceive},
		{[]string{"--service"}, modeService},
		{[]string{"--attach"}, modeAttach},
	}
	for _, tc := range cases {
		c, err := parseForTest(t, tc.args...)
		if err != nil {
			t.Fatalf("%v: %v", tc.args, err)
		}
		if got := c.mode(); got != tc.want {
			t.Fatalf("%v: mode %s, want %s", tc.args, got, tc.want)
		}
	}
}

func TestParseArgsConflictsAreArgumentErrors(t *testing.T) {
	testlog.Start(t)
	file := tempFile(t)
	cases := []struct {
		args []string
		want error
	}{
		{[]string{"--service", file}, ErrServiceWithFile},
		{[]string{"--receive", "10.0.0.1", file}, ErrReceiveWithFile},
		{[]string{"--receive", "nope"}, ErrReceiveAddress},
		{[]string{"--receive", "::1"}, ErrReceiveAddress},
		{[]string{"--to", "bob"}, ErrToWithoutFile},
		{[]string{"--service", "--receive", "10.0.0.1"}, nil},
		{[]string{"--attach", file}, ErrAttachWithFile},
		{[]string{"--attach", "--to", "bob", file}, ErrAttachWithFile},
		{[]string{"--service", "--attach"}, nil},
		{[]string{filepath.Join(t.TempDir(), "missing")}, nil},
		{[]string{"--bogus"}, nil},
	}
	for _, tc := range cases {
		_, err := parseForTest(t, tc.args...)
		if !errors.Is(err, report.ErrArgument) {
			t.Fatalf("%v: expected argument error, got %v", tc.args, err)
		}
		if tc.want != nil && !errors.Is(err, tc.want) {
			t.Fatalf("%v: expected %v, got %v", tc.args, tc.want, err)
		}
	}
}
