package main

import (
	"fmt"
	"io"

	"github.com/danmuck/squirrel/internal/network"
	"github.com/danmuck/squirrel/internal/report"
)

// console stands in for a window: it prints peers, files and errors, and
// picks the transfer target. Its methods run on the consumer goroutine.
type console struct {
	out    io.Writer
	errOut io.Writer
	match  string
	failed bool
}

func newConsole(out, errOut io.Writer, match string) *console {
	return &console{out: out, errOut: errOut, match: match}
}

func (c *console) ShowError(err *report.Error) {
	c.failed = true
	fmt.Fprintf(c.errOut, "squirrel: %v\n", err)
}

// ShowReceiving is the first line receive mode prints. A daemon that
// spawned this process waits for it before answering the sender.
func (c *console) ShowReceiving(ip, addr string, port int) {
	fmt.Fprintf(c.out, "receiving from %s on %s:%d\n", ip, addr, port)
}

func (c *console) ShowPeer(p network.Peer) {
	fmt.Fprintf(c.out, "peer %s (%s)\n", p.Name, p.Address)
}

// Pick reports whether p is the transfer target. Without a match the
// first peer wins.
func (c *console) Pick(p network.Peer) bool {
	return c.match == "" || p.Name == c.match || p.Address == c.match
}

func (c *console) ShowSent(p network.Peer, path string) {
	fmt.Fprintf(c.out, "sent %s to %s\n", path, p)
}

// ShowSaved is the completion hook for network.SaveTo. Failures already
// went through the report queue.
func (c *console) ShowSaved(path string, err error) {
	if err == nil {
		fmt.Fprintf(c.out, "saved %s\n", path)
	}
}
