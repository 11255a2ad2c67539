package main

import (
	"errors"
	"fmt"
	"io"
	"net/netip"

	"github.com/alecthomas/kong"
	"github.com/danmuck/squirrel/internal/report"
)

var (
	ErrServiceWithFile = errors.New("--service does not take a file")
	ErrReceiveWithFile = errors.New("--receive does not take a file")
	ErrAttachWithFile  = errors.New("--attach does not take a file")
	ErrReceiveAddress  = errors.New("--receive needs an IPv4 address")
	ErrToWithoutFile   = errors.New("--to needs a file to send")
)

type mode int

const (
	modeListen mode = iota
	modeSend
	modeReceive
	modeService
	modeAttach
)

func (m mode) String() string {
	switch m {
	case modeSend:
		return "send"
	case modeReceive:
		return "receive"
	case modeService:
		return "service"
	case modeAttach:
		return "attach"
	default:
		return "listen"
	}
}

type cli struct {
	Service bool   `help:"Run the background daemon that answers discovery and spawns receivers." xor:"mode"`
	Receive string `help:"Receive a single file from IP, then exit." placeholder:"IP" xor:"mode"`
	Attach  bool   `help:"Show the senders a running daemon has answered." xor:"mode"`
	To      string `help:"Send to the first peer whose name or address matches." placeholder:"PEER"`

	Config     string `help:"TOML configuration file." type:"path" env:"SQUIRREL_CONFIG" placeholder:"PATH"`
	InitConfig string `name:"init-config" help:"Write a default configuration to PATH and exit." type:"path" placeholder:"PATH"`

	Path string `arg:"" optional:"" type:"existingfile" help:"File to send. Without it squirrel listens for incoming files."`
}

// Validate runs after kong has applied xor groups and existingfile.
func (c *cli) Validate() error {
	switch {
	case c.Service && c.Path != "":
		return report.Argument("arguments", ErrServiceWithFile)
	case c.Receive != "" && c.Path != "":
		return report.Argument("arguments", ErrReceiveWithFile)
	case c.Attach && c.Path != "":
		return report.Argument("arguments", ErrAttachWithFile)
	case c.To != "" && c.Path == "":
		return report.Argument("arguments", ErrToWithoutFile)
	}
	if c.Receive != "" {
		addr, err := netip.ParseAddr(c.Receive)
		if err != nil || !addr.Is4() {
			return report.Argument("arguments", fmt.Errorf("%w: %q", ErrReceiveAddress, c.Receive))
		}
	}
	return nil
}

func (c *cli) mode() mode {
	switch {
	case c.Service:
		return modeService
	case c.Receive != "":
		return modeReceive
	case c.Attach:
		return modeAttach
	case c.Path != "":
		return modeSend
	default:
		return modeListen
	}
}

// parseArgs parses args without the program name. Every failure is an
// ArgumentError.
func parseArgs(args []string, stdout, stderr io.Writer, exit func(int)) (cli, error) {
	var c cli
	parser, err := kong.New(&c,
		kong.Name("squirrel"),
		kong.Description("Find peers on the local network and send them a file."),
		kong.Writers(stdout, stderr),
		kong.Exit(exit),
	)
	if err != nil {
		return cli{}, report.Argument("arguments", err)
	}
	if _, err := parser.Parse(args); err != nil {
		return cli{}, report.Classify(report.ArgumentError, "arguments", err)
	}
	return c, nil
}
