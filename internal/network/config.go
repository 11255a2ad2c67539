package network

import (
	"time"

	"github.com/danmuck/squirrel/internal/transport"
)

const (
	DefaultDiscoveryPort     = 4242
	DefaultTransferPort      = 4244
	DefaultBroadcastInterval = time.Second
	LimitedBroadcast         = "255.255.255.255"
	MDNSService              = "_squirrel._udp"
)

// Config controls ports, addresses and timing for a Driver.
type Config struct {
	// Name and Address override the resolved identity when set.
	Name    string
	Address string

	// ListenAddress is where discovery sockets bind.
	ListenAddress string
	// BroadcastAddress is where broadcasts are sent. Empty derives the
	// subnet broadcast of Address.
	BroadcastAddress string

	DiscoveryPort     int
	TransferPort      int
	BroadcastInterval time.Duration

	DatagramBuffer int
	ConnectTimeout time.Duration
	IOTimeout      time.Duration

	AdvertiseMDNS bool
}

func DefaultConfig() Config {
	return Config{
		ListenAddress:     "0.0.0.0",
		DiscoveryPort:     DefaultDiscoveryPort,
		TransferPort:      DefaultTransferPort,
		BroadcastInterval: DefaultBroadcastInterval,
		DatagramBuffer:    transport.DefaultBufferSize,
		ConnectTimeout:    transport.DefaultConnectTimeout,
		IOTimeout:         transport.DefaultIOTimeout,
	}
}

func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.ListenAddress == "" {
		c.ListenAddress = d.ListenAddress
	}
	if c.DiscoveryPort <= 0 {
		c.DiscoveryPort = d.DiscoveryPort
	}
	if c.TransferPort <= 0 {
		c.TransferPort = d.TransferPort
	}
	if c.BroadcastInterval <= 0 {
		c.BroadcastInterval = d.BroadcastInterval
	}
	if c.DatagramBuffer <= 0 {
		c.DatagramBuffer = d.DatagramBuffer
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.IOTimeout < 0 {
		c.IOTimeout = 0
	}
	return c
}

func (c Config) socketOptions() transport.Options {
	return transport.Options{
		BufferSize:     c.DatagramBuffer,
		ConnectTimeout: c.ConnectTimeout,
		IOTimeout:      c.IOTimeout,
	}
}
