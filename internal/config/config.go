// Package config loads squirrel's TOML configuration.
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/squirrel/internal/mailbox"
	"github.com/danmuck/squirrel/internal/network"
	"github.com/rs/zerolog"
)

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	Name              string
	Address           string
	ListenAddress     string
	BroadcastAddress  string
	DiscoveryPort     int
	TransferPort      int
	BroadcastInterval time.Duration
	DatagramBuffer    int
	MailboxDir        string
	SaveDir           string
	MetricsAddr       string
	AdvertiseMDNS     bool
	LogLevel          string
}

type fileConfig struct {
	Name              string  `toml:"name"`
	Address           string  `toml:"address"`
	ListenAddress     string  `toml:"listen_address"`
	BroadcastAddress  string  `toml:"broadcast_address"`
	DiscoveryPort     int     `toml:"discovery_port"`
	TransferPort      int     `toml:"transfer_port"`
	BroadcastInterval string  `toml:"broadcast_interval"`
	DatagramBuffer    int     `toml:"datagram_buffer"`
	MailboxDir        string  `toml:"mailbox_dir"`
	SaveDir           string  `toml:"save_dir"`
	MetricsAddr       string  `toml:"metrics_addr"`
	AdvertiseMDNS     bool    `toml:"advertise_mdns"`
	Log               fileLog `toml:"log"`
}

type fileLog struct {
	Level string `toml:"level"`
}

func Default() Config {
	n := network.DefaultConfig()
	return Config{
		ListenAddress:     n.ListenAddress,
		DiscoveryPort:     n.DiscoveryPort,
		TransferPort:      n.TransferPort,
		BroadcastInterval: n.BroadcastInterval,
		DatagramBuffer:    n.DatagramBuffer,
		MailboxDir:        mailbox.DefaultDir(),
		SaveDir:           ".",
	}
}

// Load reads path over Default. Only keys present in the file override.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load squirrel config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %q", ErrInvalid, undecoded[0].String())
	}

	str := func(key, v string, dst *string) {
		if meta.IsDefined(key) {
			*dst = strings.TrimSpace(v)
		}
	}
	str("name", raw.Name, &cfg.Name)
	str("address", raw.Address, &cfg.Address)
	str("listen_address", raw.ListenAddress, &cfg.ListenAddress)
	str("broadcast_address", raw.BroadcastAddress, &cfg.BroadcastAddress)
	str("mailbox_dir", raw.MailboxDir, &cfg.MailboxDir)
	str("save_dir", raw.SaveDir, &cfg.SaveDir)
	str("metrics_addr", raw.MetricsAddr, &cfg.MetricsAddr)

	if meta.IsDefined("log", "level") {
		cfg.LogLevel = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("discovery_port") {
		cfg.DiscoveryPort = raw.DiscoveryPort
	}
	if meta.IsDefined("transfer_port") {
		cfg.TransferPort = raw.TransferPort
	}
	if meta.IsDefined("datagram_buffer") {
		cfg.DatagramBuffer = raw.DatagramBuffer
	}
	if meta.IsDefined("advertise_mdns") {
		cfg.AdvertiseMDNS = raw.AdvertiseMDNS
	}
	if meta.IsDefined("broadcast_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.BroadcastInterval))
		if err != nil {
			return Config{}, fmt.Errorf("parse broadcast_interval: %w", err)
		}
		cfg.BroadcastInterval = d
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	for key, port := range map[string]int{"discovery_port": c.DiscoveryPort, "transfer_port": c.TransferPort} {
		if port < 1 || port > 65535 {
			return fmt.Errorf("%w: %s %d out of range", ErrInvalid, key, port)
		}
	}
	for key, addr := range map[string]string{
		"address":           c.Address,
		"listen_address":    c.ListenAddress,
		"broadcast_address": c.BroadcastAddress,
	} {
		if addr == "" {
			continue
		}
		if ip := net.ParseIP(addr); ip == nil || ip.To4() == nil {
			return fmt.Errorf("%w: %s %q is not an IPv4 address", ErrInvalid, key, addr)
		}
	}
	if c.BroadcastInterval <= 0 {
		return fmt.Errorf("%w: broadcast_interval must be positive", ErrInvalid)
	}
	if c.DatagramBuffer < 1 || c.DatagramBuffer > 65535 {
		return fmt.Errorf("%w: datagram_buffer %d out of range", ErrInvalid, c.DatagramBuffer)
	}
	if strings.ContainsAny(c.Name, `:"`) {
		return fmt.Errorf("%w: name %q contains ':' or '\"'", ErrInvalid, c.Name)
	}
	if c.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(c.MetricsAddr); err != nil {
			return fmt.Errorf("%w: metrics_addr: %v", ErrInvalid, err)
		}
	}
	if c.LogLevel != "" {
		if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
			return fmt.Errorf("%w: log.level %q", ErrInvalid, c.LogLevel)
		}
	}
	return nil
}

// Network converts c into driver settings.
func (c Config) Network() network.Config {
	n := network.DefaultConfig()
	n.Name = c.Name
	n.Address = c.Address
	n.ListenAddress = c.ListenAddress
	n.BroadcastAddress = c.BroadcastAddress
	n.DiscoveryPort = c.DiscoveryPort
	n.TransferPort = c.TransferPort
	n.BroadcastInterval = c.BroadcastInterval
	n.DatagramBuffer = c.DatagramBuffer
	n.AdvertiseMDNS = c.AdvertiseMDNS
	return n.WithDefaults()
}
