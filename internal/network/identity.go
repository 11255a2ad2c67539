package network

import (
	"errors"
	"net"
	"os"
	"os/user"
	"strings"

	"github.com/danmuck/squirrel/internal/report"
)

var (
	ErrNoDisplayName  = errors.New("network: no display name available")
	ErrNoLocalAddress = errors.New("network: no usable IPv4 address")
)

// Lookups used by ResolveIdentity; tests swap them.
var (
	lookupDisplayName  = ResolveDisplayName
	lookupLocalAddress = ResolveLocalAddress
)

// Identity is how this host presents itself in discovery messages.
type Identity struct {
	Name    string
	Address string
}

// ResolveIdentity fills Name and Address from cfg, falling back to the OS.
// Each lookup failure is reported as a startup SocketError and leaves that
// field empty.
func ResolveIdentity(cfg Config, reports *report.Queue) Identity {
	id := Identity{Name: cfg.Name, Address: cfg.Address}
	if id.Name == "" {
		name, err := lookupDisplayName()
		if err != nil {
			reports.Report(report.Socket("resolve display name", err))
		}
		id.Name = name
	}
	if id.Address == "" {
		addr, err := lookupLocalAddress()
		if err != nil {
			reports.Report(report.Socket("resolve local address", err))
		}
		id.Address = addr
	}
	return id
}

// ResolveDisplayName returns the current user's login name.
func ResolveDisplayName() (string, error) {
	if u, err := user.Current(); err == nil {
		name := u.Username
		// DOMAIN\user on windows
		if i := strings.LastIndexByte(name, '\\'); i >= 0 {
			name = name[i+1:]
		}
		if name != "" {
			return name, nil
		}
	}
	for _, key := range []string{"USER", "USERNAME", "LOGNAME"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v, nil
		}
	}
	return "", ErrNoDisplayName
}

// ResolveLocalAddress picks the IPv4 address of the interface that routes
// outward, or else the first up, non-loopback interface with one.
func ResolveLocalAddress() (string, error) {
	// No packets are sent; connecting a UDP socket only selects a route.
	if conn, err := net.Dial("udp4", "192.0.2.1:9"); err == nil {
		ip := conn.LocalAddr().(*net.UDPAddr).IP
		_ = conn.Close()
		if ip4 := ip.To4(); ip4 != nil && !ip4.IsLoopback() && !ip4.IsUnspecified() {
			return ip4.String(), nil
		}
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if ipnet, ok := a.(*net.IPNet); ok {
				if ip4 := ipnet.IP.To4(); ip4 != nil && ip4.IsGlobalUnicast() {
					return ip4.String(), nil
				}
			}
		}
	}
	return "", ErrNoLocalAddress
}

// BroadcastAddress returns the subnet broadcast address of the interface
// holding local, or the limited broadcast address when none does.
func BroadcastAddress(local string) string {
	ip := net.ParseIP(local).To4()
	if ip == nil || ip.IsLoopback() {
		return LimitedBroadcast
	}
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return LimitedBroadcast
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.To4() == nil || !ipnet.IP.Equal(ip) {
			continue
		}
		v4 := &net.IPNet{IP: ipnet.IP.To4(), Mask: ipnet.Mask}
		if len(v4.Mask) == net.IPv6len {
			v4.Mask = v4.Mask[12:]
		}
		return bcast(v4).IP.String()
	}
	return LimitedBroadcast
}

func bcast(ip *net.IPNet) *net.IPNet {
	var bc = &net.IPNet{}
	bc.IP = make([]byte, len(ip.IP))
	copy(bc.IP, ip.IP)
	bc.Mask = ip.Mask

	offset := len(bc.IP) - len(bc.Mask)
	for i := range bc.IP {
		if i-offset >= 0 {
			bc.IP[i] = ip.IP[i] | ^ip.Mask[i-offset]
		}
	}
	return bc
}
