package network

import (
	"fmt"
	"net"
)

// FreeServerPort asks the OS for any free TCP port on the local host.
func FreeServerPort() (int, error) {
	l, err := net.Listen("tcp", ":0")
	if err != nil {
		return 0, fmt.Errorf("listen on ephemeral port: %w", err)
	}
	defer l.Close()

	addr, ok := l.Addr().(*net.TCPAddr)
	if !ok {
		return 0, fmt.Errorf("unexpected listener address %T", l.Addr())
	}
	return addr.Port, nil
}

// LoopbackAddress returns the textual loopback address of the host,
// preferring IPv4.
func LoopbackAddress() string {
	if LocalhostIsIPv6() {
		return net.IPv6loopback.String()
	}
	return "127.0.0.1"
}

// LocalhostIsIPv6 reports whether localhost only resolves to IPv6.
func LocalhostIsIPv6() bool {
	addrs, err := net.LookupIP("localhost")
	if err != nil || len(addrs) == 0 {
		return false
	}
	for _, ip := range addrs {
		if ip.To4() != nil {
			return false
		}
	}
	return true
}

// IsIPv6 reports whether addr is a literal IPv6 address.
func IsIPv6(addr string) bool {
	ip := net.ParseIP(addr)
	return ip != nil && ip.To4() == nil
}

// ValidPort reports whether p is a usable TCP port.
func ValidPort(p int) bool {
	return p > 0 && p <= 65535
}
