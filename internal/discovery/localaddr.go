package discovery

import (
	"fmt"
	"net"
)

// AddressSet is the set of this host's IPv4 addresses, used to ignore our own broadcasts
type AddressSet map[string]struct{}

// NewAddressSet builds a set from literal IPs
func NewAddressSet(ips ...string) AddressSet {
	set := make(AddressSet, len(ips))
	for _, ip := range ips {
		if parsed := net.ParseIP(ip); parsed != nil {
			if v4 := parsed.To4(); v4 != nil {
				set[v4.String()] = struct{}{}
			}
		}
	}
	return set
}

// Contains reports whether ip belongs to this host
func (s AddressSet) Contains(ip net.IP) bool {
	if ip == nil {
		return false
	}
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	_, ok := s[ip.String()]
	return ok
}

// LocalAddresses returns the IPv4, non-loopback addresses of all interfaces.
// It is computed once at startup; interfaces that come up later are not tracked.
func LocalAddresses() (AddressSet, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, fmt.Errorf("failed to list interface addresses: %w", err)
	}

	set := make(AddressSet)
	for _, addr := range addrs {
		var ip net.IP
		switch v := addr.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip == nil || ip.IsLoopback() {
			continue
		}
		if v4 := ip.To4(); v4 != nil {
			set[v4.String()] = struct{}{}
		}
	}
	return set, nil
}
