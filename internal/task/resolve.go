package task

import (
	"context"
	"fmt"
	"net"
	"strconv"
)

// resolveHost returns the first address of host. Literal IPs are returned
// without a lookup.
func resolveHost(ctx context.Context, host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return ip, nil
	}
	ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrAddressResolution, host, err)
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("%w %s: no IP address", ErrAddressResolution, host)
	}
	return ips[0], nil
}

// resolveHostPort resolves a host:port target to a dialable ip:port string.
func resolveHostPort(ctx context.Context, addr string) (string, net.IP, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", nil, fmt.Errorf("%w %s: %v", ErrAddressResolution, addr, err)
	}
	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		if _, err := net.DefaultResolver.LookupPort(ctx, "tcp", port); err != nil {
			return "", nil, fmt.Errorf("%w %s: bad port %q", ErrAddressResolution, addr, port)
		}
	}
	ip, err := resolveHost(ctx, host)
	if err != nil {
		return "", nil, err
	}
	return net.JoinHostPort(ip.String(), port), ip, nil
}
