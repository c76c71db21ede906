package icmp

import (
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/icmp"
)

// ErrPermission is returned when the kernel refuses to create an echo socket.
var ErrPermission = errors.New("permission denied creating ICMP socket")

// PermissionHint is the remedy appended to ErrPermission failures.
const PermissionHint = `you need to run "sudo sysctl -w net.ipv4.ping_group_range='0 65535'"`

// Network returns the ICMP datagram network name for ip's family.
func Network(ip net.IP) string {
	if ip.To4() != nil {
		return "udp4"
	}
	return "udp6"
}

// ListenEcho creates an unprivileged ICMP socket for the family of ip.
// The kernel fills in the checksum and echo identifier of outgoing requests.
func ListenEcho(ip net.IP) (*icmp.PacketConn, error) {
	network := Network(ip)
	address := "0.0.0.0"
	if network == "udp6" {
		address = "::"
	}

	conn, err := icmp.ListenPacket(network, address)
	if err != nil {
		if isPermissionError(err) {
			return nil, fmt.Errorf("%w: %v, %s", ErrPermission, err, PermissionHint)
		}
		return nil, fmt.Errorf("create ICMP socket: %w", err)
	}
	return conn, nil
}

// WriteEcho sends an encoded echo message to ip.
func WriteEcho(conn *icmp.PacketConn, ip net.IP, msg []byte) error {
	n, err := conn.WriteTo(msg, &net.UDPAddr{IP: ip})
	if err != nil {
		return fmt.Errorf("send ICMP: %w", err)
	}
	if n != len(msg) {
		return fmt.Errorf("send ICMP: only %d of %d bytes sent", n, len(msg))
	}
	return nil
}

// ReadEcho reads one echo datagram into buf before the deadline. It returns
// the number of bytes read and the source IP. Deadline expiry is reported
// as a net.Error with Timeout() true.
func ReadEcho(conn *icmp.PacketConn, buf []byte, deadline time.Time) (int, net.IP, error) {
	if err := conn.SetReadDeadline(deadline); err != nil {
		return 0, nil, fmt.Errorf("set read deadline: %w", err)
	}

	n, peer, err := conn.ReadFrom(buf)
	if err != nil {
		return 0, nil, err
	}

	var src net.IP
	switch addr := peer.(type) {
	case *net.UDPAddr:
		src = addr.IP
	case *net.IPAddr:
		src = addr.IP
	}
	return n, src, nil
}
