// Package icmp implements the echo probe wire format and the datagram
// sockets used to send it.
//
// # Extended Echo Header
//
// Every probe starts with a 16-byte header: the 8-byte ICMP echo header
// followed by an 8-byte timestamp that travels as the first bytes of the
// echo payload.
//
//	Type      [1 byte]  - 8/0 (IPv4 request/reply), 128/129 (IPv6)
//	Code      [1 byte]  - always 0
//	Checksum  [2 bytes] - zero on send, filled in by the kernel
//	ID        [2 bytes] - zero on send, assigned by the kernel
//	Seq       [2 bytes] - big-endian, wraps on overflow
//	Timestamp [8 bytes] - little-endian unix seconds
//
// # Unprivileged ICMP Sockets
//
// Sockets are opened as "udp4"/"udp6" ICMP datagram sockets. On Linux this
// requires the ping_group_range sysctl to include the caller's group:
//
//	sysctl -w net.ipv4.ping_group_range="0 65535"
//
// Without it socket creation fails with ErrPermission.
package icmp
