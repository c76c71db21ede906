package icmp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// HeaderSize is the encoded size of Header.
const HeaderSize = 16

// Echo message types.
const (
	TypeEchoReply     = uint8(ipv4.ICMPTypeEchoReply)
	TypeEchoRequest   = uint8(ipv4.ICMPTypeEcho)
	TypeEchoRequestV6 = uint8(ipv6.ICMPTypeEchoRequest)
	TypeEchoReplyV6   = uint8(ipv6.ICMPTypeEchoReply)
)

var (
	// ErrShortBuffer is returned when a packet is smaller than HeaderSize.
	ErrShortBuffer = errors.New("buffer too short for echo header")

	// ErrNotEcho is returned for ICMP types unrelated to echo.
	ErrNotEcho = errors.New("not an ICMP echo message")
)

// Header is the extended echo header. A probing task keeps one Header and
// bumps it in place before every send.
type Header struct {
	Type      uint8
	Code      uint8
	Checksum  uint16
	ID        uint16
	Seq       uint16
	Timestamp uint64
}

// NewEchoRequest returns a request header for the given family stamped with now.
func NewEchoRequest(v6 bool, now time.Time) Header {
	return Header{
		Type:      RequestType(v6),
		Timestamp: uint64(now.Unix()),
	}
}

// RequestType returns the echo request type for the family.
func RequestType(v6 bool) uint8 {
	if v6 {
		return TypeEchoRequestV6
	}
	return TypeEchoRequest
}

// ReplyType returns the echo reply type for the family.
func ReplyType(v6 bool) uint8 {
	if v6 {
		return TypeEchoReplyV6
	}
	return TypeEchoReply
}

// Bump advances the sequence number (wrapping at 65535) and refreshes the timestamp.
func (h *Header) Bump(now time.Time) {
	h.Seq++
	h.Timestamp = uint64(now.Unix())
}

// AppendTo appends the encoded header to buf.
func (h *Header) AppendTo(buf []byte) []byte {
	buf = append(buf, h.Type, h.Code)
	buf = binary.BigEndian.AppendUint16(buf, h.Checksum)
	buf = binary.BigEndian.AppendUint16(buf, h.ID)
	buf = binary.BigEndian.AppendUint16(buf, h.Seq)
	buf = binary.LittleEndian.AppendUint64(buf, h.Timestamp)
	return buf
}

// Marshal encodes the header into a new HeaderSize slice.
func (h *Header) Marshal() []byte {
	return h.AppendTo(make([]byte, 0, HeaderSize))
}

// Parse decodes the header at the start of buf.
func Parse(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("%w: expect %d bytes, actual %d bytes", ErrShortBuffer, HeaderSize, len(buf))
	}
	if !isEchoType(buf[0]) {
		return Header{}, fmt.Errorf("%w: type %d", ErrNotEcho, buf[0])
	}
	return Header{
		Type:      buf[0],
		Code:      buf[1],
		Checksum:  binary.BigEndian.Uint16(buf[2:4]),
		ID:        binary.BigEndian.Uint16(buf[4:6]),
		Seq:       binary.BigEndian.Uint16(buf[6:8]),
		Timestamp: binary.LittleEndian.Uint64(buf[8:16]),
	}, nil
}

func isEchoType(t uint8) bool {
	switch t {
	case TypeEchoReply, TypeEchoRequest, TypeEchoRequestV6, TypeEchoReplyV6:
		return true
	default:
		return false
	}
}
