// Package protocol implements the line-oriented speed test protocol shared
// by the server and the line-protocol client tasks.
//
// Every exchange is one newline-terminated ASCII command followed by its
// reply:
//
//	HI               -> HELLO banner
//	CAPABILITIES     -> capability list
//	GETIP            -> YOURIP <peer-ip>
//	PING <anything>  -> PONG <unix-seconds>
//	DOWNLOAD <n>     -> exactly n bytes (see WriteDownload)
//	UPLOAD <n> <x>   -> Ok <count> <unix-seconds> after the upload body
//	QUIT             -> connection closed
package protocol

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// MiB is the chunk unit used for streaming.
const MiB = 1024 * 1024

// Fixed replies.
const (
	Greeting         = "HELLO 2.7(compatiable server)\n"
	CapabilitiesLine = "CAPABILITIES SERVER_HOST_AUTH UPLOAD_STATS\n"
	ErrorLine        = "ERROR\n"

	// LineEnd terminates client commands and download bodies.
	LineEnd = "\r\n"
)

var (
	// ErrUnknownCommand is returned for a line that matches no command.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrMalformedCommand is returned when a known command has bad arguments.
	ErrMalformedCommand = errors.New("malformed command")

	// ErrSizeMismatch reports a difference between declared and observed byte counts.
	ErrSizeMismatch = errors.New("size mismatch")

	// ErrBadReply is returned when a server reply cannot be parsed.
	ErrBadReply = errors.New("unexpected reply")
)

// CommandType identifies a parsed command.
type CommandType int

const (
	CmdNone CommandType = iota
	CmdQuit
	CmdDownload
	CmdUpload
	CmdGetIP
	CmdPing
	CmdHi
	CmdCapabilities
	CmdUnknown
)

// String returns the wire name of the command.
func (c CommandType) String() string {
	switch c {
	case CmdNone:
		return "NONE"
	case CmdQuit:
		return "QUIT"
	case CmdDownload:
		return "DOWNLOAD"
	case CmdUpload:
		return "UPLOAD"
	case CmdGetIP:
		return "GETIP"
	case CmdPing:
		return "PING"
	case CmdHi:
		return "HI"
	case CmdCapabilities:
		return "CAPABILITIES"
	default:
		return "UNKNOWN"
	}
}

// PongLine is the reply to PING.
func PongLine(now time.Time) string {
	return fmt.Sprintf("PONG %d\n", now.Unix())
}

// YourIPLine is the reply to GETIP.
func YourIPLine(ip net.IP) string {
	return fmt.Sprintf("YOURIP %s\n", ip)
}

// UploadAckLine is the reply sent after an upload body.
func UploadAckLine(count int64, now time.Time) string {
	return fmt.Sprintf("Ok %d %d\n", count, now.Unix())
}

// DownloadRequest is the command line a client sends to fetch n bytes.
func DownloadRequest(n int64) string {
	return fmt.Sprintf("DOWNLOAD %d\r\n", n)
}

// UploadRequest is the command line a client sends before an n byte upload.
func UploadRequest(n int64) string {
	return fmt.Sprintf("UPLOAD %d 0\r\n", n)
}
