package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Command is one parsed request line.
type Command struct {
	Type CommandType

	// Size is the byte count of DOWNLOAD and UPLOAD.
	Size int64

	// Line is the raw line including its terminator.
	Line string
}

// ParseCommand parses a request line. A line without any token yields
// CmdNone. Commands are matched by prefix, in the order the reference
// server checks them.
func ParseCommand(line string) (Command, error) {
	cmd := Command{Type: CmdNone, Line: line}

	switch {
	case len(strings.Fields(line)) == 0:
		return cmd, nil
	case strings.HasPrefix(line, "QUIT"):
		cmd.Type = CmdQuit
	case strings.HasPrefix(line, "DOWNLOAD "):
		cmd.Type = CmdDownload
		n, err := strconv.ParseInt(strings.TrimSpace(line[len("DOWNLOAD"):]), 10, 64)
		if err != nil || n < 0 {
			return cmd, fmt.Errorf("%w: DOWNLOAD needs a byte count: %q", ErrMalformedCommand, strings.TrimSpace(line))
		}
		cmd.Size = n
	case strings.HasPrefix(line, "UPLOAD "):
		cmd.Type = CmdUpload
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return cmd, fmt.Errorf("%w: UPLOAD command doesn't have bytes value", ErrMalformedCommand)
		}
		n, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil || n < 0 {
			return cmd, fmt.Errorf("%w: UPLOAD needs a byte count: %q", ErrMalformedCommand, fields[1])
		}
		cmd.Size = n
	case strings.HasPrefix(line, "GETIP"):
		cmd.Type = CmdGetIP
	case strings.HasPrefix(line, "PING "):
		cmd.Type = CmdPing
	case strings.HasPrefix(line, "HI"):
		cmd.Type = CmdHi
	case strings.HasPrefix(line, "CAPABILITIES"):
		cmd.Type = CmdCapabilities
	default:
		cmd.Type = CmdUnknown
		return cmd, fmt.Errorf("%w: %q", ErrUnknownCommand, strings.TrimSpace(line))
	}

	return cmd, nil
}

// UploadAck is a parsed "Ok <count> <unix-seconds>" reply.
type UploadAck struct {
	Count     int64
	Timestamp int64
}

// ParseUploadAck parses the server's upload acknowledgement.
func ParseUploadAck(line string) (UploadAck, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 || fields[0] != "Ok" {
		return UploadAck{}, fmt.Errorf("%w: %q", ErrBadReply, strings.TrimSpace(line))
	}
	count, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return UploadAck{}, fmt.Errorf("%w: bad count in %q", ErrBadReply, strings.TrimSpace(line))
	}
	ts, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return UploadAck{}, fmt.Errorf("%w: bad timestamp in %q", ErrBadReply, strings.TrimSpace(line))
	}
	return UploadAck{Count: count, Timestamp: ts}, nil
}
