package task

import (
	"context"
	"fmt"
	"log/slog"
)

// Task names accepted by New.
const (
	NamePing         = "ping"
	NameTCPing       = "tcping"
	NameUDPing       = "udping"
	NameLinePing     = "lineping"
	NameTCPUpload    = "tcpupload"
	NameTCPDownload  = "tcpdownload"
	NameQUICUpload   = "quicupload"
	NameQUICDownload = "quicdownload"
)

// IsBandwidth reports whether the named task measures throughput, which
// decides whether its size is given in bytes or MiB.
func IsBandwidth(name string) bool {
	switch name {
	case NameTCPUpload, NameTCPDownload, NameQUICUpload, NameQUICDownload:
		return true
	}
	return false
}

// New builds the named task against target.
func New(ctx context.Context, name, target string, opts Options, logger *slog.Logger) (Task, error) {
	switch name {
	case NamePing:
		return wrap(NewPing(ctx, target, opts, logger))
	case NameTCPing:
		return wrap(NewTCPing(ctx, target, opts, logger))
	case NameUDPing:
		return wrap(NewUDPing(ctx, target, opts, logger))
	case NameLinePing:
		return wrap(NewLinePing(ctx, target, opts, logger))
	case NameTCPUpload:
		return wrap(NewTCPUpload(ctx, target, opts, logger))
	case NameTCPDownload:
		return wrap(NewTCPDownload(ctx, target, opts, logger))
	case NameQUICUpload:
		return wrap(NewQUICUpload(ctx, target, opts, logger))
	case NameQUICDownload:
		return wrap(NewQUICDownload(ctx, target, opts, logger))
	default:
		return nil, fmt.Errorf("unknown task %q", name)
	}
}

// wrap keeps a failed constructor from returning a typed nil Task.
func wrap[T Task](t T, err error) (Task, error) {
	if err != nil {
		return nil, err
	}
	return t, nil
}
