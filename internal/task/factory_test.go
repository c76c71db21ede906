package task

import (
	"context"
	"errors"
	"testing"

	"github.com/12101111/nettest/internal/logging"
	"github.com/12101111/nettest/internal/server"
)

func TestIsBandwidth(t *testing.T) {
	for _, name := range []string{NameTCPUpload, NameTCPDownload, NameQUICUpload, NameQUICDownload} {
		if !IsBandwidth(name) {
			t.Errorf("IsBandwidth(%q) = false", name)
		}
	}
	for _, name := range []string{NamePing, NameTCPing, NameUDPing, NameLinePing, "bogus"} {
		if IsBandwidth(name) {
			t.Errorf("IsBandwidth(%q) = true", name)
		}
	}
}

func TestNew(t *testing.T) {
	srv := startLineServer(t, server.Config{})
	addr := srv.TCPAddr().String()

	for _, name := range []string{NameTCPing, NameLinePing, NameTCPDownload, NameTCPUpload} {
		task, err := New(context.Background(), name, addr, testOptions(100), logging.NopLogger())
		if err != nil {
			t.Fatalf("New(%q): %v", name, err)
		}
		if task.Name() != name {
			t.Errorf("New(%q).Name() = %q", name, task.Name())
		}
		task.Close()
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := New(context.Background(), "bogus", "127.0.0.1:1", testOptions(0), logging.NopLogger()); err == nil {
		t.Error("unknown task accepted")
	}

	task, err := New(context.Background(), NameTCPing, "no-port", testOptions(0), logging.NopLogger())
	if !errors.Is(err, ErrAddressResolution) {
		t.Errorf("New without port = %v, want ErrAddressResolution", err)
	}
	if task != nil {
		t.Errorf("failed New returned non-nil task %#v", task)
	}
}
