package task

import (
	"bufio"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/12101111/nettest/internal/logging"
	"github.com/12101111/nettest/internal/server"
	"github.com/12101111/nettest/internal/transport"
)

func startLineServer(t *testing.T, cfg server.Config) *server.Server {
	t.Helper()
	if cfg.TCPAddress == "" && cfg.QUICAddress == "" {
		cfg.TCPAddress = "127.0.0.1:0"
	}
	srv := server.New(cfg, nil, nil)
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })
	return srv
}

func testOptions(size int64) Options {
	return Options{Timeout: 5 * time.Second, Size: size}
}

func TestTCPing(t *testing.T) {
	srv := startLineServer(t, server.Config{})

	task, err := NewTCPing(context.Background(), srv.TCPAddr().String(), testOptions(0), logging.NopLogger())
	if err != nil {
		t.Fatalf("NewTCPing: %v", err)
	}
	defer task.Close()

	m, err := task.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if m.Kind != KindTime || m.Elapsed <= 0 {
		t.Errorf("Run = %+v", m)
	}
}

func TestTCPing_Refused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	task, err := NewTCPing(context.Background(), addr, testOptions(0), logging.NopLogger())
	if err != nil {
		t.Fatalf("NewTCPing: %v", err)
	}
	if _, err := task.Run(context.Background()); err == nil {
		t.Fatal("Run against a closed port succeeded")
	} else if !errors.Is(err, ErrSocketSetup) {
		t.Errorf("Run = %v, want ErrSocketSetup", err)
	}
}

func TestLinePing(t *testing.T) {
	srv := startLineServer(t, server.Config{})

	task, err := NewLinePing(context.Background(), srv.TCPAddr().String(), testOptions(0), logging.NopLogger())
	if err != nil {
		t.Fatalf("NewLinePing: %v", err)
	}
	for i := 0; i < 2; i++ {
		m, err := task.Run(context.Background())
		if err != nil {
			t.Fatalf("Run %d: %v", i, err)
		}
		if m.Kind != KindTime {
			t.Errorf("Run %d kind = %v", i, m.Kind)
		}
	}
}

func TestLinePing_BadBanner(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			bufio.NewReader(c).ReadString('\n')
			c.Write([]byte("GOODBYE\n"))
			c.Close()
		}
	}()

	task, err := NewLinePing(context.Background(), ln.Addr().String(), testOptions(0), logging.NopLogger())
	if err != nil {
		t.Fatalf("NewLinePing: %v", err)
	}
	if _, err := task.Run(context.Background()); !errors.Is(err, ErrProtocolViolation) {
		t.Errorf("Run = %v, want ErrProtocolViolation", err)
	}
}

func TestTCPDownload(t *testing.T) {
	srv := startLineServer(t, server.Config{})

	for _, size := range []int64{1000, 5 << 20} {
		task, err := NewTCPDownload(context.Background(), srv.TCPAddr().String(), testOptions(size), logging.NopLogger())
		if err != nil {
			t.Fatalf("NewTCPDownload: %v", err)
		}
		m, err := task.Run(context.Background())
		if err != nil {
			t.Fatalf("Run(%d): %v", size, err)
		}
		if m.Kind != KindSpeed || m.Bytes != size {
			t.Errorf("Run(%d) = %+v, want %d bytes", size, m, size)
		}
	}
}

func TestTCPUpload(t *testing.T) {
	srv := startLineServer(t, server.Config{})

	for _, size := range []int64{1000, 5 << 20} {
		task, err := NewTCPUpload(context.Background(), srv.TCPAddr().String(), testOptions(size), logging.NopLogger())
		if err != nil {
			t.Fatalf("NewTCPUpload: %v", err)
		}
		m, err := task.Run(context.Background())
		if err != nil {
			t.Fatalf("Run(%d): %v", size, err)
		}
		if m.Kind != KindSpeed || m.Bytes != size {
			t.Errorf("Run(%d) = %+v, want %d bytes", size, m, size)
		}
	}
}

func TestTCPDownload_ServerStalls(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	// accept and never answer
	conns := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			conns <- c
		}
	}()
	defer func() {
		select {
		case c := <-conns:
			c.Close()
		default:
		}
	}()

	opts := Options{Timeout: 200 * time.Millisecond, Size: 1000}
	task, err := NewTCPDownload(context.Background(), ln.Addr().String(), opts, logging.NopLogger())
	if err != nil {
		t.Fatalf("NewTCPDownload: %v", err)
	}
	if _, err := task.Run(context.Background()); Classify(err) != ResultTimeout {
		t.Errorf("Run = %v, want timeout", err)
	}
}

func TestQUICTransfer(t *testing.T) {
	tlsCfg, err := transport.ServerTLSConfig("", "", "localhost")
	if err != nil {
		t.Fatalf("ServerTLSConfig: %v", err)
	}
	srv := startLineServer(t, server.Config{QUICAddress: "127.0.0.1:0", TLSConfig: tlsCfg})
	addr := srv.QUICAddr().String()

	down, err := NewQUICDownload(context.Background(), addr, testOptions(1<<20), logging.NopLogger())
	if err != nil {
		t.Fatalf("NewQUICDownload: %v", err)
	}
	defer down.Close()

	up, err := NewQUICUpload(context.Background(), addr, testOptions(1<<20), logging.NopLogger())
	if err != nil {
		t.Fatalf("NewQUICUpload: %v", err)
	}
	defer up.Close()

	for i := 0; i < 2; i++ {
		for _, task := range []Task{down, up} {
			m, err := task.Run(context.Background())
			if err != nil {
				t.Fatalf("%s run %d: %v", task.Name(), i, err)
			}
			if m.Bytes != 1<<20 {
				t.Errorf("%s run %d = %d bytes", task.Name(), i, m.Bytes)
			}
		}
	}
}
