package health

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// mockStatsProvider implements StatsProvider for testing.
type mockStatsProvider struct {
	running bool
	stats   Stats
}

func (m *mockStatsProvider) IsRunning() bool {
	return m.running
}

func (m *mockStatsProvider) Stats() Stats {
	return m.stats
}

func serve(s *Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_handleHealth(t *testing.T) {
	s := NewServer(DefaultServerConfig(), &mockStatsProvider{running: true}, prometheus.NewRegistry())

	rec := serve(s, http.MethodGet, "/health")
	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if body := rec.Body.String(); body != "OK\n" {
		t.Errorf("expected body 'OK\\n', got %q", body)
	}

	rec = serve(s, http.MethodPost, "/health")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}

func TestServer_handleHealthz(t *testing.T) {
	tests := []struct {
		name     string
		provider StatsProvider
		wantCode int
		wantStat string
	}{
		{
			name: "running",
			provider: &mockStatsProvider{running: true, stats: Stats{
				ActiveConnections: 3,
				TotalConnections:  10,
				TCPAddress:        "[::]:8080",
				Uptime:            "1m0s",
			}},
			wantCode: http.StatusOK,
			wantStat: "healthy",
		},
		{
			name:     "stopped",
			provider: &mockStatsProvider{running: false},
			wantCode: http.StatusServiceUnavailable,
			wantStat: "unavailable",
		},
		{
			name:     "no provider",
			provider: nil,
			wantCode: http.StatusServiceUnavailable,
			wantStat: "unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(DefaultServerConfig(), tt.provider, prometheus.NewRegistry())
			rec := serve(s, http.MethodGet, "/healthz")
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}

			var body map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body["status"] != tt.wantStat {
				t.Errorf("status = %v, want %s", body["status"], tt.wantStat)
			}
			if tt.wantCode == http.StatusOK {
				if body["active_connections"] != float64(3) {
					t.Errorf("active_connections = %v, want 3", body["active_connections"])
				}
				if body["tcp_address"] != "[::]:8080" {
					t.Errorf("tcp_address = %v", body["tcp_address"])
				}
			}
		})
	}
}

func TestServer_handleReady(t *testing.T) {
	provider := &mockStatsProvider{running: false}
	s := NewServer(DefaultServerConfig(), provider, prometheus.NewRegistry())

	if rec := serve(s, http.MethodGet, "/ready"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("not running: status = %d", rec.Code)
	}

	provider.running = true
	rec := serve(s, http.MethodGet, "/ready")
	if rec.Code != http.StatusOK || rec.Body.String() != "READY\n" {
		t.Errorf("running: status = %d body = %q", rec.Code, rec.Body.String())
	}
}

func TestServer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "nettest_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Add(7)

	s := NewServer(DefaultServerConfig(), &mockStatsProvider{running: true}, reg)
	rec := serve(s, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "nettest_test_total 7") {
		t.Errorf("metrics body missing counter:\n%s", rec.Body.String())
	}
}

func TestServer_StartStop(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.Address = "127.0.0.1:0"
	s := NewServer(cfg, &mockStatsProvider{running: true}, prometheus.NewRegistry())

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !s.IsRunning() {
		t.Error("IsRunning() = false after Start")
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + s.Address().String() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "OK\n" {
		t.Errorf("body = %q", body)
	}

	if err := s.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if s.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
	if err := s.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}
