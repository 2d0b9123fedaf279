package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"i4.energy/across/lmsgw/laser"
	"i4.energy/across/lmsgw/sopas"
)

// fakeDevice records sent commands.
type fakeDevice struct {
	mu      sync.Mutex
	sent    []sopas.Command
	err     error
	state   laser.State
	pending int
}

func (d *fakeDevice) Send(cmd sopas.Command) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, cmd)
	return nil
}

func (d *fakeDevice) State() laser.State { return d.state }
func (d *fakeDevice) Address() string    { return "10.0.0.5:2111" }
func (d *fakeDevice) Pending() int       { return d.pending }

func TestServerCommands(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		body     string
		token    string
		auth     string
		sendErr  error
		status   int
		expected []sopas.Command
	}{
		{
			name:     "Command without fields",
			path:     "/commands/run",
			status:   http.StatusAccepted,
			expected: []sopas.Command{sopas.NewCommand(sopas.Run{})},
		},
		{
			name:     "Command with fields",
			path:     "/commands/set_output",
			body:     `{"output": 3, "state": 1}`,
			status:   http.StatusAccepted,
			expected: []sopas.Command{sopas.NewCommand(sopas.SetOutput{Output: 3, State: 1})},
		},
		{
			name:   "Unknown kind",
			path:   "/commands/self_destruct",
			status: http.StatusNotFound,
		},
		{
			name:   "Malformed body",
			path:   "/commands/set_output",
			body:   `{"output": "three"}`,
			status: http.StatusBadRequest,
		},
		{
			name:   "Unknown field",
			path:   "/commands/scan_event",
			body:   `{"enabled": true}`,
			status: http.StatusBadRequest,
		},
		{
			name:    "Not connected",
			path:    "/commands/run",
			sendErr: &laser.SendError{Err: laser.ErrNotConnected},
			status:  http.StatusServiceUnavailable,
		},
		{
			name:   "Missing token",
			path:   "/commands/run",
			token:  "secret",
			status: http.StatusUnauthorized,
		},
		{
			name:     "Valid token",
			path:     "/commands/run",
			token:    "secret",
			auth:     "Bearer secret",
			status:   http.StatusAccepted,
			expected: []sopas.Command{sopas.NewCommand(sopas.Run{})},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device := &fakeDevice{err: tt.sendErr}
			srv := &Server{Logger: zerolog.Nop(), Device: device, Token: tt.token}

			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body))
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Errorf("Expected status %d, got %d (%s)", tt.status, rec.Code, rec.Body.String())
			}
			if len(device.sent) != len(tt.expected) {
				t.Fatalf("Expected %d commands sent, got %d", len(tt.expected), len(device.sent))
			}
			for i := range tt.expected {
				if device.sent[i] != tt.expected[i] {
					t.Errorf("Expected command %v, got %v", tt.expected[i], device.sent[i])
				}
			}
		})
	}
}

func TestServerCommandResponse(t *testing.T) {
	srv := &Server{Logger: zerolog.Nop(), Device: &fakeDevice{}}

	req := httptest.NewRequest(http.MethodPost, "/commands/scan_event", strings.NewReader(`{"enable": true}`))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var resp struct {
		Status  string `json:"status"`
		Command struct {
			Kind    string          `json:"kind"`
			Payload json.RawMessage `json:"payload"`
		} `json:"command"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Expected JSON response, got %v", err)
	}
	if resp.Status != "queued" {
		t.Errorf("Expected status queued, got %s", resp.Status)
	}
	if resp.Command.Kind != "scan_event" {
		t.Errorf("Expected kind scan_event, got %s", resp.Command.Kind)
	}
	if string(resp.Command.Payload) != `{"enable":true}` {
		t.Errorf("Expected payload {\"enable\":true}, got %s", resp.Command.Payload)
	}
}

func TestServerState(t *testing.T) {
	srv := &Server{
		Logger: zerolog.Nop(),
		Device: &fakeDevice{state: laser.StateConnected, pending: 2},
	}

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/state", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	expected := `{"address":"10.0.0.5:2111","state":"connected","pending":2}`
	if got := strings.TrimSpace(rec.Body.String()); got != expected {
		t.Errorf("Expected %s, got %s", expected, got)
	}
}

func TestServerKinds(t *testing.T) {
	srv := &Server{Logger: zerolog.Nop(), Device: &fakeDevice{}}

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/commands", nil))

	var names []string
	if err := json.NewDecoder(rec.Body).Decode(&names); err != nil {
		t.Fatalf("Expected JSON response, got %v", err)
	}
	if len(names) != len(sopas.Kinds()) {
		t.Errorf("Expected %d kinds, got %d", len(sopas.Kinds()), len(names))
	}
}

func TestServerHealthAndMetrics(t *testing.T) {
	metrics := NewMetrics()
	srv := &Server{Logger: zerolog.Nop(), Device: &fakeDevice{}, Metrics: metrics}

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("Expected 200 ok, got %d %s", rec.Code, rec.Body.String())
	}

	got := testutil.ToFloat64(metrics.httpRequests.WithLabelValues(http.MethodGet, "GET /healthz", "200"))
	if got != 1 {
		t.Errorf("Expected 1 recorded request, got %v", got)
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "lmsgw_http_requests_total") {
		t.Error("Expected metrics output to contain lmsgw_http_requests_total")
	}
}
