package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"servicedoctor/internal/config"
	"servicedoctor/internal/events"
	"servicedoctor/internal/status"
	"servicedoctor/internal/storage"
)

// memBackend 内存存储后端（只为查询路径服务）
type memBackend struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *memBackend) Name() string                   { return "mem" }
func (b *memBackend) Init(ctx context.Context) error { return nil }
func (b *memBackend) Close() error                   { return nil }

func (b *memBackend) Write(ctx context.Context, ev events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
	return nil
}

func (b *memBackend) QueryRecent(ctx context.Context, service string, since time.Time) ([]events.Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.Event
	for _, ev := range b.events {
		if ev.Service == service && !ev.Timestamp.Before(since) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (b *memBackend) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *events.Engine, *memBackend) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.AppConfig{
		Services: []string{"nginx", "postgresql"},
	}

	engine, err := events.NewEngine(events.EngineConfig{Threshold: 2, Window: time.Hour})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	backend := &memBackend{}
	store, err := storage.NewFanout([]storage.Backend{backend}, time.Second)
	if err != nil {
		t.Fatalf("NewFanout() error = %v", err)
	}

	handler := NewHandler(cfg, engine, store)
	router := gin.New()
	router.GET("/api/status", handler.GetStatus)
	router.GET("/api/events", handler.GetEvents)

	return router, engine, backend
}

func doRequest(router *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestGetStatus(t *testing.T) {
	router, engine, _ := newTestRouter(t)

	// nginx 进入告警，postgresql 从未观测
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	engine.Observe("nginx", status.StatusDown, base, "")
	engine.Observe("nginx", status.StatusDown, base.Add(time.Minute), "")

	w := doRequest(router, "/api/status")
	if w.Code != http.StatusOK {
		t.Fatalf("状态码 = %d, want 200", w.Code)
	}

	var resp struct {
		Services []struct {
			Service          string `json:"service"`
			Status           string `json:"status"`
			FailuresInWindow int    `json:"failures_in_window"`
		} `json:"services"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("响应不是合法 JSON: %v", err)
	}

	if len(resp.Services) != 2 {
		t.Fatalf("服务数 = %d, want 2", len(resp.Services))
	}

	byName := map[string]struct {
		Status   string
		Failures int
	}{}
	for _, s := range resp.Services {
		byName[s.Service] = struct {
			Status   string
			Failures int
		}{s.Status, s.FailuresInWindow}
	}

	if byName["nginx"].Status != "alerting" || byName["nginx"].Failures != 2 {
		t.Errorf("nginx 状态 = %+v, want alerting/2", byName["nginx"])
	}
	// 未观测的服务按初始状态返回
	if byName["postgresql"].Status != "healthy" {
		t.Errorf("postgresql 状态 = %s, want healthy", byName["postgresql"].Status)
	}
}

func TestGetEvents(t *testing.T) {
	router, _, backend := newTestRouter(t)

	now := time.Now().UTC()
	backend.Write(context.Background(), events.Event{
		Service: "nginx", Timestamp: now.Add(-time.Hour), Type: events.EventDown,
	})
	backend.Write(context.Background(), events.Event{
		Service: "nginx", Timestamp: now.Add(-48 * time.Hour), Type: events.EventDown,
	})

	w := doRequest(router, "/api/events?service=nginx")
	if w.Code != http.StatusOK {
		t.Fatalf("状态码 = %d, want 200", w.Code)
	}

	var resp struct {
		Service string         `json:"service"`
		Source  string         `json:"source"`
		Events  []events.Event `json:"events"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("响应不是合法 JSON: %v", err)
	}

	// 默认回看 24 小时，48 小时前的事件不应返回
	if len(resp.Events) != 1 {
		t.Errorf("事件数 = %d, want 1", len(resp.Events))
	}
	if resp.Source != "mem" {
		t.Errorf("source = %s, want mem", resp.Source)
	}
}

func TestGetEvents_Validation(t *testing.T) {
	router, _, _ := newTestRouter(t)

	tests := []struct {
		name     string
		path     string
		wantCode int
	}{
		{"missing service", "/api/events", http.StatusBadRequest},
		{"unknown service", "/api/events?service=mystery", http.StatusNotFound},
		{"invalid hours", "/api/events?service=nginx&hours=abc", http.StatusBadRequest},
		{"negative hours", "/api/events?service=nginx&hours=-1", http.StatusBadRequest},
		{"valid", "/api/events?service=nginx&hours=48", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := doRequest(router, tt.path); w.Code != tt.wantCode {
				t.Errorf("状态码 = %d, want %d", w.Code, tt.wantCode)
			}
		})
	}
}

func TestGetEvents_EmptyResult(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doRequest(router, "/api/events?service=postgresql")
	if w.Code != http.StatusOK {
		t.Fatalf("状态码 = %d, want 200", w.Code)
	}

	var resp struct {
		Events []events.Event `json:"events"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("响应不是合法 JSON: %v", err)
	}
	if resp.Events == nil {
		t.Error("无事件时应返回空数组而非 null")
	}
}
