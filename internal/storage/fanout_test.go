package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"servicedoctor/internal/events"
)

// fakeBackend 内存后端，可注入写入错误
type fakeBackend struct {
	name     string
	writeErr error

	mu     sync.Mutex
	events []events.Event
}

func (f *fakeBackend) Name() string                   { return f.name }
func (f *fakeBackend) Init(ctx context.Context) error { return nil }
func (f *fakeBackend) Close() error                   { return nil }

func (f *fakeBackend) Write(ctx context.Context, ev events.Event) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeBackend) QueryRecent(ctx context.Context, service string, since time.Time) ([]events.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []events.Event
	for _, ev := range f.events {
		if ev.Service == service && !ev.Timestamp.Before(since) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeBackend) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []events.Event
	var deleted int64
	for _, ev := range f.events {
		if ev.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, ev)
	}
	f.events = kept
	return deleted, nil
}

func (f *fakeBackend) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func testEvent(service string, t time.Time) events.Event {
	return events.Event{
		Service:   service,
		Timestamp: t,
		Type:      events.EventDown,
	}
}

func TestNewFanout(t *testing.T) {
	if _, err := NewFanout(nil, time.Second); err == nil {
		t.Error("无后端时应返回错误")
	}
	if _, err := NewFanout([]Backend{&fakeBackend{name: "a"}}, 0); err == nil {
		t.Error("超时为 0 时应返回错误")
	}
	if _, err := NewFanout([]Backend{&fakeBackend{name: "a"}}, time.Second); err != nil {
		t.Errorf("合法参数不应返回错误: %v", err)
	}
}

// 单个后端失败不影响其他后端，且结果按后端独立记录
func TestFanout_WriteIndependence(t *testing.T) {
	good := &fakeBackend{name: "sqlite"}
	bad := &fakeBackend{name: "postgres", writeErr: errors.New("connection refused")}

	f, err := NewFanout([]Backend{bad, good}, time.Second)
	if err != nil {
		t.Fatalf("NewFanout() error = %v", err)
	}

	now := time.Now().UTC()
	outcomes := f.Write(context.Background(), testEvent("nginx", now))

	if len(outcomes) != 2 {
		t.Fatalf("结果条目数 = %d, want 2", len(outcomes))
	}
	if outcomes["postgres"].OK {
		t.Error("失败后端的结果应为失败")
	}
	if outcomes["postgres"].Err == "" {
		t.Error("失败结果应携带原因")
	}
	if !outcomes["sqlite"].OK {
		t.Errorf("正常后端应写入成功: %s", outcomes["sqlite"].Err)
	}
	if good.count() != 1 {
		t.Errorf("正常后端事件数 = %d, want 1", good.count())
	}
	if !AnyOK(outcomes) {
		t.Error("至少一个后端成功时 AnyOK 应为 true")
	}
}

func TestFanout_WriteAllFail(t *testing.T) {
	bad1 := &fakeBackend{name: "postgres", writeErr: errors.New("down")}
	bad2 := &fakeBackend{name: "redis", writeErr: errors.New("down")}

	f, _ := NewFanout([]Backend{bad1, bad2}, time.Second)
	outcomes := f.Write(context.Background(), testEvent("nginx", time.Now().UTC()))

	if AnyOK(outcomes) {
		t.Error("所有后端失败时 AnyOK 应为 false")
	}
}

// 连续多条事件：每个后端各收到全部事件
func TestFanout_WriteSequence(t *testing.T) {
	a := &fakeBackend{name: "sqlite"}
	b := &fakeBackend{name: "redis"}
	f, _ := NewFanout([]Backend{a, b}, time.Second)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		outcomes := f.Write(context.Background(), testEvent("nginx", base.Add(time.Duration(i)*time.Minute)))
		if !AnyOK(outcomes) {
			t.Fatalf("第 %d 条事件写入失败", i+1)
		}
	}

	if a.count() != 5 || b.count() != 5 {
		t.Errorf("后端事件数 = %d/%d, want 5/5", a.count(), b.count())
	}
}

// 查询只走主后端（配置顺序的第一个）
func TestFanout_QueryRecentUsesPrimary(t *testing.T) {
	primary := &fakeBackend{name: "postgres"}
	secondary := &fakeBackend{name: "sqlite"}
	f, _ := NewFanout([]Backend{primary, secondary}, time.Second)

	if f.Primary() != "postgres" {
		t.Errorf("Primary() = %s, want postgres", f.Primary())
	}

	now := time.Now().UTC()
	// 只往主后端塞一条，验证查询不会混用其他后端
	primary.events = append(primary.events, testEvent("nginx", now))

	got, err := f.QueryRecent(context.Background(), "nginx", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("QueryRecent() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("查询结果条数 = %d, want 1", len(got))
	}
}

// 清理幂等：第二次清理删除 0 条且不报错
func TestFanout_PruneIdempotent(t *testing.T) {
	b := &fakeBackend{name: "sqlite"}
	f, _ := NewFanout([]Backend{b}, time.Second)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		f.Write(context.Background(), testEvent("nginx", base.Add(time.Duration(i)*time.Hour)))
	}

	cutoff := base.Add(90 * time.Minute)

	outcomes := f.PruneOlderThan(context.Background(), cutoff)
	if !outcomes["sqlite"].OK {
		t.Fatalf("第一次清理失败: %s", outcomes["sqlite"].Err)
	}
	if b.count() != 1 {
		t.Errorf("清理后剩余事件数 = %d, want 1", b.count())
	}

	outcomes = f.PruneOlderThan(context.Background(), cutoff)
	if !outcomes["sqlite"].OK {
		t.Errorf("重复清理应幂等成功: %s", outcomes["sqlite"].Err)
	}
	if b.count() != 1 {
		t.Errorf("重复清理不应再删除事件, 剩余 = %d", b.count())
	}
}
