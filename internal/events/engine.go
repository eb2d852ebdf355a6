package events

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"servicedoctor/internal/logger"
	"servicedoctor/internal/status"
)

// EngineConfig 告警状态机配置
type EngineConfig struct {
	// Threshold 触发告警所需的窗口内失败次数（>= 1）
	Threshold int

	// Window 滑动窗口长度
	Window time.Duration

	// RealertInterval 持续告警期间的重复通知间隔（0 表示恢复前不再通知）
	RealertInterval time.Duration

	// RecordHeartbeats 健康状态下是否记录心跳事件
	RecordHeartbeats bool
}

// Engine 告警状态机引擎
//
// 每个服务一份 AlertState，由引擎独占持有。
// 同一服务的观测串行处理（按服务加锁）；不同服务之间无共享状态。
type Engine struct {
	cfg EngineConfig

	locks  sync.Map // service -> *sync.Mutex，防止同一服务并发观测导致状态机错乱
	states sync.Map // service -> *AlertState，仅在持有对应服务锁时修改
}

// NewEngine 创建告警引擎
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Threshold < 1 {
		return nil, fmt.Errorf("alert_threshold 必须 >= 1，当前值: %d", cfg.Threshold)
	}
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("alert_window 必须 > 0，当前值: %v", cfg.Window)
	}
	return &Engine{cfg: cfg}, nil
}

// lockFor 获取指定服务的锁
func (e *Engine) lockFor(service string) *sync.Mutex {
	v, _ := e.locks.LoadOrStore(service, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// stateFor 获取指定服务的状态（首次观测时懒创建，需持有服务锁）
func (e *Engine) stateFor(service string) *AlertState {
	v, _ := e.states.LoadOrStore(service, &AlertState{
		Service: service,
		Status:  StatusHealthy,
	})
	return v.(*AlertState)
}

// Observe 处理一次状态观测
//
// 输入：
//   - service: 服务名
//   - obs: 观测到的状态（Unknown 不产生任何转移）
//   - t: 观测时间
//   - detail: 附加诊断信息（如重启结果），记入本次产生的事件
//
// 输出：
//   - events: 需要持久化的事件（可能为空）
//   - alert: 需要外发的通知（nil 表示无）
//
// 状态机规则：
//   - Up 且当前非 Healthy：产生 recovered 事件并复位；若此前处于 Alerting，
//     额外产生恢复通知
//   - Down：追加失败时间戳并驱逐窗口外条目，产生 down 事件；
//     达到阈值且尚未告警时进入 Alerting，产生 alert 事件和触发通知；
//     已在 Alerting 时抑制重复通知（可配置重复通知间隔）
//   - Unknown：无转移、无事件
func (e *Engine) Observe(service string, obs status.Status, t time.Time, detail string) ([]Event, *Alert) {
	if obs == status.StatusUnknown {
		return nil, nil
	}

	mu := e.lockFor(service)
	mu.Lock()
	defer mu.Unlock()

	st := e.stateFor(service)

	switch obs {
	case status.StatusUp:
		return e.observeUp(st, t, detail)
	case status.StatusDown:
		return e.observeDown(st, t, detail)
	}
	return nil, nil
}

// observeUp 处理一次正常观测（需持有服务锁）
func (e *Engine) observeUp(st *AlertState, t time.Time, detail string) ([]Event, *Alert) {
	if st.Status == StatusHealthy {
		// 重复的健康观测：按策略记录心跳，不要求事件
		if e.cfg.RecordHeartbeats {
			return []Event{{
				Service:   st.Service,
				Timestamp: t,
				Type:      EventUp,
				Detail:    detail,
			}}, nil
		}
		return nil, nil
	}

	// Degraded/Alerting -> Healthy：产生恢复事件
	wasAlerting := st.Status == StatusAlerting
	failureCount := len(st.FailureTimestamps)

	st.Status = StatusHealthy
	st.FailureTimestamps = nil
	st.LastAlertSent = time.Time{}

	evs := []Event{{
		Service:   st.Service,
		Timestamp: t,
		Type:      EventRecovered,
		Detail:    fmt.Sprintf("recovered after %d failure(s)", failureCount),
	}}

	// 仅从 Alerting 恢复时外发恢复通知，给操作者闭环信号
	var alert *Alert
	if wasAlerting {
		alert = &Alert{
			ID:          uuid.New().String(),
			Service:     st.Service,
			Kind:        AlertRecovered,
			TriggeredAt: t,
		}
		logger.Info("events", "服务已恢复", "service", st.Service)
	}

	return evs, alert
}

// observeDown 处理一次失败观测（需持有服务锁）
func (e *Engine) observeDown(st *AlertState, t time.Time, detail string) ([]Event, *Alert) {
	// 追加并驱逐窗口外的旧条目（滑动窗口，以最新观测为基准）
	st.FailureTimestamps = append(st.FailureTimestamps, t)
	st.FailureTimestamps = evictBefore(st.FailureTimestamps, t.Add(-e.cfg.Window))

	evs := []Event{{
		Service:   st.Service,
		Timestamp: t,
		Type:      EventDown,
		Detail:    detail,
	}}

	if len(st.FailureTimestamps) < e.cfg.Threshold {
		st.Status = StatusDegraded
		return evs, nil
	}

	if st.Status != StatusAlerting {
		// 首次越过阈值：进入 Alerting，产生 alert 事件与触发通知
		st.Status = StatusAlerting
		st.LastAlertSent = t

		evs = append(evs, Event{
			Service:   st.Service,
			Timestamp: t,
			Type:      EventAlert,
			Detail:    fmt.Sprintf("%d failure(s) within window", len(st.FailureTimestamps)),
		})

		logger.Warn("events", "服务进入告警状态",
			"service", st.Service, "failures", len(st.FailureTimestamps))

		return evs, e.firingAlert(st, t)
	}

	// 仍在 Alerting：抑制重复通知，防止持续故障引发通知风暴
	if e.cfg.RealertInterval > 0 && t.Sub(st.LastAlertSent) >= e.cfg.RealertInterval {
		st.LastAlertSent = t
		logger.Info("events", "持续告警，发送重复通知", "service", st.Service)
		return evs, e.firingAlert(st, t)
	}

	return evs, nil
}

// firingAlert 构造触发通知（需持有服务锁）
func (e *Engine) firingAlert(st *AlertState, t time.Time) *Alert {
	failures := make([]time.Time, len(st.FailureTimestamps))
	copy(failures, st.FailureTimestamps)

	return &Alert{
		ID:          uuid.New().String(),
		Service:     st.Service,
		Kind:        AlertFiring,
		Failures:    failures,
		TriggeredAt: t,
	}
}

// evictBefore 删除早于 cutoff 的时间戳（输入按时间升序）
func evictBefore(ts []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(ts) && ts[idx].Before(cutoff) {
		idx++
	}
	if idx == 0 {
		return ts
	}
	return append(ts[:0], ts[idx:]...)
}

// Snapshot 返回所有已观测服务的状态副本（供观测 API 使用）
func (e *Engine) Snapshot() []AlertState {
	var out []AlertState
	e.states.Range(func(key, value any) bool {
		service := key.(string)

		mu := e.lockFor(service)
		mu.Lock()
		st := value.(*AlertState)
		cp := AlertState{
			Service:       st.Service,
			Status:        st.Status,
			LastAlertSent: st.LastAlertSent,
		}
		if len(st.FailureTimestamps) > 0 {
			cp.FailureTimestamps = make([]time.Time, len(st.FailureTimestamps))
			copy(cp.FailureTimestamps, st.FailureTimestamps)
		}
		mu.Unlock()

		out = append(out, cp)
		return true
	})
	return out
}
