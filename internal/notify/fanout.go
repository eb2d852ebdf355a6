package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"servicedoctor/internal/events"
	"servicedoctor/internal/logger"
)

// Fanout 多通道通知扇出
//
// 一条通知发往所有通道；每个通道独立超时、独立成败。
// 出站整体限流（令牌桶），防止告警风暴压垮下游 webhook / SMTP。
type Fanout struct {
	channels []Channel
	timeout  time.Duration
	limiter  *rate.Limiter
}

// NewFanout 创建通知扇出器
//
// 允许零通道（未配置通知时只落库不外发）；ratePerSecond <= 0 表示不限流。
func NewFanout(channels []Channel, timeout time.Duration, ratePerSecond float64) (*Fanout, error) {
	if timeout <= 0 {
		return nil, fmt.Errorf("通道发送超时必须 > 0，当前值: %v", timeout)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if ratePerSecond > 0 {
		// burst 与速率同量级，允许告警与恢复通知背靠背发出
		burst := int(ratePerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(ratePerSecond), burst)
	}

	return &Fanout{
		channels: channels,
		timeout:  timeout,
		limiter:  limiter,
	}, nil
}

// Send 将一条通知发往所有通道，返回每个通道的独立结果
//
// 并发发送，每个通道有独立的超时 context；
// 本方法等待所有通道完成后才返回。
func (f *Fanout) Send(ctx context.Context, alert events.Alert) map[string]Outcome {
	outcomes := make(map[string]Outcome, len(f.channels))
	if len(f.channels) == 0 {
		return outcomes
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, ch := range f.channels {
		wg.Add(1)
		go func(ch Channel) {
			defer wg.Done()

			opCtx, cancel := context.WithTimeout(ctx, f.timeout)
			defer cancel()

			start := time.Now()
			err := f.limiter.Wait(opCtx)
			if err == nil {
				err = ch.Send(opCtx, alert)
			}

			out := Outcome{
				Channel: ch.Name(),
				OK:      err == nil,
				Elapsed: time.Since(start),
			}
			if err != nil {
				out.Err = err.Error()
				logger.Warn("notify", "通知发送失败",
					"channel", ch.Name(), "service", alert.Service, "kind", string(alert.Kind), "error", err)
			} else {
				logger.Info("notify", "通知已发送",
					"channel", ch.Name(), "service", alert.Service, "kind", string(alert.Kind))
			}

			mu.Lock()
			outcomes[ch.Name()] = out
			mu.Unlock()
		}(ch)
	}
	wg.Wait()

	return outcomes
}
