package status

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"servicedoctor/internal/logger"
)

// SystemdSource 基于 systemctl 的状态来源
type SystemdSource struct{}

// NewSystemdSource 创建 systemd 状态来源
func NewSystemdSource() *SystemdSource {
	return &SystemdSource{}
}

// CheckStatus 通过 systemctl is-active 查询服务状态
//
// systemctl is-active 的退出码约定：unit 非 active 时返回非零，
// 因此这里不能把非零退出码一律当作检查失败，而要看标准输出。
func (s *SystemdSource) CheckStatus(ctx context.Context, name string) (Status, error) {
	cmd := exec.CommandContext(ctx, "systemctl", "is-active", name)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if ctx.Err() != nil {
		return StatusUnknown, fmt.Errorf("检查超时或取消: %w", ctx.Err())
	}

	state := strings.TrimSpace(out.String())
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// 非零退出码 + 有输出：unit 存在但非 active
			return parseIsActive(state), nil
		}
		// systemctl 不存在等环境问题
		return StatusUnknown, fmt.Errorf("执行 systemctl 失败: %w", err)
	}

	return parseIsActive(state), nil
}

// parseIsActive 将 systemctl is-active 的输出映射为 Status
func parseIsActive(state string) Status {
	switch strings.TrimSpace(state) {
	case "active":
		return StatusUp
	case "inactive", "failed", "deactivating", "activating":
		return StatusDown
	default:
		// 未知输出（如 unit 不存在时的空输出）按不可用处理
		return StatusDown
	}
}

// Restart 通过 systemctl restart 重启服务
func (s *SystemdSource) Restart(ctx context.Context, name string) error {
	cmd := exec.CommandContext(ctx, "systemctl", "restart", name)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("重启超时或取消: %w", ctx.Err())
		}
		msg := strings.TrimSpace(out.String())
		if msg != "" {
			return fmt.Errorf("重启服务 %s 失败: %s: %w", name, msg, err)
		}
		return fmt.Errorf("重启服务 %s 失败: %w", name, err)
	}

	logger.Info("status", "服务重启成功", "service", name)
	return nil
}
