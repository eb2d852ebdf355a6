package notify

import (
	"fmt"
	"strings"
	"time"

	"servicedoctor/internal/events"
)

// 各通道共用的文案构造。对外的通知正文使用英文，
// 便于与既有的运维告警（邮件规则、Slack 关键词）兼容。

// subjectFor 构造通知主题/标题
func subjectFor(alert events.Alert) string {
	if alert.Kind == events.AlertRecovered {
		return fmt.Sprintf("RESOLVED: service %s recovered", alert.Service)
	}
	return fmt.Sprintf("ALERT: service %s failed %d time(s) within window", alert.Service, len(alert.Failures))
}

// bodyFor 构造通知正文（纯文本，邮件和 webhook 通用）
func bodyFor(alert events.Alert) string {
	var b strings.Builder

	if alert.Kind == events.AlertRecovered {
		fmt.Fprintf(&b, "Service %s has recovered and is running normally.\n", alert.Service)
	} else {
		fmt.Fprintf(&b, "Service %s is failing.\n", alert.Service)
		fmt.Fprintf(&b, "Failures within alert window: %d\n", len(alert.Failures))
		if len(alert.Failures) > 0 {
			b.WriteString("Failure timestamps:\n")
			for _, ts := range alert.Failures {
				fmt.Fprintf(&b, "  - %s\n", ts.UTC().Format(time.RFC3339))
			}
		}
	}

	fmt.Fprintf(&b, "Time: %s\n", alert.TriggeredAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Alert ID: %s\n", alert.ID)
	b.WriteString("\n-- Service Doctor")

	return b.String()
}
