package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"servicedoctor/internal/config"
	"servicedoctor/internal/events"
)

// EmailChannel SMTP 邮件通道
type EmailChannel struct {
	name string
	cfg  config.EmailConfig
}

// NewEmailChannel 创建邮件通道
func NewEmailChannel(name string, cfg config.EmailConfig) *EmailChannel {
	return &EmailChannel{name: name, cfg: cfg}
}

// Name 返回通道标识
func (c *EmailChannel) Name() string {
	return c.name
}

// Send 通过 SMTP 发送告警邮件
//
// 连接用 DialContext 建立，并把 context 的截止时间设为连接读写 deadline，
// 整个 SMTP 会话都受其约束：服务器接受连接后挂起不应答时，
// 会话在 deadline 到期即报错返回，不会无限阻塞调用方。
func (c *EmailChannel) Send(ctx context.Context, alert events.Alert) error {
	addr := fmt.Sprintf("%s:%d", c.cfg.SMTPHost, c.cfg.SMTPPort)

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("连接 SMTP 服务器失败: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return fmt.Errorf("设置连接 deadline 失败: %w", err)
		}
	}

	client := smtp.NewClient(conn)
	defer client.Close()

	if err := client.Hello("localhost"); err != nil {
		return fmt.Errorf("SMTP 握手失败: %w", err)
	}

	// 服务器支持 STARTTLS 时升级连接（deadline 同样覆盖 TLS 握手）
	if ok, _ := client.Extension("STARTTLS"); ok {
		tlsConfig := &tls.Config{ServerName: c.cfg.SMTPHost}
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("STARTTLS 失败: %w", err)
		}
	}

	if c.cfg.Username != "" {
		auth := sasl.NewPlainClient("", c.cfg.Username, c.cfg.Password)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP 认证失败: %w", err)
		}
	}

	msg := c.buildMessage(alert)
	if err := client.SendMail(c.cfg.From, c.cfg.To, strings.NewReader(msg)); err != nil {
		return fmt.Errorf("发送邮件失败: %w", err)
	}

	return client.Quit()
}

// buildMessage 构造 RFC 5322 格式的邮件内容
func (c *EmailChannel) buildMessage(alert events.Alert) string {
	var b strings.Builder

	fmt.Fprintf(&b, "From: %s\r\n", c.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(c.cfg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subjectFor(alert))
	fmt.Fprintf(&b, "Date: %s\r\n", alert.TriggeredAt.UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(bodyFor(alert), "\n", "\r\n"))
	b.WriteString("\r\n")

	return b.String()
}
