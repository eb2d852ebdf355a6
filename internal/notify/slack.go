package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"servicedoctor/internal/events"
)

// SlackChannel Slack Incoming Webhook 通道
type SlackChannel struct {
	name       string
	webhookURL string
	httpClient *http.Client
}

// NewSlackChannel 创建 Slack 通道
// 请求超时完全由调用方传入的 context 控制（Fanout 的 target_timeout）
func NewSlackChannel(name, webhookURL string) *SlackChannel {
	return &SlackChannel{
		name:       name,
		webhookURL: webhookURL,
		httpClient: &http.Client{},
	}
}

// Name 返回通道标识
func (c *SlackChannel) Name() string {
	return c.name
}

// slackPayload Incoming Webhook 请求体
// text 为降级文案（通知预览），blocks 为富文本正文
type slackPayload struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks,omitempty"`
}

type slackBlock struct {
	Type string     `json:"type"`
	Text *slackText `json:"text,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Send 向 Slack webhook 发送告警
func (c *SlackChannel) Send(ctx context.Context, alert events.Alert) error {
	payload := slackPayload{
		Text: subjectFor(alert),
		Blocks: []slackBlock{
			{
				Type: "header",
				Text: &slackText{Type: "plain_text", Text: subjectFor(alert)},
			},
			{
				Type: "section",
				Text: &slackText{Type: "mrkdwn", Text: bodyFor(alert)},
			},
		},
	}

	return postJSON(ctx, c.httpClient, c.webhookURL, payload)
}

// postJSON 向 webhook 发送 JSON 请求并检查响应码（Slack / Teams 共用）
func postJSON(ctx context.Context, client *http.Client, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化 webhook 请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("构造 webhook 请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("发送 webhook 请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook 返回非成功状态码 %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}
