package notify

import (
	"context"
	"net/http"

	"servicedoctor/internal/events"
)

// Teams MessageCard 主题色
const (
	teamsColorFiring    = "FF0000"
	teamsColorRecovered = "00B294"
)

// TeamsChannel Microsoft Teams Incoming Webhook 通道
type TeamsChannel struct {
	name       string
	webhookURL string
	httpClient *http.Client
}

// NewTeamsChannel 创建 Teams 通道
// 请求超时完全由调用方传入的 context 控制（Fanout 的 target_timeout）
func NewTeamsChannel(name, webhookURL string) *TeamsChannel {
	return &TeamsChannel{
		name:       name,
		webhookURL: webhookURL,
		httpClient: &http.Client{},
	}
}

// Name 返回通道标识
func (c *TeamsChannel) Name() string {
	return c.name
}

// teamsCard Teams MessageCard 请求体（legacy connector 格式）
type teamsCard struct {
	Type       string `json:"@type"`
	Context    string `json:"@context"`
	ThemeColor string `json:"themeColor"`
	Summary    string `json:"summary"`
	Title      string `json:"title"`
	Text       string `json:"text"`
}

// Send 向 Teams webhook 发送告警
func (c *TeamsChannel) Send(ctx context.Context, alert events.Alert) error {
	color := teamsColorFiring
	if alert.Kind == events.AlertRecovered {
		color = teamsColorRecovered
	}

	card := teamsCard{
		Type:       "MessageCard",
		Context:    "http://schema.org/extensions",
		ThemeColor: color,
		Summary:    subjectFor(alert),
		Title:      subjectFor(alert),
		Text:       bodyFor(alert),
	}

	return postJSON(ctx, c.httpClient, c.webhookURL, card)
}
