package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"servicedoctor/internal/config"
	"servicedoctor/internal/events"
	"servicedoctor/internal/logger"
	"servicedoctor/internal/storage"
)

// Handler API处理器
type Handler struct {
	cfg    *config.AppConfig
	engine *events.Engine
	store  *storage.Fanout
}

// NewHandler 创建处理器
func NewHandler(cfg *config.AppConfig, engine *events.Engine, store *storage.Fanout) *Handler {
	return &Handler{cfg: cfg, engine: engine, store: store}
}

// serviceStatusView /api/status 的单服务视图
type serviceStatusView struct {
	Service          string `json:"service"`
	Status           string `json:"status"`
	FailuresInWindow int    `json:"failures_in_window"`
	LastAlertSent    string `json:"last_alert_sent,omitempty"`
}

// GetStatus 返回所有配置服务的当前告警状态
//
// 尚未观测过的服务（启动后首轮巡检前）按 healthy 返回，
// 与状态机的初始状态一致。
func (h *Handler) GetStatus(c *gin.Context) {
	snapshot := make(map[string]events.AlertState)
	for _, st := range h.engine.Snapshot() {
		snapshot[st.Service] = st
	}

	views := make([]serviceStatusView, 0, len(h.cfg.Services))
	for _, name := range h.cfg.Services {
		view := serviceStatusView{
			Service: name,
			Status:  events.StatusHealthy.String(),
		}
		if st, ok := snapshot[name]; ok {
			view.Status = st.Status.String()
			view.FailuresInWindow = len(st.FailureTimestamps)
			if !st.LastAlertSent.IsZero() {
				view.LastAlertSent = st.LastAlertSent.UTC().Format(time.RFC3339)
			}
		}
		views = append(views, view)
	}

	c.JSON(http.StatusOK, gin.H{
		"services":  views,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// GetEvents 返回某服务近期的事件（来自主存储后端）
//
// 查询参数：
//   - service: 服务名（必填，必须在配置中）
//   - hours: 回看时长（可选，默认 24，上限 720）
func (h *Handler) GetEvents(c *gin.Context) {
	service := c.Query("service")
	if service == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing required parameter: service"})
		return
	}
	if !h.knownService(service) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown service: " + service})
		return
	}

	hours := 24
	if raw := c.Query("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid parameter: hours"})
			return
		}
		hours = parsed
	}
	if hours > 720 {
		hours = 720
	}

	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	evs, err := h.store.QueryRecent(c.Request.Context(), service, since)
	if err != nil {
		logger.FromContext(c.Request.Context(), "api").Error("查询事件失败",
			"service", service, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query events"})
		return
	}

	if evs == nil {
		evs = []events.Event{}
	}

	c.JSON(http.StatusOK, gin.H{
		"service": service,
		"source":  h.store.Primary(),
		"since":   since.Format(time.RFC3339),
		"events":  evs,
	})
}

// knownService 判断服务是否在配置中
func (h *Handler) knownService(name string) bool {
	for _, s := range h.cfg.Services {
		if s == name {
			return true
		}
	}
	return false
}
