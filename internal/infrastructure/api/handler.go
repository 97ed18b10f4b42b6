package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

// Version 服務版本
const Version = "1.0.0"

// StateProvider 提供單一交易對的策略狀態
type StateProvider interface {
	InstID() string
	Snapshot() map[string]any
}

// Handler 狀態查詢 API
type Handler struct {
	service  string
	services map[string]StateProvider
}

// NewHandler 創建 Handler
func NewHandler(service string, providers ...StateProvider) *Handler {
	services := make(map[string]StateProvider, len(providers))
	for _, p := range providers {
		services[p.InstID()] = p
	}
	return &Handler{service: service, services: services}
}

// NewRouter 註冊路由
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", h.Health)
	r.GET("/state", h.States)
	r.GET("/state/:instId", h.State)
	return r
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"timestamp":  time.Now().Format(time.RFC3339),
		"service":    h.service,
		"version":    Version,
		"strategies": len(h.services),
	})
}

// States 所有交易對的狀態，按 instId 排序
func (h *Handler) States(c *gin.Context) {
	ids := make([]string, 0, len(h.services))
	for id := range h.services {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	states := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		states = append(states, h.services[id].Snapshot())
	}
	c.JSON(http.StatusOK, gin.H{"strategies": states})
}

func (h *Handler) State(c *gin.Context) {
	instID := c.Param("instId")
	p, ok := h.services[instID]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown instId " + instID})
		return
	}
	c.JSON(http.StatusOK, p.Snapshot())
}
