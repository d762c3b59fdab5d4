package realtime

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"flipswitch/internal/logger"
	"flipswitch/pkg/metrics"
	"flipswitch/pkg/middleware"
)

const heartbeatInterval = 30 * time.Second

type Handler struct {
	hub    *Hub
	logger logger.Logger
}

func NewHandler(hub *Hub, log logger.Logger) *Handler {
	return &Handler{hub: hub, logger: log}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		v1.GET("/events", h.Stream)
	}
}

// Stream godoc
// @Summary      Stream change events
// @Description  Server-sent event stream of flag changes for the caller's tenant
// @Tags         events
// @Produce      text/event-stream
// @Success      200
// @Router       /events [get]
func (h *Handler) Stream(c *gin.Context) {
	tenant := middleware.TenantFrom(c)

	events, unsubscribe := h.hub.Subscribe(tenant)
	defer unsubscribe()

	metrics.ActiveStreamSessions.Inc()
	defer metrics.ActiveStreamSessions.Dec()

	// Lift the server write deadline for this connection; the stream stays
	// open until the client disconnects.
	rc := http.NewResponseController(c.Writer)
	_ = rc.SetWriteDeadline(time.Time{})

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	h.logger.InfowCtx(c.Request.Context(), "Event stream session opened", "tenant", tenant)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("flag_change", event)
			return true
		case <-heartbeat.C:
			c.SSEvent("heartbeat", time.Now().UTC().Format(time.RFC3339))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})

	h.logger.InfowCtx(c.Request.Context(), "Event stream session closed", "tenant", tenant)
}
