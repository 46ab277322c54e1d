package server

import (
	"io"
	"time"

	"github.com/MarcoPoloResearchLab/dashboard/internal/dashboard"
	"github.com/gin-gonic/gin"
)

const (
	StreamEventViews     = "views"
	streamEventHeartbeat = "heartbeat"
)

type viewsPayload struct {
	UserID    string          `json:"userId"`
	Views     dashboard.Views `json:"views"`
	Timestamp time.Time       `json:"timestamp"`
}

type heartbeatPayload struct {
	Timestamp time.Time `json:"timestamp"`
}

// handleViewStream pushes the caller's views as server-sent events: the current views first,
// then every recomputation, with heartbeats in between.
func (h *httpHandler) handleViewStream(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	updates, cleanup := h.sessions.Subscribe(ctx, session.UserID())
	defer cleanup()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent(StreamEventViews, viewsPayload{
		UserID:    session.UserID(),
		Views:     session.Views(),
		Timestamp: time.Now().UTC(),
	})
	c.Writer.Flush()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-session.Done():
			return false
		case update, open := <-updates:
			if !open {
				return false
			}
			c.SSEvent(StreamEventViews, viewsPayload{
				UserID:    update.UserID,
				Views:     update.Views,
				Timestamp: update.Timestamp,
			})
			return true
		case tick := <-ticker.C:
			c.SSEvent(streamEventHeartbeat, heartbeatPayload{Timestamp: tick.UTC()})
			return true
		}
	})
}
