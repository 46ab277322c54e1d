package server

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/MarcoPoloResearchLab/dashboard/internal/dashboard"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	socketMessageViews  = "views"
	socketMessageResult = "result"
	socketMessageError  = "error"

	socketWriteWait = 10 * time.Second
	socketReadLimit = 64 * 1024
)

// socketMessage is every frame the server sends over /ws.
type socketMessage struct {
	Type      string           `json:"type"`
	RequestID string           `json:"requestId,omitempty"`
	Intent    string           `json:"intent,omitempty"`
	Result    *intentResult    `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
	Code      string           `json:"code,omitempty"`
	Views     *dashboard.Views `json:"views,omitempty"`
}

func (h *httpHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.origins) == 0 {
		return true
	}
	return slices.Contains(h.origins, origin)
}

// handleWebSocket upgrades to a websocket that pushes views and accepts intents. Frames are
// written only from this goroutine; the reader hands replies over a channel.
func (h *httpHandler) handleWebSocket(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	upgrader := websocket.Upgrader{CheckOrigin: h.checkOrigin}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(socketReadLimit)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	updates, cleanup := h.sessions.Subscribe(ctx, session.UserID())
	defer cleanup()

	replies := make(chan socketMessage)
	go h.readIntents(ctx, cancel, conn, session, replies)

	views := session.Views()
	if err := writeSocket(conn, socketMessage{Type: socketMessageViews, Views: &views}); err != nil {
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		var message socketMessage
		select {
		case <-ctx.Done():
			return
		case <-session.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "signed out"),
				time.Now().Add(socketWriteWait))
			return
		case update, open := <-updates:
			if !open {
				return
			}
			message = socketMessage{Type: socketMessageViews, Views: &update.Views}
		case message = <-replies:
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(socketWriteWait)); err != nil {
				return
			}
			continue
		}
		if err := writeSocket(conn, message); err != nil {
			h.logger.Debug("websocket write failed", zap.Error(err))
			return
		}
	}
}

func (h *httpHandler) readIntents(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, session *dashboard.Session, replies chan<- socketMessage) {
	defer cancel()
	for {
		var intent intentMessage
		if err := conn.ReadJSON(&intent); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}
		reply := socketMessage{Type: socketMessageResult, RequestID: intent.RequestID, Intent: intent.Type}
		result, err := applyIntent(ctx, session, intent)
		if err != nil {
			_, code, message := h.classifyError(err)
			reply.Type = socketMessageError
			reply.Code = code
			reply.Error = message
		} else {
			reply.Result = &result
		}
		select {
		case replies <- reply:
		case <-ctx.Done():
			return
		}
	}
}

func writeSocket(conn *websocket.Conn, message socketMessage) error {
	if err := conn.SetWriteDeadline(time.Now().Add(socketWriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(message)
}
