package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/dashboard/internal/auth"
	"github.com/MarcoPoloResearchLab/dashboard/internal/board"
	"github.com/MarcoPoloResearchLab/dashboard/internal/dashboard"
	"github.com/MarcoPoloResearchLab/dashboard/internal/notes"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	userIDContextKey         = "dashboard_user_id"
	defaultHeartbeatInterval = 25 * time.Second
)

var (
	errMissingSessions  = errors.New("session manager dependency required")
	errMissingValidator = errors.New("session validator dependency required")
)

// SessionValidator authenticates requests carrying a TAuth session.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
	CookieName() string
}

// IdentityResolver maps session claims to the canonical user id owning boards and notes.
type IdentityResolver interface {
	ResolveCanonicalUserID(claims auth.SessionClaims) (string, error)
	Forget(userID string)
}

// Dependencies wires the HTTP surface. Users may be nil, in which case the session's user id
// claim is used as is.
type Dependencies struct {
	Sessions          *dashboard.Manager
	Validator         SessionValidator
	Users             IdentityResolver
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

// NewHTTPHandler builds the gin engine serving board and notes intents and view streams.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Sessions == nil {
		return nil, errMissingSessions
	}
	if deps.Validator == nil {
		return nil, errMissingValidator
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins...))

	handler := &httpHandler{
		sessions:  deps.Sessions,
		validator: deps.Validator,
		users:     deps.Users,
		origins:   deps.AllowedOrigins,
		heartbeat: heartbeat,
		logger:    logger,
	}

	router.GET("/meta", handler.handleMeta)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/board", handler.handleBoard)
	protected.POST("/board/tasks", handler.handleAddTask)
	protected.POST("/board/tasks/:id/move", handler.handleMoveTask)
	protected.POST("/board/tasks/:id/toggle", handler.handleToggleTask)
	protected.POST("/board/tasks/:id/advance", handler.handleAdvanceTask)
	protected.DELETE("/board/columns/:column/tasks/:id", handler.handleDeleteTask)
	protected.GET("/notes", handler.handleNotes)
	protected.POST("/notes", handler.handleAddNote)
	protected.DELETE("/notes/:id", handler.handleDeleteNote)
	protected.PUT("/notes/filter", handler.handleSetFilter)
	protected.GET("/stream", handler.handleViewStream)
	protected.GET("/ws", handler.handleWebSocket)
	protected.POST("/auth/logout", handler.handleLogout)

	return router, nil
}

func corsMiddleware(allowedOrigins ...string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-TAuth-Tenant"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = allowedOrigins
	}
	return cors.New(config)
}

type httpHandler struct {
	sessions  *dashboard.Manager
	validator SessionValidator
	users     IdentityResolver
	origins   []string
	heartbeat time.Duration
	logger    *zap.Logger
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.validator.ValidateRequest(c.Request)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) || errors.Is(err, jwt.ErrTokenExpired) || errors.Is(err, auth.ErrMissingSessionToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": "auth.unauthorized"})
		return
	}

	userID := claims.UserID
	if h.users != nil {
		userID, err = h.users.ResolveCanonicalUserID(claims)
		if err != nil {
			h.logger.Warn("identity resolution failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": "auth.identity_unresolved"})
			return
		}
	}
	c.Set(userIDContextKey, userID)
	c.Next()
}

// session returns the caller's dashboard session, answering the request itself on failure.
func (h *httpHandler) session(c *gin.Context) (*dashboard.Session, bool) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": "auth.unauthorized"})
		return nil, false
	}
	session, err := h.sessions.Session(userID)
	if err != nil {
		h.respondError(c, err)
		return nil, false
	}
	return session, true
}

func (h *httpHandler) handleMeta(c *gin.Context) {
	c.JSON(http.StatusOK, dashboard.Meta())
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	signedOut := h.sessions.SignOut(userID)
	if h.users != nil {
		h.users.Forget(userID)
	}
	c.SetCookie(h.validator.CookieName(), "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"signedOut": signedOut})
}

func (h *httpHandler) respondError(c *gin.Context, err error) {
	status, code, message := h.classifyError(err)
	c.JSON(status, gin.H{"error": message, "code": code})
}

// classifyError maps an intent failure onto an HTTP status and a stable error code.
func (h *httpHandler) classifyError(err error) (int, string, string) {
	var serviceErr *dashboard.ServiceError
	switch {
	case errors.Is(err, board.ErrUnknownColumn):
		return http.StatusBadRequest, "board.unknown_column", err.Error()
	case errors.Is(err, notes.ErrUnknownCategory):
		return http.StatusBadRequest, "notes.unknown_category", err.Error()
	case errors.Is(err, errUnknownIntent):
		return http.StatusBadRequest, "intent.unknown", err.Error()
	case errors.Is(err, notes.ErrInvalidNoteID):
		return http.StatusBadRequest, "notes.invalid_note_id", err.Error()
	case errors.Is(err, dashboard.ErrSessionClosed), errors.Is(err, dashboard.ErrManagerClosed):
		return http.StatusServiceUnavailable, "dashboard.unavailable", err.Error()
	case errors.As(err, &serviceErr):
		h.logger.Error("dashboard intent failed", zap.String("code", serviceErr.Code()), zap.Error(err))
		return http.StatusInternalServerError, serviceErr.Code(), err.Error()
	default:
		h.logger.Error("dashboard intent failed", zap.Error(err))
		return http.StatusInternalServerError, "internal", "internal_error"
	}
}
