package dashboard

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/dashboard/internal/docstore"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ManagerConfig configures the per-user session registry.
type ManagerConfig struct {
	Store        docstore.Store
	IDProvider   IDProvider
	Clock        func() time.Time
	Logger       *zap.Logger
	Tracer       trace.Tracer
	WriteTimeout time.Duration
	ViewBuffer   int
	// IdleTimeout is how long a session without view subscribers may go unused before
	// ReapIdle closes it. Zero selects the default; a negative value disables reaping.
	IdleTimeout time.Duration
}

const defaultIdleTimeout = 30 * time.Minute

// Manager keeps one Session per signed-in user. All sessions share one Writer, so Close can
// drain every write still in flight, and one ViewDispatcher, so view subscribers outlive the
// sessions that feed them.
type Manager struct {
	store  docstore.Store
	ids    IDProvider
	clock  func() time.Time
	logger *zap.Logger
	writer *Writer
	views  *ViewDispatcher
	idle   time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
	lastUsed map[string]time.Time
	closed   bool
}

// NewManager constructs a Manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opManagerNew, "missing_store", errMissingStore)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	ids := cfg.IDProvider
	if ids == nil {
		ids = NewTaskIDProvider()
	}
	idle := cfg.IdleTimeout
	if idle == 0 {
		idle = defaultIdleTimeout
	}
	return &Manager{
		store:    cfg.Store,
		ids:      ids,
		clock:    clock,
		logger:   logger,
		writer:   NewWriter(WriterConfig{Timeout: cfg.WriteTimeout, Tracer: cfg.Tracer, Logger: logger}),
		views:    NewViewDispatcher(cfg.ViewBuffer),
		idle:     idle,
		sessions: make(map[string]*Session),
		lastUsed: make(map[string]time.Time),
	}, nil
}

// Session returns the user's session, starting one when none is running.
func (m *Manager) Session(userID string) (*Session, error) {
	userID = strings.TrimSpace(userID)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrManagerClosed
	}
	m.lastUsed[userID] = m.clock()
	if existing, ok := m.sessions[userID]; ok {
		select {
		case <-existing.Done():
		default:
			return existing, nil
		}
	}
	session, err := NewSession(SessionConfig{
		Store:      m.store,
		UserID:     userID,
		Writer:     m.writer,
		Views:      m.views,
		IDProvider: m.ids,
		Clock:      m.clock,
		Logger:     m.logger,
	})
	if err != nil {
		return nil, err
	}
	m.sessions[userID] = session
	m.logger.Debug("session started", zap.String("user_id", userID))
	return session, nil
}

// SignOut closes the user's session, if any. It reports whether one was running.
func (m *Manager) SignOut(userID string) bool {
	userID = strings.TrimSpace(userID)
	m.mu.Lock()
	session, ok := m.sessions[userID]
	delete(m.sessions, userID)
	delete(m.lastUsed, userID)
	m.mu.Unlock()
	if !ok {
		return false
	}
	session.Close()
	m.logger.Debug("session closed", zap.String("user_id", userID))
	return true
}

// Subscribe streams the user's view updates, across session restarts. A session with a
// subscriber is never reaped; the idle period starts when its last subscriber leaves.
func (m *Manager) Subscribe(ctx context.Context, userID string) (<-chan ViewUpdate, func()) {
	userID = strings.TrimSpace(userID)
	updates, cleanup := m.views.Subscribe(ctx, userID)
	var once sync.Once
	left := make(chan struct{})
	release := func() {
		once.Do(func() {
			cleanup()
			m.touch(userID)
			close(left)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			release()
		case <-left:
		}
	}()
	return updates, release
}

func (m *Manager) touch(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[userID]; ok {
		m.lastUsed[userID] = m.clock()
	}
}

// ReapIdle closes every session that has no view subscriber and was last used at least the
// idle timeout ago. It returns the user ids whose sessions were closed.
func (m *Manager) ReapIdle() []string {
	if m.idle < 0 {
		return nil
	}
	now := m.clock()
	m.mu.Lock()
	var reaped []*Session
	var userIDs []string
	for userID, session := range m.sessions {
		if m.views.Subscribers(userID) > 0 {
			continue
		}
		if now.Sub(m.lastUsed[userID]) < m.idle {
			continue
		}
		delete(m.sessions, userID)
		delete(m.lastUsed, userID)
		reaped = append(reaped, session)
		userIDs = append(userIDs, userID)
	}
	m.mu.Unlock()

	for index, session := range reaped {
		session.Close()
		m.logger.Debug("idle session closed", zap.String("user_id", userIDs[index]))
	}
	return userIDs
}

// RunReaper calls ReapIdle periodically until ctx ends. It returns at once when reaping is
// disabled.
func (m *Manager) RunReaper(ctx context.Context) {
	if m.idle < 0 {
		return
	}
	interval := m.idle / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ReapIdle()
		}
	}
}

// Wait blocks until every write started so far has finished or ctx ends.
func (m *Manager) Wait(ctx context.Context) error {
	return m.writer.Wait(ctx)
}

// Close stops every session and waits for in-flight writes.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.lastUsed = make(map[string]time.Time)
	m.mu.Unlock()

	for _, session := range sessions {
		session.Close()
	}
	return m.writer.Wait(ctx)
}
