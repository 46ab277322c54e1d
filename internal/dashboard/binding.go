package dashboard

import (
	"strings"
	"sync"
)

// Binding follows a single identity signal. While no user is set nothing is reconciled; when
// the user changes the previous session is torn down and a new one subscribes.
type Binding struct {
	manager *Manager

	mu      sync.Mutex
	userID  string
	session *Session
}

// NewBinding binds sessions obtained from manager.
func NewBinding(manager *Manager) *Binding {
	return &Binding{manager: manager}
}

// SetUser switches the bound identity. An empty id signs the current user out.
func (b *Binding) SetUser(userID string) (*Session, error) {
	userID = strings.TrimSpace(userID)
	b.mu.Lock()
	defer b.mu.Unlock()

	if userID == b.userID && b.session != nil {
		select {
		case <-b.session.Done():
		default:
			return b.session, nil
		}
	}
	if b.userID != "" && b.userID != userID {
		b.manager.SignOut(b.userID)
	}
	b.userID = ""
	b.session = nil
	if userID == "" {
		return nil, nil
	}
	session, err := b.manager.Session(userID)
	if err != nil {
		return nil, err
	}
	b.userID = userID
	b.session = session
	return session, nil
}

// Current returns the bound session, if a user is set.
func (b *Binding) Current() (*Session, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.session, b.session != nil
}

// Close signs the bound user out.
func (b *Binding) Close() {
	_, _ = b.SetUser("")
}
