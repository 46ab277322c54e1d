package users

import (
	"errors"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/dashboard/internal/auth"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrInvalidIdentity indicates the claims did not contain a usable identifier.
	ErrInvalidIdentity = errors.New("users: invalid identity")
	errMissingDatabase = errors.New("users: database connection required")
)

// ServiceConfig describes the dependencies required for user identity resolution.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service resolves session claims to the canonical user id a dashboard session is keyed by.
type Service struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
	cache  sync.Map
}

// NewService constructs the identity service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:     cfg.Database,
		now:    clock,
		logger: logger,
	}, nil
}

// ResolveCanonicalUserID returns the canonical user id for the session claims, recording the
// provider login on first sight.
func (s *Service) ResolveCanonicalUserID(claims auth.SessionClaims) (string, error) {
	provider, subject := identityKey(claims.UserID, claims.Subject)
	if subject == "" {
		provider, subject = identityKey("", claims.UserEmail)
	}
	if subject == "" {
		return "", ErrInvalidIdentity
	}

	cacheKey := provider + ":" + subject
	if cached, ok := s.cache.Load(cacheKey); ok {
		if userID, ok := cached.(string); ok {
			return userID, nil
		}
	}

	identity := Identity{
		Provider:    provider,
		Subject:     subject,
		UserID:      subject,
		Email:       claims.UserEmail,
		DisplayName: claims.UserDisplayName,
		LastSeenAt:  s.now().UTC(),
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}, {Name: "subject"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_email", "user_display_name", "last_seen_at", "updated_at"}),
	}).Create(&identity).Error
	if err != nil {
		return "", err
	}

	var stored Identity
	if err := s.db.Where("provider = ? AND subject = ?", provider, subject).First(&stored).Error; err != nil {
		return "", err
	}
	s.logger.Debug("resolved user identity",
		zap.String("provider", provider),
		zap.String("user_id", stored.UserID),
	)
	s.cache.Store(cacheKey, stored.UserID)
	return stored.UserID, nil
}

// Forget drops cached resolutions for the user so the next request re-reads the identity table.
func (s *Service) Forget(userID string) {
	s.cache.Range(func(key, value any) bool {
		if cached, ok := value.(string); ok && cached == userID {
			s.cache.Delete(key)
		}
		return true
	})
}
