package users

import (
	"strings"
	"time"
)

const defaultProvider = "default"

// Identity maps a provider login onto the canonical dashboard user id that owns boards and notes.
type Identity struct {
	Provider    string    `gorm:"column:provider;primaryKey;size:32;not null"`
	Subject     string    `gorm:"column:subject;primaryKey;size:190;not null"`
	UserID      string    `gorm:"column:user_id;size:190;not null;index"`
	Email       string    `gorm:"column:user_email;size:320"`
	DisplayName string    `gorm:"column:user_display_name;size:320"`
	LastSeenAt  time.Time `gorm:"column:last_seen_at"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing user identities.
func (Identity) TableName() string {
	return "user_identities"
}

// identityKey splits a "provider:subject" login into its parts. Logins without a provider
// prefix fall back to the default provider.
func identityKey(login string, fallbackSubject string) (string, string) {
	login = strings.TrimSpace(login)
	if provider, subject, found := strings.Cut(login, ":"); found {
		provider = strings.TrimSpace(provider)
		subject = strings.TrimSpace(subject)
		if provider != "" && subject != "" {
			return provider, subject
		}
	}
	if login != "" {
		return defaultProvider, login
	}
	return defaultProvider, strings.TrimSpace(fallbackSubject)
}
