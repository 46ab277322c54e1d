package users

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/dashboard/internal/auth"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var testDatabaseCounter atomic.Int64

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:users-%d?mode=memory&cache=shared", testDatabaseCounter.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Identity{}); err != nil {
		t.Fatalf("failed to migrate identity schema: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database: db,
		Clock: func() time.Time {
			return time.Unix(1, 0)
		},
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service, db
}

func TestResolveCanonicalUserIDStripsProviderPrefix(t *testing.T) {
	service, db := newTestService(t)

	claims := auth.SessionClaims{
		UserID:          "google:12345",
		UserEmail:       "user@example.com",
		UserDisplayName: "Example User",
	}
	userID, err := service.ResolveCanonicalUserID(claims)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if userID != "12345" {
		t.Fatalf("expected canonical user id without provider prefix, got %q", userID)
	}

	userID, err = service.ResolveCanonicalUserID(claims)
	if err != nil {
		t.Fatalf("second resolve failed: %v", err)
	}
	if userID != "12345" {
		t.Fatalf("expected canonical user id to remain stable, got %q", userID)
	}

	var count int64
	if err := db.Model(&Identity{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one identity row, got %d", count)
	}
}

func TestResolveCanonicalUserIDKeepsExistingMapping(t *testing.T) {
	service, db := newTestService(t)

	if err := db.Create(&Identity{Provider: "google", Subject: "777", UserID: "board-owner"}).Error; err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	userID, err := service.ResolveCanonicalUserID(auth.SessionClaims{UserID: "google:777", UserEmail: "new@example.com"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if userID != "board-owner" {
		t.Fatalf("expected existing mapping, got %q", userID)
	}

	var stored Identity
	if err := db.Where("provider = ? AND subject = ?", "google", "777").First(&stored).Error; err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if stored.Email != "new@example.com" {
		t.Fatalf("expected email refresh, got %q", stored.Email)
	}
}

func TestResolveCanonicalUserIDFallbacks(t *testing.T) {
	service, _ := newTestService(t)

	tests := []struct {
		name     string
		claims   auth.SessionClaims
		expected string
	}{
		{name: "bare-user-id", claims: auth.SessionClaims{UserID: "alice"}, expected: "alice"},
		{name: "email-only", claims: auth.SessionClaims{UserEmail: "bob@example.com"}, expected: "bob@example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			userID, err := service.ResolveCanonicalUserID(tt.claims)
			if err != nil {
				t.Fatalf("resolve failed: %v", err)
			}
			if userID != tt.expected {
				t.Fatalf("expected %q, got %q", tt.expected, userID)
			}
		})
	}

	if _, err := service.ResolveCanonicalUserID(auth.SessionClaims{}); err != ErrInvalidIdentity {
		t.Fatalf("expected ErrInvalidIdentity, got %v", err)
	}
}

func TestForgetDropsCachedResolution(t *testing.T) {
	service, db := newTestService(t)
	claims := auth.SessionClaims{UserID: "google:1"}
	if _, err := service.ResolveCanonicalUserID(claims); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if err := db.Model(&Identity{}).Where("subject = ?", "1").Update("user_id", "merged").Error; err != nil {
		t.Fatalf("update failed: %v", err)
	}
	service.Forget("1")
	userID, err := service.ResolveCanonicalUserID(claims)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if userID != "merged" {
		t.Fatalf("expected re-read mapping, got %q", userID)
	}
}
