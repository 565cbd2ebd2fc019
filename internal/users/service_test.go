package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:users_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&User{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	service, err := NewService(ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return service, db
}

func mustUserID(t *testing.T, raw string) UserID {
	t.Helper()
	userID, err := NewUserID(raw)
	if err != nil {
		t.Fatalf("unexpected user id error: %v", err)
	}
	return userID
}

func TestRegisterAndGet(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	userID := mustUserID(t, "user-1")

	created, err := service.Register(ctx, RegisterParams{
		UserID:      userID,
		Username:    "  talent_scout  ",
		DisplayName: "Talent Scout",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.Username != "talent_scout" {
		t.Fatalf("expected trimmed username, got %q", created.Username)
	}
	if created.SubscriptionTier != "free" {
		t.Fatalf("expected free tier default, got %q", created.SubscriptionTier)
	}
	if created.CoinBalance != 0 {
		t.Fatalf("new accounts start with zero coins, got %d", created.CoinBalance)
	}

	loaded, err := service.Get(ctx, userID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded.UserID != "user-1" || loaded.DisplayName != "Talent Scout" {
		t.Fatalf("unexpected account: %+v", loaded)
	}
}

func TestRegisterRejectsDuplicateUsername(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	if _, err := service.Register(ctx, RegisterParams{UserID: mustUserID(t, "user-1"), Username: "taken"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := service.Register(ctx, RegisterParams{UserID: mustUserID(t, "user-2"), Username: "taken"})
	if !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestRegisterValidatesUsername(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	if _, err := service.Register(ctx, RegisterParams{UserID: mustUserID(t, "user-1"), Username: "   "}); !errors.Is(err, ErrInvalidUsername) {
		t.Fatalf("expected ErrInvalidUsername for blank name, got %v", err)
	}
	if _, err := service.Register(ctx, RegisterParams{UserID: mustUserID(t, "user-1"), Username: strings.Repeat("x", 65)}); !errors.Is(err, ErrInvalidUsername) {
		t.Fatalf("expected ErrInvalidUsername for oversized name, got %v", err)
	}
}

func TestGetMissingAccount(t *testing.T) {
	service, _ := newTestService(t)
	if _, err := service.Get(context.Background(), mustUserID(t, "ghost")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateProfilePatchesOnlyProvidedFields(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	userID := mustUserID(t, "user-1")

	if _, err := service.Register(ctx, RegisterParams{
		UserID:      userID,
		Username:    "original",
		DisplayName: "Original Name",
		AvatarURL:   "http://cdn.test/a.png",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	newName := "Updated Name"
	updated, err := service.UpdateProfile(ctx, userID, ProfilePatch{DisplayName: &newName})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.DisplayName != "Updated Name" {
		t.Fatalf("expected updated display name, got %q", updated.DisplayName)
	}
	if updated.AvatarURL != "http://cdn.test/a.png" {
		t.Fatalf("avatar must be untouched, got %q", updated.AvatarURL)
	}
}

func TestUserIDValidation(t *testing.T) {
	if _, err := NewUserID("   "); !errors.Is(err, ErrInvalidUserID) {
		t.Fatalf("expected ErrInvalidUserID for blank input, got %v", err)
	}
	if _, err := NewUserID(strings.Repeat("a", 191)); !errors.Is(err, ErrInvalidUserID) {
		t.Fatalf("expected ErrInvalidUserID for oversized input, got %v", err)
	}
	userID, err := NewUserID("  user-1  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if userID.String() != "user-1" {
		t.Fatalf("expected trimmed id, got %q", userID.String())
	}
}
