package selfie

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/showoff-life/showoff-backend/internal/coin"
	"github.com/showoff-life/showoff-backend/internal/ids"
	"github.com/showoff-life/showoff-backend/internal/media"
	"github.com/showoff-life/showoff-backend/internal/users"
)

type fixture struct {
	db      *gorm.DB
	selfies *Service
	ledger  *coin.Service
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:selfie_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&Selfie{}, &users.User{}, &coin.Transaction{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	f := &fixture{db: db, now: time.Date(2024, time.January, 10, 12, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }

	f.ledger, err = coin.NewService(coin.ServiceConfig{
		Database: db, Clock: clock, IDProvider: ids.NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to build ledger: %v", err)
	}
	store, err := media.NewLocalStore(t.TempDir(), "http://cdn.test")
	if err != nil {
		t.Fatalf("failed to build media store: %v", err)
	}
	f.selfies, err = NewService(ServiceConfig{
		Database:   db,
		Clock:      clock,
		IDProvider: ids.NewUUIDProvider(),
		Media:      store,
		Ledger:     f.ledger,
	})
	if err != nil {
		t.Fatalf("failed to build selfie service: %v", err)
	}
	return f
}

func (f *fixture) seedUser(t *testing.T, id string) users.UserID {
	t.Helper()
	if err := f.db.Create(&users.User{UserID: id, Username: id}).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	userID, err := users.NewUserID(id)
	if err != nil {
		t.Fatalf("unexpected user id error: %v", err)
	}
	return userID
}

func imageUpload() *Upload {
	return &Upload{Filename: "selfie.jpg", ContentType: "image/jpeg", Content: strings.NewReader("image-bytes")}
}

func TestSubmitGrantsParticipationCoins(t *testing.T) {
	f := newFixture(t)
	owner := f.seedUser(t, "user-1")
	ctx := context.Background()

	record, err := f.selfies.Submit(ctx, owner, imageUpload())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.ChallengeDate != "2024-01-10" {
		t.Fatalf("unexpected challenge date: %s", record.ChallengeDate)
	}
	if record.Theme != ThemeFor(f.now) {
		t.Fatalf("unexpected theme: %s", record.Theme)
	}
	if !strings.HasPrefix(record.ImageURL, "http://cdn.test/selfies/2024-01-10/") {
		t.Fatalf("unexpected image url: %s", record.ImageURL)
	}

	balance, err := f.ledger.Balance(ctx, owner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if balance != 5 {
		t.Fatalf("expected participation award of 5 coins, got balance %d", balance)
	}
}

func TestSubmitTwiceSameDayFails(t *testing.T) {
	f := newFixture(t)
	owner := f.seedUser(t, "user-1")
	ctx := context.Background()

	if _, err := f.selfies.Submit(ctx, owner, imageUpload()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.selfies.Submit(ctx, owner, imageUpload()); !errors.Is(err, ErrDuplicateSubmission) {
		t.Fatalf("expected ErrDuplicateSubmission, got %v", err)
	}

	// The rejected submission must not grant a second award.
	balance, err := f.ledger.Balance(ctx, owner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if balance != 5 {
		t.Fatalf("expected balance 5 after one award, got %d", balance)
	}

	// A new calendar day opens a new challenge.
	f.now = f.now.Add(24 * time.Hour)
	if _, err := f.selfies.Submit(ctx, owner, imageUpload()); err != nil {
		t.Fatalf("next-day submission should succeed: %v", err)
	}
}

func TestSubmitRequiresImage(t *testing.T) {
	f := newFixture(t)
	owner := f.seedUser(t, "user-1")
	if _, err := f.selfies.Submit(context.Background(), owner, nil); !errors.Is(err, ErrMissingImage) {
		t.Fatalf("expected ErrMissingImage, got %v", err)
	}
}

func TestListForDayReturnsOnlyThatDay(t *testing.T) {
	f := newFixture(t)
	first := f.seedUser(t, "user-1")
	second := f.seedUser(t, "user-2")
	ctx := context.Background()

	if _, err := f.selfies.Submit(ctx, first, imageUpload()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.now = f.now.Add(24 * time.Hour)
	if _, err := f.selfies.Submit(ctx, second, imageUpload()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	records, err := f.selfies.ListForDay(ctx, "2024-01-10", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 || records[0].OwnerID != "user-1" {
		t.Fatalf("unexpected listing: %+v", records)
	}
}

func TestLeaderboardOrdersByVotes(t *testing.T) {
	f := newFixture(t)
	first := f.seedUser(t, "user-1")
	second := f.seedUser(t, "user-2")
	ctx := context.Background()

	quiet, err := f.selfies.Submit(ctx, first, imageUpload())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	popular, err := f.selfies.Submit(ctx, second, imageUpload())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.db.Model(&Selfie{}).Where("selfie_id = ?", popular.SelfieID).
		Update("votes_count", 12).Error; err != nil {
		t.Fatalf("failed to seed votes: %v", err)
	}

	records, err := f.selfies.Leaderboard(ctx, "2024-01-10", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected two selfies, got %d", len(records))
	}
	if records[0].SelfieID != popular.SelfieID || records[1].SelfieID != quiet.SelfieID {
		t.Fatalf("unexpected ordering: %+v", records)
	}
}

func TestThemeRotatesByDay(t *testing.T) {
	day := time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)
	if ThemeFor(day) != ThemeFor(day.Add(3*time.Hour)) {
		t.Fatalf("theme must be stable within a day")
	}
	if ThemeFor(day) == ThemeFor(day.Add(24*time.Hour)) {
		t.Fatalf("theme should rotate to the next day's entry")
	}
}
