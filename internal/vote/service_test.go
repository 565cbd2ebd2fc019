package vote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/showoff-life/showoff-backend/internal/coin"
	"github.com/showoff-life/showoff-backend/internal/entry"
	"github.com/showoff-life/showoff-backend/internal/ids"
	"github.com/showoff-life/showoff-backend/internal/period"
	"github.com/showoff-life/showoff-backend/internal/selfie"
	"github.com/showoff-life/showoff-backend/internal/users"
)

type fixture struct {
	db     *gorm.DB
	votes  *Service
	ledger *coin.Service
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:vote_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&Vote{}, &entry.Entry{}, &selfie.Selfie{}, &users.User{}, &coin.Transaction{}); err != nil {
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
	f.votes, err = NewService(ServiceConfig{
		Database:   db,
		Clock:      clock,
		IDProvider: ids.NewUUIDProvider(),
		Ledger:     f.ledger,
	})
	if err != nil {
		t.Fatalf("failed to build vote service: %v", err)
	}
	return f
}

func (f *fixture) seedUser(t *testing.T, id string, balance int64) users.UserID {
	t.Helper()
	if err := f.db.Create(&users.User{UserID: id, Username: id, CoinBalance: balance}).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	userID, err := users.NewUserID(id)
	if err != nil {
		t.Fatalf("unexpected user id error: %v", err)
	}
	return userID
}

func (f *fixture) seedEntry(t *testing.T, entryID, ownerID string) {
	t.Helper()
	record := entry.Entry{
		EntryID:         entryID,
		OwnerID:         ownerID,
		CompetitionType: period.TypeWeekly,
		PeriodID:        "2024-W02",
		Title:           "Seeded entry",
		Category:        entry.CategorySinging,
		VideoURL:        "http://cdn.test/showcase/" + entryID + "/video.mp4",
		Approved:        true,
		Active:          true,
		CreatedAt:       f.now,
	}
	if err := f.db.Create(&record).Error; err != nil {
		t.Fatalf("failed to seed entry: %v", err)
	}
}

func (f *fixture) seedSelfie(t *testing.T, selfieID, ownerID string) {
	t.Helper()
	record := selfie.Selfie{
		SelfieID:      selfieID,
		OwnerID:       ownerID,
		ChallengeDate: period.Day(f.now),
		Theme:         "Mirror Selfie",
		ImageURL:      "http://cdn.test/selfies/" + selfieID + ".jpg",
		Active:        true,
		CreatedAt:     f.now,
	}
	if err := f.db.Create(&record).Error; err != nil {
		t.Fatalf("failed to seed selfie: %v", err)
	}
}

func TestCastEntryVoteMovesCoinsBothWays(t *testing.T) {
	f := newFixture(t)
	voter := f.seedUser(t, "voter", 10)
	owner := f.seedUser(t, "owner", 0)
	f.seedEntry(t, "entry-1", "owner")
	ctx := context.Background()

	receipt, err := f.votes.CastEntryVote(ctx, voter, "entry-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if receipt.TargetVotes != 1 || receipt.CoinsCharged != 1 || receipt.CoinsAwarded != 1 {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}

	voterBalance, err := f.ledger.Balance(ctx, voter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if voterBalance != 9 {
		t.Fatalf("expected voter balance 9, got %d", voterBalance)
	}
	ownerBalance, err := f.ledger.Balance(ctx, owner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ownerBalance != 1 {
		t.Fatalf("expected owner balance 1, got %d", ownerBalance)
	}

	var record entry.Entry
	if err := f.db.Where("entry_id = ?", "entry-1").Take(&record).Error; err != nil {
		t.Fatalf("failed to load entry: %v", err)
	}
	if record.VotesCount != 1 || record.CoinsAccrued != 1 {
		t.Fatalf("unexpected entry counters: votes=%d coins=%d", record.VotesCount, record.CoinsAccrued)
	}

	count, err := f.votes.CountForTarget(ctx, KindEntry, "entry-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != record.VotesCount {
		t.Fatalf("ballot count %d does not match entry counter %d", count, record.VotesCount)
	}
}

func TestCastEntryVoteTwiceSameDayFails(t *testing.T) {
	f := newFixture(t)
	voter := f.seedUser(t, "voter", 10)
	f.seedUser(t, "owner", 0)
	f.seedEntry(t, "entry-1", "owner")
	ctx := context.Background()

	if _, err := f.votes.CastEntryVote(ctx, voter, "entry-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.votes.CastEntryVote(ctx, voter, "entry-1"); !errors.Is(err, ErrAlreadyVoted) {
		t.Fatalf("expected ErrAlreadyVoted, got %v", err)
	}

	// The rejected ballot must leave no coin side effects behind.
	balance, err := f.ledger.Balance(ctx, voter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if balance != 9 {
		t.Fatalf("expected voter balance 9 after one charge, got %d", balance)
	}

	// The next calendar day the same ballot is allowed again.
	f.now = f.now.Add(24 * time.Hour)
	if _, err := f.votes.CastEntryVote(ctx, voter, "entry-1"); err != nil {
		t.Fatalf("next-day vote should succeed: %v", err)
	}
}

func TestCastEntryVoteWithEmptyWalletFails(t *testing.T) {
	f := newFixture(t)
	voter := f.seedUser(t, "voter", 0)
	f.seedUser(t, "owner", 0)
	f.seedEntry(t, "entry-1", "owner")

	_, err := f.votes.CastEntryVote(context.Background(), voter, "entry-1")
	if !errors.Is(err, coin.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	// The whole transaction rolled back: no ballot, no counters.
	count, err := f.votes.CountForTarget(context.Background(), KindEntry, "entry-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected zero ballots, got %d", count)
	}
	var record entry.Entry
	if err := f.db.Where("entry_id = ?", "entry-1").Take(&record).Error; err != nil {
		t.Fatalf("failed to load entry: %v", err)
	}
	if record.VotesCount != 0 {
		t.Fatalf("expected zero votes on entry, got %d", record.VotesCount)
	}
}

func TestCastEntryVoteOnUnapprovedEntryFails(t *testing.T) {
	f := newFixture(t)
	voter := f.seedUser(t, "voter", 10)
	f.seedUser(t, "owner", 0)
	f.seedEntry(t, "entry-1", "owner")
	if err := f.db.Model(&entry.Entry{}).Where("entry_id = ?", "entry-1").
		Update("approved", false).Error; err != nil {
		t.Fatalf("failed to unapprove entry: %v", err)
	}

	_, err := f.votes.CastEntryVote(context.Background(), voter, "entry-1")
	if !errors.Is(err, ErrTargetNotVotable) {
		t.Fatalf("expected ErrTargetNotVotable, got %v", err)
	}
}

func TestCastSelfieVoteIsFreeAndCapped(t *testing.T) {
	f := newFixture(t)
	voter := f.seedUser(t, "voter", 0)
	ctx := context.Background()

	// One selfie per owner per day, so filling the cap takes five owners.
	owners := make([]users.UserID, 0, 5)
	for i := 0; i < 5; i++ {
		ownerID := fmt.Sprintf("owner-%d", i)
		owners = append(owners, f.seedUser(t, ownerID, 0))
		selfieID := fmt.Sprintf("selfie-%d", i)
		f.seedSelfie(t, selfieID, ownerID)
		receipt, err := f.votes.CastSelfieVote(ctx, voter, selfieID)
		if err != nil {
			t.Fatalf("vote %d should succeed: %v", i+1, err)
		}
		if receipt.CoinsCharged != 0 {
			t.Fatalf("selfie votes must be free, charged %d", receipt.CoinsCharged)
		}
	}

	// The voter never paid; each owner earned one coin per ballot.
	voterBalance, err := f.ledger.Balance(ctx, voter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if voterBalance != 0 {
		t.Fatalf("expected voter balance 0, got %d", voterBalance)
	}
	for i, owner := range owners {
		ownerBalance, err := f.ledger.Balance(ctx, owner)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ownerBalance != 1 {
			t.Fatalf("expected owner %d balance 1, got %d", i, ownerBalance)
		}
	}

	f.seedUser(t, "owner-5", 0)
	f.seedSelfie(t, "selfie-6", "owner-5")
	if _, err := f.votes.CastSelfieVote(ctx, voter, "selfie-6"); !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("expected ErrRateLimitExceeded on sixth vote, got %v", err)
	}

	// The cap resets with the calendar day.
	f.now = f.now.Add(24 * time.Hour)
	if _, err := f.votes.CastSelfieVote(ctx, voter, "selfie-6"); err != nil {
		t.Fatalf("next-day selfie vote should succeed: %v", err)
	}
}

func TestCastSelfieVoteTwiceSameDayFails(t *testing.T) {
	f := newFixture(t)
	voter := f.seedUser(t, "voter", 0)
	f.seedUser(t, "owner", 0)
	f.seedSelfie(t, "selfie-1", "owner")
	ctx := context.Background()

	if _, err := f.votes.CastSelfieVote(ctx, voter, "selfie-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.votes.CastSelfieVote(ctx, voter, "selfie-1"); !errors.Is(err, ErrAlreadyVoted) {
		t.Fatalf("expected ErrAlreadyVoted, got %v", err)
	}
}

func TestCastEntryVoteConcurrentVotersKeepCountersConsistent(t *testing.T) {
	f := newFixture(t)
	owner := f.seedUser(t, "owner", 0)
	f.seedEntry(t, "entry-1", "owner")
	ctx := context.Background()

	const voters = 8
	voterIDs := make([]users.UserID, 0, voters)
	for i := 0; i < voters; i++ {
		voterIDs = append(voterIDs, f.seedUser(t, fmt.Sprintf("voter-%d", i), 5))
	}

	var wg sync.WaitGroup
	voteErrs := make(chan error, voters)
	for _, voter := range voterIDs {
		wg.Add(1)
		go func(voter users.UserID) {
			defer wg.Done()
			_, err := f.votes.CastEntryVote(ctx, voter, "entry-1")
			voteErrs <- err
		}(voter)
	}
	wg.Wait()
	close(voteErrs)
	for err := range voteErrs {
		if err != nil {
			t.Fatalf("concurrent vote failed: %v", err)
		}
	}

	// Every ballot landed with its coin effects in one transaction, so the
	// denormalized counters match the ballot table and the owner's ledger.
	var record entry.Entry
	if err := f.db.Where("entry_id = ?", "entry-1").Take(&record).Error; err != nil {
		t.Fatalf("failed to load entry: %v", err)
	}
	if record.VotesCount != voters || record.CoinsAccrued != voters {
		t.Fatalf("unexpected entry counters: votes=%d coins=%d", record.VotesCount, record.CoinsAccrued)
	}
	ballots, err := f.votes.CountForTarget(ctx, KindEntry, "entry-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ballots != voters {
		t.Fatalf("expected %d ballots, got %d", voters, ballots)
	}
	ownerBalance, err := f.ledger.Balance(ctx, owner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ownerBalance != voters {
		t.Fatalf("expected owner balance %d, got %d", voters, ownerBalance)
	}
}

func TestCastVoteOnMissingTargetFails(t *testing.T) {
	f := newFixture(t)
	voter := f.seedUser(t, "voter", 10)

	if _, err := f.votes.CastEntryVote(context.Background(), voter, "missing"); !errors.Is(err, entry.ErrNotFound) {
		t.Fatalf("expected entry.ErrNotFound, got %v", err)
	}
	if _, err := f.votes.CastSelfieVote(context.Background(), voter, "missing"); !errors.Is(err, selfie.ErrNotFound) {
		t.Fatalf("expected selfie.ErrNotFound, got %v", err)
	}
}
