package coin

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"gorm.io/gorm"

	"github.com/showoff-life/showoff-backend/internal/period"
	"github.com/showoff-life/showoff-backend/internal/users"
)

const (
	adWatchCoins      = 10
	adCooldownEvery   = 3
	adCooldownMinutes = 15
)

// Per-tier daily ad watch limits.
var adDailyLimits = map[string]int{
	"free":  5,
	"basic": 10,
	"pro":   15,
	"vip":   50,
}

var (
	// ErrAdLimitReached indicates the daily rewarded-ad quota is exhausted.
	ErrAdLimitReached = errors.New("coin: daily ad watch limit reached")
	// ErrAdCooldown indicates the viewer is inside the post-burst cooldown window.
	ErrAdCooldown = errors.New("coin: ad watch cooldown active")
)

func defaultRand(n int) int {
	return rand.Intn(n)
}

// AdWatchResult reports the outcome of a rewarded ad view.
type AdWatchResult struct {
	Transaction     Transaction
	CoinsEarned     int64
	DailyAdsWatched int
	DailyLimit      int
	CooldownUntil   time.Time
}

// WatchAd grants the rewarded-ad coins. Daily quota depends on the viewer's
// subscription tier and a 15 minute cooldown starts after every third ad.
func (s *Service) WatchAd(ctx context.Context, userID users.UserID) (AdWatchResult, error) {
	now := s.clock().UTC()
	today := period.Day(now)

	var outcome AdWatchResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account users.User
		err := tx.Where("user_id = ?", userID.String()).Take(&account).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}

		watchedToday := account.DailyAdsWatched
		if account.LastAdWatchDay != today {
			watchedToday = 0
		}

		limit, ok := adDailyLimits[account.SubscriptionTier]
		if !ok {
			limit = adDailyLimits["free"]
		}
		if watchedToday >= limit {
			return ErrAdLimitReached
		}
		if account.AdCooldownUntil > now.Unix() {
			return ErrAdCooldown
		}

		watchedToday++
		cooldownUntil := account.AdCooldownUntil
		if watchedToday%adCooldownEvery == 0 {
			cooldownUntil = now.Add(adCooldownMinutes * time.Minute).Unix()
		}

		result := tx.Model(&users.User{}).
			Where("user_id = ? AND daily_ads_watched = ? AND last_ad_watch_day = ?",
				userID.String(), account.DailyAdsWatched, account.LastAdWatchDay).
			Updates(map[string]interface{}{
				"daily_ads_watched":   watchedToday,
				"last_ad_watch_day":   today,
				"ad_cooldown_until_s": cooldownUntil,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// Lost the race against a concurrent watch; treat as quota contention.
			return ErrAdCooldown
		}

		row, err := s.AwardTx(tx, userID, adWatchCoins, ReasonAdWatch, "Watched rewarded ad", RelatedRefs{})
		if err != nil {
			return err
		}

		outcome = AdWatchResult{
			Transaction:     row,
			CoinsEarned:     adWatchCoins,
			DailyAdsWatched: watchedToday,
			DailyLimit:      limit,
		}
		// Only a live cooldown is reported; a stale or unset stamp stays the
		// zero time so callers can gate on IsZero.
		if cooldownUntil > now.Unix() {
			outcome.CooldownUntil = time.Unix(cooldownUntil, 0).UTC()
		}
		return nil
	})
	if err != nil {
		return AdWatchResult{}, err
	}
	return outcome, nil
}
