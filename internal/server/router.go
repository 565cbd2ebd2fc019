package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/showoff-life/showoff-backend/internal/auth"
	"github.com/showoff-life/showoff-backend/internal/coin"
	"github.com/showoff-life/showoff-backend/internal/competition"
	"github.com/showoff-life/showoff-backend/internal/entry"
	"github.com/showoff-life/showoff-backend/internal/period"
	"github.com/showoff-life/showoff-backend/internal/selfie"
	"github.com/showoff-life/showoff-backend/internal/users"
	"github.com/showoff-life/showoff-backend/internal/vote"
)

const (
	userIDContextKey = "showoff_user_id"
	adminContextKey  = "showoff_is_admin"
)

var (
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingUsersService  = errors.New("users service dependency required")
	errMissingRegistry      = errors.New("competition service dependency required")
	errMissingEntries       = errors.New("entry service dependency required")
	errMissingVotes         = errors.New("vote service dependency required")
	errMissingSelfies       = errors.New("selfie service dependency required")
	errMissingCoins         = errors.New("coin service dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// TokenManager issues and validates the API's bearer tokens.
type TokenManager interface {
	IssueToken(userID string, admin bool) (string, int64, error)
	ValidateToken(token string) (auth.Claims, error)
}

// Dependencies wires the HTTP surface to the domain services.
type Dependencies struct {
	TokenManager TokenManager
	Users        *users.Service
	Competitions *competition.Service
	Entries      *entry.Service
	Votes        *vote.Service
	Selfies      *selfie.Service
	Coins        *coin.Service
	Clock        func() time.Time
	Logger       *zap.Logger
	// MediaDir, when set, is served under MediaBaseURL for locally stored blobs.
	MediaDir     string
	MediaBaseURL string
}

// NewHTTPHandler builds the gin router with public, authorized and admin
// route groups.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Users == nil {
		return nil, errMissingUsersService
	}
	if deps.Competitions == nil {
		return nil, errMissingRegistry
	}
	if deps.Entries == nil {
		return nil, errMissingEntries
	}
	if deps.Votes == nil {
		return nil, errMissingVotes
	}
	if deps.Selfies == nil {
		return nil, errMissingSelfies
	}
	if deps.Coins == nil {
		return nil, errMissingCoins
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:       deps.TokenManager,
		users:        deps.Users,
		competitions: deps.Competitions,
		entries:      deps.Entries,
		votes:        deps.Votes,
		selfies:      deps.Selfies,
		coins:        deps.Coins,
		clock:        clock,
		logger:       logger,
	}

	if deps.MediaDir != "" && deps.MediaBaseURL != "" {
		router.Static(deps.MediaBaseURL, deps.MediaDir)
	}

	router.POST("/auth/token", handler.handleAuthToken)
	router.GET("/competitions", handler.handleListCompetitions)
	router.GET("/competitions/current", handler.handleCurrentCompetition)
	router.GET("/entries", handler.handleListEntries)
	// View tracking is open to anonymous playback.
	router.POST("/entries/:id/view", handler.handleRecordEntryView)
	router.GET("/leaderboard", handler.handleLeaderboard)
	router.GET("/selfies", handler.handleListSelfies)
	router.GET("/selfies/leaderboard", handler.handleSelfieLeaderboard)

	authorized := router.Group("/")
	authorized.Use(handler.authorizeRequest)
	authorized.POST("/entries", handler.handleSubmitEntry)
	authorized.POST("/entries/:id/vote", handler.handleVoteEntry)
	authorized.POST("/selfies", handler.handleSubmitSelfie)
	authorized.POST("/selfies/:id/vote", handler.handleVoteSelfie)
	authorized.GET("/coins/balance", handler.handleCoinBalance)
	authorized.GET("/coins/transactions", handler.handleCoinHistory)
	authorized.POST("/coins/spin", handler.handleSpinWheel)
	authorized.POST("/coins/watch-ad", handler.handleWatchAd)

	admin := router.Group("/admin")
	admin.Use(handler.authorizeRequest, handler.requireAdmin)
	admin.POST("/competitions", handler.handleCreateCompetition)
	admin.PUT("/competitions/:id", handler.handleUpdateCompetition)
	admin.DELETE("/competitions/:id", handler.handleDeleteCompetition)
	admin.POST("/competitions/rollover", handler.handleRollover)
	admin.POST("/entries/:id/approve", handler.handleApproveEntry)
	admin.POST("/entries/:id/reject", handler.handleRejectEntry)
	admin.POST("/entries/:id/winner", handler.handleDeclareWinner)

	return router, nil
}

type httpHandler struct {
	tokens       TokenManager
	users        *users.Service
	competitions *competition.Service
	entries      *entry.Service
	votes        *vote.Service
	selfies      *selfie.Service
	coins        *coin.Service
	clock        func() time.Time
	logger       *zap.Logger
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, claims.UserID)
	c.Set(adminContextKey, claims.Admin)
	c.Next()
}

func (h *httpHandler) requireAdmin(c *gin.Context) {
	if !c.GetBool(adminContextKey) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.Next()
}

func (h *httpHandler) currentUser(c *gin.Context) (users.UserID, bool) {
	userID, err := users.NewUserID(c.GetString(userIDContextKey))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", false
	}
	return userID, true
}

// respondError maps domain sentinels onto HTTP statuses with a stable
// machine-readable code.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, entry.ErrDuplicateSubmission):
		c.JSON(http.StatusConflict, gin.H{"error": "duplicate_submission"})
	case errors.Is(err, selfie.ErrDuplicateSubmission):
		c.JSON(http.StatusConflict, gin.H{"error": "duplicate_submission"})
	case errors.Is(err, vote.ErrAlreadyVoted):
		c.JSON(http.StatusConflict, gin.H{"error": "already_voted"})
	case errors.Is(err, vote.ErrRateLimitExceeded):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate_limit_exceeded"})
	case errors.Is(err, vote.ErrTargetNotVotable):
		c.JSON(http.StatusConflict, gin.H{"error": "target_not_votable"})
	case errors.Is(err, coin.ErrInsufficientBalance):
		c.JSON(http.StatusConflict, gin.H{"error": "insufficient_balance"})
	case errors.Is(err, coin.ErrAlreadySpunToday):
		c.JSON(http.StatusConflict, gin.H{"error": "already_spun_today"})
	case errors.Is(err, coin.ErrAdLimitReached):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "ad_limit_reached"})
	case errors.Is(err, coin.ErrAdCooldown):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "ad_cooldown"})
	case errors.Is(err, entry.ErrWinnerConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "winner_conflict"})
	case errors.Is(err, entry.ErrInvalidPosition), errors.Is(err, entry.ErrNoPrizeForPosition):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_position"})
	case errors.Is(err, entry.ErrMissingVideo), errors.Is(err, selfie.ErrMissingImage):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
	case errors.Is(err, competition.ErrNoActiveCompetition):
		c.JSON(http.StatusNotFound, gin.H{"error": "no_active_competition"})
	case errors.Is(err, competition.ErrWindowOverlap):
		c.JSON(http.StatusConflict, gin.H{"error": "overlapping_window"})
	case errors.Is(err, competition.ErrInvalidWindow), errors.Is(err, competition.ErrMissingPeriodID):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_window"})
	case errors.Is(err, entry.ErrNotFound),
		errors.Is(err, selfie.ErrNotFound),
		errors.Is(err, competition.ErrNotFound),
		errors.Is(err, users.ErrNotFound),
		errors.Is(err, coin.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, users.ErrUsernameTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "username_taken"})
	case errors.Is(err, period.ErrInvalidType), errors.Is(err, users.ErrInvalidUsername), errors.Is(err, users.ErrInvalidUserID):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
	default:
		h.logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

func parsePositiveInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
