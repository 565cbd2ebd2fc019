package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/showoff-life/showoff-backend/internal/competition"
	"github.com/showoff-life/showoff-backend/internal/entry"
	"github.com/showoff-life/showoff-backend/internal/period"
	"github.com/showoff-life/showoff-backend/internal/selfie"
	"github.com/showoff-life/showoff-backend/internal/users"
)

type authTokenRequest struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

type authTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
	UserID      string `json:"user_id"`
}

// handleAuthToken mints a bearer token for the given account, registering it
// on first sight. External identity providers stay out of scope; this is the
// development token mint.
func (h *httpHandler) handleAuthToken(c *gin.Context) {
	var request authTokenRequest
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.UserID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	userID, err := users.NewUserID(request.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	account, err := h.users.Get(c.Request.Context(), userID)
	if errors.Is(err, users.ErrNotFound) {
		username := strings.TrimSpace(request.Username)
		if username == "" {
			username = userID.String()
		}
		account, err = h.users.Register(c.Request.Context(), users.RegisterParams{
			UserID:   userID,
			Username: username,
		})
	}
	if err != nil {
		h.respondError(c, err)
		return
	}

	token, expiresIn, err := h.tokens.IssueToken(account.UserID, account.IsAdmin)
	if err != nil {
		h.logger.Error("failed to issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, authTokenResponse{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
		UserID:      account.UserID,
	})
}

func (h *httpHandler) handleListCompetitions(c *gin.Context) {
	records, err := h.competitions.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"competitions": records})
}

func (h *httpHandler) handleCurrentCompetition(c *gin.Context) {
	competitionType, err := period.ParseType(c.DefaultQuery("type", string(period.TypeWeekly)))
	if err != nil {
		h.respondError(c, err)
		return
	}
	record, err := h.competitions.GetActive(c.Request.Context(), competitionType, h.clock())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"competition": record})
}

func (h *httpHandler) handleListEntries(c *gin.Context) {
	competitionType, err := period.ParseType(c.DefaultQuery("type", string(period.TypeWeekly)))
	if err != nil {
		h.respondError(c, err)
		return
	}
	periodID := strings.TrimSpace(c.Query("period"))
	if periodID == "" {
		periodID, err = h.competitions.ActivePeriod(c.Request.Context(), competitionType, h.clock())
		if err != nil {
			h.respondError(c, err)
			return
		}
	}
	filter := entry.FilterAll
	if c.Query("filter") == string(entry.FilterWinners) {
		filter = entry.FilterWinners
	}
	records, err := h.entries.ListForPeriod(c.Request.Context(), competitionType, periodID, filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"period_id": periodID, "entries": records})
}

func (h *httpHandler) handleLeaderboard(c *gin.Context) {
	competitionType, err := period.ParseType(c.DefaultQuery("type", string(period.TypeWeekly)))
	if err != nil {
		h.respondError(c, err)
		return
	}
	limit := parsePositiveInt(c.Query("limit"), 10)
	records, periodID, err := h.entries.Leaderboard(c.Request.Context(), competitionType, h.clock(), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"period_id": periodID, "entries": records})
}

func (h *httpHandler) handleListSelfies(c *gin.Context) {
	day := strings.TrimSpace(c.Query("date"))
	if day == "" {
		day = period.Day(h.clock())
	}
	records, err := h.selfies.ListForDay(c.Request.Context(), day, parsePositiveInt(c.Query("limit"), 20))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"challenge_date": day, "theme": selfie.ThemeFor(h.clock()), "selfies": records})
}

func (h *httpHandler) handleSelfieLeaderboard(c *gin.Context) {
	day := strings.TrimSpace(c.Query("date"))
	if day == "" {
		day = period.Day(h.clock())
	}
	records, err := h.selfies.Leaderboard(c.Request.Context(), day, parsePositiveInt(c.Query("limit"), 10))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"challenge_date": day, "selfies": records})
}

func (h *httpHandler) handleSubmitEntry(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}

	competitionType, err := period.ParseType(c.DefaultPostForm("type", string(period.TypeWeekly)))
	if err != nil {
		h.respondError(c, err)
		return
	}
	category, err := entry.ParseCategory(c.PostForm("category"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_category"})
		return
	}

	videoHeader, err := c.FormFile("video")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	videoFile, err := videoHeader.Open()
	if err != nil {
		h.respondError(c, err)
		return
	}
	defer videoFile.Close()
	video := &entry.Upload{
		Filename:    videoHeader.Filename,
		ContentType: videoHeader.Header.Get("Content-Type"),
		Content:     videoFile,
	}

	var thumbnail *entry.Upload
	if thumbHeader, thumbErr := c.FormFile("thumbnail"); thumbErr == nil {
		thumbFile, openErr := thumbHeader.Open()
		if openErr != nil {
			h.respondError(c, openErr)
			return
		}
		defer thumbFile.Close()
		thumbnail = &entry.Upload{
			Filename:    thumbHeader.Filename,
			ContentType: thumbHeader.Header.Get("Content-Type"),
			Content:     thumbFile,
		}
	}

	record, err := h.entries.Submit(c.Request.Context(), entry.SubmitParams{
		Owner:           userID,
		CompetitionType: competitionType,
		Title:           c.PostForm("title"),
		Description:     c.PostForm("description"),
		Category:        category,
		Video:           video,
		Thumbnail:       thumbnail,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"entry": record})
}

func (h *httpHandler) handleRecordEntryView(c *gin.Context) {
	if err := h.entries.IncrementViews(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleVoteEntry(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	receipt, err := h.votes.CastEntryVote(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"vote_id":       receipt.VoteID,
		"votes":         receipt.TargetVotes,
		"coins_charged": receipt.CoinsCharged,
		"coins_awarded": receipt.CoinsAwarded,
	})
}

func (h *httpHandler) handleSubmitSelfie(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	imageHeader, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	file, err := imageHeader.Open()
	if err != nil {
		h.respondError(c, err)
		return
	}
	defer file.Close()

	record, err := h.selfies.Submit(c.Request.Context(), userID, &selfie.Upload{
		Filename:    imageHeader.Filename,
		ContentType: imageHeader.Header.Get("Content-Type"),
		Content:     file,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"selfie": record})
}

func (h *httpHandler) handleVoteSelfie(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	receipt, err := h.votes.CastSelfieVote(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"vote_id":       receipt.VoteID,
		"votes":         receipt.TargetVotes,
		"coins_awarded": receipt.CoinsAwarded,
	})
}

func (h *httpHandler) handleCoinBalance(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	balance, err := h.coins.Balance(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance})
}

func (h *httpHandler) handleCoinHistory(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	limit := parsePositiveInt(c.Query("limit"), 20)
	offset := parsePositiveInt(c.Query("offset"), 0)
	records, err := h.coins.History(c.Request.Context(), userID, limit, offset)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": records})
}

func (h *httpHandler) handleSpinWheel(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	record, err := h.coins.SpinWheel(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"coins_won": record.Amount, "balance": record.BalanceAfter})
}

func (h *httpHandler) handleWatchAd(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	outcome, err := h.coins.WatchAd(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response := gin.H{
		"coins_earned":      outcome.CoinsEarned,
		"balance":           outcome.Transaction.BalanceAfter,
		"daily_ads_watched": outcome.DailyAdsWatched,
		"daily_limit":       outcome.DailyLimit,
	}
	if !outcome.CooldownUntil.IsZero() {
		response["cooldown_until"] = outcome.CooldownUntil.UTC().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, response)
}

type competitionRequest struct {
	Type        string             `json:"type"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	StartAt     time.Time          `json:"start_at"`
	EndAt       time.Time          `json:"end_at"`
	PeriodID    string             `json:"period_id"`
	Prizes      []competitionPrize `json:"prizes"`
}

type competitionPrize struct {
	Position int    `json:"position"`
	Coins    int64  `json:"coins"`
	Badge    string `json:"badge"`
}

func (h *httpHandler) handleCreateCompetition(c *gin.Context) {
	var request competitionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	competitionType, err := period.ParseType(request.Type)
	if err != nil {
		h.respondError(c, err)
		return
	}
	prizes := make([]competition.Prize, 0, len(request.Prizes))
	for _, prize := range request.Prizes {
		prizes = append(prizes, competition.Prize{Position: prize.Position, Coins: prize.Coins, Badge: prize.Badge})
	}
	record, err := h.competitions.Create(c.Request.Context(), competition.CreateParams{
		Type:        competitionType,
		Title:       request.Title,
		Description: request.Description,
		StartAt:     request.StartAt,
		EndAt:       request.EndAt,
		PeriodID:    request.PeriodID,
		Prizes:      prizes,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"competition": record})
}

type competitionUpdateRequest struct {
	Title       *string            `json:"title"`
	Description *string            `json:"description"`
	StartAt     *time.Time         `json:"start_at"`
	EndAt       *time.Time         `json:"end_at"`
	State       *string            `json:"state"`
	Prizes      []competitionPrize `json:"prizes"`
}

func (h *httpHandler) handleUpdateCompetition(c *gin.Context) {
	var request competitionUpdateRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	params := competition.UpdateParams{
		Title:       request.Title,
		Description: request.Description,
		StartAt:     request.StartAt,
		EndAt:       request.EndAt,
	}
	if request.State != nil {
		state, err := competition.ParseState(*request.State)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_state"})
			return
		}
		params.State = &state
	}
	for _, prize := range request.Prizes {
		params.Prizes = append(params.Prizes, competition.Prize{Position: prize.Position, Coins: prize.Coins, Badge: prize.Badge})
	}
	record, err := h.competitions.Update(c.Request.Context(), c.Param("id"), params)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"competition": record})
}

func (h *httpHandler) handleDeleteCompetition(c *gin.Context) {
	if err := h.competitions.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleRollover(c *gin.Context) {
	closed, err := h.competitions.DeactivateExpired(c.Request.Context(), h.clock())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": closed})
}

func (h *httpHandler) handleApproveEntry(c *gin.Context) {
	if err := h.entries.Approve(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleRejectEntry(c *gin.Context) {
	if err := h.entries.Reject(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type winnerRequest struct {
	Position int `json:"position"`
}

func (h *httpHandler) handleDeclareWinner(c *gin.Context) {
	var request winnerRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	record, err := h.entries.DeclareWinner(c.Request.Context(), c.Param("id"), request.Position, h.competitions, h.coins)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry": record})
}
