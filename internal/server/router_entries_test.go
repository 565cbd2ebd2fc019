package server

import (
	"net/http"
	"testing"
)

func TestSubmitVoteAndWinnerFlow(t *testing.T) {
	h := newHarness(t)
	h.openWeekly(t)

	ownerToken := h.mintToken(t, "performer", false)
	voterToken := h.mintToken(t, "fan", false)
	adminToken := h.mintToken(t, "boss", true)
	h.grantCoins(t, "fan", 10)

	body, contentType := multipartEntry(t, "My big number")
	recorder := h.do(t, http.MethodPost, "/entries", ownerToken, body, contentType)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("submit failed: %d %s", recorder.Code, recorder.Body.String())
	}
	entryID := submittedEntryID(t, recorder)

	// Second submission in the same period conflicts.
	body, contentType = multipartEntry(t, "Another number")
	recorder = h.do(t, http.MethodPost, "/entries", ownerToken, body, contentType)
	if recorder.Code != http.StatusConflict {
		t.Fatalf("duplicate submit: expected 409, got %d %s", recorder.Code, recorder.Body.String())
	}
	if errorCode(t, recorder) != "duplicate_submission" {
		t.Fatalf("unexpected error code: %s", errorCode(t, recorder))
	}

	recorder = h.doJSON(t, http.MethodPost, "/entries/"+entryID+"/vote", voterToken, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("vote failed: %d %s", recorder.Code, recorder.Body.String())
	}

	recorder = h.doJSON(t, http.MethodPost, "/entries/"+entryID+"/vote", voterToken, nil)
	if recorder.Code != http.StatusConflict {
		t.Fatalf("second vote: expected 409, got %d", recorder.Code)
	}
	if errorCode(t, recorder) != "already_voted" {
		t.Fatalf("unexpected error code: %s", errorCode(t, recorder))
	}

	recorder = h.doJSON(t, http.MethodPost, "/admin/entries/"+entryID+"/winner", adminToken, map[string]int{"position": 1})
	if recorder.Code != http.StatusOK {
		t.Fatalf("winner declaration failed: %d %s", recorder.Code, recorder.Body.String())
	}

	// A conflicting position is rejected.
	recorder = h.doJSON(t, http.MethodPost, "/admin/entries/"+entryID+"/winner", adminToken, map[string]int{"position": 2})
	if recorder.Code != http.StatusConflict {
		t.Fatalf("conflicting winner: expected 409, got %d", recorder.Code)
	}
	if errorCode(t, recorder) != "winner_conflict" {
		t.Fatalf("unexpected error code: %s", errorCode(t, recorder))
	}

	// Prize landed in the owner's wallet along with the vote coin.
	recorder = h.do(t, http.MethodGet, "/coins/balance", ownerToken, nil, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("balance failed: %d", recorder.Code)
	}
	if got := recorder.Body.String(); got != `{"balance":1001}` {
		t.Fatalf("unexpected balance body: %s", got)
	}
}

func TestVoteWithEmptyWalletConflicts(t *testing.T) {
	h := newHarness(t)
	h.openWeekly(t)

	ownerToken := h.mintToken(t, "performer", false)
	voterToken := h.mintToken(t, "broke-fan", false)

	body, contentType := multipartEntry(t, "Unfunded vote target")
	recorder := h.do(t, http.MethodPost, "/entries", ownerToken, body, contentType)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("submit failed: %d %s", recorder.Code, recorder.Body.String())
	}
	entryID := submittedEntryID(t, recorder)

	recorder = h.doJSON(t, http.MethodPost, "/entries/"+entryID+"/vote", voterToken, nil)
	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", recorder.Code, recorder.Body.String())
	}
	if errorCode(t, recorder) != "insufficient_balance" {
		t.Fatalf("unexpected error code: %s", errorCode(t, recorder))
	}
}

func TestSubmitWithoutCompetitionReturns404(t *testing.T) {
	h := newHarness(t)
	token := h.mintToken(t, "performer", false)

	body, contentType := multipartEntry(t, "Nowhere to enter")
	recorder := h.do(t, http.MethodPost, "/entries", token, body, contentType)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", recorder.Code, recorder.Body.String())
	}
	if errorCode(t, recorder) != "no_active_competition" {
		t.Fatalf("unexpected error code: %s", errorCode(t, recorder))
	}
}

func TestRecordEntryViewNeedsNoToken(t *testing.T) {
	h := newHarness(t)
	h.openWeekly(t)
	ownerToken := h.mintToken(t, "performer", false)

	body, contentType := multipartEntry(t, "Viral clip")
	recorder := h.do(t, http.MethodPost, "/entries", ownerToken, body, contentType)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("submit failed: %d %s", recorder.Code, recorder.Body.String())
	}
	entryID := submittedEntryID(t, recorder)

	recorder = h.do(t, http.MethodPost, "/entries/"+entryID+"/view", "", nil, "")
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("view tracking failed: %d %s", recorder.Code, recorder.Body.String())
	}

	recorder = h.do(t, http.MethodPost, "/entries/missing/view", "", nil, "")
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown entry, got %d", recorder.Code)
	}
}

func TestSelfieSubmitAndVote(t *testing.T) {
	h := newHarness(t)
	ownerToken := h.mintToken(t, "selfie-owner", false)
	voterToken := h.mintToken(t, "selfie-fan", false)

	body, contentType := multipartSelfie(t)
	recorder := h.do(t, http.MethodPost, "/selfies", ownerToken, body, contentType)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("selfie submit failed: %d %s", recorder.Code, recorder.Body.String())
	}
	var response struct {
		Selfie struct {
			SelfieID string `json:"SelfieID"`
		} `json:"selfie"`
	}
	decodeJSONBody(t, recorder, &response)

	recorder = h.doJSON(t, http.MethodPost, "/selfies/"+response.Selfie.SelfieID+"/vote", voterToken, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("selfie vote failed: %d %s", recorder.Code, recorder.Body.String())
	}

	// Same selfie, same day: conflict.
	recorder = h.doJSON(t, http.MethodPost, "/selfies/"+response.Selfie.SelfieID+"/vote", voterToken, nil)
	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", recorder.Code)
	}
}

func TestSpinWheelOncePerDay(t *testing.T) {
	h := newHarness(t)
	token := h.mintToken(t, "spinner", false)

	recorder := h.doJSON(t, http.MethodPost, "/coins/spin", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("spin failed: %d %s", recorder.Code, recorder.Body.String())
	}
	recorder = h.doJSON(t, http.MethodPost, "/coins/spin", token, nil)
	if recorder.Code != http.StatusConflict {
		t.Fatalf("second spin: expected 409, got %d", recorder.Code)
	}
	if errorCode(t, recorder) != "already_spun_today" {
		t.Fatalf("unexpected error code: %s", errorCode(t, recorder))
	}
}
