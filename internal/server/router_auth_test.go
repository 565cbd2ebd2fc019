package server

import (
	"net/http"
	"testing"
)

func TestAuthorizedRoutesRejectMissingToken(t *testing.T) {
	h := newHarness(t)

	recorder := h.do(t, http.MethodGet, "/coins/balance", "", nil, "")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}

	recorder = h.do(t, http.MethodGet, "/coins/balance", "not-a-jwt", nil, "")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}

func TestAdminRoutesRejectNonAdmins(t *testing.T) {
	h := newHarness(t)
	token := h.mintToken(t, "regular-user", false)

	recorder := h.doJSON(t, http.MethodPost, "/admin/competitions/rollover", token, nil)
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("unexpected status: %d %s", recorder.Code, recorder.Body.String())
	}
	if errorCode(t, recorder) != "forbidden" {
		t.Fatalf("unexpected error code: %s", errorCode(t, recorder))
	}
}

func TestTokenMintRegistersNewAccount(t *testing.T) {
	h := newHarness(t)
	token := h.mintToken(t, "fresh-user", false)

	recorder := h.do(t, http.MethodGet, "/coins/balance", token, nil, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d %s", recorder.Code, recorder.Body.String())
	}
}

func TestTokenMintRequiresUserID(t *testing.T) {
	h := newHarness(t)
	recorder := h.doJSON(t, http.MethodPost, "/auth/token", "", map[string]string{"username": "nameless"})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}
