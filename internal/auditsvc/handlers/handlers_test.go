package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avvvet/idcard-services/internal/auditsvc/store"
)

type fakeLister struct {
	entries   []*store.Entry
	err       error
	lastCard  string
	lastLimit int
}

func (f *fakeLister) ListByCard(_ context.Context, cardID string, limit int) ([]*store.Entry, error) {
	f.lastCard, f.lastLimit = cardID, limit
	return f.entries, f.err
}

func setup(t *testing.T, lister *fakeLister) (http.Handler, *jwtauth.JWTAuth) {
	t.Helper()
	tokenAuth := jwtauth.New("HS256", []byte("test-secret"), nil)
	r := chi.NewRouter()
	NewHandler(lister).SetRoutes(r, tokenAuth)
	return r, tokenAuth
}

func token(t *testing.T, ta *jwtauth.JWTAuth, role string) string {
	t.Helper()
	claims := map[string]interface{}{"sub": "admin@example.com", "role": role}
	jwtauth.SetExpiry(claims, time.Now().Add(time.Hour))
	_, s, err := ta.Encode(claims)
	require.NoError(t, err)
	return s
}

func get(r http.Handler, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCardEvents(t *testing.T) {
	at := time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)
	lister := &fakeLister{entries: []*store.Entry{
		{ID: 2, Type: "card-updated", CardID: "abc", At: at.Add(time.Hour), ReceivedAt: at.Add(time.Hour)},
		{ID: 1, Type: "card-created", CardID: "abc", At: at, ReceivedAt: at},
	}}
	r, ta := setup(t, lister)

	t.Run("requires a token", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, get(r, "/v1/events/abc", "").Code)
	})

	t.Run("requires the admin role", func(t *testing.T) {
		rec := get(r, "/v1/events/abc", token(t, ta, "viewer"))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("lists events newest first", func(t *testing.T) {
		rec := get(r, "/v1/events/abc?limit=10", token(t, ta, "admin"))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "abc", lister.lastCard)
		assert.Equal(t, 10, lister.lastLimit)

		var body struct {
			Data []store.Entry `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Len(t, body.Data, 2)
		assert.Equal(t, "card-updated", body.Data[0].Type)
	})

	t.Run("rejects a bad limit", func(t *testing.T) {
		rec := get(r, "/v1/events/abc?limit=0", token(t, ta, "admin"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("store failure is unavailable", func(t *testing.T) {
		lister.err = errors.New("connection refused")
		defer func() { lister.err = nil }()
		rec := get(r, "/v1/events/abc", token(t, ta, "admin"))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("health is public", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, get(r, "/v1/health", "").Code)
	})
}
