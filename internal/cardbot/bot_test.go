package cardbot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avvvet/idcard-services/internal/cardsvc/auth"
	"github.com/avvvet/idcard-services/internal/cardsvc/handlers"
	"github.com/avvvet/idcard-services/internal/cardsvc/models"
	"github.com/avvvet/idcard-services/internal/cardsvc/service"
	"github.com/avvvet/idcard-services/internal/cardsvc/store"
)

func newCardService(t *testing.T) *httptest.Server {
	t.Helper()
	mem := store.NewMemoryStore()
	stats := service.NewStatsService(mem, nil, 0, service.Options{})
	cards := service.NewCardService(mem, service.Options{}, stats)
	authorizer := auth.NewJWTAuthorizer("test-secret", time.Hour)
	login := auth.NewAdminLogin("admin@example.com", "s3cret", authorizer)

	r := chi.NewRouter()
	handlers.NewHandler(cards, stats, login, authorizer, nil).SetRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func totalCards(t *testing.T, base string) int64 {
	t.Helper()
	resp, err := http.Get(base + "/api/cards?limit=1")
	require.NoError(t, err)
	defer resp.Body.Close()

	body := struct {
		Data models.CardPage `json:"data"`
	}{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Data.Pagination.TotalItems
}

func TestRegisterGeneratesValidCards(t *testing.T) {
	srv := newCardService(t)
	bot := New(Config{BaseURL: srv.URL, Email: "admin@example.com", Password: "s3cret", Seed: 7})
	ctx := context.Background()

	require.NoError(t, bot.Login(ctx))
	for i := 0; i < 25; i++ {
		card, err := bot.Register(ctx)
		require.NoError(t, err)
		assert.Len(t, card.CNIC, 13)
	}
	assert.EqualValues(t, 25, totalCards(t, srv.URL))

	touched, err := bot.Touch(ctx)
	require.NoError(t, err)
	assert.True(t, touched)
}

func TestRegisterRequiresLogin(t *testing.T) {
	srv := newCardService(t)
	bot := New(Config{BaseURL: srv.URL, Seed: 1})

	_, err := bot.Register(context.Background())
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.Status)

	touched, err := bot.Touch(context.Background())
	assert.NoError(t, err)
	assert.False(t, touched)
}

func TestRun(t *testing.T) {
	srv := newCardService(t)

	t.Run("stops after count", func(t *testing.T) {
		bot := New(Config{
			BaseURL: srv.URL, Email: "admin@example.com", Password: "s3cret",
			Interval: 5 * time.Millisecond, Count: 6, Seed: 42,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		require.NoError(t, bot.Run(ctx))
		assert.EqualValues(t, len(bot.created), totalCards(t, srv.URL))
	})

	t.Run("bad credentials", func(t *testing.T) {
		bot := New(Config{BaseURL: srv.URL, Email: "admin@example.com", Password: "wrong", Interval: time.Millisecond})
		assert.Error(t, bot.Run(context.Background()))
	})
}
