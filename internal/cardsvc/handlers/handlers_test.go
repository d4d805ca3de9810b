package handlers

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/suite"

	"github.com/avvvet/idcard-services/internal/cardsvc/auth"
	"github.com/avvvet/idcard-services/internal/cardsvc/models"
	"github.com/avvvet/idcard-services/internal/cardsvc/service"
	"github.com/avvvet/idcard-services/internal/cardsvc/store"
	"github.com/avvvet/idcard-services/internal/metrics"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 24)...)

type envelope struct {
	Message string          `json:"message"`
	Code    int             `json:"code"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type HandlerSuite struct {
	suite.Suite
	router http.Handler
	token  string
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	mem := store.NewMemoryStore()
	m := metrics.New()

	stats := service.NewStatsService(mem, nil, 0, service.Options{})
	cards := service.NewCardService(mem, service.Options{}, stats, m)

	authorizer := auth.NewJWTAuthorizer("test-secret", time.Hour)
	login := auth.NewAdminLogin("admin@example.com", "s3cret", authorizer)

	r := chi.NewRouter()
	r.Use(m.Middleware)
	NewHandler(cards, stats, login, authorizer, m).SetRoutes(r)
	s.router = r

	token, _, err := authorizer.Issue(auth.Identity{Subject: "admin@example.com", Role: auth.RoleAdmin})
	s.Require().NoError(err)
	s.token = token
}

func (s *HandlerSuite) do(method, path string, body interface{}, authed bool) (*httptest.ResponseRecorder, envelope) {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	return s.serve(req)
}

func (s *HandlerSuite) serve(req *http.Request) (*httptest.ResponseRecorder, envelope) {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func cardBody(cnic string) map[string]string {
	return map[string]string{
		"name":          "Ali Khan",
		"fathername":    "Ahmed Khan",
		"cnic":          cnic,
		"dob":           "1990-05-20",
		"address":       "House 1, Lahore",
		"gender":        "male",
		"religion":      "Islam",
		"maritalStatus": "single",
		"profession":    "Engineer",
		"province":      "Punjab",
		"city":          "Lahore",
		"photo":         "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes),
	}
}

func (s *HandlerSuite) createCard(cnic string) models.Card {
	rec, env := s.do(http.MethodPost, "/api/cards", cardBody(cnic), true)
	s.Require().Equal(http.StatusCreated, rec.Code, env.Error)

	var card models.Card
	s.Require().NoError(json.Unmarshal(env.Data, &card))
	return card
}

func (s *HandlerSuite) TestHealth() {
	rec, env := s.do(http.MethodGet, "/health", nil, false)
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("ok", env.Message)
}

func (s *HandlerSuite) TestLogin() {
	s.Run("valid credentials return a usable token", func() {
		rec, env := s.do(http.MethodPost, "/api/auth/login", map[string]string{
			"email":    "admin@example.com",
			"password": "s3cret",
		}, false)
		s.Require().Equal(http.StatusOK, rec.Code)

		var res auth.LoginResult
		s.Require().NoError(json.Unmarshal(env.Data, &res))
		s.NotEmpty(res.Token)
		s.Equal(auth.RoleAdmin, res.User.Role)

		s.token = res.Token
		s.createCard("3520212345671")
	})

	s.Run("wrong password is unauthorized", func() {
		rec, env := s.do(http.MethodPost, "/api/auth/login", map[string]string{
			"email":    "admin@example.com",
			"password": "nope",
		}, false)
		s.Equal(http.StatusUnauthorized, rec.Code)
		s.Equal("UNAUTHORIZED", env.Message)
	})

	s.Run("missing fields are a validation error", func() {
		rec, _ := s.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "admin@example.com"}, false)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *HandlerSuite) TestMutationsRequireToken() {
	rec, env := s.do(http.MethodPost, "/api/cards", cardBody("3520212345671"), false)
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Equal("UNAUTHORIZED", env.Message)

	req := httptest.NewRequest(http.MethodDelete, "/api/cards/64b7f0c2a1b2c3d4e5f60718", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec, _ = s.serve(req)
	s.Equal(http.StatusUnauthorized, rec.Code)

	// reads stay public
	rec, _ = s.do(http.MethodGet, "/api/cards", nil, false)
	s.Equal(http.StatusOK, rec.Code)
}

func (s *HandlerSuite) TestCardLifecycle() {
	card := s.createCard("35202-1234567-1")
	s.Equal("3520212345671", card.CNIC)
	id := card.ID.Hex()

	rec, env := s.do(http.MethodGet, "/api/cards/"+id, nil, false)
	s.Require().Equal(http.StatusOK, rec.Code)

	rec, env = s.do(http.MethodPost, "/api/cards", cardBody("3520212345671"), true)
	s.Equal(http.StatusConflict, rec.Code)
	s.Equal("CONFLICT", env.Message)

	rec, env = s.do(http.MethodPut, "/api/cards/"+id, map[string]string{"name": "Ali Raza"}, true)
	s.Require().Equal(http.StatusOK, rec.Code, env.Error)
	var updated models.Card
	s.Require().NoError(json.Unmarshal(env.Data, &updated))
	s.Equal("Ali Raza", updated.Name)
	s.Equal("Ahmed Khan", updated.FatherName)

	rec, _ = s.do(http.MethodDelete, "/api/cards/"+id, nil, true)
	s.Require().Equal(http.StatusOK, rec.Code)

	rec, env = s.do(http.MethodGet, "/api/cards/"+id, nil, false)
	s.Equal(http.StatusNotFound, rec.Code)
	s.Equal("NOT_FOUND", env.Message)
}

func (s *HandlerSuite) TestCreateValidation() {
	body := cardBody("123")
	rec, env := s.do(http.MethodPost, "/api/cards", body, true)
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("VALIDATION_ERROR", env.Message)
	s.Contains(env.Error, "cnic")

	req := httptest.NewRequest(http.MethodPost, "/api/cards", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)
	rec, _ = s.serve(req)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestMultipartCreate() {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range cardBody("4210112345672") {
		if k == "photo" {
			continue
		}
		s.Require().NoError(mw.WriteField(k, v))
	}

	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="photo"; filename="photo.png"`)
	hdr.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(hdr)
	s.Require().NoError(err)
	_, err = part.Write(pngBytes)
	s.Require().NoError(err)
	s.Require().NoError(mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/cards", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.token)
	rec, env := s.serve(req)
	s.Require().Equal(http.StatusCreated, rec.Code, env.Error)

	var card models.Card
	s.Require().NoError(json.Unmarshal(env.Data, &card))
	s.Equal("data:image/png;base64,"+base64.StdEncoding.EncodeToString(pngBytes), card.Photo)
}

func (s *HandlerSuite) TestListPagination() {
	for i := 0; i < 8; i++ {
		s.createCard("500000000000" + string(rune('0'+i)))
	}

	rec, env := s.do(http.MethodGet, "/api/cards?page=2&limit=6", nil, false)
	s.Require().Equal(http.StatusOK, rec.Code)

	var page models.CardPage
	s.Require().NoError(json.Unmarshal(env.Data, &page))
	s.Len(page.Cards, 2)
	s.Equal(2, page.Pagination.CurrentPage)
	s.Equal(2, page.Pagination.TotalPages)
	s.Equal(int64(8), page.Pagination.TotalItems)
	s.True(page.Pagination.HasPrevPage)
	s.False(page.Pagination.HasNextPage)
}

func (s *HandlerSuite) TestStats() {
	s.createCard("3520212345671")
	s.createCard("3520212345672")

	s.Run("summary", func() {
		rec, env := s.do(http.MethodGet, "/api/stats/summary", nil, false)
		s.Require().Equal(http.StatusOK, rec.Code)
		var summary models.Summary
		s.Require().NoError(json.Unmarshal(env.Data, &summary))
		s.Equal(int64(2), summary.TotalCards)
		s.Equal(int64(2), summary.TodayCards)
	})

	s.Run("distribution", func() {
		rec, env := s.do(http.MethodGet, "/api/stats/distribution/location", nil, false)
		s.Require().Equal(http.StatusOK, rec.Code)
		var groups []models.GroupCount
		s.Require().NoError(json.Unmarshal(env.Data, &groups))
		s.Equal([]models.GroupCount{{Key: "Punjab/Lahore", Province: "Punjab", City: "Lahore", Count: 2}}, groups)

		rec, _ = s.do(http.MethodGet, "/api/stats/distribution/height", nil, false)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("dense series has one bucket per day", func() {
		rec, env := s.do(http.MethodGet, "/api/stats/series?range=7&unit=days&dense=true", nil, false)
		s.Require().Equal(http.StatusOK, rec.Code)
		var buckets []models.ActivityBucket
		s.Require().NoError(json.Unmarshal(env.Data, &buckets))
		s.Require().Len(buckets, 7)
		s.Equal(int64(2), buckets[6].Created)
	})

	s.Run("dashboard", func() {
		rec, env := s.do(http.MethodGet, "/api/dashboard/stats?type=weeks&range=4", nil, false)
		s.Require().Equal(http.StatusOK, rec.Code)
		var d models.Dashboard
		s.Require().NoError(json.Unmarshal(env.Data, &d))
		s.Equal(int64(2), d.TotalCards)
		s.Equal(int64(2), d.TodayActivities.Created)
	})

	s.Run("bad parameters", func() {
		rec, _ := s.do(http.MethodGet, "/api/dashboard/stats?type=years", nil, false)
		s.Equal(http.StatusBadRequest, rec.Code)
		rec, _ = s.do(http.MethodGet, "/api/stats/series?range=-3", nil, false)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *HandlerSuite) TestMetricsEndpoint() {
	s.createCard("3520212345671")

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), `idcard_card_events_total{type="card-created"} 1`)
	s.Contains(rec.Body.String(), "idcard_http_requests_total")
}

func (s *HandlerSuite) TestRateLimited() {
	rec := httptest.NewRecorder()
	NewHandler(nil, nil, nil, nil, nil).RateLimited(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	s.Equal(http.StatusTooManyRequests, rec.Code)
	s.Equal("60", rec.Header().Get("Retry-After"))
}
