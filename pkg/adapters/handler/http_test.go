package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wadjakorntonsri/nexlink/pkg/adapters/cache/memory"
	"github.com/wadjakorntonsri/nexlink/pkg/adapters/repository/sqlite"
	"github.com/wadjakorntonsri/nexlink/pkg/config"
	"github.com/wadjakorntonsri/nexlink/pkg/core/services"
	"go.uber.org/zap"
)

const ownerEmail = "ann@example.com"

type testApp struct {
	router   http.Handler
	repo     *sqlite.SQLiteRepository
	recorder *services.ClickRecorder
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	logger := zap.NewNop()

	repo, err := sqlite.NewSQLiteRepository("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	cache := memory.NewCache(time.Hour)
	links := services.NewLinkService(repo, logger)
	recorder := services.NewClickRecorder(repo, 2, 16, logger)
	t.Cleanup(func() { _ = recorder.Close(context.Background()) })

	cfg := &config.Config{
		JWTSecret: testSecret,
		BaseURL:   "https://sho.rt",
		AppEnv:    "test",
	}
	router := NewRouter(cfg, Services{
		Links:     links,
		Resolver:  services.NewResolver(repo, cache, time.Hour, logger),
		Tracker:   recorder,
		Analytics: services.NewAnalyticsService(links, repo, logger),
		QR:        services.NewQRService(links),
		Cache:     cache,
	}, logger)

	return &testApp{router: router, repo: repo, recorder: recorder}
}

func (a *testApp) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func (a *testApp) shorten(t *testing.T, originalURL, alias, owner string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{"original_url": {originalURL}}
	if alias != "" {
		form.Set("custom_code", alias)
	}
	req := httptest.NewRequest(http.MethodPost, "/shorten", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if owner != "" {
		req.AddCookie(ownerCookie(t, owner))
	}
	return a.do(req)
}

func ownerCookie(t *testing.T, owner string) *http.Cookie {
	t.Helper()
	token, err := IssueToken([]byte(testSecret), owner, time.Now().Add(time.Hour))
	require.NoError(t, err)
	return &http.Cookie{Name: authCookie, Value: token}
}

func decodeLink(t *testing.T, rr *httptest.ResponseRecorder) LinkResponse {
	t.Helper()
	var resp LinkResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotNil(t, resp.Link)
	return resp
}

func errorMessage(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body["error"]
}

func TestShortenAnonymous(t *testing.T) {
	app := newTestApp(t)

	rr := app.shorten(t, "https://example.com/some/page", "", "")
	require.Equal(t, http.StatusCreated, rr.Code)

	link := decodeLink(t, rr)
	assert.Equal(t, "1", link.ShortCode)
	assert.Equal(t, "https://sho.rt/1", link.ShortURL)
	assert.Empty(t, link.Owner)

	var recent *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == recentCookie {
			recent = c
		}
	}
	require.NotNil(t, recent)
	assert.Equal(t, "1", recent.Value)
}

func TestShortenJSONBody(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/shorten",
		strings.NewReader(`{"original_url":"https://example.com","custom_code":"promo"}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(ownerCookie(t, ownerEmail))

	rr := app.do(req)
	require.Equal(t, http.StatusCreated, rr.Code)
	link := decodeLink(t, rr)
	assert.Equal(t, "promo", link.ShortCode)
	assert.Equal(t, ownerEmail, link.Owner)
	assert.Empty(t, rr.Result().Cookies(), "signed-in callers do not get the recent cookie")

	req = httptest.NewRequest(http.MethodPost, "/shorten", strings.NewReader(`{`))
	req.Header.Set("Content-Type", "application/json")
	rr = app.do(req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestShortenErrors(t *testing.T) {
	app := newTestApp(t)
	require.Equal(t, http.StatusCreated, app.shorten(t, "https://example.com", "taken", ownerEmail).Code)

	tests := []struct {
		name       string
		url        string
		alias      string
		owner      string
		wantStatus int
		wantMsg    string
	}{
		{"missing url", "", "", "", http.StatusBadRequest, msgURLRequired},
		{"invalid url", "not a url", "", "", http.StatusBadRequest, msgInvalidURL},
		{"anonymous alias", "https://example.com", "promo", "", http.StatusUnauthorized, msgAliasOwner},
		{"bad alias", "https://example.com", "my alias!", ownerEmail, http.StatusBadRequest, msgAliasFormat},
		{"alias taken", "https://example.com", "taken", "bob@example.com", http.StatusConflict, msgAliasTaken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := app.shorten(t, tt.url, tt.alias, tt.owner)
			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantMsg, errorMessage(t, rr))
		})
	}
}

func TestShortenErrorForPartialPage(t *testing.T) {
	app := newTestApp(t)

	form := url.Values{"original_url": {"not a url"}}
	req := httptest.NewRequest(http.MethodPost, "/shorten", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("HX-Request", "true")

	rr := app.do(req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, msgInvalidURL, errorMessage(t, rr))
}

func TestPartialPageHeaderOnlyAffectsShorten(t *testing.T) {
	app := newTestApp(t)
	link := decodeLink(t, app.shorten(t, "https://example.com", "", ownerEmail))

	req := httptest.NewRequest(http.MethodGet, "/zzzzz", nil)
	req.Header.Set("HX-Request", "true")
	rr := app.do(req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, msgLinkNotFound, errorMessage(t, rr))

	req = httptest.NewRequest(http.MethodGet, "/analytics/"+link.ShortCode, nil)
	req.Header.Set("HX-Request", "true")
	req.AddCookie(ownerCookie(t, "bob@example.com"))
	assert.Equal(t, http.StatusNotFound, app.do(req).Code)

	req = httptest.NewRequest(http.MethodGet, "/qr/"+link.ShortCode, nil)
	req.Header.Set("HX-Request", "true")
	req.AddCookie(ownerCookie(t, "bob@example.com"))
	assert.Equal(t, http.StatusNotFound, app.do(req).Code)
}

func TestRedirect(t *testing.T) {
	app := newTestApp(t)
	link := decodeLink(t, app.shorten(t, "https://example.com/landing", "", ""))

	req := httptest.NewRequest(http.MethodGet, "/"+link.ShortCode, nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	req.Header.Set("User-Agent", "test-agent")
	rr := app.do(req)

	assert.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "https://example.com/landing", rr.Header().Get("Location"))
	assert.Equal(t, "no-cache, no-store, must-revalidate", rr.Header().Get("Cache-Control"))
	assert.Equal(t, "no-cache", rr.Header().Get("Pragma"))
	assert.Equal(t, "0", rr.Header().Get("Expires"))

	// Untracked visit.
	rr = app.do(httptest.NewRequest(http.MethodGet, "/"+link.ShortCode+"?no_stat=1", nil))
	assert.Equal(t, http.StatusFound, rr.Code)

	require.NoError(t, app.recorder.Close(context.Background()))

	stored, err := app.repo.GetByShortCode(context.Background(), link.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.ClicksCount)
	n, err := app.repo.CountByLink(context.Background(), stored.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRedirectNotFound(t *testing.T) {
	app := newTestApp(t)

	for _, path := range []string{"/zzzz", "/bad!code", "/abcdefghijklmnop"} {
		rr := app.do(httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rr.Code, path)
	}
}

func TestStoreFailureIsServiceUnavailable(t *testing.T) {
	app := newTestApp(t)
	require.NoError(t, app.repo.Close())

	rr := app.do(httptest.NewRequest(http.MethodGet, "/abc", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, msgTryAgain, errorMessage(t, rr))

	rr = app.shorten(t, "https://example.com", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, msgTryAgain, errorMessage(t, rr))
}

func TestAnalytics(t *testing.T) {
	app := newTestApp(t)
	link := decodeLink(t, app.shorten(t, "https://example.com", "chart", ownerEmail))

	for i := 0; i < 3; i++ {
		app.do(httptest.NewRequest(http.MethodGet, "/chart", nil))
	}
	require.NoError(t, app.recorder.Close(context.Background()))

	req := httptest.NewRequest(http.MethodGet, "/analytics/"+link.ShortCode, nil)
	req.AddCookie(ownerCookie(t, ownerEmail))
	rr := app.do(req)
	require.Equal(t, http.StatusOK, rr.Code)

	var stats struct {
		Labels      []string `json:"labels"`
		Values      []int64  `json:"values"`
		TotalClicks int64    `json:"total_clicks"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	assert.Equal(t, int64(3), stats.TotalClicks)
	require.Len(t, stats.Values, 1)
	assert.Equal(t, int64(3), stats.Values[0])
	assert.Equal(t, []string{time.Now().UTC().Format(services.DayLabelLayout)}, stats.Labels)

	// Someone else's link looks like a missing one.
	req = httptest.NewRequest(http.MethodGet, "/analytics/"+link.ShortCode, nil)
	req.AddCookie(ownerCookie(t, "bob@example.com"))
	assert.Equal(t, http.StatusNotFound, app.do(req).Code)

	// Anonymous browsers are sent to sign in.
	rr = app.do(httptest.NewRequest(http.MethodGet, "/analytics/"+link.ShortCode, nil))
	assert.Equal(t, http.StatusTemporaryRedirect, rr.Code)
}

func TestQR(t *testing.T) {
	app := newTestApp(t)
	link := decodeLink(t, app.shorten(t, "https://example.com", "", ownerEmail))

	req := httptest.NewRequest(http.MethodGet, "/qr/"+link.ShortCode, nil)
	req.AddCookie(ownerCookie(t, ownerEmail))
	rr := app.do(req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="qr_`+link.ShortCode+`.png"`, rr.Header().Get("Content-Disposition"))
	assert.Equal(t, "\x89PNG", rr.Body.String()[:4])

	req = httptest.NewRequest(http.MethodGet, "/qr/"+link.ShortCode+"?format=base64", nil)
	req.AddCookie(ownerCookie(t, ownerEmail))
	rr = app.do(req)
	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.True(t, strings.HasPrefix(body["qr_image"], "data:image/png;base64,"))
	assert.Equal(t, "https://sho.rt/"+link.ShortCode, body["full_url"])
}

func TestListLinks(t *testing.T) {
	app := newTestApp(t)
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusCreated, app.shorten(t, "https://example.com", "", ownerEmail).Code)
	}
	require.Equal(t, http.StatusCreated, app.shorten(t, "https://example.com", "", "").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/links?page=1&limit=2", nil)
	req.AddCookie(ownerCookie(t, ownerEmail))
	rr := app.do(req)
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Data  []LinkResponse `json:"data"`
		Total int64          `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, int64(3), body.Total)
	assert.Len(t, body.Data, 2)

	rr = app.do(httptest.NewRequest(http.MethodGet, "/api/v1/links", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRecentFromCookie(t *testing.T) {
	app := newTestApp(t)

	var last *httptest.ResponseRecorder
	var cookie *http.Cookie
	for i := 0; i < 7; i++ {
		form := url.Values{"original_url": {"https://example.com"}}
		req := httptest.NewRequest(http.MethodPost, "/shorten", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if cookie != nil {
			req.AddCookie(cookie)
		}
		last = app.do(req)
		require.Equal(t, http.StatusCreated, last.Code)
		for _, c := range last.Result().Cookies() {
			if c.Name == recentCookie {
				cookie = c
			}
		}
	}
	require.NotNil(t, cookie)
	assert.Equal(t, "7.6.5.4.3", cookie.Value)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/recent", nil)
	req.AddCookie(cookie)
	rr := app.do(req)
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Data []LinkResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Data, services.RecentLimit)
	assert.Equal(t, "7", body.Data[0].ShortCode)
	assert.Equal(t, "3", body.Data[4].ShortCode)
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)

	rr := app.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"message":"ok","cache":"up"}`, rr.Body.String())
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	assert.Equal(t, "192.0.2.1", clientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.2")
	assert.Equal(t, "198.51.100.2", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientIP(req))
}
