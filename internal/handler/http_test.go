package handler

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stats-tracker/internal/clock"
	"github.com/stats-tracker/internal/config"
	"github.com/stats-tracker/internal/domain"
	"github.com/stats-tracker/internal/feed"
	"github.com/stats-tracker/internal/service"
	"github.com/stats-tracker/internal/session"
	"github.com/stats-tracker/internal/sqlite"
	"github.com/stats-tracker/internal/websocket"
)

var start = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

type testServer struct {
	router http.Handler
	clock  *clock.Stub
	store  *sqlite.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := sqlite.NewStore(&config.SQLiteConfig{Path: ":memory:"}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clk := clock.NewStub(start)
	cfg := config.DefaultConfig()
	svc := service.NewTrackerService(store, feed.New(cfg.Feed.Capacity), session.NewMemoryTracker(), clk, &cfg.Query, logger)

	hub := websocket.NewHub(logger)
	go hub.Run()
	t.Cleanup(hub.Stop)
	svc.SetHub(hub)

	h := NewHandler(svc, hub, cfg.Query.DashboardFeed, logger)
	return &testServer{router: h.Router(), clock: clk, store: store}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestReceiveStatsThenAccountDetails(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/bloxfruits/stats",
		`{"player_name":"Luffy","level":500,"beli":100000,"fighting_style":"Sharkman Karate"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	ack := decode[map[string]interface{}](t, rec)
	assert.Equal(t, "success", ack["status"])
	assert.Equal(t, "Luffy", ack["player"])
	assert.Equal(t, ingestMessage, ack["message"])
	assert.NotEmpty(t, ack["timestamp"])

	rec = srv.do(t, http.MethodGet, "/api/account-details/Luffy", "")
	require.Equal(t, http.StatusOK, rec.Code)

	detail := decode[map[string]interface{}](t, rec)
	assert.Equal(t, "Luffy", detail["name"])
	assert.EqualValues(t, 500, detail["level"])
	assert.EqualValues(t, 100000, detail["beli"])
	assert.Equal(t, "Sharkman Karate", detail["fighting_style"])
	assert.Equal(t, []interface{}{}, detail["fighting_styles"])
	assert.Equal(t, []interface{}{}, detail["items"])
}

func TestReceiveStatsValidation(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "missing name", body: `{"level":5}`},
		{name: "empty name", body: `{"player_name":""}`},
		{name: "malformed", body: `{"player_name":`},
		{name: "unknown field", body: `{"player_name":"Luffy","race":"Mink"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(t, http.MethodPost, "/api/bloxfruits/stats", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decode[ErrorResponse](t, rec).Error)
		})
	}

	rec := srv.do(t, http.MethodGet, "/api/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	export := decode[domain.Export](t, rec)
	assert.Empty(t, export.PlayerStats)
}

func TestReceiveStatsStorageFailure(t *testing.T) {
	srv := newTestServer(t)
	require.NoError(t, srv.store.Close())

	rec := srv.do(t, http.MethodPost, "/api/bloxfruits/stats", `{"player_name":"Luffy"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, domain.ErrInternalError.Error(), decode[ErrorResponse](t, rec).Error)

	rec = srv.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAccountDetailsNotFound(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/api/account-details/Nobody", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, decode[ErrorResponse](t, rec).Error)
}

func TestAccountDetailsEscapedName(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/bloxfruits/stats", `{"player_name":"Monkey D. Luffy","level":1}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/account-details/Monkey%20D.%20Luffy", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Monkey D. Luffy", decode[domain.AccountDetail](t, rec).Name)
}

func TestItemsAndStylesThroughAPI(t *testing.T) {
	srv := newTestServer(t)

	post := func(body string) {
		rec := srv.do(t, http.MethodPost, "/api/bloxfruits/stats", body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	post(`{"player_name":"Zoro","items":{"swords":["A"],"guns":[]},"fighting_styles":{"owned":["Fist"]}}`)
	post(`{"player_name":"Zoro","items":{"swords":["B"]},"fighting_styles":{"owned":["Karate"]}}`)

	rec := srv.do(t, http.MethodGet, "/api/account-details/Zoro", "")
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[domain.AccountDetail](t, rec)

	assert.Equal(t, []domain.HeldItem{{Name: "B", Type: "Sword"}}, detail.Items)
	assert.ElementsMatch(t, []domain.OwnedStyle{{Name: "Fist", Owned: true}, {Name: "Karate", Owned: true}}, detail.FightingStyles)
}

func TestRecentAccounts(t *testing.T) {
	srv := newTestServer(t)

	for i := 0; i < 15; i++ {
		rec := srv.do(t, http.MethodPost, "/api/bloxfruits/stats", fmt.Sprintf(`{"player_name":"p%02d","level":%d}`, i, i))
		require.Equal(t, http.StatusOK, rec.Code)
		srv.clock.Advance(time.Second)
	}

	rec := srv.do(t, http.MethodGet, "/api/recent-accounts?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[domain.RecentAccounts](t, rec)
	assert.Len(t, page.Accounts, 10)
	assert.Equal(t, 10, page.Showing)
	assert.EqualValues(t, 15, page.TotalCount)
	assert.Equal(t, "p14", page.Accounts[0].Name)

	rec = srv.do(t, http.MethodGet, "/api/recent-accounts?limit=abc", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, decode[domain.RecentAccounts](t, rec).Showing)

	rec = srv.do(t, http.MethodGet, "/api/recent-accounts?limit=50", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 15, decode[domain.RecentAccounts](t, rec).Showing)
}

func TestRecentUpdates(t *testing.T) {
	srv := newTestServer(t)

	for i := 0; i < 3; i++ {
		rec := srv.do(t, http.MethodPost, "/api/bloxfruits/stats", fmt.Sprintf(`{"player_name":"Nami","level":%d,"beli":1234567}`, i))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := srv.do(t, http.MethodGet, "/api/recent-updates?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Updates []domain.ActivityEntry `json:"updates"`
		Count   int                    `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "Level 1 - 1,234,567 Beli", body.Updates[0].Message)
	assert.Equal(t, "Level 2 - 1,234,567 Beli", body.Updates[1].Message)
}

func TestClearData(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/bloxfruits/stats", `{"player_name":"Brook","items":{"swords":["Soul Solid"]}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/clear", "")
	require.Equal(t, http.StatusOK, rec.Code)
	ack := decode[StatusResponse](t, rec)
	assert.Equal(t, "success", ack.Status)
	assert.Equal(t, "All data cleared", ack.Message)

	rec = srv.do(t, http.MethodGet, "/api/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	export := decode[domain.Export](t, rec)
	assert.Empty(t, export.PlayerStats)
	assert.Empty(t, export.PlayerItems)

	rec = srv.do(t, http.MethodGet, "/api/dashboard", "")
	require.Equal(t, http.StatusOK, rec.Code)
	dashboard := decode[domain.Dashboard](t, rec)
	assert.Empty(t, dashboard.RecentUpdates)
	assert.Empty(t, dashboard.ActivePlayers)
	assert.Zero(t, dashboard.Counts.TotalPlayers)

	rec = srv.do(t, http.MethodGet, "/api/ping", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, decode[domain.PingInfo](t, rec).ActivePlayers)
}

func TestPing(t *testing.T) {
	srv := newTestServer(t)

	for _, name := range []string{"Luffy", "Zoro", "Luffy"} {
		rec := srv.do(t, http.MethodPost, "/api/bloxfruits/stats", fmt.Sprintf(`{"player_name":%q}`, name))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := srv.do(t, http.MethodGet, "/api/ping", "")
	require.Equal(t, http.StatusOK, rec.Code)
	ping := decode[domain.PingInfo](t, rec)
	assert.Equal(t, "Blox Fruits Tracker Online!", ping.Message)
	assert.Equal(t, "2024-01-15 10:30:00", ping.Timestamp)
	assert.EqualValues(t, 2, ping.ActivePlayers)

	rec = srv.do(t, http.MethodGet, "/api/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var sessions struct {
		Sessions []domain.Session `json:"sessions"`
		Count    int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	assert.Equal(t, 2, sessions.Count)
}

func TestDashboardPage(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/bloxfruits/stats",
		`{"player_name":"Luffy","level":500,"beli":100000,"fragments":2500,"fighting_style":"Sharkman Karate"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	body := rec.Body.String()
	assert.Contains(t, body, "Luffy")
	assert.Contains(t, body, "100,000")
	assert.Contains(t, body, "2,500")
	assert.Contains(t, body, "Sharkman Karate")
	assert.Contains(t, body, "Level 500 - 100,000 Beli")
}

func TestDashboardPageEscapesNames(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/bloxfruits/stats", `{"player_name":"<script>alert(1)</script>"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "<script>alert(1)</script>")
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/bloxfruits/stats", `{"player_name":"Luffy"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tracker_snapshots_ingested_total")
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodOptions, "/api/bloxfruits/stats", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRosterWindowThroughDashboard(t *testing.T) {
	srv := newTestServer(t)
	rec := srv.do(t, http.MethodPost, "/api/bloxfruits/stats", `{"player_name":"Usopp"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	srv.clock.Advance(61 * time.Minute)
	rec = srv.do(t, http.MethodGet, "/api/dashboard", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[domain.Dashboard](t, rec).ActivePlayers)

	rec = srv.do(t, http.MethodPost, "/api/bloxfruits/stats", `{"player_name":"Usopp"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/dashboard", "")
	require.Equal(t, http.StatusOK, rec.Code)
	dashboard := decode[domain.Dashboard](t, rec)
	require.Len(t, dashboard.ActivePlayers, 1)
	assert.Equal(t, "Usopp", dashboard.ActivePlayers[0].Name)
	assert.EqualValues(t, 1, dashboard.Counts.ActiveNow)
}

func TestReceiveStatsIntegralFloats(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/bloxfruits/stats", `{"player_name":"Franky","level":500.0,"beli":1e3}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = srv.do(t, http.MethodGet, "/api/account-details/Franky", "")
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[domain.AccountDetail](t, rec)
	assert.EqualValues(t, 500, detail.Level)
	assert.EqualValues(t, 1000, detail.Beli)
}
