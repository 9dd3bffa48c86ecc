package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"barojab/internal/config"
	"barojab/internal/session"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) *httptest.Server {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.GoogleOAuth = &config.GoogleOAuthConfig{
		ClientID:     "cid",
		ClientSecret: "csec",
		RedirectURI:  "http://127.0.0.1:8080/oauth2/callback",
		StateSecret:  "test-state-secret",
	}
	cfg.Normalize()
	if mutate != nil {
		mutate(cfg)
	}

	s, err := NewServer(cfg, session.NewStore(time.Hour), true)
	require.NoError(t, err)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func getBody(t *testing.T, c *http.Client, u string) string {
	t.Helper()
	resp, err := c.Get(u)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func postForm(t *testing.T, c *http.Client, u string, form url.Values) {
	t.Helper()
	resp, err := c.PostForm(u, form)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil)
	body := getBody(t, newTestClient(t), srv.URL+"/health")
	require.Equal(t, "OK", body)
}

func TestIndex_RendersCalendar(t *testing.T) {
	srv := newTestServer(t, nil)
	c := newTestClient(t)

	body := getBody(t, c, srv.URL+"/")
	require.Contains(t, body, "캘린더")
	require.Contains(t, body, "<th>일</th>") // Sunday-first header

	now := time.Now().UTC()
	require.Contains(t, body, fmt.Sprintf("%d년 %d월", now.Year(), int(now.Month())))
	// Today starts selected: its label is bracketed.
	require.Contains(t, body, fmt.Sprintf("[%d]", now.Day()))
}

func TestNav_PrevThenNextReturns(t *testing.T) {
	srv := newTestServer(t, nil)
	c := newTestClient(t)

	// Establish the session and note the current month header.
	before := getBody(t, c, srv.URL+"/")
	now := time.Now().UTC()
	header := fmt.Sprintf("%d년 %d월", now.Year(), int(now.Month()))
	require.Contains(t, before, header)

	postForm(t, c, srv.URL+"/nav", url.Values{"dir": {"prev"}})
	prevBody := getBody(t, c, srv.URL+"/")
	require.NotContains(t, prevBody, header)

	postForm(t, c, srv.URL+"/nav", url.Values{"dir": {"next"}})
	require.Contains(t, getBody(t, c, srv.URL+"/"), header)
}

func TestNav_SelectionSurvivesNavigation(t *testing.T) {
	srv := newTestServer(t, nil)
	c := newTestClient(t)
	getBody(t, c, srv.URL+"/")

	// Select a fixed date, navigate away and back; the selection sticks.
	postForm(t, c, srv.URL+"/select", url.Values{"date": {"2024-03-05"}})
	postForm(t, c, srv.URL+"/nav", url.Values{"dir": {"next"}})
	postForm(t, c, srv.URL+"/nav", url.Values{"dir": {"prev"}})

	body := getBody(t, c, srv.URL+"/")
	require.Contains(t, body, "선택한 날짜: <strong>2024-03-05</strong>")
}

func TestSelect_MalformedDateIgnored(t *testing.T) {
	srv := newTestServer(t, nil)
	c := newTestClient(t)
	getBody(t, c, srv.URL+"/")

	postForm(t, c, srv.URL+"/select", url.Values{"date": {"not-a-date"}})
	body := getBody(t, c, srv.URL+"/")

	now := time.Now().UTC()
	require.Contains(t, body, "선택한 날짜: <strong>"+now.Format("2006-01-02")+"</strong>")
}

func TestLogin_RedirectsToGoogleWithState(t *testing.T) {
	srv := newTestServer(t, nil)
	c := newTestClient(t)

	resp, err := c.Get(srv.URL + "/login")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	loc, err := resp.Location()
	require.NoError(t, err)
	require.Contains(t, loc.Host, "accounts.google.com")

	q := loc.Query()
	require.Len(t, q.Get("state"), 64)
	require.Equal(t, "offline", q.Get("access_type"))
	require.Equal(t, "consent", q.Get("prompt"))
}

func TestLogin_DisabledWithoutConfig(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.Config) { cfg.GoogleOAuth = nil })
	c := newTestClient(t)

	resp, err := c.Get(srv.URL + "/login")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	require.Contains(t, getBody(t, c, srv.URL+"/"), "설정되어 있지 않습니다")
}

func TestOAuthCallback_RejectsBadState(t *testing.T) {
	srv := newTestServer(t, nil)
	c := newTestClient(t)
	getBody(t, c, srv.URL+"/")

	resp, err := c.Get(srv.URL + "/oauth2/callback?code=abc&state=forged")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	loc, err := resp.Location()
	require.NoError(t, err)
	require.Equal(t, "/", loc.Path) // callback params cleared by redirect

	body := getBody(t, c, srv.URL+"/")
	require.Contains(t, body, "OAuth state 검증에 실패했습니다")

	// The notice is one-shot.
	require.NotContains(t, getBody(t, c, srv.URL+"/"), "OAuth state 검증에 실패했습니다")
}

func TestOAuthCallback_MissingParamsJustRedirects(t *testing.T) {
	srv := newTestServer(t, nil)
	c := newTestClient(t)

	resp, err := c.Get(srv.URL + "/oauth2/callback")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestDraftEvent_RequiresLogin(t *testing.T) {
	srv := newTestServer(t, nil)
	c := newTestClient(t)
	getBody(t, c, srv.URL+"/")

	postForm(t, c, srv.URL+"/event", url.Values{
		"title": {"수학 학원"}, "place": {"OO학원"},
		"start_time": {"18:00"}, "end_time": {"19:00"},
	})
	require.Contains(t, getBody(t, c, srv.URL+"/"), "구글 로그인 후 사용 가능합니다")
}

func TestAPIMonth(t *testing.T) {
	srv := newTestServer(t, nil)
	c := newTestClient(t)

	resp, err := c.Get(srv.URL + "/api/month?year=2024&month=2")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got struct {
		Year      int      `json:"year"`
		Month     int      `json:"month"`
		WeekStart string   `json:"week_start"`
		Weeks     [][7]int `json:"weeks"`
		EventDays []int    `json:"event_days"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Equal(t, 2024, got.Year)
	require.Equal(t, 2, got.Month)
	require.Equal(t, "sunday", got.WeekStart)
	require.Len(t, got.Weeks, 5)
	require.Equal(t, [7]int{0, 0, 0, 0, 1, 2, 3}, got.Weeks[0])
	require.Empty(t, got.EventDays)
}

func TestAPIMonth_BadMonth(t *testing.T) {
	srv := newTestServer(t, nil)
	resp, err := newTestClient(t).Get(srv.URL + "/api/month?year=2024&month=13")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBasicAuth(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.BasicAuth = &config.BasicAuthConfig{Username: "user", Password: "pass"}
	})

	// /health stays open.
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Everything else requires credentials.
	resp, err = http.Get(srv.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/", nil)
	require.NoError(t, err)
	req.SetBasicAuth("user", "pass")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(b), "캘린더"))
}
