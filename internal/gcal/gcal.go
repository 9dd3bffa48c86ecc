package gcal

import (
	"context"
	"errors"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"barojab/internal/calgrid"
	"barojab/internal/config"
	appLog "barojab/internal/log"
)

// Client wraps the Google OAuth config and Calendar read API for one
// configured calendar. The client itself is stateless; per-user credentials
// live in the session and are passed into each call.
type Client struct {
	oauth      *oauth2.Config
	calendarID string
}

// NewClient builds a Client from the google_oauth config section.
func NewClient(cfg *config.GoogleOAuthConfig) *Client {
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       []string{calendar.CalendarReadonlyScope},
			Endpoint:     google.Endpoint,
		},
		calendarID: cfg.CalendarID,
	}
}

// AuthURL returns the Google consent-screen URL carrying the given state
// token. Offline access with a forced consent prompt, matching the original
// login flow.
func (c *Client) AuthURL(state string) string {
	return c.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// Exchange trades the callback authorization code for credentials.
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if code == "" {
		return nil, errors.New("gcal: empty authorization code")
	}
	return c.oauth.Exchange(ctx, code)
}

// MonthEventStarts lists event start boundaries for the displayed month.
//
// The query window is the half-open UTC interval [first of month, first of
// next month) so boundary events attribute consistently regardless of the
// viewer's local timezone. Each returned string is the provider's start
// value: a date-only form for all-day events, RFC 3339 otherwise. Events
// without a start are skipped.
func (c *Client) MonthEventStarts(ctx context.Context, tok *oauth2.Token, year, month int) ([]string, error) {
	if tok == nil {
		return nil, errors.New("gcal: no credentials")
	}

	svc, err := calendar.NewService(ctx, option.WithTokenSource(c.oauth.TokenSource(ctx, tok)))
	if err != nil {
		return nil, err
	}

	timeMin, timeMax := calgrid.MonthBounds(year, month)

	starts := make([]string, 0)
	pageToken := ""
	for {
		call := svc.Events.List(c.calendarID).
			TimeMin(timeMin.Format(time.RFC3339)).
			TimeMax(timeMax.Format(time.RFC3339)).
			SingleEvents(true).
			OrderBy("startTime").
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		res, err := call.Do()
		if err != nil {
			return nil, err
		}

		for _, ev := range res.Items {
			if ev.Start == nil {
				appLog.Warn("event without start boundary, skipping", "event_id", ev.Id)
				continue
			}
			s := ev.Start.Date
			if s == "" {
				s = ev.Start.DateTime
			}
			if s == "" {
				appLog.Warn("event start has neither date nor dateTime, skipping", "event_id", ev.Id)
				continue
			}
			starts = append(starts, s)
		}

		if res.NextPageToken == "" {
			break
		}
		pageToken = res.NextPageToken
	}

	appLog.Info("gcal month query completed",
		"calendar_id", c.calendarID,
		"year", year,
		"month", month,
		"event_count", len(starts),
	)
	return starts, nil
}
