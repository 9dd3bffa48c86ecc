package ics

import (
	"context"
	"sort"

	"barojab/internal/config"
	appLog "barojab/internal/log"
)

// MarkerSource turns configured ICS subscriptions into the same
// month-event-start sequence the Google adapter produces, so both feed one
// marker-derivation path. Used when the user has not logged in with Google.
type MarkerSource struct {
	fetcher *Fetcher
	sources []Source
}

// NewMarkerSource builds a MarkerSource from the config ICS list. Sources
// without a URL are dropped; a missing ID falls back to the name or URL.
func NewMarkerSource(cacheDir string, confs []config.ICSConfig) *MarkerSource {
	sources := make([]Source, 0, len(confs))
	for _, c := range confs {
		if c.URL == "" {
			continue
		}
		id := c.ID
		if id == "" {
			if c.Name != "" {
				id = c.Name
			} else {
				id = c.URL
			}
		}
		sources = append(sources, Source{ID: id, URL: c.URL})
	}
	return &MarkerSource{
		fetcher: NewFetcher(cacheDir),
		sources: sources,
	}
}

// HasSources reports whether any usable ICS source is configured.
func (m *MarkerSource) HasSources() bool {
	return len(m.sources) > 0
}

// MonthEventStarts fetches, parses and expands all sources and returns the
// ordered start strings of occurrences inside the month's UTC window.
// Individual source failures are logged and skipped.
func (m *MarkerSource) MonthEventStarts(ctx context.Context, year, month int) ([]string, error) {
	results, errs := m.fetcher.FetchAll(ctx, m.sources)
	if len(errs) > 0 {
		appLog.Warn("ics month query: some sources failed", "failed", len(errs), "total", len(m.sources))
	}

	parsed := make([]ParsedEvent, 0)
	for _, res := range results {
		events, err := ParseICS(res.Source, res.Body)
		if err != nil {
			// Already logged by ParseICS; keep going with the other feeds.
			continue
		}
		parsed = append(parsed, events...)
	}

	expanded, err := MonthOccurrences(parsed, year, month)
	if err != nil {
		return nil, err
	}

	starts := make([]string, 0, len(expanded.Occurrences))
	for _, occ := range expanded.Occurrences {
		starts = append(starts, occ.StartString())
	}
	sort.Strings(starts) // providers return ordered sequences; match that

	return starts, nil
}
