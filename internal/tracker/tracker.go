// Package tracker reads live GPS fixes for bound trackers from a vehicle
// position feed. Fixes are fetched on demand; nothing here polls.
package tracker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"dispatch-dashboard/internal/model"
)

// Fix is the latest known position of one tracker.
type Fix struct {
	TrackerID string
	Position  model.Position
	Timestamp time.Time
}

// Source fetches the current fixes.
type Source interface {
	Fetch(ctx context.Context) ([]Fix, error)
}

// Index keys fixes by tracker id; a later fix for the same tracker wins.
func Index(fixes []Fix) map[string]Fix {
	out := make(map[string]Fix, len(fixes))
	for _, f := range fixes {
		out[f.TrackerID] = f
	}
	return out
}

type httpFeed struct {
	url        string
	httpClient *http.Client
	kind       string
}

func (f *httpFeed) get(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%s http status: %d", f.kind, resp.StatusCode)
	}
	return resp.Body, nil
}

func validFix(id string, lat, lon float64) bool {
	return id != "" && !(lat == 0 && lon == 0)
}
