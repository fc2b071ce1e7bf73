package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/arnasbieliauskas/ntduomenys/listings"
)

// HTTPSource pulls candidate records from a paginated JSON feed exposed by
// the scraper collaborator. Each page is a JSON array of records; an empty
// array means the feed is exhausted.
type HTTPSource struct {
	client  *http.Client
	feedURL string
}

func NewHTTPSource(feedURL string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPSource{
		client:  &http.Client{Timeout: timeout},
		feedURL: feedURL,
	}
}

// Collect walks the feed page by page until it is exhausted or ctx is
// cancelled.
func (s *HTTPSource) Collect(ctx context.Context, emit func([]listings.Record) error) error {
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		records, err := s.fetchPage(ctx, page)
		if err != nil {
			return fmt.Errorf("fetch page %d: %w", page, err)
		}
		if len(records) == 0 {
			return nil
		}
		if err := emit(records); err != nil {
			return err
		}
	}
}

func (s *HTTPSource) fetchPage(ctx context.Context, page int) ([]listings.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.feedURL, nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("page", strconv.Itoa(page))
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned %s", resp.Status)
	}
	var records []listings.Record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode feed page: %w", err)
	}
	return records, nil
}
