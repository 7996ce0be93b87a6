package scraper

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/listing-scraper/internal/listing"
)

const testBase = "https://example.test"

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]FetchResponse
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, req FetchRequest) (FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req.URL)
	resp, ok := f.pages[req.URL]
	if !ok {
		return FetchResponse{}, errors.New("connection refused")
	}
	return resp, nil
}

type fakeSubmitter struct {
	mu       sync.Mutex
	failFor  string
	received []listing.IngestRequest
}

func (s *fakeSubmitter) Submit(_ context.Context, req listing.IngestRequest) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if req.Title == s.failFor {
		return 0, errors.New("status 400")
	}
	s.received = append(s.received, req)
	return int64(len(s.received)), nil
}

func okResponse(body []byte) FetchResponse {
	return FetchResponse{StatusCode: http.StatusOK, Body: body}
}

func searchURL(t *testing.T, p Params) string {
	t.Helper()
	u, err := BuildSearchURL(testBase, p)
	require.NoError(t, err)
	return u
}

func newTestScraper(t *testing.T, cfg Config, f Fetcher, s Submitter, opts ...Option) *Scraper {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time {
		return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	})}, opts...)
	sc, err := New(cfg, f, s, zap.NewNop(), opts...)
	require.NoError(t, err)
	sc.newID = func() string { return "run-1" }
	return sc
}

func fixturePages(t *testing.T) map[string]FetchResponse {
	t.Helper()
	search := searchURL(t, testParams())
	pages := map[string]FetchResponse{
		search: okResponse(searchHTML(t, []any{
			sampleListing("1", "Alpha"),
			sampleListing("2", "Beta"),
		}, "/s/New-York/homes?cursor=2")),
		testBase + "/s/New-York/homes?cursor=2": okResponse(searchHTML(t, []any{
			sampleListing("3", "Gamma"),
			sampleListing("4", "Delta"),
		}, "")),
		testBase + "/rooms/1": okResponse(detailHTML(t, fullSections(), false)),
		testBase + "/rooms/3": okResponse([]byte("<html><body>captcha</body></html>")),
		testBase + "/rooms/4": okResponse(detailHTML(t, fullSections(), true)),
	}
	return pages
}

func TestScraperRun(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: fixturePages(t)}
	submitter := &fakeSubmitter{failFor: "Delta"}
	archive := newPageArchive()

	sc := newTestScraper(t, Config{BaseURL: testBase, MaxPages: 2}, fetcher, submitter, WithArchiver(archive))
	summary, err := sc.Run(context.Background(), testParams())
	require.NoError(t, err)

	require.Equal(t, Summary{
		RunID:         "run-1",
		SearchPages:   2,
		Results:       4,
		Details:       2,
		SkippedDetail: 2,
		Submitted:     1,
		FailedSubmit:  1,
	}, summary)

	require.Len(t, submitter.received, 1)
	got := submitter.received[0]
	require.Equal(t, "Alpha", got.Title)
	require.Equal(t, "Brooklyn", got.Location)
	require.Equal(t, "Sarah", got.Host.Name)
	require.Equal(t, "2025-03-01", *got.CheckIn)

	body, found := archive.page("run-1/detail-3.html")
	require.True(t, found)
	require.Contains(t, string(body), "captcha")
	require.Equal(t, 1, archive.count())

	require.Len(t, fetcher.calls, 6)
}

func TestScraperRunStopsAtMaxPages(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: fixturePages(t)}
	submitter := &fakeSubmitter{}

	sc := newTestScraper(t, Config{BaseURL: testBase}, fetcher, submitter)
	summary, err := sc.Run(context.Background(), testParams())
	require.NoError(t, err)
	require.Equal(t, 1, summary.SearchPages)
	require.Equal(t, 2, summary.Results)
	require.Equal(t, 1, summary.Submitted)
	require.Equal(t, 1, summary.SkippedDetail)
}

func TestScraperRunSearchFailures(t *testing.T) {
	t.Parallel()

	search := searchURL(t, testParams())
	testCases := []struct {
		name     string
		pages    map[string]FetchResponse
		archived int
	}{
		{name: "fetch error", pages: map[string]FetchResponse{}},
		{name: "server error", pages: map[string]FetchResponse{
			search: {StatusCode: http.StatusServiceUnavailable, Body: []byte("busy")},
		}},
		{name: "no embedded data", pages: map[string]FetchResponse{
			search: okResponse([]byte("<html></html>")),
		}, archived: 1},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			archive := newPageArchive()
			submitter := &fakeSubmitter{}
			sc := newTestScraper(t, Config{BaseURL: testBase}, &fakeFetcher{pages: tc.pages}, submitter, WithArchiver(archive))

			summary, err := sc.Run(context.Background(), testParams())
			require.NoError(t, err)
			require.Zero(t, summary.Results)
			require.Empty(t, submitter.received)
			require.Equal(t, tc.archived, archive.count())
		})
	}
}

func TestScraperRunDefaultsDates(t *testing.T) {
	t.Parallel()

	p := Params{Location: "New York", Guests: 2}
	normalized, err := p.Normalize(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	search := searchURL(t, normalized)

	fetcher := &fakeFetcher{pages: map[string]FetchResponse{
		search: okResponse(searchHTML(t, nil, "")),
	}}
	sc := newTestScraper(t, Config{BaseURL: testBase}, fetcher, &fakeSubmitter{})
	summary, err := sc.Run(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, 1, summary.SearchPages)
	require.Equal(t, []string{search}, fetcher.calls)
}

func TestScraperRunErrors(t *testing.T) {
	t.Parallel()

	sc := newTestScraper(t, Config{BaseURL: testBase}, &fakeFetcher{}, &fakeSubmitter{})

	_, err := sc.Run(context.Background(), Params{Guests: 2})
	require.ErrorContains(t, err, "location is required")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = sc.Run(ctx, testParams())
	require.ErrorIs(t, err, context.Canceled)
}

func TestScraperPauseHonorsContext(t *testing.T) {
	t.Parallel()

	sc := newTestScraper(t, Config{BaseURL: testBase, Delay: time.Hour}, &fakeFetcher{}, &fakeSubmitter{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	require.NoError(t, sc.pause(context.Background(), false))
	require.ErrorIs(t, sc.pause(ctx, true), context.DeadlineExceeded)
}

func TestNewValidatesDependencies(t *testing.T) {
	t.Parallel()

	_, err := New(Config{BaseURL: testBase}, nil, &fakeSubmitter{}, nil)
	require.Error(t, err)

	_, err = New(Config{BaseURL: testBase}, &fakeFetcher{}, nil, nil)
	require.Error(t, err)

	_, err = New(Config{BaseURL: "example.test"}, &fakeFetcher{}, &fakeSubmitter{}, nil)
	require.Error(t, err)

	sc, err := New(Config{BaseURL: testBase}, &fakeFetcher{}, &fakeSubmitter{}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, sc.cfg.MaxPages)
}

func TestScraperSkipsRecordsIngestWouldReject(t *testing.T) {
	t.Parallel()

	search := searchURL(t, testParams())
	fetcher := &fakeFetcher{pages: map[string]FetchResponse{
		search: okResponse(searchHTML(t, []any{sampleListing("5", "Hostless")}, "")),
		testBase + "/rooms/5": okResponse(
			[]byte(`<script id="data-deferred-state">{"niobeMinimalClientData": []}</script>`)),
	}}
	submitter := &fakeSubmitter{}
	archive := newPageArchive()

	sc := newTestScraper(t, Config{BaseURL: testBase}, fetcher, submitter, WithArchiver(archive))
	summary, err := sc.Run(context.Background(), testParams())
	require.NoError(t, err)
	require.Equal(t, 1, summary.SkippedDetail)
	require.Zero(t, summary.Details)
	require.Zero(t, summary.FailedSubmit)
	require.Empty(t, submitter.received)

	_, found := archive.page("run-1/detail-5.html")
	require.True(t, found)
}
