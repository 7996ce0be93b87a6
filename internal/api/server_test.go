package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/listing-scraper/internal/config"
	"github.com/JakeFAU/listing-scraper/internal/listing"
	"github.com/JakeFAU/listing-scraper/internal/storage/memory"
)

const ingestBody = `{
	"title": "Beachfront condo",
	"location": "Miami Beach, Florida",
	"price_per_night": 250,
	"rating": 4.8,
	"description": "Ocean views",
	"property_type": "Condo",
	"capacity": 4,
	"bedrooms": 2,
	"beds": 2,
	"baths": 2,
	"host": {"name": "Ana", "isSuperhost": true},
	"images": ["https://example.com/1.jpg", "https://example.com/2.jpg"],
	"amenities": ["Wifi", "Pool"]
}`

func testConfig() config.Config {
	return config.Config{
		Server:  config.ServerConfig{Port: 8000, RequestTimeoutSeconds: 5},
		DB:      config.DBConfig{Driver: config.DriverMemory},
		Logging: config.LoggingConfig{Development: true},
	}
}

func newTestServer() (*Server, *memory.ListingStore) {
	store := memory.NewListingStore()
	return NewServer(store, testConfig(), zap.NewNop()), store
}

func do(t *testing.T, h http.Handler, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_AddListing_Created(t *testing.T) {
	t.Parallel()

	server, store := newTestServer()
	rec := do(t, server.Handler(), http.MethodPost, "/api/add_listing/", []byte(ingestBody), nil)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp createdResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, int64(1), resp.ID)
	require.Equal(t, "Listing created successfully", resp.Message)

	got, err := store.Get(context.Background(), resp.ID)
	require.NoError(t, err)
	require.Equal(t, "Ana", got.Host.Name)
	require.Equal(t, []string{"https://example.com/1.jpg", "https://example.com/2.jpg"}, got.Images)
}

func TestServer_AddListing_MissingTitleCreatesNothing(t *testing.T) {
	t.Parallel()

	server, store := newTestServer()
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(ingestBody), &body))
	delete(body, "title")
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	rec := do(t, server.Handler(), http.MethodPost, "/api/add_listing", raw, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var fieldErrs map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fieldErrs))
	require.Equal(t, []string{"This field is required."}, fieldErrs["title"])

	all, err := store.List(context.Background(), listing.Filter{})
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestServer_AddListing_InvalidJSON(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer()
	rec := do(t, server.Handler(), http.MethodPost, "/api/add_listing", []byte("{invalid"), nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid JSON")
}

func TestServer_AddListing_StoreFailure(t *testing.T) {
	t.Parallel()

	server := NewServer(&failingRepo{err: errors.New("db down")}, testConfig(), zap.NewNop())
	rec := do(t, server.Handler(), http.MethodPost, "/api/add_listing", []byte(ingestBody), nil)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "db down")
}

func TestServer_AddListing_APIKey(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Auth = config.AuthConfig{Enabled: true, APIKey: "secret"}
	server := NewServer(memory.NewListingStore(), cfg, zap.NewNop())

	rec := do(t, server.Handler(), http.MethodPost, "/api/add_listing", []byte(ingestBody), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, server.Handler(), http.MethodPost, "/api/add_listing", []byte(ingestBody),
		map[string]string{"X-API-Key": "secret"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, server.Handler(), http.MethodGet, "/api/listings", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, "reads stay open")
}

func TestServer_ListListings_FiltersAndOrder(t *testing.T) {
	t.Parallel()

	server, store := newTestServer()
	ctx := context.Background()
	for _, req := range []listing.IngestRequest{
		{Title: "Cheap", Location: "Miami", PricePerNight: 80, Rating: 4.2, Capacity: 2, Host: listing.HostInput{Name: "A"}},
		{Title: "Mid", Location: "Miami Beach", PricePerNight: 150, Rating: 4.9, Capacity: 4, Host: listing.HostInput{Name: "B"}},
		{Title: "Pricey", Location: "Austin", PricePerNight: 400, Rating: 4.7, Capacity: 8, Host: listing.HostInput{Name: "A"}},
	} {
		_, err := store.Create(ctx, req)
		require.NoError(t, err)
	}

	testCases := []struct {
		name  string
		query string
		want  []string
	}{
		{"all by rating", "", []string{"Mid", "Pricey", "Cheap"}},
		{"price window", "?minPrice=100&maxPrice=200", []string{"Mid"}},
		{"guests", "?guests=4", []string{"Mid", "Pricey"}},
		{"location", "?location=miami", []string{"Mid", "Cheap"}},
		{"min rating", "?minRating=4.75", []string{"Mid"}},
		{"malformed ignored", "?guests=abc&minPrice=cheap", []string{"Mid", "Pricey", "Cheap"}},
		{"dates parsed not applied", "?checkIn=2025-01-01&checkOut=2025-01-05", []string{"Mid", "Pricey", "Cheap"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := do(t, server.Handler(), http.MethodGet, "/api/listings"+tc.query, nil, nil)
			require.Equal(t, http.StatusOK, rec.Code)
			var got []listing.Listing
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			titles := make([]string, 0, len(got))
			for _, l := range got {
				titles = append(titles, l.Title)
			}
			require.Equal(t, tc.want, titles)
		})
	}
}

func TestServer_ListListings_EmptyIsArray(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer()
	rec := do(t, server.Handler(), http.MethodGet, "/api/listings/", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, "[]", rec.Body.String())
}

func TestServer_GetListing(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer()
	rec := do(t, server.Handler(), http.MethodPost, "/api/add_listing", []byte(ingestBody), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, server.Handler(), http.MethodGet, "/api/listings/1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "Beachfront condo", got["title"])
	require.Equal(t, "USD", got["currency"])
	require.Equal(t, []any{"Wifi", "Pool"}, got["amenities"])
	host, ok := got["host"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, true, host["is_superhost"])

	rec = do(t, server.Handler(), http.MethodGet, "/api/listings/42", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, server.Handler(), http.MethodGet, "/api/listings/abc", nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_GetListingHandlerDirect(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer()
	req := withIDParam(httptest.NewRequest(http.MethodGet, "/api/listings/0", nil), "0")
	rec := httptest.NewRecorder()
	server.getListing(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Probes(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer()
	rec := do(t, server.Handler(), http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, server.Handler(), http.MethodGet, "/readyz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	down := NewServer(&failingRepo{err: errors.New("no db")}, testConfig(), zap.NewNop())
	rec = do(t, down.Handler(), http.MethodGet, "/readyz", nil, nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, server.Handler(), http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_RecoversPanics(t *testing.T) {
	t.Parallel()

	server := NewServer(&failingRepo{panicOnList: true}, testConfig(), zap.NewNop())
	rec := do(t, server.Handler(), http.MethodGet, "/api/listings", nil, nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer()
	rec := do(t, server.Handler(), http.MethodGet, "/healthz", nil, nil)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = do(t, server.Handler(), http.MethodGet, "/healthz", nil, map[string]string{"X-Request-ID": "abc"})
	require.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
}

type failingRepo struct {
	err         error
	panicOnList bool
}

func (f *failingRepo) Create(context.Context, listing.IngestRequest) (int64, error) {
	return 0, f.err
}

func (f *failingRepo) List(context.Context, listing.Filter) ([]listing.Listing, error) {
	if f.panicOnList {
		panic("boom")
	}
	return nil, f.err
}

func (f *failingRepo) Get(context.Context, int64) (listing.Listing, error) {
	return listing.Listing{}, f.err
}

func (f *failingRepo) Ping(context.Context) error { return f.err }

func (f *failingRepo) Close() {}

func withIDParam(r *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
