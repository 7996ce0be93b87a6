// Package postgres provides the Postgres-backed listing repository.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/listing-scraper/internal/listing"
)

//go:embed schema.sql
var schemaSQL string

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of *pgxpool.Pool used by the store; pgxmock satisfies it.
type pool interface {
	Begin(context.Context) (pgx.Tx, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Ping(context.Context) error
	Close()
}

// ListingStore persists listings, hosts, images, and amenities in Postgres.
type ListingStore struct {
	pool pool
}

// NewListingStore connects a pool using the provided config.
func NewListingStore(ctx context.Context, cfg Config) (*ListingStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ListingStore{pool: p}, nil
}

// NewListingStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewListingStoreWithPool(p pool) (*ListingStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &ListingStore{pool: p}, nil
}

// EnsureSchema creates the tables and indexes if they do not exist yet.
func (s *ListingStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *ListingStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *ListingStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const (
	selectHostSQL = `SELECT id FROM hosts WHERE name = $1`

	insertHostSQL = `
INSERT INTO hosts (name, is_superhost, profile_image, response_rate, response_time, join_date)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id`

	insertListingSQL = `
INSERT INTO listings (
	title, location, address, latitude, longitude,
	price_per_night, currency, total_price, rating, num_reviews,
	description, property_type, capacity, bedrooms, beds, baths,
	check_in, check_out, host_id
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19
)
RETURNING id`

	insertImageSQL = `INSERT INTO listing_images (listing_id, image_url, position) VALUES ($1, $2, $3)`

	upsertAmenitySQL = `
INSERT INTO amenities (name) VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id`

	linkAmenitySQL = `
INSERT INTO listing_amenities (listing_id, amenity_id) VALUES ($1, $2)
ON CONFLICT (listing_id, amenity_id) DO NOTHING`
)

// Create runs the ingest sequence in a single transaction: resolve the host,
// insert the listing, its images, and its amenity links.
func (s *ListingStore) Create(ctx context.Context, req listing.IngestRequest) (id int64, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin ingest tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	hostID, err := resolveHost(ctx, tx, req.Host)
	if err != nil {
		return 0, err
	}

	currency := req.Currency
	if currency == "" {
		currency = listing.DefaultCurrency
	}
	err = tx.QueryRow(ctx, insertListingSQL,
		req.Title, req.Location, req.Address, req.Latitude, req.Longitude,
		req.PricePerNight, currency, req.TotalPrice, req.Rating, req.NumReviews,
		req.Description, req.PropertyType, req.Capacity, req.Bedrooms, req.Beds, req.Baths,
		req.CheckIn, req.CheckOut, hostID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert listing: %w", err)
	}

	for i, u := range req.Images {
		if _, err = tx.Exec(ctx, insertImageSQL, id, u, i); err != nil {
			return 0, fmt.Errorf("insert image %d: %w", i, err)
		}
	}

	for _, name := range listing.UniqueAmenities(req.Amenities) {
		var amenityID int64
		if err = tx.QueryRow(ctx, upsertAmenitySQL, name).Scan(&amenityID); err != nil {
			return 0, fmt.Errorf("upsert amenity %q: %w", name, err)
		}
		if _, err = tx.Exec(ctx, linkAmenitySQL, id, amenityID); err != nil {
			return 0, fmt.Errorf("link amenity %q: %w", name, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit ingest tx: %w", err)
	}
	return id, nil
}

// resolveHost returns the id of the host with the given name, creating it
// with the supplied attributes when absent. Existing hosts are not updated.
func resolveHost(ctx context.Context, tx pgx.Tx, h listing.HostInput) (int64, error) {
	var hostID int64
	err := tx.QueryRow(ctx, selectHostSQL, h.Name).Scan(&hostID)
	switch {
	case err == nil:
		return hostID, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return 0, fmt.Errorf("select host: %w", err)
	}
	err = tx.QueryRow(ctx, insertHostSQL,
		h.Name, h.IsSuperhost, h.ProfileImage, h.ResponseRate, h.ResponseTime, h.JoinDate,
	).Scan(&hostID)
	if err != nil {
		return 0, fmt.Errorf("insert host: %w", err)
	}
	return hostID, nil
}

const selectListingsSQL = `
SELECT
	l.id, l.title, l.location, l.address, l.latitude, l.longitude,
	l.price_per_night::float8, l.currency, l.total_price::float8, l.rating, l.num_reviews,
	l.description, l.property_type, l.capacity, l.bedrooms, l.beds, l.baths,
	l.check_in, l.check_out,
	h.id, h.name, h.is_superhost, h.profile_image, h.response_rate, h.response_time, h.join_date
FROM listings l
JOIN hosts h ON h.id = l.host_id`

// List returns listings matching the filter ordered by rating descending.
func (s *ListingStore) List(ctx context.Context, filter listing.Filter) ([]listing.Listing, error) {
	where, args := buildWhere(filter)
	return s.queryListings(ctx, where, args)
}

// Get loads a single listing or returns listing.ErrNotFound.
func (s *ListingStore) Get(ctx context.Context, id int64) (listing.Listing, error) {
	out, err := s.queryListings(ctx, "WHERE l.id = $1", []any{id})
	if err != nil {
		return listing.Listing{}, err
	}
	if len(out) == 0 {
		return listing.Listing{}, listing.ErrNotFound
	}
	return out[0], nil
}

func (s *ListingStore) queryListings(ctx context.Context, where string, args []any) ([]listing.Listing, error) {
	query := selectListingsSQL
	if where != "" {
		query += "\n" + where
	}
	query += "\nORDER BY l.rating DESC, l.id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}
	defer rows.Close()

	out := make([]listing.Listing, 0)
	index := make(map[int64]int)
	for rows.Next() {
		var l listing.Listing
		if err := rows.Scan(
			&l.ID, &l.Title, &l.Location, &l.Address, &l.Latitude, &l.Longitude,
			&l.PricePerNight, &l.Currency, &l.TotalPrice, &l.Rating, &l.NumReviews,
			&l.Description, &l.PropertyType, &l.Capacity, &l.Bedrooms, &l.Beds, &l.Baths,
			&l.CheckIn, &l.CheckOut,
			&l.Host.ID, &l.Host.Name, &l.Host.IsSuperhost, &l.Host.ProfileImage,
			&l.Host.ResponseRate, &l.Host.ResponseTime, &l.Host.JoinDate,
		); err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		l.Images = []string{}
		l.Amenities = []string{}
		index[l.ID] = len(out)
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate listings: %w", err)
	}
	if len(out) == 0 {
		return out, nil
	}

	ids := make([]int64, len(out))
	for i, l := range out {
		ids[i] = l.ID
	}
	if err := s.attach(ctx, selectImagesSQL, ids, func(i int, v string) {
		out[i].Images = append(out[i].Images, v)
	}, index); err != nil {
		return nil, fmt.Errorf("load images: %w", err)
	}
	if err := s.attach(ctx, selectAmenitiesSQL, ids, func(i int, v string) {
		out[i].Amenities = append(out[i].Amenities, v)
	}, index); err != nil {
		return nil, fmt.Errorf("load amenities: %w", err)
	}
	return out, nil
}

const (
	selectImagesSQL = `
SELECT listing_id, image_url FROM listing_images
WHERE listing_id = ANY($1)
ORDER BY listing_id, position, id`

	selectAmenitiesSQL = `
SELECT la.listing_id, a.name FROM listing_amenities la
JOIN amenities a ON a.id = la.amenity_id
WHERE la.listing_id = ANY($1)
ORDER BY la.listing_id, la.id`
)

// attach runs a (listing_id, value) query for ids and hands each value to add.
func (s *ListingStore) attach(
	ctx context.Context,
	query string,
	ids []int64,
	add func(i int, v string),
	index map[int64]int,
) error {
	rows, err := s.pool.Query(ctx, query, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			listingID int64
			value     string
		)
		if err := rows.Scan(&listingID, &value); err != nil {
			return err
		}
		if i, ok := index[listingID]; ok {
			add(i, value)
		}
	}
	return rows.Err()
}

// buildWhere renders the filter as a WHERE clause with positional arguments.
func buildWhere(f listing.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Location != "" {
		add(`l.location ILIKE '%%' || $%d || '%%'`, escapeLike(f.Location))
	}
	if f.Guests != nil {
		add("l.capacity >= $%d", *f.Guests)
	}
	if f.MinPrice != nil {
		add("l.price_per_night >= $%d", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		add("l.price_per_night <= $%d", *f.MaxPrice)
	}
	if f.MinRating != nil {
		add("l.rating >= $%d", *f.MinRating)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
