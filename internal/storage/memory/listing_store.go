package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/listing-scraper/internal/listing"
)

// ListingStore provides an in-memory listing.Repository for development and
// tests. It keeps the same normalized shape as the Postgres schema: hosts are
// shared by name and amenities are shared by name.
type ListingStore struct {
	mu          sync.RWMutex
	nextID      int64
	nextHostID  int64
	nextAmenity int64
	listings    map[int64]storedListing
	hosts       map[int64]listing.Host
	hostByName  map[string]int64
	amenityByID map[int64]string
	amenityIDs  map[string]int64
}

type storedListing struct {
	listing    listing.Listing
	hostID     int64
	amenityIDs []int64
}

// NewListingStore constructs a ListingStore.
func NewListingStore() *ListingStore {
	return &ListingStore{
		listings:    make(map[int64]storedListing),
		hosts:       make(map[int64]listing.Host),
		hostByName:  make(map[string]int64),
		amenityByID: make(map[int64]string),
		amenityIDs:  make(map[string]int64),
	}
}

// Create resolves the host, stores the listing with its images, and links
// amenities. The whole sequence happens under one lock so it is atomic.
func (s *ListingStore) Create(ctx context.Context, req listing.IngestRequest) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	hostID, ok := s.hostByName[req.Host.Name]
	if !ok {
		s.nextHostID++
		hostID = s.nextHostID
		s.hosts[hostID] = listing.Host{
			ID:           hostID,
			Name:         req.Host.Name,
			IsSuperhost:  req.Host.IsSuperhost,
			ProfileImage: req.Host.ProfileImage,
			ResponseRate: req.Host.ResponseRate,
			ResponseTime: req.Host.ResponseTime,
			JoinDate:     req.Host.JoinDate,
		}
		s.hostByName[req.Host.Name] = hostID
	}

	currency := req.Currency
	if currency == "" {
		currency = listing.DefaultCurrency
	}

	amenities := listing.UniqueAmenities(req.Amenities)
	amenityIDs := make([]int64, 0, len(amenities))
	for _, name := range amenities {
		id, ok := s.amenityIDs[name]
		if !ok {
			s.nextAmenity++
			id = s.nextAmenity
			s.amenityIDs[name] = id
			s.amenityByID[id] = name
		}
		amenityIDs = append(amenityIDs, id)
	}

	s.nextID++
	id := s.nextID
	s.listings[id] = storedListing{
		listing: listing.Listing{
			ID:            id,
			Title:         req.Title,
			Location:      req.Location,
			Address:       req.Address,
			Latitude:      req.Latitude,
			Longitude:     req.Longitude,
			PricePerNight: req.PricePerNight,
			Currency:      currency,
			TotalPrice:    req.TotalPrice,
			Rating:        req.Rating,
			NumReviews:    req.NumReviews,
			Description:   req.Description,
			PropertyType:  req.PropertyType,
			Capacity:      req.Capacity,
			Bedrooms:      req.Bedrooms,
			Beds:          req.Beds,
			Baths:         req.Baths,
			CheckIn:       req.CheckIn,
			CheckOut:      req.CheckOut,
			Images:        append([]string{}, req.Images...),
		},
		hostID:     hostID,
		amenityIDs: amenityIDs,
	}
	return id, nil
}

// List returns the matching listings ordered by rating descending.
func (s *ListingStore) List(ctx context.Context, filter listing.Filter) ([]listing.Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]listing.Listing, 0, len(s.listings))
	for _, stored := range s.listings {
		l := s.materialize(stored)
		if filter.Matches(l) {
			out = append(out, l)
		}
	}
	listing.SortByRating(out)
	return out, nil
}

// Get returns the listing with the given id.
func (s *ListingStore) Get(ctx context.Context, id int64) (listing.Listing, error) {
	if err := ctx.Err(); err != nil {
		return listing.Listing{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.listings[id]
	if !ok {
		return listing.Listing{}, listing.ErrNotFound
	}
	return s.materialize(stored), nil
}

// Ping always succeeds.
func (s *ListingStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *ListingStore) Close() {}

// materialize returns a copy that callers may mutate freely.
func (s *ListingStore) materialize(stored storedListing) listing.Listing {
	l := stored.listing
	l.Host = s.hosts[stored.hostID]
	l.Images = append([]string{}, stored.listing.Images...)
	l.Amenities = make([]string, 0, len(stored.amenityIDs))
	for _, id := range stored.amenityIDs {
		l.Amenities = append(l.Amenities, s.amenityByID[id])
	}
	return l
}
