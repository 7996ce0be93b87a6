package listing

import (
	"context"
	"errors"
	"sort"
)

// ErrNotFound signals that the requested listing does not exist.
var ErrNotFound = errors.New("listing not found")

// DefaultCurrency is applied when an ingest payload omits currency.
const DefaultCurrency = "USD"

// Host owns one or more listings. Hosts are matched by exact name on ingest.
type Host struct {
	ID           int64    `json:"id"`
	Name         string   `json:"name"`
	IsSuperhost  bool     `json:"is_superhost"`
	ProfileImage string   `json:"profile_image"`
	ResponseRate *float64 `json:"response_rate"`
	ResponseTime *string  `json:"response_time"`
	JoinDate     *string  `json:"join_date"`
}

// Listing is a rentable property with its host, ordered images, and amenities.
type Listing struct {
	ID            int64    `json:"id"`
	Title         string   `json:"title"`
	Location      string   `json:"location"`
	Address       *string  `json:"address"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
	PricePerNight float64  `json:"price_per_night"`
	Currency      string   `json:"currency"`
	TotalPrice    *float64 `json:"total_price"`
	Rating        float64  `json:"rating"`
	NumReviews    int      `json:"num_reviews"`
	Description   string   `json:"description"`
	PropertyType  string   `json:"property_type"`
	Capacity      int      `json:"capacity"`
	Bedrooms      int      `json:"bedrooms"`
	Beds          int      `json:"beds"`
	Baths         float64  `json:"baths"`
	CheckIn       *string  `json:"check_in"`
	CheckOut      *string  `json:"check_out"`
	Host          Host     `json:"host"`
	// Images holds URLs ordered by position.
	Images []string `json:"images"`
	// Amenities holds names in the order they were attached.
	Amenities []string `json:"amenities"`
}

// Image is one row of listing_images.
type Image struct {
	ListingID int64
	URL       string
	Position  int
}

// Amenity is a named feature shared across listings.
type Amenity struct {
	ID   int64
	Name string
}

// Repository persists listings and answers filtered queries.
type Repository interface {
	// Create runs the full ingest sequence and returns the new listing id.
	Create(ctx context.Context, req IngestRequest) (int64, error)
	// List returns listings matching the filter, sorted by rating descending.
	List(ctx context.Context, filter Filter) ([]Listing, error)
	// Get loads one listing or returns ErrNotFound.
	Get(ctx context.Context, id int64) (Listing, error)
	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
	Close()
}

// SortByRating orders listings by rating descending, then by id.
func SortByRating(listings []Listing) {
	sort.SliceStable(listings, func(i, j int) bool {
		if listings[i].Rating != listings[j].Rating {
			return listings[i].Rating > listings[j].Rating
		}
		return listings[i].ID < listings[j].ID
	})
}

// UniqueAmenities drops blank and repeated names, keeping first-seen order.
func UniqueAmenities(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
