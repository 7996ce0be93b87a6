package listing

import (
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the YYYY-MM-DD layout used by check-in/check-out parameters.
const DateLayout = "2006-01-02"

// Filter holds optional listing query criteria. A nil field is not applied.
type Filter struct {
	Location  string
	Guests    *int
	MinPrice  *float64
	MaxPrice  *float64
	MinRating *float64
	// CheckIn and CheckOut are parsed but not applied; there is no
	// availability model.
	CheckIn  *time.Time
	CheckOut *time.Time
}

// ParseFilter reads filter values from query parameters. Malformed values
// leave the corresponding filter unset instead of failing the request.
func ParseFilter(q url.Values) Filter {
	f := Filter{Location: strings.TrimSpace(q.Get("location"))}

	if n, err := strconv.Atoi(strings.TrimSpace(q.Get("guests"))); err == nil {
		f.Guests = &n
	}
	f.MinPrice = parseFloatParam(q.Get("minPrice"))
	f.MaxPrice = parseFloatParam(q.Get("maxPrice"))
	f.MinRating = parseFloatParam(q.Get("minRating"))

	checkIn := parseDateParam(q.Get("checkIn"))
	checkOut := parseDateParam(q.Get("checkOut"))
	if checkIn != nil && checkOut != nil {
		f.CheckIn, f.CheckOut = checkIn, checkOut
	}
	return f
}

// Matches reports whether l satisfies every set criterion.
func (f Filter) Matches(l Listing) bool {
	if f.Location != "" && !strings.Contains(strings.ToLower(l.Location), strings.ToLower(f.Location)) {
		return false
	}
	if f.Guests != nil && l.Capacity < *f.Guests {
		return false
	}
	if f.MinPrice != nil && l.PricePerNight < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && l.PricePerNight > *f.MaxPrice {
		return false
	}
	if f.MinRating != nil && l.Rating < *f.MinRating {
		return false
	}
	return true
}

func parseFloatParam(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func parseDateParam(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	t, err := time.Parse(DateLayout, raw)
	if err != nil {
		return nil
	}
	return &t
}
