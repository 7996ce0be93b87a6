package listing

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFilter(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		query string
		check func(t *testing.T, f Filter)
	}{
		{
			name:  "price range",
			query: "minPrice=100&maxPrice=200",
			check: func(t *testing.T, f Filter) {
				require.NotNil(t, f.MinPrice)
				require.NotNil(t, f.MaxPrice)
				require.Equal(t, 100.0, *f.MinPrice)
				require.Equal(t, 200.0, *f.MaxPrice)
			},
		},
		{
			name:  "guests",
			query: "guests=4",
			check: func(t *testing.T, f Filter) {
				require.NotNil(t, f.Guests)
				require.Equal(t, 4, *f.Guests)
			},
		},
		{
			name:  "malformed values are ignored",
			query: "guests=abc&minPrice=cheap&maxPrice=NaN&minRating=",
			check: func(t *testing.T, f Filter) {
				require.Nil(t, f.Guests)
				require.Nil(t, f.MinPrice)
				require.Nil(t, f.MaxPrice)
				require.Nil(t, f.MinRating)
			},
		},
		{
			name:  "dates need both ends",
			query: "checkIn=2025-01-01",
			check: func(t *testing.T, f Filter) {
				require.Nil(t, f.CheckIn)
				require.Nil(t, f.CheckOut)
			},
		},
		{
			name:  "dates parsed",
			query: "checkIn=2025-01-01&checkOut=2025-01-05&location=Miami",
			check: func(t *testing.T, f Filter) {
				require.NotNil(t, f.CheckIn)
				require.NotNil(t, f.CheckOut)
				require.Equal(t, 5, f.CheckOut.Day())
				require.Equal(t, "Miami", f.Location)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			q, err := url.ParseQuery(tc.query)
			require.NoError(t, err)
			tc.check(t, ParseFilter(q))
		})
	}
}

func TestFilterMatches(t *testing.T) {
	t.Parallel()

	l := Listing{Location: "Miami Beach, Florida", Capacity: 4, PricePerNight: 150, Rating: 4.8}
	guests := func(n int) *int { return &n }
	num := func(v float64) *float64 { return &v }

	require.True(t, Filter{}.Matches(l))
	require.True(t, Filter{Location: "miami"}.Matches(l))
	require.False(t, Filter{Location: "austin"}.Matches(l))
	require.True(t, Filter{Guests: guests(4)}.Matches(l))
	require.False(t, Filter{Guests: guests(5)}.Matches(l))
	require.True(t, Filter{MinPrice: num(150), MaxPrice: num(150)}.Matches(l))
	require.False(t, Filter{MaxPrice: num(149.99)}.Matches(l))
	require.False(t, Filter{MinRating: num(4.9)}.Matches(l))
}

func TestSortByRating(t *testing.T) {
	t.Parallel()

	listings := []Listing{
		{ID: 1, Rating: 4.5},
		{ID: 2, Rating: 4.9},
		{ID: 3, Rating: 4.5},
		{ID: 4, Rating: 5},
	}
	SortByRating(listings)

	ids := make([]int64, 0, len(listings))
	for _, l := range listings {
		ids = append(ids, l.ID)
	}
	require.Equal(t, []int64{4, 2, 1, 3}, ids)
}

func TestUniqueAmenities(t *testing.T) {
	t.Parallel()

	got := UniqueAmenities([]string{"Wifi", "Kitchen", "Wifi", "", "Pool"})
	require.Equal(t, []string{"Wifi", "Kitchen", "Pool"}, got)
}
