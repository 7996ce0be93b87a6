package scraper

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/listing-scraper/internal/listing"
)

// ErrNoEmbeddedData reports a page without the expected script payload.
var ErrNoEmbeddedData = errors.New("embedded listing data not found")

// Markers of the embedded data. Renderers wait for them before capturing.
const (
	// SearchDataMarker appears in the search page script that holds results.
	SearchDataMarker = "bootstrapData"
	// DetailDataSelector matches the room page script that holds pdpSections.
	DetailDataSelector = "script#data-deferred-state"
)

const (
	defaultPropertyType = "Entire home"
	defaultRoomCount    = 1
)

// SearchPage is what one search results page yields.
type SearchPage struct {
	Results []SearchResult
	// Skipped holds one error per listing that failed conversion.
	Skipped []error
	// NextPage is the raw pagination reference, possibly relative.
	NextPage string
}

// ExtractSearchResults finds the bootstrap script, decodes the object
// between its first '{' and last '}', and reads every listing under
// data.presentation.exploreV3.sections[].listings[].
func ExtractSearchResults(html []byte) (SearchPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return SearchPage{}, fmt.Errorf("parse search html: %w", err)
	}
	var script string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if strings.Contains(text, SearchDataMarker) {
			script = text
			return false
		}
		return true
	})
	if script == "" {
		return SearchPage{}, fmt.Errorf("search page: %w", ErrNoEmbeddedData)
	}
	start := strings.Index(script, "{")
	end := strings.LastIndex(script, "}")
	if start < 0 || end < start {
		return SearchPage{}, fmt.Errorf("search page: %w", ErrNoEmbeddedData)
	}
	data, err := decodeJSON([]byte(script[start : end+1]))
	if err != nil {
		return SearchPage{}, err
	}

	var page SearchPage
	for _, section := range listAt(data, "data", "presentation", "exploreV3", "sections") {
		for i, raw := range listAt(section, "listings") {
			result, err := searchResult(raw)
			if err != nil {
				page.Skipped = append(page.Skipped, fmt.Errorf("listing %d: %w", i, err))
				continue
			}
			page.Results = append(page.Results, result)
		}
	}
	page.NextPage = ExtractNextPage(data)
	return page, nil
}

// ExtractNextPage returns data.presentation.pagination.nextPage or "".
func ExtractNextPage(data map[string]any) string {
	next, err := stringAt(data, "", "data", "presentation", "pagination", "nextPage")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(next)
}

func searchResult(raw any) (SearchResult, error) {
	if _, ok := raw.(map[string]any); !ok {
		return SearchResult{}, fmt.Errorf("expected object, got %T", raw)
	}
	var (
		r    SearchResult
		errs []error
	)
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	var err error
	r.ID, err = stringAt(raw, "", "id")
	collect(err)
	r.Title, err = stringAt(raw, "", "title")
	collect(err)
	r.City, err = stringAt(raw, "", "location", "city")
	collect(err)
	r.PricePerNight, err = floatAt(raw, 0, "price", "rate")
	collect(err)
	r.Currency, err = stringAt(raw, listing.DefaultCurrency, "price", "currency")
	collect(err)
	r.Rating, err = floatAt(raw, 0, "rating", "value")
	collect(err)
	r.Reviews, err = intAt(raw, 0, "reviewsCount")
	collect(err)
	r.ImageURL, err = stringAt(raw, "", "image", "url")
	collect(err)
	if len(errs) > 0 {
		return SearchResult{}, errors.Join(errs...)
	}
	if r.ID == "" {
		return SearchResult{}, fmt.Errorf("listing has no id")
	}
	return r, nil
}

// ExtractDetail reads the deferred-state script of a room page and merges it
// with the search result into an ingest payload. Missing sections fall back
// to defaults; values of the wrong type fail the whole record, and so does a
// record that would not pass ingest validation.
func ExtractDetail(html []byte, basic SearchResult, p Params) (listing.IngestRequest, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return listing.IngestRequest{}, fmt.Errorf("parse detail html: %w", err)
	}
	script := strings.TrimSpace(doc.Find(DetailDataSelector).First().Text())
	if script == "" {
		return listing.IngestRequest{}, fmt.Errorf("detail page: %w", ErrNoEmbeddedData)
	}
	data, err := decodeJSON([]byte(script))
	if err != nil {
		return listing.IngestRequest{}, err
	}
	req, err := buildIngest(pdpSections(data), basic, p)
	if err != nil {
		return listing.IngestRequest{}, err
	}
	// A record the ingest endpoint would reject is not worth a POST.
	if err := req.Validate(); err != nil {
		return listing.IngestRequest{}, fmt.Errorf("detail record incomplete: %w", err)
	}
	return req, nil
}

// pdpSections returns the first data.presentation.pdpSections found in
// niobeMinimalClientData. Entries are either objects or [key, object] pairs.
func pdpSections(data map[string]any) map[string]any {
	for _, entry := range listAt(data, "niobeMinimalClientData") {
		candidates := []any{entry}
		if pair, ok := entry.([]any); ok {
			candidates = pair
		}
		for _, c := range candidates {
			if sections := objectAt(c, "data", "presentation", "pdpSections"); sections != nil {
				return sections
			}
		}
	}
	return map[string]any{}
}

func buildIngest(pdp map[string]any, basic SearchResult, p Params) (listing.IngestRequest, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	req := listing.IngestRequest{
		Location:      basic.City,
		PricePerNight: basic.PricePerNight,
		Currency:      basic.Currency,
		Rating:        basic.Rating,
		NumReviews:    basic.Reviews,
		Amenities:     amenityNames(pdp),
		Images:        photoURLs(pdp),
	}
	if req.Currency == "" {
		req.Currency = listing.DefaultCurrency
	}
	if len(req.Images) == 0 && basic.ImageURL != "" {
		req.Images = []string{basic.ImageURL}
	}

	var err error
	req.Title = basic.Title
	if req.Title == "" {
		req.Title, err = stringAt(pdp, "", "title")
		collect(err)
	}
	req.Description, err = stringAt(pdp, "", "description", "description")
	collect(err)
	req.Address, err = optionalStringAt(pdp, "location", "address")
	collect(err)
	req.Latitude, err = optionalFloatAt(pdp, "location", "lat")
	collect(err)
	req.Longitude, err = optionalFloatAt(pdp, "location", "lng")
	collect(err)
	req.TotalPrice, err = optionalFloatAt(pdp, "price", "total", "amount")
	collect(err)
	req.PropertyType, err = stringAt(pdp, defaultPropertyType, "roomAndPropertyType", "roomType")
	collect(err)
	req.Capacity, err = intAt(pdp, p.Guests, "basicInfo", "capacity")
	collect(err)
	req.Bedrooms, err = intAt(pdp, defaultRoomCount, "basicInfo", "bedroomCount")
	collect(err)
	req.Beds, err = intAt(pdp, defaultRoomCount, "basicInfo", "bedCount")
	collect(err)
	req.Baths, err = floatAt(pdp, defaultRoomCount, "basicInfo", "bathroomCount")
	collect(err)

	host, err := hostInput(pdp)
	collect(err)
	req.Host = host

	if p.CheckIn != "" {
		checkIn := p.CheckIn
		req.CheckIn = &checkIn
	}
	if p.CheckOut != "" {
		checkOut := p.CheckOut
		req.CheckOut = &checkOut
	}

	if len(errs) > 0 {
		return listing.IngestRequest{}, errors.Join(errs...)
	}
	return req, nil
}

func hostInput(pdp map[string]any) (listing.HostInput, error) {
	var (
		h    listing.HostInput
		errs []error
		err  error
	)
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	h.Name, err = stringAt(pdp, "", "host", "name")
	collect(err)
	h.IsSuperhost, err = boolAt(pdp, false, "host", "isSuperhost")
	collect(err)
	h.ProfileImage, err = stringAt(pdp, "", "host", "avatar", "url")
	collect(err)
	h.ResponseRate, err = optionalFloatAt(pdp, "host", "responseRate", "value")
	collect(err)
	h.ResponseTime, err = optionalStringAt(pdp, "host", "responseTime", "text")
	collect(err)
	h.JoinDate, err = optionalStringAt(pdp, "host", "memberSince")
	collect(err)
	return h, errors.Join(errs...)
}

// amenityNames flattens amenities.sections[].items[].title, dropping blanks.
func amenityNames(pdp map[string]any) []string {
	names := []string{}
	for _, group := range listAt(pdp, "amenities", "sections") {
		for _, item := range listAt(group, "items") {
			title, err := stringAt(item, "", "title")
			if err != nil || strings.TrimSpace(title) == "" {
				continue
			}
			names = append(names, title)
		}
	}
	return names
}

// photoURLs reads photos.data[].picture, dropping blanks.
func photoURLs(pdp map[string]any) []string {
	urls := []string{}
	for _, photo := range listAt(pdp, "photos", "data") {
		pic, err := stringAt(photo, "", "picture")
		if err != nil || strings.TrimSpace(pic) == "" {
			continue
		}
		urls = append(urls, pic)
	}
	return urls
}
