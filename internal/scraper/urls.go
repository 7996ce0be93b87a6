package scraper

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// BuildSearchURL renders <base>/s/<location>/homes with the query, dates and
// guest count. Spaces in the path segment become hyphens. p must already be
// normalized.
func BuildSearchURL(base string, p Params) (string, error) {
	u, err := parseBase(base)
	if err != nil {
		return "", err
	}
	slug := strings.ReplaceAll(p.Location, " ", "-")
	u.Path = strings.TrimRight(u.Path, "/") + "/s/" + slug + "/homes"

	// Parameter order is kept as query, checkin, checkout, adults.
	u.RawQuery = strings.Join([]string{
		"query=" + url.QueryEscape(p.Location),
		"checkin=" + url.QueryEscape(p.CheckIn),
		"checkout=" + url.QueryEscape(p.CheckOut),
		"adults=" + strconv.Itoa(p.Guests),
	}, "&")
	return u.String(), nil
}

// DetailURL returns the room page for a listing id.
func DetailURL(base, id string) (string, error) {
	u, err := parseBase(base)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(id) == "" {
		return "", fmt.Errorf("listing id is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/rooms/" + url.PathEscape(id)
	return u.String(), nil
}

// ResolveURL joins a possibly relative reference against base.
func ResolveURL(base, ref string) (string, error) {
	u, err := parseBase(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("parse next page %q: %w", ref, err)
	}
	return u.ResolveReference(r).String(), nil
}

func parseBase(base string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", base)
	}
	return u, nil
}
