package listing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrMalformedBody is returned when the ingest body is not a JSON object.
var ErrMalformedBody = errors.New("malformed ingest body")

const (
	msgRequired     = "This field is required."
	msgNull         = "This field may not be null."
	msgBlank        = "This field may not be blank."
	msgString       = "Not a valid string."
	msgNumber       = "A valid number is required."
	msgInteger      = "A valid integer is required."
	msgBoolean      = "Must be a valid boolean."
	msgURL          = "Enter a valid URL."
	msgObject       = "Expected a JSON object."
	msgList         = "Expected a list of items."
	maxPriceDigits  = 8
	maxCharLength   = 255
	maxShortLength  = 100
	maxTokenLength  = 50
	maxCurrencyLen  = 10
	maxImageURLSize = 200
)

// HostInput is the inline host object of an ingest payload. Its keys are
// camelCase because that is what the scraper emits.
type HostInput struct {
	Name         string   `json:"name"`
	IsSuperhost  bool     `json:"isSuperhost"`
	ProfileImage string   `json:"profileImage"`
	ResponseRate *float64 `json:"responseRate,omitempty"`
	ResponseTime *string  `json:"responseTime,omitempty"`
	JoinDate     *string  `json:"joinDate,omitempty"`
}

// IngestRequest is the denormalized payload accepted by the ingest endpoint:
// listing fields plus an inline host, a flat image URL list, and a flat list
// of amenity names.
type IngestRequest struct {
	Title         string    `json:"title"`
	Location      string    `json:"location"`
	Address       *string   `json:"address,omitempty"`
	Latitude      *float64  `json:"latitude,omitempty"`
	Longitude     *float64  `json:"longitude,omitempty"`
	PricePerNight float64   `json:"price_per_night"`
	Currency      string    `json:"currency,omitempty"`
	TotalPrice    *float64  `json:"total_price,omitempty"`
	Rating        float64   `json:"rating"`
	NumReviews    int       `json:"num_reviews"`
	Description   string    `json:"description"`
	PropertyType  string    `json:"property_type"`
	Capacity      int       `json:"capacity"`
	Bedrooms      int       `json:"bedrooms"`
	Beds          int       `json:"beds"`
	Baths         float64   `json:"baths"`
	CheckIn       *string   `json:"check_in,omitempty"`
	CheckOut      *string   `json:"check_out,omitempty"`
	Host          HostInput `json:"host"`
	Images        []string  `json:"images"`
	Amenities     []string  `json:"amenities"`
}

// Validate applies the ingest endpoint's rules to r by encoding it and
// decoding it with DecodeIngest.
func (r IngestRequest) Validate() error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode listing: %w", err)
	}
	_, err = DecodeIngest(body)
	return err
}

// FieldErrors maps a payload field to its validation messages.
type FieldErrors map[string][]string

// Add appends a message for field.
func (e FieldErrors) Add(field, msg string) {
	e[field] = append(e[field], msg)
}

// Error renders the errors in field order.
func (e FieldErrors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f, strings.Join(e[f], " ")))
	}
	return "invalid listing: " + strings.Join(parts, "; ")
}

// DecodeIngest decodes and validates an ingest body field by field. It
// returns ErrMalformedBody (wrapped) when the body is not a JSON object and a
// FieldErrors value when any field is missing or has the wrong type.
func DecodeIngest(body []byte) (IngestRequest, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return IngestRequest{}, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	d := &fieldDecoder{raw: raw, errs: FieldErrors{}}

	req := IngestRequest{
		Title:         d.requiredString("title", maxCharLength),
		Location:      d.requiredString("location", maxCharLength),
		Address:       d.optionalString("address", maxCharLength),
		Latitude:      d.optionalFloat("latitude"),
		Longitude:     d.optionalFloat("longitude"),
		PricePerNight: d.requiredPrice("price_per_night"),
		Currency:      d.defaultedString("currency", DefaultCurrency, maxCurrencyLen),
		TotalPrice:    d.optionalPrice("total_price"),
		Rating:        d.requiredFloat("rating"),
		NumReviews:    d.defaultedInt("num_reviews", 0),
		Description:   d.requiredText("description"),
		PropertyType:  d.requiredString("property_type", maxShortLength),
		Capacity:      d.requiredInt("capacity"),
		Bedrooms:      d.requiredInt("bedrooms"),
		Beds:          d.requiredInt("beds"),
		Baths:         d.requiredFloat("baths"),
		CheckIn:       d.optionalString("check_in", maxTokenLength),
		CheckOut:      d.optionalString("check_out", maxTokenLength),
		Host:          d.host(),
		Images:        d.images("images"),
		Amenities:     d.amenities("amenities"),
	}
	if len(d.errs) > 0 {
		return IngestRequest{}, d.errs
	}
	return req, nil
}

type fieldDecoder struct {
	raw  map[string]json.RawMessage
	errs FieldErrors
}

// value returns the raw field and whether it was present and non-null.
// Presence failures are recorded against field.
func (d *fieldDecoder) value(field string, required bool) (json.RawMessage, bool) {
	v, ok := d.raw[field]
	if !ok {
		if required {
			d.errs.Add(field, msgRequired)
		}
		return nil, false
	}
	if isNull(v) {
		if required {
			d.errs.Add(field, msgNull)
		}
		return nil, false
	}
	return v, true
}

func (d *fieldDecoder) requiredString(field string, maxLen int) string {
	v, ok := d.value(field, true)
	if !ok {
		return ""
	}
	s, ok := d.asString(field, v, maxLen)
	if !ok {
		return ""
	}
	if s == "" {
		d.errs.Add(field, msgBlank)
		return ""
	}
	return s
}

// requiredText must be present but may be empty.
func (d *fieldDecoder) requiredText(field string) string {
	v, ok := d.value(field, true)
	if !ok {
		return ""
	}
	s, _ := d.asString(field, v, 0)
	return s
}

func (d *fieldDecoder) optionalString(field string, maxLen int) *string {
	v, ok := d.value(field, false)
	if !ok {
		return nil
	}
	s, ok := d.asString(field, v, maxLen)
	if !ok {
		return nil
	}
	return &s
}

// plainString is optional, may be blank, and reads null as empty.
func (d *fieldDecoder) plainString(field string) string {
	v, ok := d.value(field, false)
	if !ok {
		return ""
	}
	s, _ := d.asString(field, v, 0)
	return s
}

func (d *fieldDecoder) defaultedString(field, def string, maxLen int) string {
	v, ok := d.raw[field]
	if !ok {
		return def
	}
	if isNull(v) {
		d.errs.Add(field, msgNull)
		return def
	}
	s, ok := d.asString(field, v, maxLen)
	if !ok {
		return def
	}
	if s == "" {
		d.errs.Add(field, msgBlank)
		return def
	}
	return s
}

// asString trims surrounding whitespace before the length check.
func (d *fieldDecoder) asString(field string, v json.RawMessage, maxLen int) (string, bool) {
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		d.errs.Add(field, msgString)
		return "", false
	}
	s = strings.TrimSpace(s)
	if maxLen > 0 && utf8.RuneCountInString(s) > maxLen {
		d.errs.Add(field, fmt.Sprintf("Ensure this field has no more than %d characters.", maxLen))
		return "", false
	}
	return s, true
}

func (d *fieldDecoder) requiredFloat(field string) float64 {
	v, ok := d.value(field, true)
	if !ok {
		return 0
	}
	f, err := parseNumber(v)
	if err != nil {
		d.errs.Add(field, msgNumber)
		return 0
	}
	return f
}

func (d *fieldDecoder) optionalFloat(field string) *float64 {
	v, ok := d.value(field, false)
	if !ok {
		return nil
	}
	f, err := parseNumber(v)
	if err != nil {
		d.errs.Add(field, msgNumber)
		return nil
	}
	return &f
}

func (d *fieldDecoder) requiredPrice(field string) float64 {
	f := d.requiredFloat(field)
	return d.checkPrice(field, f)
}

func (d *fieldDecoder) optionalPrice(field string) *float64 {
	f := d.optionalFloat(field)
	if f == nil {
		return nil
	}
	p := d.checkPrice(field, *f)
	return &p
}

// checkPrice enforces NUMERIC(10,2): at most 8 integer digits, rounded to cents.
func (d *fieldDecoder) checkPrice(field string, f float64) float64 {
	if math.Abs(f) >= math.Pow10(maxPriceDigits) {
		d.errs.Add(field, fmt.Sprintf("Ensure that there are no more than %d digits before the decimal point.", maxPriceDigits))
		return 0
	}
	return math.Round(f*100) / 100
}

func (d *fieldDecoder) requiredInt(field string) int {
	v, ok := d.value(field, true)
	if !ok {
		return 0
	}
	n, err := parseInt(v)
	if err != nil {
		d.errs.Add(field, msgInteger)
		return 0
	}
	return n
}

func (d *fieldDecoder) defaultedInt(field string, def int) int {
	v, ok := d.raw[field]
	if !ok {
		return def
	}
	if isNull(v) {
		d.errs.Add(field, msgNull)
		return def
	}
	n, err := parseInt(v)
	if err != nil {
		d.errs.Add(field, msgInteger)
		return def
	}
	return n
}

// host accepts the inline object under "host" or its legacy name "host_data".
func (d *fieldDecoder) host() HostInput {
	field := "host"
	if _, ok := d.raw[field]; !ok {
		if _, legacy := d.raw["host_data"]; legacy {
			field = "host_data"
		}
	}
	v, ok := d.value(field, true)
	if !ok {
		return HostInput{}
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(v, &obj); err != nil {
		d.errs.Add(field, msgObject)
		return HostInput{}
	}
	sub := &fieldDecoder{raw: obj, errs: FieldErrors{}}
	host := HostInput{
		Name:         sub.requiredString("name", maxShortLength),
		IsSuperhost:  sub.defaultedBool("isSuperhost"),
		ProfileImage: sub.plainString("profileImage"),
		ResponseRate: sub.optionalFloat("responseRate"),
		ResponseTime: sub.optionalString("responseTime", maxTokenLength),
		JoinDate:     sub.optionalString("joinDate", maxTokenLength),
	}
	for f, msgs := range sub.errs {
		for _, m := range msgs {
			d.errs.Add(field+"."+f, m)
		}
	}
	return host
}

func (d *fieldDecoder) defaultedBool(field string) bool {
	v, ok := d.raw[field]
	if !ok || isNull(v) {
		return false
	}
	var b bool
	if err := json.Unmarshal(v, &b); err != nil {
		d.errs.Add(field, msgBoolean)
		return false
	}
	return b
}

func (d *fieldDecoder) stringList(field string) ([]string, bool) {
	v, ok := d.value(field, true)
	if !ok {
		return nil, false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(v, &items); err != nil {
		d.errs.Add(field, msgList)
		return nil, false
	}
	out := make([]string, 0, len(items))
	valid := true
	for i, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			d.errs.Add(field, fmt.Sprintf("Item %d: %s", i, msgString))
			valid = false
			continue
		}
		out = append(out, strings.TrimSpace(s))
	}
	return out, valid
}

func (d *fieldDecoder) images(field string) []string {
	urls, ok := d.stringList(field)
	if !ok {
		return nil
	}
	for i, u := range urls {
		if !isHTTPURL(u) || len(u) > maxImageURLSize {
			d.errs.Add(field, fmt.Sprintf("Item %d: %s", i, msgURL))
		}
	}
	return urls
}

func (d *fieldDecoder) amenities(field string) []string {
	names, ok := d.stringList(field)
	if !ok {
		return nil
	}
	for i, name := range names {
		switch {
		case name == "":
			d.errs.Add(field, fmt.Sprintf("Item %d: %s", i, msgBlank))
		case utf8.RuneCountInString(name) > maxShortLength:
			d.errs.Add(field, fmt.Sprintf("Item %d: Ensure this field has no more than %d characters.", i, maxShortLength))
		}
	}
	return names
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

// parseNumber accepts a JSON number or a numeric string. NaN and infinities
// are rejected.
func parseNumber(v json.RawMessage) (float64, error) {
	text := string(bytes.TrimSpace(v))
	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return 0, fmt.Errorf("decode numeric string: %w", err)
		}
		text = strings.TrimSpace(s)
	} else {
		var n json.Number
		if err := json.Unmarshal(v, &n); err != nil {
			return 0, fmt.Errorf("decode number: %w", err)
		}
		text = n.String()
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("parse number: %w", err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.New("number must be finite")
	}
	return f, nil
}

// parseInt accepts integral numbers such as 4, "4" or 4.0.
func parseInt(v json.RawMessage) (int, error) {
	f, err := parseNumber(v)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, errors.New("not an integer")
	}
	return int(f), nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
