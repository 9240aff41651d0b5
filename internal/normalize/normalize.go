// Package normalize maps heterogeneous import rows and admin form input onto
// the canonical listing schema.
package normalize

import (
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"bonairerentalhub/server/config"
	"bonairerentalhub/server/internal/decoder"
	"bonairerentalhub/server/internal/models"
)

const (
	DefaultRating       = 0
	DefaultTotalReviews = 0
	DefaultPriceLevel   = 2

	MaxRating     = 5
	MinPriceLevel = 1
	MaxPriceLevel = 4
	// MaxTotalReviews bounds review counts; larger values are treated as unparseable
	MaxTotalReviews = math.MaxInt32
)

// DefaultLanguages is used when a row names no languages
var DefaultLanguages = []string{"en", "nl", "es", "pap"}

// Normalize converts one decoded import row into a listing. It never fails:
// unparseable values fall back to their defaults or are left absent.
func Normalize(row decoder.RawRow) models.Listing {
	label := row.Get("categoryname", "category")
	category := Slugify(label)

	rating, ratingOK := parseRating(row.Get("rating", "totalscore"))
	reviews, reviewsOK := parseCount(row.Get("total_reviews", "reviewscount"))
	priceLevel, priceOK := parsePriceLevel(row.Get("price_level"))
	languages, languagesOK := parseLanguages(row.Get("languages"))

	listing := models.Listing{
		Name:            row.Get("title", "name"),
		Category:        category,
		DisplayCategory: FormatCategoryName(category),
		Rating:          rating,
		TotalReviews:    reviews,
		PriceLevel:      priceLevel,
		Languages:       languages,
		Phone:           optional(row.Get("phone")),
		Website:         optional(row.Get("website", "url")),
		Address:         optional(row.Get("address", "street")),
		Area:            optionalArea(row.Get("city", "area")),
		PostalCode:      optional(row.Get("postalcode", "postal_code")),
		Description:     optional(row.Get("description")),
		Amenities:       ParseAmenities(optionalValue(row.Get("amenities"))),
		Images:          parseImages(row.Get("imageurl", "images")),
		Latitude:        parseCoordinate(row.Get("location/lat", "latitude"), 90),
		Longitude:       parseCoordinate(row.Get("location/lng", "longitude"), 180),
		OpeningHours:    ParseOpeningHours(row),
		Status:          models.StatusActive,
	}
	markSupplied(&listing, ratingOK, reviewsOK, priceOK, languagesOK)
	return listing
}

func markSupplied(l *models.Listing, rating, reviews, priceLevel, languages bool) {
	if rating {
		l.MarkSupplied("rating")
	}
	if reviews {
		l.MarkSupplied("total_reviews")
	}
	if priceLevel {
		l.MarkSupplied("price_level")
	}
	if languages {
		l.MarkSupplied("languages")
	}
}

// Slugify lower-cases a category label and joins its words with hyphens.
func Slugify(label string) string {
	return strings.Join(strings.Fields(strings.ToLower(label)), "-")
}

// FormatCategoryName turns a slug such as "-boat-rental" into "Boat Rental".
func FormatCategoryName(slug string) string {
	parts := strings.Split(strings.TrimLeft(slug, "-"), "-")
	words := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		r, size := utf8.DecodeRuneInString(part)
		words = append(words, string(unicode.ToUpper(r))+part[size:])
	}
	return strings.Join(words, " ")
}

// ParseAmenities accepts nil, a comma separated string or an already split list.
func ParseAmenities(v interface{}) []string {
	switch value := v.(type) {
	case nil:
		return []string{}
	case []string:
		return value
	case []interface{}:
		amenities := make([]string, 0, len(value))
		for _, item := range value {
			if s, ok := item.(string); ok {
				amenities = append(amenities, s)
			}
		}
		return amenities
	case string:
		return splitList(value)
	default:
		return []string{}
	}
}

func splitList(s string) []string {
	items := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func optionalValue(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func optionalArea(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	area := config.Bonaire.CanonicalArea(s)
	return &area
}

func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// parseRating accepts scores between 0 and MaxRating
func parseRating(s string) (float64, bool) {
	f, ok := parseFloat(s)
	if !ok || f < 0 || f > MaxRating {
		return DefaultRating, false
	}
	return f, true
}

// parseCount accepts non-negative counts up to MaxTotalReviews, with or
// without thousands separators
func parseCount(s string) (int, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 || n > MaxTotalReviews {
			return DefaultTotalReviews, false
		}
		return int(n), true
	}

	f, ok := parseFloat(s)
	if !ok || f < 0 || f > MaxTotalReviews {
		return DefaultTotalReviews, false
	}
	return int(f), true
}

// parsePriceLevel accepts a number or a run of currency symbols ("$$$")
// between MinPriceLevel and MaxPriceLevel
func parsePriceLevel(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultPriceLevel, false
	}

	level := -1
	if n, err := strconv.Atoi(s); err == nil {
		level = n
	} else if strings.Trim(s, "$€") == "" {
		level = utf8.RuneCountInString(s)
	}

	if level < MinPriceLevel || level > MaxPriceLevel {
		return DefaultPriceLevel, false
	}
	return level, true
}

func parseLanguages(s string) ([]string, bool) {
	languages := splitList(strings.ToLower(s))
	if len(languages) == 0 {
		return append([]string(nil), DefaultLanguages...), false
	}
	return languages, true
}

func parseImages(s string) []string {
	images := splitList(s)
	if len(images) == 0 {
		return nil
	}
	return images
}

// parseCoordinate returns nil when s is missing, unparseable or outside ±limit
func parseCoordinate(s string, limit float64) *float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > limit {
		return nil
	}
	return &f
}
