package normalize

import (
	"strings"

	"bonairerentalhub/server/internal/models"
)

// ListingForm is the manual-entry payload of the admin dashboard
type ListingForm struct {
	Name         string              `json:"name" binding:"required"`
	Category     string              `json:"category"`
	Rating       *float64            `json:"rating"`
	TotalReviews *int                `json:"total_reviews"`
	PriceLevel   *int                `json:"price_level"`
	Languages    []string            `json:"languages"`
	Phone        string              `json:"phone"`
	Website      string              `json:"website"`
	Address      string              `json:"address"`
	Area         string              `json:"area"`
	PostalCode   string              `json:"postal_code"`
	Description  string              `json:"description"`
	Amenities    interface{}         `json:"amenities"`
	Images       []string            `json:"images"`
	Latitude     string              `json:"latitude"`
	Longitude    string              `json:"longitude"`
	OpeningHours models.OpeningHours `json:"opening_hours"`
}

// FromForm normalizes manual admin input with the same rules as the import
// path, including absent (nil) coordinates when they cannot be parsed.
func FromForm(form ListingForm) models.Listing {
	category := Slugify(form.Category)
	languages, languagesOK := parseLanguages(strings.Join(form.Languages, ","))

	listing := models.Listing{
		Name:            strings.TrimSpace(form.Name),
		Category:        category,
		DisplayCategory: FormatCategoryName(category),
		Rating:          DefaultRating,
		TotalReviews:    DefaultTotalReviews,
		PriceLevel:      DefaultPriceLevel,
		Languages:       languages,
		Phone:           optional(form.Phone),
		Website:         optional(form.Website),
		Address:         optional(form.Address),
		Area:            optionalArea(form.Area),
		PostalCode:      optional(form.PostalCode),
		Description:     optional(form.Description),
		Amenities:       ParseAmenities(form.Amenities),
		Images:          parseImages(strings.Join(form.Images, ",")),
		Latitude:        parseCoordinate(form.Latitude, 90),
		Longitude:       parseCoordinate(form.Longitude, 180),
		Status:          models.StatusActive,
	}

	ratingOK := form.Rating != nil && *form.Rating >= 0 && *form.Rating <= MaxRating
	if ratingOK {
		listing.Rating = *form.Rating
	}
	reviewsOK := form.TotalReviews != nil && *form.TotalReviews >= 0 && *form.TotalReviews <= MaxTotalReviews
	if reviewsOK {
		listing.TotalReviews = *form.TotalReviews
	}
	priceOK := form.PriceLevel != nil && *form.PriceLevel >= MinPriceLevel && *form.PriceLevel <= MaxPriceLevel
	if priceOK {
		listing.PriceLevel = *form.PriceLevel
	}
	markSupplied(&listing, ratingOK, reviewsOK, priceOK, languagesOK)

	if len(form.OpeningHours) > 0 {
		listing.OpeningHours = form.OpeningHours
	}
	return listing
}
