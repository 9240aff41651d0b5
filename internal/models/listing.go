package models

import "time"

const StatusActive = "active"

// DayHours is the opening window of a single weekday, as "HH:MM" strings
type DayHours struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

// OpeningHours maps a lower-case English weekday to its opening window
type OpeningHours map[string]DayHours

type Listing struct {
	ID              uint         `json:"id" gorm:"primaryKey"`
	Name            string       `json:"name" gorm:"not null;index"`
	Category        string       `json:"category" gorm:"index"`
	DisplayCategory string       `json:"display_category"`
	Rating          float64      `json:"rating"`
	TotalReviews    int          `json:"total_reviews"`
	PriceLevel      int          `json:"price_level"`
	Languages       []string     `json:"languages" gorm:"serializer:json"`
	Phone           *string      `json:"phone"`
	Website         *string      `json:"website"`
	Address         *string      `json:"address"`
	Area            *string      `json:"area" gorm:"index"`
	PostalCode      *string      `json:"postal_code"`
	Description     *string      `json:"description"`
	Amenities       []string     `json:"amenities" gorm:"serializer:json"`
	Images          []string     `json:"images" gorm:"serializer:json"`
	Latitude        *float64     `json:"latitude"`
	Longitude       *float64     `json:"longitude"`
	OpeningHours    OpeningHours `json:"opening_hours" gorm:"serializer:json"`
	Status          string       `json:"status" gorm:"index"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`

	// Supplied names the defaulted columns (rating, total_reviews,
	// price_level, languages) whose value came from the source row rather
	// than a default.
	Supplied map[string]bool `json:"-" gorm:"-"`
}

// MarkSupplied records that the source provided a value for column
func (l *Listing) MarkSupplied(column string) {
	if l.Supplied == nil {
		l.Supplied = make(map[string]bool)
	}
	l.Supplied[column] = true
}

// MergeColumns returns the columns carrying a value worth writing onto an
// existing record. Absent optional fields and defaulted values the source
// never supplied are left out so a merge never clears data the existing
// record already has. Name and status are never merged.
func (l *Listing) MergeColumns() []string {
	columns := make([]string, 0)

	for _, column := range []string{"rating", "total_reviews", "price_level"} {
		if l.Supplied[column] {
			columns = append(columns, column)
		}
	}
	if l.Category != "" {
		columns = append(columns, "category", "display_category")
	}
	if l.Supplied["languages"] && len(l.Languages) > 0 {
		columns = append(columns, "languages")
	}

	optional := []struct {
		column string
		value  *string
	}{
		{"phone", l.Phone},
		{"website", l.Website},
		{"address", l.Address},
		{"area", l.Area},
		{"postal_code", l.PostalCode},
		{"description", l.Description},
	}
	for _, o := range optional {
		if o.value != nil {
			columns = append(columns, o.column)
		}
	}

	if len(l.Amenities) > 0 {
		columns = append(columns, "amenities")
	}
	if len(l.Images) > 0 {
		columns = append(columns, "images")
	}
	if l.Latitude != nil && l.Longitude != nil {
		columns = append(columns, "latitude", "longitude")
	}
	if l.OpeningHours != nil {
		columns = append(columns, "opening_hours")
	}
	return columns
}

// ApplyMerge copies the merge columns of incoming onto l in memory,
// mirroring what the store writes for a merge decision.
func (l *Listing) ApplyMerge(incoming *Listing) {
	for _, column := range incoming.MergeColumns() {
		switch column {
		case "rating":
			l.Rating = incoming.Rating
		case "total_reviews":
			l.TotalReviews = incoming.TotalReviews
		case "price_level":
			l.PriceLevel = incoming.PriceLevel
		case "category":
			l.Category = incoming.Category
		case "display_category":
			l.DisplayCategory = incoming.DisplayCategory
		case "languages":
			l.Languages = incoming.Languages
		case "phone":
			l.Phone = incoming.Phone
		case "website":
			l.Website = incoming.Website
		case "address":
			l.Address = incoming.Address
		case "area":
			l.Area = incoming.Area
		case "postal_code":
			l.PostalCode = incoming.PostalCode
		case "description":
			l.Description = incoming.Description
		case "amenities":
			l.Amenities = incoming.Amenities
		case "images":
			l.Images = incoming.Images
		case "latitude":
			l.Latitude = incoming.Latitude
		case "longitude":
			l.Longitude = incoming.Longitude
		case "opening_hours":
			l.OpeningHours = incoming.OpeningHours
		}
	}
}

type Category struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"not null"`
	Icon      string    `json:"icon"`
	CreatedAt time.Time `json:"created_at"`
}

// ListingClick records a visitor interaction with a listing's contact links
type ListingClick struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	ListingID uint      `json:"listing_id" gorm:"not null;index"`
	Kind      string    `json:"kind" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
}

// ClickKinds are the interactions that can be recorded
var ClickKinds = map[string]bool{
	"phone":      true,
	"website":    true,
	"directions": true,
}

// ListingFilter narrows a listing search; empty fields match everything
type ListingFilter struct {
	Category string `form:"category"`
	Area     string `form:"area"`
	Query    string `form:"q"`
	Limit    int    `form:"limit"`
}
