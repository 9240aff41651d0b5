package normalize

import (
	"fmt"
	"strings"

	"bonairerentalhub/server/internal/decoder"
	"bonairerentalhub/server/internal/models"
)

const maxOpeningHourPairs = 7

var weekdayOrder = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// weekdayNames maps Dutch, Papiamentu, Spanish and English day names to the canonical key
var weekdayNames = map[string]string{
	"maandag":   "monday",
	"dinsdag":   "tuesday",
	"woensdag":  "wednesday",
	"donderdag": "thursday",
	"vrijdag":   "friday",
	"zaterdag":  "saturday",
	"zondag":    "sunday",

	"djaluna":    "monday",
	"djamars":    "tuesday",
	"djarason":   "wednesday",
	"djaweps":    "thursday",
	"djabierne":  "friday",
	"djasabra":   "saturday",
	"djadumingu": "sunday",

	"lunes":     "monday",
	"martes":    "tuesday",
	"miércoles": "wednesday",
	"miercoles": "wednesday",
	"jueves":    "thursday",
	"viernes":   "friday",
	"sábado":    "saturday",
	"sabado":    "saturday",
	"domingo":   "sunday",

	"monday":    "monday",
	"tuesday":   "tuesday",
	"wednesday": "wednesday",
	"thursday":  "thursday",
	"friday":    "friday",
	"saturday":  "saturday",
	"sunday":    "sunday",
}

var roundTheClock = map[string]bool{
	"24/7":          true,
	"24 hours":      true,
	"open 24 hours": true,
	"always open":   true,
	"true":          true,
	"yes":           true,
}

var fullDay = models.DayHours{Open: "00:00", Close: "23:59"}

// ParseOpeningHours builds the weekday map from the indexed
// openinghours/{n}/day and openinghours/{n}/hours columns. Without indexed
// pairs a round-the-clock opening_hours flag yields the whole week; otherwise
// the result is nil.
func ParseOpeningHours(row decoder.RawRow) models.OpeningHours {
	hours := models.OpeningHours{}
	for i := 0; i < maxOpeningHourPairs; i++ {
		day := row.Get(fmt.Sprintf("openinghours/%d/day", i))
		span := row.Get(fmt.Sprintf("openinghours/%d/hours", i))
		if day == "" || span == "" {
			continue
		}

		key, ok := weekdayNames[strings.ToLower(day)]
		if !ok {
			continue
		}

		if roundTheClock[strings.ToLower(span)] {
			hours[key] = fullDay
			continue
		}

		parts := strings.SplitN(span, " to ", 2)
		if len(parts) != 2 {
			continue
		}
		opens, closes := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if opens == "" || closes == "" {
			continue
		}
		hours[key] = models.DayHours{Open: opens, Close: closes}
	}
	if len(hours) > 0 {
		return hours
	}

	if roundTheClock[strings.ToLower(row.Get("opening_hours"))] {
		week := make(models.OpeningHours, len(weekdayOrder))
		for _, day := range weekdayOrder {
			week[day] = fullDay
		}
		return week
	}
	return nil
}
