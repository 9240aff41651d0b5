// Package geometry answers spatial questions about the island region.
package geometry

import (
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"bonairerentalhub/server/config"
	"bonairerentalhub/server/internal/models"
)

// Region is the island bounding box and centre in orb coordinates (lng, lat)
type Region struct {
	Name   string
	Bound  orb.Bound
	Center orb.Point
}

func NewRegion(r config.Region) Region {
	region := Region{Name: r.Name}
	if len(r.Bounds) == 4 {
		region.Bound = orb.Bound{
			Min: orb.Point{r.Bounds[1], r.Bounds[0]},
			Max: orb.Point{r.Bounds[3], r.Bounds[2]},
		}
	}
	if len(r.Center) == 2 {
		region.Center = orb.Point{r.Center[1], r.Center[0]}
	} else {
		region.Center = region.Bound.Center()
	}
	return region
}

// Contains reports whether the coordinate lies inside the region's bounding box
func (r Region) Contains(lat, lng float64) bool {
	return r.Bound.Contains(orb.Point{lng, lat})
}

// ContainsListing reports whether a listing has coordinates inside the region.
// Listings without coordinates are not contained.
func (r Region) ContainsListing(l *models.Listing) bool {
	if l.Latitude == nil || l.Longitude == nil {
		return false
	}
	return r.Contains(*l.Latitude, *l.Longitude)
}

// DistanceKm returns the great-circle distance between two coordinates
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	return geo.Distance(orb.Point{lng1, lat1}, orb.Point{lng2, lat2}) / 1000
}

// SortByDistance orders listings by distance from the given point. Listings
// without coordinates keep their relative order after the located ones.
func SortByDistance(listings []models.Listing, lat, lng float64) {
	distance := func(l models.Listing) (float64, bool) {
		if l.Latitude == nil || l.Longitude == nil {
			return 0, false
		}
		return DistanceKm(lat, lng, *l.Latitude, *l.Longitude), true
	}

	sort.SliceStable(listings, func(i, j int) bool {
		di, iok := distance(listings[i])
		dj, jok := distance(listings[j])
		if iok != jok {
			return iok
		}
		return iok && di < dj
	})
}
