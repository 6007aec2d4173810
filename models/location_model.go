package models

import (
	"math"
	"strconv"
	"time"
)

// LocationRecord is a user-placed pin as persisted in the document store.
// Lat/Lon are kept as the raw strings clients submitted; records whose
// coordinates do not parse to finite numbers are excluded from the map.
type LocationRecord struct {
	ID        string    `json:"id" bson:"_id,omitempty"`
	OwnerID   string    `json:"owner_id" bson:"owner_id"`
	Lat       string    `json:"lat" bson:"lat"`
	Lon       string    `json:"lon" bson:"lon"`
	Title     string    `json:"title" bson:"title"`
	Notes     string    `json:"notes" bson:"notes"`
	Address   string    `json:"address" bson:"address"`
	ImageURL  string    `json:"image_url,omitempty" bson:"image_url,omitempty"`
	Upvotes   []string  `json:"upvotes" bson:"upvotes"`
	Downvotes []string  `json:"downvotes" bson:"downvotes"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// Coordinates parses the record's raw lat/lon. ok is false when either value
// is non-numeric, non-finite, or out of range.
func (r *LocationRecord) Coordinates() (lat, lon float64, ok bool) {
	lat, err := strconv.ParseFloat(r.Lat, 64)
	if err != nil || math.IsInf(lat, 0) || math.IsNaN(lat) {
		return 0, 0, false
	}
	lon, err = strconv.ParseFloat(r.Lon, 64)
	if err != nil || math.IsInf(lon, 0) || math.IsNaN(lon) {
		return 0, 0, false
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, false
	}
	return lat, lon, true
}

// Score is upvote count minus downvote count.
func (r *LocationRecord) Score() int {
	return len(r.Upvotes) - len(r.Downvotes)
}

// MarkerHandle is a marker as handed to the rendering layer: a point plus
// ready-to-display popup markup.
type MarkerHandle struct {
	LocationID string  `json:"location_id"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Popup      string  `json:"popup"`
}

// MarkerViewModel joins one location record with its resolved owner profile
// and the marker registered for it. Owned by the location store and rebuilt
// wholesale on every reload.
type MarkerViewModel struct {
	Record LocationRecord
	Owner  Profile
	Marker *MarkerHandle
}
