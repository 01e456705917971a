package utils

import (
	"math"

	"github.com/mmcloughlin/geohash"
)

// EarthRadiusMeters is the mean Earth radius used by the haversine formula
const EarthRadiusMeters = 6371000.0

// GeohashPrecision is the precision of hashes stored with positions (~1.2m x 0.6m cells at 9)
const GeohashPrecision uint = 9

// GeoPoint represents a geographical point with latitude and longitude
type GeoPoint struct {
	Latitude  float64
	Longitude float64
}

// DistanceMeters returns the great-circle distance between two points in meters
func DistanceMeters(p1, p2 GeoPoint) float64 {
	lat1 := p1.Latitude * math.Pi / 180.0
	lat2 := p2.Latitude * math.Pi / 180.0
	dLat := lat2 - lat1
	dLon := (p2.Longitude - p1.Longitude) * math.Pi / 180.0

	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// Destination returns the point reached from p travelling distance meters on the given
// bearing (degrees clockwise from north)
func Destination(p GeoPoint, bearing, distance float64) GeoPoint {
	lat1 := p.Latitude * math.Pi / 180.0
	lon1 := p.Longitude * math.Pi / 180.0
	brng := bearing * math.Pi / 180.0
	d := distance / EarthRadiusMeters

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(d) + math.Cos(lat1)*math.Sin(d)*math.Cos(brng))
	lon2 := lon1 + math.Atan2(math.Sin(brng)*math.Sin(d)*math.Cos(lat1), math.Cos(d)-math.Sin(lat1)*math.Sin(lat2))

	return GeoPoint{Latitude: lat2 * 180.0 / math.Pi, Longitude: lon2 * 180.0 / math.Pi}
}

// ValidCoordinates reports whether lat/lon are inside [-90,90] x [-180,180]
func ValidCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// Encode returns the geohash of p at GeohashPrecision
func Encode(p GeoPoint) string {
	return geohash.EncodeWithPrecision(p.Latitude, p.Longitude, GeohashPrecision)
}

// DecodeGeohash converts a geohash string to the center of its cell
func DecodeGeohash(hash string) GeoPoint {
	lat, lon := geohash.Decode(hash)
	return GeoPoint{Latitude: lat, Longitude: lon}
}
