package geo

import (
	"math"

	"github.com/joloLG/joloRide/internal/models"
)

// EarthRadiusKm is the mean earth radius used by Haversine.
const EarthRadiusKm = 6371.0

// Haversine returns the great-circle distance between two points in kilometers.
func Haversine(a, b models.Coord) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// Ranked is a point of interest with its distance from a query point.
type Ranked[T any] struct {
	Item       T
	DistanceKm float64
}

// Nearest picks up to limit items within radiusKm of center, closest first.
// naive scan; fine for the rider counts of a single city.
func Nearest[T any](center models.Coord, items []T, pos func(T) models.Coord, radiusKm float64, limit int) []Ranked[T] {
	arr := make([]Ranked[T], 0, len(items))
	for _, it := range items {
		d := Haversine(center, pos(it))
		if radiusKm > 0 && d > radiusKm {
			continue
		}
		arr = append(arr, Ranked[T]{it, d})
	}
	// partial selection sort for top-N
	n := limit
	if n <= 0 || n > len(arr) {
		n = len(arr)
	}
	for i := 0; i < n; i++ {
		minIdx := i
		for j := i + 1; j < len(arr); j++ {
			if arr[j].DistanceKm < arr[minIdx].DistanceKm {
				minIdx = j
			}
		}
		arr[i], arr[minIdx] = arr[minIdx], arr[i]
	}
	return arr[:n]
}
