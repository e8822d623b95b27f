package resource

import "math"

const (
	earthRadiusMeters = 6371000.0
	floorHeightMeters = 10.0
	// sameSiteMeters approximates two rooms on the same floor of one building.
	sameSiteMeters = 25.0
)

type Coordinates struct {
	Lat float64
	Lon float64
}

type Location struct {
	Building    string
	Floor       int
	Room        string
	Coordinates *Coordinates
}

func (l Location) Known() bool {
	return l.Coordinates != nil || l.Building != ""
}

// DistanceMeters estimates the distance between two locations. Geographic
// coordinates win; otherwise rooms in the same building are compared by floor.
// ok is false when no estimate is possible.
func DistanceMeters(a, b Location) (meters float64, ok bool) {
	if a.Coordinates != nil && b.Coordinates != nil {
		return haversine(*a.Coordinates, *b.Coordinates), true
	}
	if a.Building != "" && a.Building == b.Building {
		floors := math.Abs(float64(a.Floor - b.Floor))
		if floors == 0 {
			return sameSiteMeters, true
		}
		return sameSiteMeters + floors*floorHeightMeters, true
	}
	return 0, false
}

func haversine(a, b Coordinates) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}
