package geo

import "math"

const earthRadiusKm = 6371.0

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// HaversineKm returns the great-circle distance between a and b in kilometers.
func HaversineKm(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)

	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// Matrix is a symmetric n×n distance matrix in kilometers.
type Matrix [][]float64

// NewMatrix builds the pairwise haversine matrix for pts.
func NewMatrix(pts []Point) Matrix {
	n := len(pts)
	m := make(Matrix, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := HaversineKm(pts[i], pts[j])
			m[i][j] = d
			m[j][i] = d
		}
	}
	return m
}

// PathLength returns the length of the open path visiting order in sequence.
func (m Matrix) PathLength(order []int) float64 {
	total := 0.0
	for i := 0; i+1 < len(order); i++ {
		total += m[order[i]][order[i+1]]
	}
	return total
}
