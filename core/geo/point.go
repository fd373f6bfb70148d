// Package geo holds the planar geometry used by the simulated city.
package geo

import (
	"fmt"
	"math"
)

// Point is an immutable position in the city, in kilometres.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// DistanceTo returns the distance from p to q.
func (p Point) DistanceTo(q Point) float64 { return Distance(p, q) }

// Clamp keeps both coordinates of p inside [min, max].
func Clamp(p Point, min, max float64) Point {
	return Point{X: math.Max(min, math.Min(max, p.X)), Y: math.Max(min, math.Min(max, p.Y))}
}

// Offset moves p by dist along the bearing given in radians.
func Offset(p Point, dist, bearing float64) Point {
	return Point{X: p.X + dist*math.Cos(bearing), Y: p.Y + dist*math.Sin(bearing)}
}

func (p Point) String() string {
	return fmt.Sprintf("(%.1f, %.1f)", p.X, p.Y)
}
