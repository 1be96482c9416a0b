package mesh

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidGeometry is returned for degenerate primitives or grid sizes.
var ErrInvalidGeometry = errors.New("mesh: invalid geometry")

// Point is a location in the plane
type Point struct {
	X, Y float64
}

// Rectangle is an axis-aligned box given by two opposite corners.
type Rectangle struct {
	Min, Max Point
}

// NewRectangle normalizes the corners and rejects empty boxes.
func NewRectangle(a, b Point) (Rectangle, error) {
	r := Rectangle{
		Min: Point{math.Min(a.X, b.X), math.Min(a.Y, b.Y)},
		Max: Point{math.Max(a.X, b.X), math.Max(a.Y, b.Y)},
	}
	if r.Width() <= 0 || r.Height() <= 0 {
		return Rectangle{}, fmt.Errorf("%w: rectangle %v-%v has zero extent", ErrInvalidGeometry, a, b)
	}
	return r, nil
}

// Width returns the extent along x
func (r Rectangle) Width() float64 { return r.Max.X - r.Min.X }

// Height returns the extent along y
func (r Rectangle) Height() float64 { return r.Max.Y - r.Min.Y }

// Area returns width times height
func (r Rectangle) Area() float64 { return r.Width() * r.Height() }

// Circle is a disc, used as an obstacle inside a channel.
type Circle struct {
	Center Point
	Radius float64
}

// Contains reports whether p lies in the closed disc.
func (c Circle) Contains(p Point) bool {
	dx, dy := p.X-c.Center.X, p.Y-c.Center.Y
	return dx*dx+dy*dy <= c.Radius*c.Radius
}

// Near compares two coordinates with an absolute tolerance.
func Near(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}
