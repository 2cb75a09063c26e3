package components

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Position represents an agent's arena position.
type Position struct {
	X, Y float64
}

// Velocity represents an agent's velocity in units per second.
type Velocity struct {
	X, Y float64
}

// Vec returns p as a gonum vector.
func (p Position) Vec() r2.Vec { return r2.Vec{X: p.X, Y: p.Y} }

// PositionOf converts a gonum vector to a Position.
func PositionOf(v r2.Vec) Position { return Position{X: v.X, Y: v.Y} }

// Add returns p+q.
func (p Position) Add(q Position) Position { return PositionOf(r2.Add(p.Vec(), q.Vec())) }

// Sub returns p-q.
func (p Position) Sub(q Position) Position { return PositionOf(r2.Sub(p.Vec(), q.Vec())) }

// Scale returns p scaled by f.
func (p Position) Scale(f float64) Position { return PositionOf(r2.Scale(f, p.Vec())) }

// Len returns the magnitude of p.
func (p Position) Len() float64 { return r2.Norm(p.Vec()) }

// Normalize returns the unit vector in the direction of p.
// The zero vector normalizes to itself.
func (p Position) Normalize() Position {
	if p.X == 0 && p.Y == 0 {
		return p
	}
	return PositionOf(r2.Unit(p.Vec()))
}

// DistanceTo returns the Euclidean distance between p and q.
func (p Position) DistanceTo(q Position) float64 { return r2.Norm(r2.Sub(p.Vec(), q.Vec())) }

// IsFinite reports whether both coordinates are finite.
func (p Position) IsFinite() bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// Vec returns v as a gonum vector.
func (v Velocity) Vec() r2.Vec { return r2.Vec{X: v.X, Y: v.Y} }

// Speed returns the magnitude of v.
func (v Velocity) Speed() float64 { return r2.Norm(v.Vec()) }
