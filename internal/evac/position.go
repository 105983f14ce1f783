package evac

import (
	"fmt"
	"math"
)

// Pos is a grid cell coordinate. Agents are handed new Pos values; a Pos is
// never mutated in place.
type Pos struct {
	X, Y int
}

// P is shorthand for Pos{x, y}.
func P(x, y int) Pos { return Pos{X: x, Y: y} }

func (p Pos) Add(q Pos) Pos { return Pos{p.X + q.X, p.Y + q.Y} }
func (p Pos) Sub(q Pos) Pos { return Pos{p.X - q.X, p.Y - q.Y} }

// Vec converts the cell to a continuous position at its centre.
func (p Pos) Vec() Vec2 { return Vec2{float64(p.X), float64(p.Y)} }

func (p Pos) String() string { return fmt.Sprintf("(%d,%d)", p.X, p.Y) }

// Chebyshev returns the king-move distance between two cells.
func Chebyshev(a, b Pos) int {
	return max(iabs(a.X-b.X), iabs(a.Y-b.Y))
}

// Manhattan returns the 4-connected distance between two cells.
func Manhattan(a, b Pos) int {
	return iabs(a.X-b.X) + iabs(a.Y-b.Y)
}

func iabs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Vec2 is a continuous position or velocity used by the social force model.
type Vec2 struct {
	X, Y float64
}

func (v Vec2) Add(o Vec2) Vec2 {
	return Vec2{v.X + o.X, v.Y + o.Y}
}

func (v Vec2) Sub(o Vec2) Vec2 {
	return Vec2{v.X - o.X, v.Y - o.Y}
}

func (v Vec2) Scale(k float64) Vec2 {
	return Vec2{v.X * k, v.Y * k}
}

func (v Vec2) Len() float64 {
	return math.Hypot(v.X, v.Y)
}

// Round snaps the position to the nearest cell.
func (v Vec2) Round() Pos {
	return Pos{int(math.Round(v.X)), int(math.Round(v.Y))}
}

func (v Vec2) String() string {
	return fmt.Sprintf("(%.2f,%.2f)", v.X, v.Y)
}

// Normalize returns the unit vector, or zero for a zero vector.
func (v Vec2) Normalize() Vec2 {
	l := v.Len()
	if l < 1e-9 {
		return Vec2{}
	}
	return Vec2{v.X / l, v.Y / l}
}

// Clamp limits the magnitude to maxLen.
func (v Vec2) Clamp(maxLen float64) Vec2 {
	l := v.Len()
	if l <= maxLen || l < 1e-9 {
		return v
	}
	return v.Scale(maxLen / l)
}

// ChebyshevF is the continuous king-move distance.
func ChebyshevF(a, b Vec2) float64 {
	return math.Max(math.Abs(a.X-b.X), math.Abs(a.Y-b.Y))
}

// Dir is one of the eight compass directions. DirNone marks "no heading yet".
type Dir int

const (
	DirNone Dir = iota - 1
	DirN
	DirNE
	DirE
	DirSE
	DirS
	DirSW
	DirW
	DirNW
)

// scanOrder is the fixed order used when looking for an escape cell.
var scanOrder = [8]Dir{DirN, DirNE, DirE, DirSE, DirS, DirSW, DirW, DirNW}

var dirDeltas = [8]Pos{
	DirN:  {0, -1},
	DirNE: {1, -1},
	DirE:  {1, 0},
	DirSE: {1, 1},
	DirS:  {0, 1},
	DirSW: {-1, 1},
	DirW:  {-1, 0},
	DirNW: {-1, -1},
}

// Delta returns the unit step for the direction.
func (d Dir) Delta() Pos {
	if d < DirN || d > DirNW {
		return Pos{}
	}
	return dirDeltas[d]
}

// Opposite returns the 180° reversal.
func (d Dir) Opposite() Dir {
	if d == DirNone {
		return DirNone
	}
	return (d + 4) % 8
}

func (d Dir) String() string {
	switch d {
	case DirN:
		return "N"
	case DirNE:
		return "NE"
	case DirE:
		return "E"
	case DirSE:
		return "SE"
	case DirS:
		return "S"
	case DirSW:
		return "SW"
	case DirW:
		return "W"
	case DirNW:
		return "NW"
	default:
		return "-"
	}
}

// DirBetween returns the direction of a single king step from a to b. The
// second result is false when b is not adjacent to a.
func DirBetween(a, b Pos) (Dir, bool) {
	d := b.Sub(a)
	for _, dir := range scanOrder {
		if dirDeltas[dir] == d {
			return dir, true
		}
	}
	return DirNone, false
}

// stepToward returns the sign-step from a toward b (one king move).
func stepToward(a, b Pos) Pos {
	return Pos{sign(b.X - a.X), sign(b.Y - a.Y)}
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
