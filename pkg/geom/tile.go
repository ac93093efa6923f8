// pkg/geom/tile.go
package geom

// TilePos addresses one cell of an interior grid.
type TilePos struct {
	X int
	Y int
}

// TileRect is a half-open block of tiles [X, X+W) × [Y, Y+H).
type TileRect struct {
	X, Y, W, H int
}

// Contains reports whether p lies inside r.
func (r TileRect) Contains(p TilePos) bool {
	return p.X >= r.X && p.X < r.X+r.W && p.Y >= r.Y && p.Y < r.Y+r.H
}

// Chebyshev returns the king-move distance from p to the nearest tile of r,
// zero when p is inside.
func (r TileRect) Chebyshev(p TilePos) int {
	dx := gap(p.X, r.X, r.X+r.W-1)
	dy := gap(p.Y, r.Y, r.Y+r.H-1)
	if dx > dy {
		return dx
	}
	return dy
}

func gap(v, lo, hi int) int {
	switch {
	case v < lo:
		return lo - v
	case v > hi:
		return v - hi
	}
	return 0
}

// Rect is an axis-aligned screen rectangle.
type Rect struct {
	X, Y, W, H float64
}

// Contains reports whether p lies inside r.
func (r Rect) Contains(p Vec2) bool {
	return p.X >= r.X && p.X < r.X+r.W && p.Y >= r.Y && p.Y < r.Y+r.H
}
