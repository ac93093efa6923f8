package render

import (
	"image/color"
	"math"
	"strings"
)

// Virtual pixels per character cell. The viewer works in pixels; text
// frontends divide by these.
const (
	CellWidth  = 8
	CellHeight = 16
)

// Cell is one character position.
type Cell struct {
	Rune rune
	Fg   color.RGBA
	Bg   color.RGBA
	Bold bool
}

// Canvas is a grid of cells that drawing code writes into before a
// frontend flushes it. Writes outside the grid are ignored.
type Canvas struct {
	width, height int
	cells         []Cell
}

// NewCanvas creates a width×height cell grid.
func NewCanvas(width, height int) *Canvas {
	c := &Canvas{}
	c.Resize(width, height)
	return c
}

// Resize changes the grid size, discarding its contents.
func (c *Canvas) Resize(width, height int) {
	width, height = max(width, 0), max(height, 0)
	c.width, c.height = width, height
	if cap(c.cells) >= width*height {
		c.cells = c.cells[:width*height]
	} else {
		c.cells = make([]Cell, width*height)
	}
}

// Size returns the grid dimensions in cells.
func (c *Canvas) Size() (width, height int) {
	return c.width, c.height
}

// Clear fills the grid with blanks on bg.
func (c *Canvas) Clear(bg color.RGBA) {
	for i := range c.cells {
		c.cells[i] = Cell{Rune: ' ', Fg: bg, Bg: bg}
	}
}

// At returns the cell at (x, y), or a zero Cell outside the grid.
func (c *Canvas) At(x, y int) Cell {
	if !c.inside(x, y) {
		return Cell{}
	}
	return c.cells[y*c.width+x]
}

func (c *Canvas) inside(x, y int) bool {
	return x >= 0 && y >= 0 && x < c.width && y < c.height
}

// Set writes r in fg, keeping the cell's background.
func (c *Canvas) Set(x, y int, r rune, fg color.RGBA) {
	if !c.inside(x, y) {
		return
	}
	cell := &c.cells[y*c.width+x]
	cell.Rune, cell.Fg, cell.Bold = r, fg, false
}

// SetBold is Set with the bold attribute.
func (c *Canvas) SetBold(x, y int, r rune, fg color.RGBA) {
	c.Set(x, y, r, fg)
	if c.inside(x, y) {
		c.cells[y*c.width+x].Bold = true
	}
}

// Fill sets the background of a rectangle of cells.
func (c *Canvas) Fill(x, y, w, h int, bg color.RGBA) {
	for row := y; row < y+h; row++ {
		for col := x; col < x+w; col++ {
			if c.inside(col, row) {
				c.cells[row*c.width+col].Bg = bg
			}
		}
	}
}

// Text writes s starting at (x, y) without wrapping.
func (c *Canvas) Text(x, y int, s string, fg color.RGBA) {
	for i, r := range []rune(s) {
		c.Set(x+i, y, r, fg)
	}
}

// Box draws a single-line frame with its top-left corner at (x, y).
func (c *Canvas) Box(x, y, w, h int, fg color.RGBA) {
	if w < 2 || h < 2 {
		return
	}
	for col := x + 1; col < x+w-1; col++ {
		c.Set(col, y, '─', fg)
		c.Set(col, y+h-1, '─', fg)
	}
	for row := y + 1; row < y+h-1; row++ {
		c.Set(x, row, '│', fg)
		c.Set(x+w-1, row, '│', fg)
	}
	c.Set(x, y, '┌', fg)
	c.Set(x+w-1, y, '┐', fg)
	c.Set(x, y+h-1, '└', fg)
	c.Set(x+w-1, y+h-1, '┘', fg)
}

// Line draws from (x0, y0) to (x1, y1) with Bresenham's algorithm.
func (c *Canvas) Line(x0, y0, x1, y1 int, r rune, fg color.RGBA) {
	dx, dy := abs(x1-x0), -abs(y1-y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	errAcc := dx + dy
	for i := max(dx, -dy); i >= 0; i-- {
		c.Set(x0, y0, r, fg)
		e2 := 2 * errAcc
		if e2 >= dy {
			errAcc += dy
			x0 += sx
		}
		if e2 <= dx {
			errAcc += dx
			y0 += sy
		}
	}
}

// Ellipse outlines an ellipse centered on (cx, cy) with radii in cells.
func (c *Canvas) Ellipse(cx, cy, rx, ry float64, r rune, fg color.RGBA) {
	if rx <= 0 || ry <= 0 {
		return
	}
	steps := int(math.Min(4096, math.Max(16, 4*(rx+ry))))
	for i := 0; i < steps; i++ {
		a := 2 * math.Pi * float64(i) / float64(steps)
		c.Set(int(math.Floor(cx+rx*math.Cos(a))), int(math.Floor(cy+ry*math.Sin(a))), r, fg)
	}
}

// String renders the runes row by row, for logs and tests.
func (c *Canvas) String() string {
	var b strings.Builder
	for y := 0; y < c.height; y++ {
		for x := 0; x < c.width; x++ {
			r := c.cells[y*c.width+x].Rune
			if r == 0 {
				r = ' '
			}
			b.WriteRune(r)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
