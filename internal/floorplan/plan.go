package floorplan

import (
	"errors"
	"fmt"
	"strings"
)

// Cell is the static kind of one floor-plan cell.
type Cell uint8

const (
	CellWall       Cell = iota // not walkable
	CellFloor                  // open floor
	CellExit                   // building exit, walkable
	CellFrontStair             // front stair cluster waypoint, walkable
	CellBackStair              // back stair cluster waypoint, walkable
	CellRestricted             // walkable, but fire never starts here
)

func (c Cell) String() string {
	switch c {
	case CellWall:
		return "wall"
	case CellFloor:
		return "floor"
	case CellExit:
		return "exit"
	case CellFrontStair:
		return "front_stair"
	case CellBackStair:
		return "back_stair"
	case CellRestricted:
		return "restricted"
	default:
		return "unknown"
	}
}

// Glyphs used by the ASCII floor-plan format.
const (
	GlyphWall       = '#'
	GlyphFloor      = '.'
	GlyphExit       = 'E'
	GlyphFrontStair = 'F'
	GlyphBackStair  = 'B'
	GlyphRestricted = 'x'
)

var (
	ErrEmpty  = errors.New("floorplan: empty plan")
	ErrRagged = errors.New("floorplan: rows have different widths")
	ErrNoExit = errors.New("floorplan: plan has no exit")
)

// Plan is a rasterized single-floor building layout.
type Plan struct {
	cols  int
	rows  int
	cells []Cell

	exits       [][2]int
	frontStairs [][2]int
	backStairs  [][2]int
}

// New builds an all-floor plan of the given size with no exits. Callers add
// features with Set.
func New(cols, rows int) *Plan {
	if cols <= 0 {
		cols = 1
	}
	if rows <= 0 {
		rows = 1
	}
	p := &Plan{cols: cols, rows: rows, cells: make([]Cell, cols*rows)}
	for i := range p.cells {
		p.cells[i] = CellFloor
	}
	return p
}

// Parse reads an ASCII floor plan. Every row must have the same width and the
// plan must contain at least one exit.
func Parse(src string) (*Plan, error) {
	var lines []string
	for _, l := range strings.Split(strings.ReplaceAll(src, "\r\n", "\n"), "\n") {
		l = strings.TrimRight(l, " \t")
		if l == "" {
			continue
		}
		lines = append(lines, l)
	}
	if len(lines) == 0 {
		return nil, ErrEmpty
	}
	cols := len(lines[0])
	p := &Plan{cols: cols, rows: len(lines), cells: make([]Cell, cols*len(lines))}
	for y, l := range lines {
		if len(l) != cols {
			return nil, fmt.Errorf("%w: row %d has width %d, want %d", ErrRagged, y, len(l), cols)
		}
		for x := 0; x < cols; x++ {
			c, ok := cellForGlyph(l[x])
			if !ok {
				return nil, fmt.Errorf("floorplan: unknown glyph %q at (%d,%d)", l[x], x, y)
			}
			p.cells[y*cols+x] = c
		}
	}
	p.reindex()
	if len(p.exits) == 0 {
		return nil, ErrNoExit
	}
	return p, nil
}

// MustParse is Parse for fixed test layouts.
func MustParse(src string) *Plan {
	p, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return p
}

func cellForGlyph(b byte) (Cell, bool) {
	switch b {
	case GlyphWall:
		return CellWall, true
	case GlyphFloor, ' ':
		return CellFloor, true
	case GlyphExit:
		return CellExit, true
	case GlyphFrontStair:
		return CellFrontStair, true
	case GlyphBackStair:
		return CellBackStair, true
	case GlyphRestricted:
		return CellRestricted, true
	default:
		return CellWall, false
	}
}

func glyphForCell(c Cell) byte {
	switch c {
	case CellFloor:
		return GlyphFloor
	case CellExit:
		return GlyphExit
	case CellFrontStair:
		return GlyphFrontStair
	case CellBackStair:
		return GlyphBackStair
	case CellRestricted:
		return GlyphRestricted
	default:
		return GlyphWall
	}
}

// reindex rebuilds the exit and stair lists in row-major order.
func (p *Plan) reindex() {
	p.exits, p.frontStairs, p.backStairs = nil, nil, nil
	for y := 0; y < p.rows; y++ {
		for x := 0; x < p.cols; x++ {
			switch p.cells[y*p.cols+x] {
			case CellExit:
				p.exits = append(p.exits, [2]int{x, y})
			case CellFrontStair:
				p.frontStairs = append(p.frontStairs, [2]int{x, y})
			case CellBackStair:
				p.backStairs = append(p.backStairs, [2]int{x, y})
			}
		}
	}
}

// Set overwrites one cell. Out-of-bounds writes are ignored.
func (p *Plan) Set(x, y int, c Cell) {
	if !p.InBounds(x, y) {
		return
	}
	p.cells[y*p.cols+x] = c
	p.reindex()
}

// Cols returns the plan width in cells.
func (p *Plan) Cols() int { return p.cols }

// Rows returns the plan height in cells.
func (p *Plan) Rows() int { return p.rows }

// InBounds reports whether (x, y) lies on the plan.
func (p *Plan) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < p.cols && y < p.rows
}

// Kind returns the cell kind, CellWall when out of bounds.
func (p *Plan) Kind(x, y int) Cell {
	if !p.InBounds(x, y) {
		return CellWall
	}
	return p.cells[y*p.cols+x]
}

// IsWalkable returns true for any in-bounds non-wall cell.
func (p *Plan) IsWalkable(x, y int) bool {
	return p.Kind(x, y) != CellWall
}

// IsBlocked is the inverse of IsWalkable; kept for the pathfinder.
func (p *Plan) IsBlocked(x, y int) bool {
	return !p.IsWalkable(x, y)
}

// IsRestricted reports cells where a fire may not be started: exits, stairs
// and explicitly restricted floor. Walls are not restricted, just unwalkable.
func (p *Plan) IsRestricted(x, y int) bool {
	switch p.Kind(x, y) {
	case CellExit, CellFrontStair, CellBackStair, CellRestricted:
		return true
	}
	return false
}

// Exits returns exit cells in row-major order.
func (p *Plan) Exits() [][2]int { return p.exits }

// FrontStairs returns the front stair cluster cells.
func (p *Plan) FrontStairs() [][2]int { return p.frontStairs }

// BackStairs returns the back stair cluster cells.
func (p *Plan) BackStairs() [][2]int { return p.backStairs }

// WalkableCells lists every walkable cell in row-major order.
func (p *Plan) WalkableCells() [][2]int {
	var out [][2]int
	for y := 0; y < p.rows; y++ {
		for x := 0; x < p.cols; x++ {
			if p.cells[y*p.cols+x] != CellWall {
				out = append(out, [2]int{x, y})
			}
		}
	}
	return out
}

// String renders the plan back to its ASCII form.
func (p *Plan) String() string {
	var sb strings.Builder
	for y := 0; y < p.rows; y++ {
		for x := 0; x < p.cols; x++ {
			sb.WriteByte(glyphForCell(p.cells[y*p.cols+x]))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
