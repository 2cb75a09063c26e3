// Package systems provides the battle engine's building blocks: spatial
// indexing, attention, combat memory, targeting and damage resolution.
package systems

import (
	"math"

	"github.com/pthm-cable/brawl/components"
)

// indexEntry records where an id lives in the grid.
type indexEntry struct {
	cell int
	pos  components.Position
}

// SpatialIndex is a uniform grid mapping cells to the ids located inside them.
// It is maintained incrementally: callers Insert once, Update on every move
// and Remove on death, so each id sits in exactly one cell, the one that
// contains its last reported position.
//
// The index does not own the agents; it only stores ids and copies of the
// positions supplied by the caller. It is not safe for concurrent mutation.
type SpatialIndex[K comparable] struct {
	cellSize float64
	cols     int
	rows     int
	width    float64
	height   float64
	cells    [][]K
	where    map[K]indexEntry
}

// NewSpatialIndex creates a grid covering width x height with square cells.
// A non-positive cell size falls back to a single cell.
func NewSpatialIndex[K comparable](width, height, cellSize float64) *SpatialIndex[K] {
	if !(cellSize > 0) {
		cellSize = math.Max(math.Max(width, height), 1)
	}
	cols := int(math.Ceil(width / cellSize))
	rows := int(math.Ceil(height / cellSize))
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}

	cells := make([][]K, cols*rows)
	for i := range cells {
		cells[i] = make([]K, 0, 4) // pre-allocate small capacity
	}

	return &SpatialIndex[K]{
		cellSize: cellSize,
		cols:     cols,
		rows:     rows,
		width:    width,
		height:   height,
		cells:    cells,
		where:    make(map[K]indexEntry),
	}
}

// CellSize returns the grid cell size.
func (g *SpatialIndex[K]) CellSize() float64 { return g.cellSize }

// Dims returns the number of columns and rows.
func (g *SpatialIndex[K]) Dims() (cols, rows int) { return g.cols, g.rows }

// Len returns the number of indexed ids.
func (g *SpatialIndex[K]) Len() int { return len(g.where) }

// Contains reports whether id is indexed.
func (g *SpatialIndex[K]) Contains(id K) bool {
	_, ok := g.where[id]
	return ok
}

// Position returns the last position reported for id.
func (g *SpatialIndex[K]) Position(id K) (components.Position, bool) {
	e, ok := g.where[id]
	return e.pos, ok
}

// CellOf returns the (row, col) of the cell holding id.
func (g *SpatialIndex[K]) CellOf(id K) (row, col int, ok bool) {
	e, ok := g.where[id]
	if !ok {
		return 0, 0, false
	}
	return e.cell / g.cols, e.cell % g.cols, true
}

// Insert places id into the cell for pos. Inserting a known id moves it.
func (g *SpatialIndex[K]) Insert(id K, pos components.Position) {
	if _, ok := g.where[id]; ok {
		g.Update(id, pos)
		return
	}
	idx := g.cellIndex(pos.X, pos.Y)
	g.cells[idx] = append(g.cells[idx], id)
	g.where[id] = indexEntry{cell: idx, pos: pos}
}

// Update records a new position for id, moving it between cells only when
// the cell changes. Unknown ids are inserted.
func (g *SpatialIndex[K]) Update(id K, pos components.Position) {
	e, ok := g.where[id]
	if !ok {
		g.Insert(id, pos)
		return
	}
	idx := g.cellIndex(pos.X, pos.Y)
	if idx != e.cell {
		g.removeFromCell(e.cell, id)
		g.cells[idx] = append(g.cells[idx], id)
	}
	g.where[id] = indexEntry{cell: idx, pos: pos}
}

// Remove clears id from its cell. Removing an unknown id is a no-op.
func (g *SpatialIndex[K]) Remove(id K) bool {
	e, ok := g.where[id]
	if !ok {
		return false
	}
	g.removeFromCell(e.cell, id)
	delete(g.where, id)
	return true
}

// removeFromCell swap-removes id from a cell slice.
func (g *SpatialIndex[K]) removeFromCell(idx int, id K) {
	cell := g.cells[idx]
	for i, other := range cell {
		if other != id {
			continue
		}
		last := len(cell) - 1
		cell[i] = cell[last]
		var zero K
		cell[last] = zero
		g.cells[idx] = cell[:last]
		return
	}
}

// QueryRadius returns the ids near center. With exact set, only ids within
// radius (Euclidean, inclusive) are returned; otherwise every id in the cells
// overlapping the bounding square of the radius is returned.
func (g *SpatialIndex[K]) QueryRadius(center components.Position, radius float64, exact bool, exclude ...K) []K {
	return g.QueryRadiusInto(nil, center, radius, exact, exclude...)
}

// QueryRadiusInto is QueryRadius appending into dst. Reuse dst across calls
// to avoid allocations.
func (g *SpatialIndex[K]) QueryRadiusInto(dst []K, center components.Position, radius float64, exact bool, exclude ...K) []K {
	if !(radius >= 0) {
		radius = 0
	}
	minCol, maxCol, minRow, maxRow := g.span(center, radius)
	radiusSq := radius * radius

	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			for _, id := range g.cells[row*g.cols+col] {
				if excluded(id, exclude) {
					continue
				}
				if exact {
					pos := g.where[id].pos
					if distanceSq(center.X, center.Y, pos.X, pos.Y) > radiusSq {
						continue
					}
				}
				dst = append(dst, id)
			}
		}
	}
	return dst
}

// AnyWithin is a cheap approximate check for ids in the cells overlapping
// the bounding square of radius around center.
func (g *SpatialIndex[K]) AnyWithin(center components.Position, radius float64, exclude ...K) bool {
	if !(radius >= 0) {
		radius = 0
	}
	minCol, maxCol, minRow, maxRow := g.span(center, radius)
	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			for _, id := range g.cells[row*g.cols+col] {
				if !excluded(id, exclude) {
					return true
				}
			}
		}
	}
	return false
}

// QueryNearest finds the closest id to center within maxDistance. It scans
// outward ring by ring from the center cell and stops once no unvisited ring
// can hold anything closer than the best candidate.
func (g *SpatialIndex[K]) QueryNearest(center components.Position, maxDistance float64, exclude ...K) (K, float64, bool) {
	var best K
	bestDist := math.Inf(1)
	found := false
	if !(maxDistance >= 0) || len(g.where) == 0 {
		return best, 0, false
	}

	cc, cr := g.cellCoords(center.X, center.Y)
	maxRing := g.cols
	if g.rows > maxRing {
		maxRing = g.rows
	}

	for ring := 0; ring <= maxRing; ring++ {
		// Every id in this ring is at least (ring-1) cells away.
		if ring > 0 && float64(ring-1)*g.cellSize > maxDistance {
			break
		}
		g.forRing(cc, cr, ring, func(idx int) {
			for _, id := range g.cells[idx] {
				if excluded(id, exclude) {
					continue
				}
				pos := g.where[id].pos
				d := math.Sqrt(distanceSq(center.X, center.Y, pos.X, pos.Y))
				if d <= maxDistance && d < bestDist {
					best, bestDist, found = id, d, true
				}
			}
		})
		if found && bestDist <= float64(ring)*g.cellSize {
			break
		}
	}

	if !found {
		return best, 0, false
	}
	return best, bestDist, true
}

// forRing calls fn for every in-bounds cell at Chebyshev distance ring from
// (cc, cr).
func (g *SpatialIndex[K]) forRing(cc, cr, ring int, fn func(idx int)) {
	if ring == 0 {
		fn(cr*g.cols + cc)
		return
	}
	for dc := -ring; dc <= ring; dc++ {
		col := cc + dc
		if col < 0 || col >= g.cols {
			continue
		}
		if row := cr - ring; row >= 0 {
			fn(row*g.cols + col)
		}
		if row := cr + ring; row < g.rows {
			fn(row*g.cols + col)
		}
	}
	for dr := -ring + 1; dr <= ring-1; dr++ {
		row := cr + dr
		if row < 0 || row >= g.rows {
			continue
		}
		if col := cc - ring; col >= 0 {
			fn(row*g.cols + col)
		}
		if col := cc + ring; col < g.cols {
			fn(row*g.cols + col)
		}
	}
}

// span returns the clamped cell range overlapping the square of half-size
// radius around center.
func (g *SpatialIndex[K]) span(center components.Position, radius float64) (minCol, maxCol, minRow, maxRow int) {
	minCol, minRow = g.cellCoords(center.X-radius, center.Y-radius)
	maxCol, maxRow = g.cellCoords(center.X+radius, center.Y+radius)
	return minCol, maxCol, minRow, maxRow
}

// cellCoords returns the clamped (col, row) for a position.
func (g *SpatialIndex[K]) cellCoords(x, y float64) (col, row int) {
	col = clampCell(x, g.cellSize, g.cols)
	row = clampCell(y, g.cellSize, g.rows)
	return col, row
}

// cellIndex returns the flat index for a position.
func (g *SpatialIndex[K]) cellIndex(x, y float64) int {
	col, row := g.cellCoords(x, y)
	return row*g.cols + col
}

// clampCell maps a coordinate to a cell along one axis, clamping positions
// outside the arena to the edge cells.
func clampCell(v, size float64, n int) int {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	c := v / size
	if c >= float64(n) {
		return n - 1
	}
	return int(c)
}

func excluded[K comparable](id K, exclude []K) bool {
	for _, e := range exclude {
		if e == id {
			return true
		}
	}
	return false
}
