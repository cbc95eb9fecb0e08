package recast

import (
	"github.com/go-gl/mathgl/mgl32"

	"tilednav/common"
	"tilednav/config"
)

const notConnected = -1

// OpenSpan is the walkable space on top of a solid span.
type OpenSpan struct {
	// Floor, in cell heights above the world bottom.
	Floor uint16
	// Height of the free space above the floor, capped at maxSpanHeight.
	Height   uint16
	Area     Area
	Region   uint16
	Distance uint16
	// Neighbours holds the span index linked in each direction, or -1.
	Neighbours [4]int32
}

func (s *OpenSpan) Neighbour(dir int) (int, bool) {
	n := s.Neighbours[dir]
	return int(n), n != notConnected
}

// OpenCell indexes the spans of one column inside OpenHeightfield.Spans.
type OpenCell struct {
	Index, Count int32
}

// OpenHeightfield holds the walkable open spans of one tile and the
// per-span data every later stage fills in.
type OpenHeightfield struct {
	Side        int
	BorderSide  int
	CellWidth   float32
	CellHeight  float32
	Bmin        mgl32.Vec3
	Cells       []OpenCell
	Spans       []OpenSpan
	MaxDistance uint16

	spanCell []int32
}

// Column returns the span index range of cell (x, z).
func (o *OpenHeightfield) Column(x, z int) (int, int) {
	c := o.Cells[x+z*o.Side]
	return int(c.Index), int(c.Index + c.Count)
}

// SpanCell returns the grid cell of span i.
func (o *OpenHeightfield) SpanCell(i int) (int, int) {
	c := int(o.spanCell[i])
	return c % o.Side, c / o.Side
}

// neighbour returns the span linked from span i in direction dir, or -1.
func (o *OpenHeightfield) neighbour(i, dir int) int {
	return int(o.Spans[i].Neighbours[dir])
}

// diagonal returns the span reached from i by stepping dir then dir+1, or -1.
func (o *OpenHeightfield) diagonal(i, dir int) int {
	a := o.neighbour(i, dir)
	if a == notConnected {
		return notConnected
	}
	return o.neighbour(a, (dir+1)&0x3)
}

// InTile reports whether cell (x, z) lies inside the tile proper, outside
// the border margin.
func (o *OpenHeightfield) InTile(x, z int) bool {
	lo, hi := o.BorderSide, o.Side-o.BorderSide
	return x >= lo && x < hi && z >= lo && z < hi
}

// BuildOpenHeightfield derives open spans from the gaps above walkable solid
// spans and links every span to its best neighbour in each direction.
func BuildOpenHeightfield(hf *Heightfield, settings *config.Settings) *OpenHeightfield {
	side := hf.Side
	oh := &OpenHeightfield{
		Side:       side,
		BorderSide: hf.BorderSide,
		CellWidth:  hf.CellWidth,
		CellHeight: hf.CellHeight,
		Bmin:       hf.Bmin,
		Cells:      make([]OpenCell, side*side),
	}
	walkableHeight := int(settings.WalkableHeight)
	for idx, col := range hf.Columns {
		cell := &oh.Cells[idx]
		cell.Index = int32(len(oh.Spans))
		for i, s := range col {
			if !s.Area.Walkable() {
				continue
			}
			top := maxSpanHeight
			if i+1 < len(col) {
				top = int(col[i+1].Min)
			}
			if top-int(s.Max) < walkableHeight {
				continue
			}
			oh.Spans = append(oh.Spans, OpenSpan{
				Floor:      s.Max,
				Height:     uint16(top - int(s.Max)),
				Area:       s.Area,
				Neighbours: [4]int32{notConnected, notConnected, notConnected, notConnected},
			})
			oh.spanCell = append(oh.spanCell, int32(idx))
			cell.Count++
		}
	}
	oh.link(walkableHeight, int(settings.StepHeight))
	return oh
}

func (oh *OpenHeightfield) link(walkableHeight, stepHeight int) {
	for z := 0; z < oh.Side; z++ {
		for x := 0; x < oh.Side; x++ {
			start, end := oh.Column(x, z)
			for i := start; i < end; i++ {
				s := &oh.Spans[i]
				for dir := 0; dir < 4; dir++ {
					nx := x + common.GetDirOffsetX(dir)
					nz := z + common.GetDirOffsetZ(dir)
					if nx < 0 || nz < 0 || nx >= oh.Side || nz >= oh.Side {
						continue
					}
					best, bestOverlap := notConnected, walkableHeight-1
					ns, ne := oh.Column(nx, nz)
					for k := ns; k < ne; k++ {
						n := &oh.Spans[k]
						bot := max(int(s.Floor), int(n.Floor))
						top := min(int(s.Floor)+int(s.Height), int(n.Floor)+int(n.Height))
						if common.Abs(int(n.Floor)-int(s.Floor)) > stepHeight {
							continue
						}
						if overlap := top - bot; overlap > bestOverlap {
							best, bestOverlap = k, overlap
						}
					}
					s.Neighbours[dir] = int32(best)
				}
			}
		}
	}
}
