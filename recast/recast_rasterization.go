package recast

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"tilednav/common"
	"tilednav/config"
)

const (
	// maxSpanHeight is the ceiling of every column, in cell heights.
	maxSpanHeight = 0xffff
	// spanMergeGap lets spans separated by at most this many empty cells merge.
	spanMergeGap = 1
	// areaMergeThreshold is how close two span tops must be for the higher
	// area id to win instead of the higher top's area.
	areaMergeThreshold = 1
)

// Span is a solid interval [Min, Max] of one voxel column.
type Span struct {
	Min, Max uint16
	Area     Area
}

// Heightfield is the solid voxel grid of one tile, border included. Cell
// (x, z) lives at Columns[x+z*Side]; every column is sorted by Min and holds
// no overlapping spans.
type Heightfield struct {
	Side       int
	BorderSide int
	CellWidth  float32
	CellHeight float32
	Bmin, Bmax mgl32.Vec3
	Columns    [][]Span
}

func NewHeightfield(settings *config.Settings, tile config.TileCoord) *Heightfield {
	side := settings.TileSideWithBorder()
	origin := settings.TileOriginWithBorder(tile)
	hf := &Heightfield{
		Side:       side,
		BorderSide: settings.BorderSide(),
		CellWidth:  settings.CellWidth,
		CellHeight: settings.CellHeight,
		Bmin:       mgl32.Vec3{origin[0], settings.WorldBottomBound, origin[1]},
		Columns:    make([][]Span, side*side),
	}
	extent := float32(side) * settings.CellWidth
	hf.Bmax = hf.Bmin.Add(mgl32.Vec3{extent, float32(maxSpanHeight) * settings.CellHeight, extent})
	return hf
}

// Voxelize rasterizes every gathered geometry into a fresh heightfield.
// Malformed shapes and degenerate triangles are skipped.
func Voxelize(settings *config.Settings, tile config.TileCoord, geometry []Geometry, log *zap.Logger) *Heightfield {
	if log == nil {
		log = zap.NewNop()
	}
	hf := NewHeightfield(settings, tile)
	walkableThr := float32(math.Cos(float64(settings.MaxTraversableSlopeRadians)))
	for i := range geometry {
		g := &geometry[i]
		switch s := g.Shape.(type) {
		case *HeightfieldShape:
			if !s.valid() {
				log.Debug("skipping malformed heightfield", zap.Stringer("tile", tile), zap.Int("geometry", i))
				continue
			}
			hf.RasterizeHeightfield(s, g.Transform.Translation, g.Area, walkableThr)
		default:
			tris := g.Triangles()
			if len(tris) == 0 {
				log.Debug("skipping geometry without triangles", zap.Stringer("tile", tile), zap.Int("geometry", i))
				continue
			}
			hf.RasterizeTriangles(tris, g.Area, walkableThr)
		}
	}
	return hf
}

// RasterizeTriangles adds the triangles as solid spans. Triangles steeper
// than the slope threshold, or carrying NotWalkable, become not walkable.
func (hf *Heightfield) RasterizeTriangles(tris []Triangle, area Area, walkableThr float32) {
	for _, tri := range tris {
		n := tri.Normal()
		if n == (mgl32.Vec3{}) {
			continue
		}
		triArea := area
		if n[1] <= walkableThr {
			triArea = NotWalkable
		}
		hf.rasterizeTri(tri, triArea)
	}
}

func (hf *Heightfield) rasterizeTri(tri Triangle, area Area) {
	triMin, triMax := tri[0], tri[0]
	for _, v := range tri[1:] {
		for k := 0; k < 3; k++ {
			triMin[k] = min(triMin[k], v[k])
			triMax[k] = max(triMax[k], v[k])
		}
	}
	if triMin[0] > hf.Bmax[0] || triMax[0] < hf.Bmin[0] ||
		triMin[1] > hf.Bmax[1] || triMax[1] < hf.Bmin[1] ||
		triMin[2] > hf.Bmax[2] || triMax[2] < hf.Bmin[2] {
		return
	}

	ics := 1 / hf.CellWidth
	ich := 1 / hf.CellHeight
	side := hf.Side
	by := hf.Bmax[1] - hf.Bmin[1]

	z0 := common.Clamp(int(math.Floor(float64((triMin[2]-hf.Bmin[2])*ics))), -1, side-1)
	z1 := common.Clamp(int(math.Floor(float64((triMax[2]-hf.Bmin[2])*ics))), 0, side-1)

	in := []mgl32.Vec3{tri[0], tri[1], tri[2]}
	var row, rest, cell, restRow []mgl32.Vec3
	for z := z0; z <= z1; z++ {
		cz := hf.Bmin[2] + float32(z)*hf.CellWidth
		row, rest = dividePoly(in, cz+hf.CellWidth, 2)
		in = rest
		if len(row) < 3 || z < 0 {
			continue
		}

		minX, maxX := row[0][0], row[0][0]
		for _, v := range row[1:] {
			minX = min(minX, v[0])
			maxX = max(maxX, v[0])
		}
		x0 := int(math.Floor(float64((minX - hf.Bmin[0]) * ics)))
		x1 := int(math.Floor(float64((maxX - hf.Bmin[0]) * ics)))
		if x1 < 0 || x0 >= side {
			continue
		}
		x0 = common.Clamp(x0, -1, side-1)
		x1 = common.Clamp(x1, 0, side-1)

		restRow = row
		for x := x0; x <= x1; x++ {
			cx := hf.Bmin[0] + float32(x)*hf.CellWidth
			cell, restRow = dividePoly(restRow, cx+hf.CellWidth, 0)
			if len(cell) < 3 || x < 0 {
				continue
			}

			spanMin, spanMax := cell[0][1], cell[0][1]
			for _, v := range cell[1:] {
				spanMin = min(spanMin, v[1])
				spanMax = max(spanMax, v[1])
			}
			spanMin -= hf.Bmin[1]
			spanMax -= hf.Bmin[1]
			if spanMax < 0 || spanMin > by {
				continue
			}
			spanMin = max(spanMin, 0)
			spanMax = min(spanMax, by)

			smin := common.Clamp(int(math.Floor(float64(spanMin*ich))), 0, maxSpanHeight)
			smax := common.Clamp(int(math.Ceil(float64(spanMax*ich))), smin+1, maxSpanHeight)
			hf.AddSpan(x, z, uint16(smin), uint16(smax), area)
		}
	}
}

// dividePoly splits a convex polygon along an axis-aligned plane. The first
// result lies below offset on the axis, the second above it.
func dividePoly(in []mgl32.Vec3, offset float32, axis int) (below, above []mgl32.Vec3) {
	n := len(in)
	if n == 0 {
		return nil, nil
	}
	delta := make([]float32, n)
	for i, v := range in {
		delta[i] = offset - v[axis]
	}
	below = make([]mgl32.Vec3, 0, n+1)
	above = make([]mgl32.Vec3, 0, n+1)
	for a, b := 0, n-1; a < n; b, a = a, a+1 {
		if (delta[a] >= 0) != (delta[b] >= 0) {
			s := delta[b] / (delta[b] - delta[a])
			p := in[b].Add(in[a].Sub(in[b]).Mul(s))
			below = append(below, p)
			above = append(above, p)
			// points on the plane were added above
			if delta[a] > 0 {
				below = append(below, in[a])
			} else if delta[a] < 0 {
				above = append(above, in[a])
			}
			continue
		}
		if delta[a] >= 0 {
			below = append(below, in[a])
			if delta[a] != 0 {
				continue
			}
		}
		above = append(above, in[a])
	}
	return below, above
}

// AddSpan inserts a solid span into column (x, z), merging every span it
// overlaps or nearly touches.
func (hf *Heightfield) AddSpan(x, z int, smin, smax uint16, area Area) {
	idx := x + z*hf.Side
	col := hf.Columns[idx]
	merged := Span{Min: smin, Max: smax, Area: area}
	out := make([]Span, 0, len(col)+1)
	inserted := false
	for _, cur := range col {
		switch {
		case int(cur.Max)+spanMergeGap < int(merged.Min):
			out = append(out, cur)
		case int(cur.Min) > int(merged.Max)+spanMergeGap:
			if !inserted {
				out = append(out, merged)
				inserted = true
			}
			out = append(out, cur)
		default:
			merged = mergeSpans(merged, cur)
		}
	}
	if !inserted {
		out = append(out, merged)
	}
	hf.Columns[idx] = out
}

func mergeSpans(a, b Span) Span {
	res := Span{Min: min(a.Min, b.Min), Max: max(a.Max, b.Max)}
	switch {
	case common.Abs(int(a.Max)-int(b.Max)) <= areaMergeThreshold:
		res.Area = max(a.Area, b.Area)
	case a.Max > b.Max:
		res.Area = a.Area
	default:
		res.Area = b.Area
	}
	return res
}

// RasterizeHeightfield resamples a height grid at every column centre. The
// column is solid from the bottom of the world up to the surface.
func (hf *Heightfield) RasterizeHeightfield(shape *HeightfieldShape, translation mgl32.Vec3, area Area, walkableThr float32) {
	ich := 1 / hf.CellHeight
	for z := 0; z < hf.Side; z++ {
		for x := 0; x < hf.Side; x++ {
			cx := hf.Bmin[0] + (float32(x)+0.5)*hf.CellWidth
			cz := hf.Bmin[2] + (float32(z)+0.5)*hf.CellWidth
			h, grad, ok := shape.sample(cx-translation[0], cz-translation[2])
			if !ok {
				continue
			}
			top := h + translation[1] - hf.Bmin[1]
			if top < 0 {
				continue
			}
			smax := common.Clamp(int(math.Ceil(float64(top*ich))), 1, maxSpanHeight)
			a := area
			if ny := 1 / float32(math.Sqrt(float64(1+grad[0]*grad[0]+grad[1]*grad[1]))); ny <= walkableThr {
				a = NotWalkable
			}
			hf.AddSpan(x, z, 0, uint16(smax), a)
		}
	}
}
