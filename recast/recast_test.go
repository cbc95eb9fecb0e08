package recast

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"tilednav/common"
	"tilednav/config"
)

// testSettings describes a single 8m tile of 32x32 cells centred on the
// origin.
func testSettings() config.Settings {
	s := config.Default()
	s.TileWidth = 32
	s.WorldHalfExtents = 4
	s.WalkableRadius = 2
	s.WalkableHeight = 10
	s.StepHeight = 3
	s.MinRegionArea = 8
	s.MergeRegionArea = 2000
	s.MaxEdgeLength = 12
	s.MaxContourSimplificationError = 1.3
	return s
}

func flatGround(l float32) Geometry {
	return Geometry{
		Shape: &TriangleMesh{
			Vertices: []mgl32.Vec3{{-l, 0, -l}, {-l, 0, 3 * l}, {3 * l, 0, -l}},
			Indices:  [][3]uint32{{0, 1, 2}},
		},
		Transform: IdentityTransform(),
		Area:      DefaultArea,
	}
}

func box(halfExtents mgl32.Vec3, y float32, area Area) Geometry {
	return Geometry{
		Shape:     &Primitive{Kind: Cuboid, HalfExtents: halfExtents},
		Transform: Translate(0, y, 0),
		Area:      area,
	}
}

type pipeline struct {
	open     *OpenHeightfield
	regions  []Region
	contours *ContourSet
	mesh     *PolyMesh
}

func runPipeline(t *testing.T, s *config.Settings, geometry ...Geometry) pipeline {
	t.Helper()
	require.NoError(t, s.Validate())
	log := zaptest.NewLogger(t)
	hf := Voxelize(s, config.TileCoord{}, geometry, log)
	oh := BuildOpenHeightfield(hf, s)
	ErodeWalkableArea(oh, int(s.WalkableRadius))
	BuildDistanceField(oh)
	regions := BuildRegions(oh, s, log)
	cset := BuildContours(oh, s, log)
	return pipeline{open: oh, regions: regions, contours: cset, mesh: BuildPolyMesh(cset, s, log)}
}

func meshArea(m *PolyMesh) float32 {
	var area2 int64
	for _, p := range m.Polygons {
		flat := make([]int32, 0, len(p.Indices)*3)
		for _, i := range p.Indices {
			flat = append(flat, m.Vertices[i][:]...)
		}
		area2 += common.Abs(common.PolygonArea2(flat, 3))
	}
	return float32(area2) / 2 * m.CellWidth * m.CellWidth
}

func TestAddSpanMergesTouchingSpans(t *testing.T) {
	s := testSettings()
	hf := NewHeightfield(&s, config.TileCoord{})
	hf.AddSpan(0, 0, 10, 20, DefaultArea)
	hf.AddSpan(0, 0, 30, 40, DefaultArea)
	require.Len(t, hf.Columns[0], 2)

	hf.AddSpan(0, 0, 21, 29, NotWalkable)
	require.Len(t, hf.Columns[0], 1)
	assert.Equal(t, Span{Min: 10, Max: 40, Area: DefaultArea}, hf.Columns[0][0])
}

func TestAddSpanAreaPrecedence(t *testing.T) {
	s := testSettings()
	hf := NewHeightfield(&s, config.TileCoord{})

	// tops within one cell: the walkable area wins
	hf.AddSpan(1, 0, 10, 20, NotWalkable)
	hf.AddSpan(1, 0, 5, 21, DefaultArea)
	assert.Equal(t, []Span{{Min: 5, Max: 21, Area: DefaultArea}}, hf.Columns[1])

	// otherwise the higher top wins
	hf.AddSpan(2, 0, 10, 20, DefaultArea)
	hf.AddSpan(2, 0, 15, 30, NotWalkable)
	assert.Equal(t, []Span{{Min: 10, Max: 30, Area: NotWalkable}}, hf.Columns[2])
}

func TestDividePoly(t *testing.T) {
	square := []mgl32.Vec3{{0, 0, 0}, {2, 0, 0}, {2, 0, 2}, {0, 0, 2}}
	below, above := dividePoly(square, 1, 0)
	require.Len(t, below, 4)
	require.Len(t, above, 4)
	for _, v := range below {
		assert.LessOrEqual(t, v[0], float32(1))
	}
	for _, v := range above {
		assert.GreaterOrEqual(t, v[0], float32(1))
	}
}

func TestRasterizeClipsGeometryLeftOfTheGrid(t *testing.T) {
	s := testSettings()
	hf := NewHeightfield(&s, config.TileCoord{})
	bx, bz, cw := hf.Bmin[0], hf.Bmin[2], hf.CellWidth

	// the plane drops from 3m half a cell outside the grid to 0 one cell
	// inside it, so the first column peaks at 2m
	const top = 3
	hf.rasterizeTri(Triangle{{bx - cw/2, top, bz}, {bx + cw, 0, bz + 1}, {bx - cw/2, top, bz + 2}}, DefaultArea)

	row := int(1 / cw)
	col := hf.Columns[row*hf.Side]
	require.Len(t, col, 1)
	want := math.Ceil(float64((2*top/3.0 - hf.Bmin[1]) / hf.CellHeight))
	assert.InDelta(t, want, float64(col[0].Max), 1)
}

func TestTriangleNormal(t *testing.T) {
	up := Triangle{{0, 0, 0}, {0, 0, 1}, {1, 0, 0}}
	assert.Equal(t, mgl32.Vec3{0, 1, 0}, up.Normal())
	assert.Equal(t, mgl32.Vec3{}, Triangle{{0, 0, 0}, {1, 0, 0}, {2, 0, 0}}.Normal())
}

func TestSteepTrianglesAreNotWalkable(t *testing.T) {
	s := testSettings()
	wall := Geometry{
		Shape: &TriangleMesh{
			Vertices: []mgl32.Vec3{{-5, 0, 0.1}, {5, 0, 0.1}, {0, 5, 0.1}},
			Indices:  [][3]uint32{{0, 1, 2}},
		},
		Area: DefaultArea,
	}
	hf := Voxelize(&s, config.TileCoord{}, []Geometry{wall}, zaptest.NewLogger(t))
	spans := 0
	for _, col := range hf.Columns {
		for _, sp := range col {
			spans++
			assert.Equal(t, NotWalkable, sp.Area)
		}
	}
	assert.Positive(t, spans)
}

func TestDegenerateGeometryIsSkipped(t *testing.T) {
	s := testSettings()
	degenerate := Geometry{
		Shape: &TriangleMesh{
			Vertices: []mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {2, 0, 0}},
			Indices:  [][3]uint32{{0, 1, 2}},
		},
	}
	bad := Geometry{Shape: &HeightfieldShape{Rows: 1, Cols: 1}}
	hf := Voxelize(&s, config.TileCoord{}, []Geometry{degenerate, bad}, zaptest.NewLogger(t))
	for _, col := range hf.Columns {
		assert.Empty(t, col)
	}
}

func TestRasterizeHeightfieldShape(t *testing.T) {
	s := testSettings()
	ground := Geometry{
		Shape: &HeightfieldShape{
			Rows:    2,
			Cols:    2,
			Heights: []float32{0, 0, 0, 0},
			Scale:   mgl32.Vec3{20, 1, 20},
		},
		Transform: Translate(0, 1, 0),
		Area:      DefaultArea,
	}
	hf := Voxelize(&s, config.TileCoord{}, []Geometry{ground}, zaptest.NewLogger(t))
	top := uint16(math.Ceil(float64((1 - s.WorldBottomBound) / s.CellHeight)))
	for _, col := range hf.Columns {
		require.Len(t, col, 1)
		assert.Equal(t, uint16(0), col[0].Min)
		assert.InDelta(t, top, col[0].Max, 1)
		assert.Equal(t, DefaultArea, col[0].Area)
	}
}

func TestFlatTileProducesOneRegion(t *testing.T) {
	s := testSettings()
	p := runPipeline(t, &s, flatGround(10))

	require.Len(t, p.regions, 1)
	assert.True(t, p.regions[0].TouchesBorder)

	size := s.TileSize()
	assert.InDelta(t, size*size, meshArea(p.mesh), float64(4*size*s.CellWidth))

	nvp := s.VerticesPerPolygon()
	dirs := map[uint8]bool{}
	for _, poly := range p.mesh.Polygons {
		n := len(poly.Indices)
		require.GreaterOrEqual(t, n, 3)
		require.LessOrEqual(t, n, nvp)
		for i := range poly.Indices {
			a := p.mesh.Vertices[poly.Indices[i]]
			b := p.mesh.Vertices[poly.Indices[(i+1)%n]]
			c := p.mesh.Vertices[poly.Indices[(i+2)%n]]
			assert.True(t, common.LeftOn(a[:], b[:], c[:]), "polygon is not convex")
			if e := poly.Edges[i]; e.Kind == EdgeExternal {
				dirs[e.Direction] = true
			}
		}
	}
	assert.Equal(t, map[uint8]bool{0: true, 1: true, 2: true, 3: true}, dirs)
}

func TestInternalEdgesAreSymmetric(t *testing.T) {
	s := testSettings()
	s.MaxVerticesPerPolygon = 3
	p := runPipeline(t, &s, flatGround(10))
	require.Greater(t, len(p.mesh.Polygons), 1)
	for pi, poly := range p.mesh.Polygons {
		for _, e := range poly.Edges {
			if e.Kind != EdgeInternal {
				continue
			}
			back := false
			for _, oe := range p.mesh.Polygons[e.Polygon].Edges {
				if oe.Kind == EdgeInternal && int(oe.Polygon) == pi {
					back = true
				}
			}
			assert.True(t, back, "polygon %d links to %d one way", pi, e.Polygon)
		}
	}
}

func TestErosionBound(t *testing.T) {
	s := testSettings()
	hf := Voxelize(&s, config.TileCoord{}, []Geometry{
		flatGround(10),
		box(mgl32.Vec3{1, 0.5, 1}, 0.5, NotWalkable),
	}, zaptest.NewLogger(t))
	oh := BuildOpenHeightfield(hf, &s)

	radius := int(s.WalkableRadius)
	dist := make([]int, len(oh.Spans))
	var queue []int
	for i := range oh.Spans {
		if oh.Spans[i].Area.Walkable() && oh.isBoundary(i) {
			dist[i] = 1
			queue = append(queue, i)
		}
	}
	for head := 0; head < len(queue); head++ {
		i := queue[head]
		if dist[i] >= radius {
			continue
		}
		for dir := 0; dir < 4; dir++ {
			j := oh.neighbour(i, dir)
			if j == notConnected || dist[j] != 0 || !oh.Spans[j].Area.Walkable() {
				continue
			}
			dist[j] = dist[i] + 1
			queue = append(queue, j)
		}
	}
	require.NotEmpty(t, queue)

	ErodeWalkableArea(oh, radius)
	for _, i := range queue {
		assert.Equal(t, NotWalkable, oh.Spans[i].Area, "span %d at link distance %d survived", i, dist[i])
	}
	walkable := 0
	for i := range oh.Spans {
		if oh.Spans[i].Area.Walkable() {
			walkable++
		}
	}
	assert.Positive(t, walkable)
}

func TestDistanceFieldPeaksInTheMiddle(t *testing.T) {
	s := testSettings()
	hf := Voxelize(&s, config.TileCoord{}, []Geometry{flatGround(10)}, zaptest.NewLogger(t))
	oh := BuildOpenHeightfield(hf, &s)
	ErodeWalkableArea(oh, int(s.WalkableRadius))
	BuildDistanceField(oh)

	start, _ := oh.Column(oh.Side/2, oh.Side/2)
	edge, _ := oh.Column(oh.BorderSide, oh.Side/2)
	assert.Greater(t, oh.Spans[start].Distance, oh.Spans[edge].Distance)
	assert.Equal(t, oh.MaxDistance, oh.Spans[start].Distance)
}

// island is a walkable platform too high to step onto from the ground and
// too low to walk under.
func island() Geometry {
	return box(mgl32.Vec3{1.5, 0.5, 1.5}, 0.5, DefaultArea)
}

func islandCentre(t *testing.T, oh *OpenHeightfield) *OpenSpan {
	t.Helper()
	start, end := oh.Column(oh.Side/2, oh.Side/2)
	require.Equal(t, 1, end-start)
	return &oh.Spans[start]
}

func TestRegionAreaFiltering(t *testing.T) {
	s := testSettings()
	s.MinRegionArea = 150
	p := runPipeline(t, &s, flatGround(10), island())

	require.NotEmpty(t, p.regions)
	for _, r := range p.regions {
		if !r.TouchesBorder {
			assert.GreaterOrEqual(t, r.SpanCount, s.MinRegionArea, "region %d", r.ID)
		}
	}
	centre := islandCentre(t, p.open)
	assert.Equal(t, uint16(0), centre.Region)
	assert.Equal(t, NotWalkable, centre.Area)
}

// An undersized region without same-area neighbours survives merging as a
// disconnected region of its own.
func TestUndersizedIsolatedRegionSurvivesMerge(t *testing.T) {
	s := testSettings()
	p := runPipeline(t, &s, flatGround(10), island())

	require.Len(t, p.regions, 2)
	centre := islandCentre(t, p.open)
	require.NotZero(t, centre.Region)
	r := p.regions[centre.Region-1]
	assert.False(t, r.TouchesBorder)
	assert.Less(t, r.SpanCount, s.MergeRegionArea)
}

func TestContourSimplificationBound(t *testing.T) {
	s := testSettings()
	s.MaxEdgeLength = 6
	p := runPipeline(t, &s, flatGround(10), island())
	require.NotEmpty(t, p.contours.Contours)

	checked := 0
	for _, c := range p.contours.Contours {
		raw := c.RawVertices
		find := func(v ContourVertex) int {
			for i, r := range raw {
				if r[0] == v[0] && r[1] == v[1] && r[2] == v[2] {
					return i
				}
			}
			return -1
		}
		for i, a := range c.Vertices {
			b := c.Vertices[(i+1)%len(c.Vertices)]
			ia, ib := find(a), find(b)
			if ia == -1 || ib == -1 {
				continue
			}
			for k := (ia + 1) % len(raw); k != ib; k = (k + 1) % len(raw) {
				d := common.DistancePtSegSqrInt(raw[k][0], raw[k][2], a[0], a[2], b[0], b[2])
				assert.LessOrEqual(t, float64(d), float64(s.MaxContourSimplificationError*s.MaxContourSimplificationError)+1e-4)
			}
			dx, dz := float64(b[0]-a[0]), float64(b[2]-a[2])
			assert.LessOrEqual(t, math.Hypot(dx, dz), float64(s.MaxEdgeLength)+1e-6)
			checked++
		}
	}
	assert.Positive(t, checked)
}

func TestTileBorderVerticesAreKept(t *testing.T) {
	s := testSettings()
	p := runPipeline(t, &s, flatGround(10))
	require.Len(t, p.contours.Contours, 1)

	c := p.contours.Contours[0]
	kept := map[[2]int32]bool{}
	for _, v := range c.Vertices {
		kept[[2]int32{v[0], v[2]}] = true
	}
	border := 0
	for _, r := range c.RawVertices {
		if !r.IsBorderVertex() {
			continue
		}
		border++
		assert.True(t, kept[[2]int32{r[0], r[2]}], "border vertex (%d, %d) was dropped", r[0], r[2])
	}
	assert.Positive(t, border)
}

func TestHoleBridgeRespectsMaxEdgeLength(t *testing.T) {
	s := testSettings()
	s.MaxEdgeLength = 3
	p := runPipeline(t, &s, flatGround(10), island())
	require.NotEmpty(t, p.contours.Contours)

	bridged := false
	for _, c := range p.contours.Contours {
		seen := map[[2]int32]int{}
		for i, a := range c.Vertices {
			b := c.Vertices[(i+1)%len(c.Vertices)]
			dx, dz := float64(b[0]-a[0]), float64(b[2]-a[2])
			assert.LessOrEqual(t, math.Hypot(dx, dz), float64(s.MaxEdgeLength)+1e-6,
				"region %d edge %d (%d, %d)-(%d, %d)", c.Region, i, a[0], a[2], b[0], b[2])
			seen[[2]int32{a[0], a[2]}]++
		}
		for _, n := range seen {
			if n > 1 {
				bridged = true
			}
		}
	}
	assert.True(t, bridged, "no contour carries a hole bridge")
}

func TestMergeContoursSplitsLongBridge(t *testing.T) {
	outline := []ContourVertex{{0, 0, 0, 0}, {0, 0, 40, 0}, {40, 0, 40, 0}, {40, 0, 0, 0}}
	hole := []ContourVertex{{20, 4, 20, 0}, {22, 4, 20, 0}, {22, 4, 22, 0}, {20, 4, 22, 0}}

	unsplit := mergeContours(outline, hole, 0, 0, 0)
	assert.Len(t, unsplit, len(outline)+len(hole)+2)

	loopEdges := map[[2]ContourVertex]bool{}
	for _, loop := range [][]ContourVertex{outline, hole} {
		for i, a := range loop {
			loopEdges[[2]ContourVertex{a, loop[(i+1)%len(loop)]}] = true
		}
	}
	merged := mergeContours(outline, hole, 0, 0, 5)
	require.Greater(t, len(merged), len(unsplit))
	bridgeEdges := 0
	for i, a := range merged {
		b := merged[(i+1)%len(merged)]
		if loopEdges[[2]ContourVertex{a, b}] {
			continue
		}
		bridgeEdges++
		dx, dz := float64(b[0]-a[0]), float64(b[2]-a[2])
		assert.LessOrEqual(t, math.Hypot(dx, dz), 5.0, "edge %d", i)
	}
	assert.Greater(t, bridgeEdges, 2)
	assert.Equal(t, contourArea2(unsplit), contourArea2(merged))
}

func TestContourVertexFlags(t *testing.T) {
	v := ContourVertex{1, 2, 3, 7 | flagBorderVertex}
	assert.Equal(t, uint16(7), v.NeighbourRegion())
	assert.True(t, v.IsBorderVertex())
	assert.False(t, ContourVertex{0, 0, 0, 7}.IsBorderVertex())
}

func TestHoleIsMergedIntoOutline(t *testing.T) {
	s := testSettings()
	p := runPipeline(t, &s, flatGround(10), island())
	for _, c := range p.contours.Contours {
		assert.Positive(t, contourArea2(c.Vertices), "region %d kept a hole contour", c.Region)
	}
	// the ring around the island is still walkable but the island interior
	// is not part of the ground mesh
	size := s.TileSize()
	assert.Less(t, meshArea(p.mesh), size*size)
}

func TestTriangulateSquare(t *testing.T) {
	verts := []ContourVertex{{0, 0, 0, 0}, {0, 0, 4, 0}, {4, 0, 4, 0}, {4, 0, 0, 0}}
	require.Positive(t, contourArea2(verts))
	tris, ok := triangulate(verts, []uint32{0, 1, 2, 3})
	require.True(t, ok)
	assert.Len(t, tris, 2)
}

func TestMergePolysBuildsQuad(t *testing.T) {
	verts := [][3]int32{{0, 0, 0}, {0, 0, 4}, {4, 0, 4}, {4, 0, 0}}
	polys := mergePolys([][]uint32{{0, 1, 2}, {0, 2, 3}}, verts, 6)
	require.Len(t, polys, 1)
	assert.Len(t, polys[0], 4)

	polys = mergePolys([][]uint32{{0, 1, 2}, {0, 2, 3}}, verts, 3)
	assert.Len(t, polys, 2)
}
