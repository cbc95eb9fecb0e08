package recast

import (
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"tilednav/common"
	"tilednav/config"
)

// Triangulation keeps a removable marker in the top bit of each index.
const (
	flagRemovable uint32 = 0x80000000
	maskIndex     uint32 = 0x0fffffff
)

// EdgeKind classifies a polygon edge.
type EdgeKind uint8

const (
	// EdgeNone is a wall.
	EdgeNone EdgeKind = iota
	// EdgeInternal is shared with another polygon of the same tile.
	EdgeInternal
	// EdgeExternal lies on a tile side and is resolved against the
	// neighbouring tile at query time.
	EdgeExternal
)

type EdgeConnection struct {
	Kind EdgeKind
	// Polygon is the adjacent polygon of an internal edge.
	Polygon uint32
	// Direction is the tile side of an external edge: 0 = -x, 1 = +z,
	// 2 = +x, 3 = -z.
	Direction uint8
}

// MeshPolygon is a convex polygon wound like the contours it came from.
// Edges[i] describes the edge from Indices[i] to Indices[i+1].
type MeshPolygon struct {
	Indices []uint32
	Edges   []EdgeConnection
	Region  uint16
	Area    Area
}

// PolyMesh is the polygon mesh of a tile in grid coordinates.
type PolyMesh struct {
	Vertices   [][3]int32
	Polygons   []MeshPolygon
	Side       int
	BorderSide int
	CellWidth  float32
	CellHeight float32
	Bmin       mgl32.Vec3
}

// BuildPolyMesh triangulates every contour, merges the triangles into
// convex polygons and links their edges.
func BuildPolyMesh(cset *ContourSet, settings *config.Settings, log *zap.Logger) *PolyMesh {
	if log == nil {
		log = zap.NewNop()
	}
	nvp := settings.VerticesPerPolygon()
	mesh := &PolyMesh{
		Side:       cset.Side,
		BorderSide: cset.BorderSide,
		CellWidth:  cset.CellWidth,
		CellHeight: cset.CellHeight,
		Bmin:       cset.Bmin,
	}
	buckets := make(map[[2]int32][]uint32)

	for ci := range cset.Contours {
		cont := &cset.Contours[ci]
		if len(cont.Vertices) < 3 {
			continue
		}
		indices := make([]uint32, len(cont.Vertices))
		for i := range indices {
			indices[i] = uint32(i)
		}
		tris, ok := triangulate(cont.Vertices, indices)
		if !ok {
			log.Warn("bad triangulation",
				zap.Int("contour", ci),
				zap.Uint16("region", cont.Region),
				zap.Int("triangles", len(tris)))
		}
		if len(tris) == 0 {
			continue
		}

		remap := make([]uint32, len(cont.Vertices))
		for i, v := range cont.Vertices {
			remap[i] = mesh.addVertex(buckets, v[0], v[1], v[2])
		}

		var polys [][]uint32
		for _, t := range tris {
			p := []uint32{remap[t[0]], remap[t[1]], remap[t[2]]}
			if p[0] == p[1] || p[0] == p[2] || p[1] == p[2] {
				continue
			}
			if common.Area2(mesh.Vertices[p[0]][:], mesh.Vertices[p[1]][:], mesh.Vertices[p[2]][:]) == 0 {
				continue
			}
			polys = append(polys, p)
		}
		if nvp > 3 {
			polys = mergePolys(polys, mesh.Vertices, nvp)
		}
		for _, p := range polys {
			mesh.Polygons = append(mesh.Polygons, MeshPolygon{
				Indices: p,
				Edges:   make([]EdgeConnection, len(p)),
				Region:  cont.Region,
				Area:    cont.Area,
			})
		}
	}

	mesh.buildAdjacency()
	return mesh
}

// addVertex returns the index of an existing vertex at the same xz
// position within two cells of height, or appends a new one.
func (m *PolyMesh) addVertex(buckets map[[2]int32][]uint32, x, y, z int32) uint32 {
	key := [2]int32{x, z}
	for _, i := range buckets[key] {
		if common.Abs(m.Vertices[i][1]-y) <= 2 {
			return i
		}
	}
	i := uint32(len(m.Vertices))
	m.Vertices = append(m.Vertices, [3]int32{x, y, z})
	buckets[key] = append(buckets[key], i)
	return i
}

func vertexAt(verts []ContourVertex, index uint32) []int32 {
	return verts[index&maskIndex][:]
}

// diagonalie reports whether i-j crosses no polygon edge other than the
// ones incident to i or j.
func diagonalie(i, j int, verts []ContourVertex, indices []uint32, loose bool) bool {
	n := len(indices)
	d0 := vertexAt(verts, indices[i])
	d1 := vertexAt(verts, indices[j])
	for k := 0; k < n; k++ {
		k1 := common.Next(k, n)
		if k == i || k1 == i || k == j || k1 == j {
			continue
		}
		p0 := vertexAt(verts, indices[k])
		p1 := vertexAt(verts, indices[k1])
		if common.VequalXZ(d0, p0) || common.VequalXZ(d1, p0) || common.VequalXZ(d0, p1) || common.VequalXZ(d1, p1) {
			continue
		}
		if loose {
			if common.IntersectProp(d0, d1, p0, p1) {
				return false
			}
		} else if common.Intersect(d0, d1, p0, p1) {
			return false
		}
	}
	return true
}

func inCone(i, j int, verts []ContourVertex, indices []uint32, loose bool) bool {
	n := len(indices)
	pi := vertexAt(verts, indices[i])
	pj := vertexAt(verts, indices[j])
	pi1 := vertexAt(verts, indices[common.Next(i, n)])
	pin1 := vertexAt(verts, indices[common.Prev(i, n)])
	if loose {
		return common.InConeLoose(pin1, pi, pi1, pj)
	}
	return common.InCone(pin1, pi, pi1, pj)
}

// diagonal reports whether i-j is a proper internal diagonal.
func diagonal(i, j int, verts []ContourVertex, indices []uint32) bool {
	return inCone(i, j, verts, indices, false) && diagonalie(i, j, verts, indices, false)
}

func diagonalLoose(i, j int, verts []ContourVertex, indices []uint32) bool {
	return inCone(i, j, verts, indices, true) && diagonalie(i, j, verts, indices, true)
}

// triangulate ear-clips the polygon, always cutting the shortest available
// diagonal. It reports false when the polygon could not be fully
// triangulated; the triangles found so far are still returned.
func triangulate(verts []ContourVertex, indices []uint32) ([][3]uint32, bool) {
	n := len(indices)
	for i := 0; i < n; i++ {
		i1 := common.Next(i, n)
		i2 := common.Next(i1, n)
		if diagonal(i, i2, verts, indices) {
			indices[i1] |= flagRemovable
		}
	}

	shortest := func(loose bool) int {
		minLen, mini := int64(-1), -1
		for i := 0; i < n; i++ {
			i1 := common.Next(i, n)
			i2 := common.Next(i1, n)
			if loose {
				if !diagonalLoose(i, i2, verts, indices[:n]) {
					continue
				}
			} else if indices[i1]&flagRemovable == 0 {
				continue
			}
			p0 := vertexAt(verts, indices[i])
			p2 := vertexAt(verts, indices[i2])
			dx := int64(p2[0] - p0[0])
			dz := int64(p2[2] - p0[2])
			if l := dx*dx + dz*dz; minLen < 0 || l < minLen {
				minLen, mini = l, i
			}
		}
		return mini
	}

	var tris [][3]uint32
	for n > 3 {
		mini := shortest(false)
		if mini == -1 {
			// Overlapping segments can hide every strict diagonal; retry
			// allowing collinear ones.
			mini = shortest(true)
			if mini == -1 {
				return tris, false
			}
		}
		i := mini
		i1 := common.Next(i, n)
		i2 := common.Next(i1, n)
		tris = append(tris, [3]uint32{indices[i] & maskIndex, indices[i1] & maskIndex, indices[i2] & maskIndex})

		n--
		copy(indices[i1:n], indices[i1+1:n+1])
		indices = indices[:n]
		if i1 >= n {
			i1 = 0
		}
		i = common.Prev(i1, n)
		if diagonal(common.Prev(i, n), i1, verts, indices) {
			indices[i] |= flagRemovable
		} else {
			indices[i] &= maskIndex
		}
		if diagonal(i, common.Next(i1, n), verts, indices) {
			indices[i1] |= flagRemovable
		} else {
			indices[i1] &= maskIndex
		}
	}
	tris = append(tris, [3]uint32{indices[0] & maskIndex, indices[1] & maskIndex, indices[2] & maskIndex})
	return tris, true
}

// polyMergeValue returns the squared length of the edge shared by pa and
// pb when merging them keeps the polygon convex and within nvp vertices,
// or -1.
func polyMergeValue(pa, pb []uint32, verts [][3]int32, nvp int) (value, ea, eb int) {
	na, nb := len(pa), len(pb)
	if na+nb-2 > nvp {
		return -1, -1, -1
	}
	ea, eb = -1, -1
	for i := 0; i < na && ea == -1; i++ {
		va0, va1 := pa[i], pa[(i+1)%na]
		if va0 > va1 {
			va0, va1 = va1, va0
		}
		for j := 0; j < nb; j++ {
			vb0, vb1 := pb[j], pb[(j+1)%nb]
			if vb0 > vb1 {
				vb0, vb1 = vb1, vb0
			}
			if va0 == vb0 && va1 == vb1 {
				ea, eb = i, j
				break
			}
		}
	}
	if ea == -1 {
		return -1, -1, -1
	}

	va := pa[(ea+na-1)%na]
	vb := pa[ea]
	vc := pb[(eb+2)%nb]
	if !common.Left(verts[va][:], verts[vb][:], verts[vc][:]) {
		return -1, -1, -1
	}
	va = pb[(eb+nb-1)%nb]
	vb = pb[eb]
	vc = pa[(ea+2)%na]
	if !common.Left(verts[va][:], verts[vb][:], verts[vc][:]) {
		return -1, -1, -1
	}

	va = pa[ea]
	vb = pa[(ea+1)%na]
	dx := int(verts[va][0] - verts[vb][0])
	dz := int(verts[va][2] - verts[vb][2])
	return dx*dx + dz*dz, ea, eb
}

// mergePolys greedily merges the pair with the longest shared edge until
// no pair can be merged.
func mergePolys(polys [][]uint32, verts [][3]int32, nvp int) [][]uint32 {
	for {
		bestValue, bestA, bestB, bestEa, bestEb := 0, 0, 0, 0, 0
		for j := 0; j < len(polys)-1; j++ {
			for k := j + 1; k < len(polys); k++ {
				v, ea, eb := polyMergeValue(polys[j], polys[k], verts, nvp)
				if v > bestValue {
					bestValue, bestA, bestB, bestEa, bestEb = v, j, k, ea, eb
				}
			}
		}
		if bestValue <= 0 {
			return polys
		}
		pa, pb := polys[bestA], polys[bestB]
		merged := make([]uint32, 0, len(pa)+len(pb)-2)
		for i := 0; i < len(pa)-1; i++ {
			merged = append(merged, pa[(bestEa+1+i)%len(pa)])
		}
		for i := 0; i < len(pb)-1; i++ {
			merged = append(merged, pb[(bestEb+1+i)%len(pb)])
		}
		polys[bestA] = merged
		last := len(polys) - 1
		polys[bestB] = polys[last]
		polys = polys[:last]
	}
}

type edgeRef struct {
	poly, edge int
}

// buildAdjacency links edges shared by two polygons and tags edges lying on
// a tile side as external.
func (m *PolyMesh) buildAdjacency() {
	open := make(map[[2]uint32]edgeRef)
	for pi, p := range m.Polygons {
		for e := range p.Indices {
			v0, v1 := p.Indices[e], p.Indices[(e+1)%len(p.Indices)]
			if v0 < v1 {
				open[[2]uint32{v0, v1}] = edgeRef{pi, e}
			}
		}
	}
	for pi, p := range m.Polygons {
		for e := range p.Indices {
			v0, v1 := p.Indices[e], p.Indices[(e+1)%len(p.Indices)]
			if v0 <= v1 {
				continue
			}
			key := [2]uint32{v1, v0}
			ref, ok := open[key]
			if !ok {
				continue
			}
			delete(open, key)
			m.Polygons[pi].Edges[e] = EdgeConnection{Kind: EdgeInternal, Polygon: uint32(ref.poly)}
			m.Polygons[ref.poly].Edges[ref.edge] = EdgeConnection{Kind: EdgeInternal, Polygon: uint32(pi)}
		}
	}

	lo, hi := int32(m.BorderSide), int32(m.Side-m.BorderSide)
	for pi := range m.Polygons {
		p := &m.Polygons[pi]
		for e := range p.Indices {
			if p.Edges[e].Kind != EdgeNone {
				continue
			}
			a := m.Vertices[p.Indices[e]]
			b := m.Vertices[p.Indices[(e+1)%len(p.Indices)]]
			dir := -1
			switch {
			case a[0] == lo && b[0] == lo:
				dir = 0
			case a[2] == hi && b[2] == hi:
				dir = 1
			case a[0] == hi && b[0] == hi:
				dir = 2
			case a[2] == lo && b[2] == lo:
				dir = 3
			}
			if dir >= 0 {
				p.Edges[e] = EdgeConnection{Kind: EdgeExternal, Direction: uint8(dir)}
			}
		}
	}
}
