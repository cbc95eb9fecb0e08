package recast

import (
	"sort"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"tilednav/common"
	"tilednav/config"
)

// The fourth component of a contour vertex packs the id of the region on
// the other side of the edge with a flag for edges lying on the tile border.
const (
	maskContourRegion = 0xffff
	flagBorderVertex  = 0x10000
)

// ContourVertex is x, y, z in grid cells plus the packed edge data.
type ContourVertex [4]int32

// NeighbourRegion is the region across the edge leaving this vertex, or 0
// for walls.
func (v ContourVertex) NeighbourRegion() uint16 {
	return uint16(uint32(v[3]) & maskContourRegion)
}

// IsBorderVertex reports whether the edge leaving this vertex lies on the
// tile border.
func (v ContourVertex) IsBorderVertex() bool {
	return uint32(v[3])&flagBorderVertex != 0
}

type Contour struct {
	// Vertices is the simplified loop, holes merged in.
	Vertices []ContourVertex
	// RawVertices is the traced loop, one vertex per cell corner.
	RawVertices []ContourVertex
	Region      uint16
	Area        Area
}

// ContourSet holds the contours of one tile in grid coordinates.
type ContourSet struct {
	Contours   []Contour
	Side       int
	BorderSide int
	CellWidth  float32
	CellHeight float32
	Bmin       mgl32.Vec3
}

// BuildContours traces and simplifies the outline of every region.
func BuildContours(oh *OpenHeightfield, settings *config.Settings, log *zap.Logger) *ContourSet {
	if log == nil {
		log = zap.NewNop()
	}
	cset := &ContourSet{
		Side:       oh.Side,
		BorderSide: oh.BorderSide,
		CellWidth:  oh.CellWidth,
		CellHeight: oh.CellHeight,
		Bmin:       oh.Bmin,
	}
	maxError := settings.MaxContourSimplificationError
	maxEdgeLen := int(settings.MaxEdgeLength)

	// Mark boundary edges: bit dir is set when the span does not continue
	// into the same region in that direction.
	flags := make([]uint8, len(oh.Spans))
	for i := range oh.Spans {
		s := &oh.Spans[i]
		if s.Region == 0 {
			continue
		}
		var connected uint8
		for dir := 0; dir < 4; dir++ {
			if a := oh.neighbour(i, dir); a != notConnected && oh.Spans[a].Region == s.Region {
				connected |= 1 << dir
			}
		}
		flags[i] = connected ^ 0xf
	}

	for z := 0; z < oh.Side; z++ {
		for x := 0; x < oh.Side; x++ {
			start, end := oh.Column(x, z)
			for i := start; i < end; i++ {
				if flags[i] == 0xf {
					// a single isolated span cannot form a polygon
					flags[i] = 0
				}
				if flags[i] == 0 {
					continue
				}
				s := &oh.Spans[i]
				raw := walkContour(oh, x, z, i, flags)
				simplified := simplifyContour(raw, maxError, maxEdgeLen)
				simplified = removeDegenerateSegments(simplified)
				if len(simplified) < 3 {
					continue
				}
				cset.Contours = append(cset.Contours, Contour{
					Vertices:    simplified,
					RawVertices: raw,
					Region:      s.Region,
					Area:        s.Area,
				})
			}
		}
	}
	mergeHoles(cset, maxEdgeLen, log)
	return cset
}

func getCornerHeight(oh *OpenHeightfield, i, dir int) int32 {
	ch := oh.Spans[i].Floor
	dirp := (dir + 1) & 0x3
	if a := oh.neighbour(i, dir); a != notConnected {
		ch = max(ch, oh.Spans[a].Floor)
		if a2 := oh.neighbour(a, dirp); a2 != notConnected {
			ch = max(ch, oh.Spans[a2].Floor)
		}
	}
	if a := oh.neighbour(i, dirp); a != notConnected {
		ch = max(ch, oh.Spans[a].Floor)
		if a2 := oh.neighbour(a, dir); a2 != notConnected {
			ch = max(ch, oh.Spans[a2].Floor)
		}
	}
	return int32(ch)
}

// walkContour follows the region boundary clockwise starting at span i,
// emitting the corner at the end of every boundary edge.
func walkContour(oh *OpenHeightfield, x, z, i int, flags []uint8) []ContourVertex {
	dir := 0
	for flags[i]&(1<<dir) == 0 {
		dir++
	}
	startDir, startI := dir, i
	var out []ContourVertex
	for iter := 0; iter < 40000; iter++ {
		if flags[i]&(1<<dir) != 0 {
			px, pz := int32(x), int32(z)
			py := getCornerHeight(oh, i, dir)
			switch dir {
			case 0:
				pz++
			case 1:
				px++
				pz++
			case 2:
				px++
			}
			var r int32
			if a := oh.neighbour(i, dir); a != notConnected {
				r = int32(oh.Spans[a].Region)
			}
			if !oh.InTile(x+common.GetDirOffsetX(dir), z+common.GetDirOffsetZ(dir)) {
				r |= flagBorderVertex
			}
			out = append(out, ContourVertex{px, py, pz, r})
			flags[i] &^= 1 << dir
			dir = (dir + 1) & 0x3
		} else {
			ni := oh.neighbour(i, dir)
			if ni == notConnected {
				// the boundary flags said this edge was open
				return out
			}
			x += common.GetDirOffsetX(dir)
			z += common.GetDirOffsetZ(dir)
			i = ni
			dir = (dir + 3) & 0x3
		}
		if i == startI && dir == startDir {
			break
		}
	}
	return out
}

type simplifiedVertex struct {
	v   ContourVertex
	raw int
}

// simplifyContour keeps the raw vertices where the edge data changes and
// every vertex on the tile border, then refines every segment until no raw vertex deviates more than maxError and
// no segment is longer than maxEdgeLen cells (0 disables the length limit).
// Segments are always scanned in lexicographic order so both regions
// sharing an edge pick the same vertices.
func simplifyContour(raw []ContourVertex, maxError float32, maxEdgeLen int) []ContourVertex {
	pn := len(raw)
	if pn == 0 {
		return nil
	}
	var simp []simplifiedVertex
	for i := 0; i < pn; i++ {
		ii := (i + 1) % pn
		if raw[i][3] != raw[ii][3] || raw[i].IsBorderVertex() {
			simp = append(simp, simplifiedVertex{raw[i], i})
		}
	}
	if len(simp) == 0 {
		ll, ur := 0, 0
		for i, v := range raw {
			if v[0] < raw[ll][0] || (v[0] == raw[ll][0] && v[2] < raw[ll][2]) {
				ll = i
			}
			if v[0] > raw[ur][0] || (v[0] == raw[ur][0] && v[2] > raw[ur][2]) {
				ur = i
			}
		}
		simp = append(simp, simplifiedVertex{raw[ll], ll}, simplifiedVertex{raw[ur], ur})
	}

	maxErrSqr := maxError * maxError
	for i := 0; i < len(simp); {
		ii := (i + 1) % len(simp)
		a, b := simp[i], simp[ii]
		ax, az, ai := a.v[0], a.v[2], a.raw
		bx, bz, bi := b.v[0], b.v[2], b.raw

		var ci, cinc, endi int
		if bx > ax || (bx == ax && bz > az) {
			cinc = 1
			ci = (ai + cinc) % pn
			endi = bi
		} else {
			cinc = pn - 1
			ci = (bi + cinc) % pn
			endi = ai
			ax, bx = bx, ax
			az, bz = bz, az
		}
		maxi := -1
		var maxd float32
		for ci != endi {
			d := common.DistancePtSegSqrInt(raw[ci][0], raw[ci][2], ax, az, bx, bz)
			if d > maxd {
				maxd, maxi = d, ci
			}
			ci = (ci + cinc) % pn
		}
		if maxd <= maxErrSqr {
			maxi = -1
		}

		if maxi == -1 && maxEdgeLen > 0 {
			dx := int(bx - ax)
			dz := int(bz - az)
			if dx*dx+dz*dz > maxEdgeLen*maxEdgeLen {
				n := bi - ai
				if bi < ai {
					n = bi + pn - ai
				}
				if n > 1 {
					// a/b were swapped above when b precedes a lexicographically
					if cinc == 1 {
						maxi = (ai + n/2) % pn
					} else {
						maxi = (ai + (n+1)/2) % pn
					}
				}
			}
		}

		if maxi == -1 {
			i++
			continue
		}
		simp = append(simp, simplifiedVertex{})
		copy(simp[i+2:], simp[i+1:])
		simp[i+1] = simplifiedVertex{raw[maxi], maxi}
	}

	out := make([]ContourVertex, len(simp))
	for i, s := range simp {
		v := s.v
		// edge data of the segment leaving this vertex
		v[3] = raw[(s.raw+1)%pn][3]
		out[i] = v
	}
	return out
}

// removeDegenerateSegments drops vertices equal on xz to their successor.
func removeDegenerateSegments(verts []ContourVertex) []ContourVertex {
	for i := 0; i < len(verts) && len(verts) > 0; {
		ni := common.Next(i, len(verts))
		if i != ni && common.VequalXZ(verts[i][:], verts[ni][:]) {
			verts = append(verts[:i], verts[i+1:]...)
			continue
		}
		i++
	}
	return verts
}

func contourArea2(verts []ContourVertex) int64 {
	var area int64
	for i, j := 0, len(verts)-1; i < len(verts); j, i = i, i+1 {
		area += int64(verts[i][0])*int64(verts[j][2]) - int64(verts[j][0])*int64(verts[i][2])
	}
	return area
}

type contourHole struct {
	contour    *Contour
	minX, minZ int32
	leftmost   int
}

// mergeHoles stitches every hole contour into the outline of its region.
// Outlines wind with positive area, holes with negative area.
func mergeHoles(cset *ContourSet, maxEdgeLen int, log *zap.Logger) {
	type regionContours struct {
		outline *Contour
		holes   []contourHole
	}
	byRegion := map[uint16]*regionContours{}
	var order []uint16
	hasHoles := false
	for i := range cset.Contours {
		c := &cset.Contours[i]
		rc := byRegion[c.Region]
		if rc == nil {
			rc = &regionContours{}
			byRegion[c.Region] = rc
			order = append(order, c.Region)
		}
		if contourArea2(c.Vertices) < 0 {
			rc.holes = append(rc.holes, contourHole{contour: c})
			hasHoles = true
			continue
		}
		if rc.outline != nil {
			log.Warn("region has multiple outlines", zap.Uint16("region", c.Region))
			continue
		}
		rc.outline = c
	}
	if !hasHoles {
		return
	}

	merged := make(map[*Contour]bool)
	for _, id := range order {
		rc := byRegion[id]
		if len(rc.holes) == 0 {
			continue
		}
		if rc.outline == nil {
			log.Warn("region has holes but no outline", zap.Uint16("region", id))
			continue
		}
		mergeRegionHoles(rc.outline, rc.holes, maxEdgeLen, log)
		for _, h := range rc.holes {
			merged[h.contour] = true
		}
	}

	kept := cset.Contours[:0]
	for i := range cset.Contours {
		if !merged[&cset.Contours[i]] {
			kept = append(kept, cset.Contours[i])
		}
	}
	cset.Contours = kept
}

func mergeRegionHoles(outline *Contour, holes []contourHole, maxEdgeLen int, log *zap.Logger) {
	for i := range holes {
		h := &holes[i]
		verts := h.contour.Vertices
		h.minX, h.minZ = verts[0][0], verts[0][2]
		for j, v := range verts {
			if v[0] < h.minX || (v[0] == h.minX && v[2] < h.minZ) {
				h.minX, h.minZ, h.leftmost = v[0], v[2], j
			}
		}
	}
	sort.Slice(holes, func(i, j int) bool {
		if holes[i].minX != holes[j].minX {
			return holes[i].minX < holes[j].minX
		}
		return holes[i].minZ < holes[j].minZ
	})

	type diagonal struct {
		vert int
		dist int64
	}
	for i := range holes {
		hole := holes[i].contour
		index := -1
		best := holes[i].leftmost
		for iter := 0; iter < len(hole.Vertices); iter++ {
			corner := hole.Vertices[best][:]
			var diags []diagonal
			ov := outline.Vertices
			for j := range ov {
				pin1 := ov[common.Prev(j, len(ov))][:]
				pi1 := ov[common.Next(j, len(ov))][:]
				if common.InCone(pin1, ov[j][:], pi1, corner) {
					dx := int64(ov[j][0] - corner[0])
					dz := int64(ov[j][2] - corner[2])
					diags = append(diags, diagonal{j, dx*dx + dz*dz})
				}
			}
			sort.SliceStable(diags, func(a, b int) bool { return diags[a].dist < diags[b].dist })

			for _, d := range diags {
				pt := ov[d.vert][:]
				crosses := intersectSegContour(pt, corner, d.vert, ov)
				for k := i; k < len(holes) && !crosses; k++ {
					crosses = intersectSegContour(pt, corner, -1, holes[k].contour.Vertices)
				}
				if !crosses {
					index = d.vert
					break
				}
			}
			if index != -1 {
				break
			}
			best = (best + 1) % len(hole.Vertices)
		}
		if index == -1 {
			log.Warn("failed to find a merge point for hole", zap.Uint16("region", outline.Region))
			continue
		}
		outline.Vertices = mergeContours(outline.Vertices, hole.Vertices, index, best, maxEdgeLen)
	}
}

// intersectSegContour reports whether segment d0-d1 crosses the loop,
// ignoring edges incident to vertex skip.
func intersectSegContour(d0, d1 []int32, skip int, verts []ContourVertex) bool {
	n := len(verts)
	for k := 0; k < n; k++ {
		k1 := common.Next(k, n)
		if skip == k || skip == k1 {
			continue
		}
		p0, p1 := verts[k][:], verts[k1][:]
		if common.VequalXZ(d0, p0) || common.VequalXZ(d1, p0) || common.VequalXZ(d0, p1) || common.VequalXZ(d1, p1) {
			continue
		}
		if common.Intersect(d0, d1, p0, p1) {
			return true
		}
	}
	return false
}

// mergeContours splices b into a through the bridge a[ia]-b[ib]. Both
// bridge ends appear twice in the result. Bridge edges longer than
// maxEdgeLen cells are split like any other contour edge.
func mergeContours(a, b []ContourVertex, ia, ib, maxEdgeLen int) []ContourVertex {
	out := make([]ContourVertex, 0, len(a)+len(b)+2)
	for i := 0; i <= len(a); i++ {
		out = append(out, a[(ia+i)%len(a)])
	}
	out = appendBridgeSplits(out, a[ia], b[ib], maxEdgeLen)
	for i := 0; i <= len(b); i++ {
		out = append(out, b[(ib+i)%len(b)])
	}
	return appendBridgeSplits(out, b[ib], a[ia], maxEdgeLen)
}

// appendBridgeSplits appends the vertices strictly between p and q that
// halve the segment until no piece is longer than maxEdgeLen. Split
// vertices carry wall edge data.
func appendBridgeSplits(out []ContourVertex, p, q ContourVertex, maxEdgeLen int) []ContourVertex {
	if maxEdgeLen <= 0 {
		return out
	}
	dx, dz := int(q[0]-p[0]), int(q[2]-p[2])
	if dx*dx+dz*dz <= maxEdgeLen*maxEdgeLen {
		return out
	}
	m := ContourVertex{(p[0] + q[0]) / 2, (p[1] + q[1]) / 2, (p[2] + q[2]) / 2, 0}
	if common.VequalXZ(m[:], p[:]) || common.VequalXZ(m[:], q[:]) {
		return out
	}
	out = appendBridgeSplits(out, p, m, maxEdgeLen)
	out = append(out, m)
	return appendBridgeSplits(out, m, q, maxEdgeLen)
}
