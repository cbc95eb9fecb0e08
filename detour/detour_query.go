package detour

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"tilednav/common"
	"tilednav/config"
	"tilednav/recast"
)

const (
	// DefaultSearchRadius is how far from a query endpoint a polygon is
	// looked for, in world units.
	DefaultSearchRadius = 5.0
	// heuristicScale keeps the heuristic slightly admissible.
	heuristicScale = 0.999
)

type queryOptions struct {
	searchRadius float32
	areaCosts    map[recast.Area]float32
}

type QueryOption func(*queryOptions)

func WithSearchRadius(radius float32) QueryOption {
	return func(o *queryOptions) { o.searchRadius = radius }
}

// WithAreaCosts sets the traversal cost multiplier per area. Areas missing
// from costs cost 1.
func WithAreaCosts(costs map[recast.Area]float32) QueryOption {
	return func(o *queryOptions) { o.areaCosts = costs }
}

func newQueryOptions(opts []QueryOption) *queryOptions {
	o := &queryOptions{searchRadius: DefaultSearchRadius}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *queryOptions) cost(a, b mgl32.Vec3, area recast.Area) float32 {
	c, ok := o.areaCosts[area]
	if !ok {
		c = 1
	}
	return a.Sub(b).Len() * c
}

// FindPath finds a polygon path between two world positions and pulls it
// taut. The returned points start at start and end at end.
func FindPath(tiles *NavMeshTiles, settings *config.Settings, start, end mgl32.Vec3, opts ...QueryOption) ([]mgl32.Vec3, QueryStatus) {
	path, status := FindPolygonPath(tiles, settings, start, end, opts...)
	if status != QuerySuccess {
		return nil, status
	}
	return PerformStringPullingOnPath(tiles, start, end, path)
}

// FindPolygonPath runs A* over the polygon graph, crossing tile borders
// through external edges.
func FindPolygonPath(tiles *NavMeshTiles, settings *config.Settings, start, end mgl32.Vec3, opts ...QueryOption) ([]PolygonRef, QueryStatus) {
	o := newQueryOptions(opts)
	startRef, startPos, ok := findNearestPolygon(tiles, settings, start, o.searchRadius)
	if !ok {
		return nil, QueryStartNotFound
	}
	endRef, endPos, ok := findNearestPolygon(tiles, settings, end, o.searchRadius)
	if !ok {
		return nil, QueryEndNotFound
	}
	if startRef == endRef {
		return []PolygonRef{startRef}, QuerySuccess
	}

	pool := newNodePool()
	var open nodeQueue
	startNode := pool.get(startRef)
	startNode.pos = startPos
	startNode.total = startPos.Sub(endPos).Len() * heuristicScale
	startNode.flags = nodeOpen
	open.offer(startNode)

	for open.Len() > 0 {
		best := open.poll()
		best.flags &^= nodeOpen
		best.flags |= nodeClosed
		if best.ref == endRef {
			return pathToNode(best), QuerySuccess
		}

		_, bestPoly, _ := tiles.Polygon(best.ref)
		for _, link := range polygonLinks(tiles, best.ref) {
			if best.parent != nil && link.to == best.parent.ref {
				continue
			}
			_, nbPoly, ok := tiles.Polygon(link.to)
			if !ok {
				continue
			}
			nb := pool.get(link.to)
			if nb.flags == 0 {
				nb.pos = link.left.Add(link.right).Mul(0.5)
			}

			var cost, heuristic float32
			if link.to == endRef {
				cost = best.cost + o.cost(best.pos, nb.pos, bestPoly.Area) + o.cost(nb.pos, endPos, nbPoly.Area)
			} else {
				cost = best.cost + o.cost(best.pos, nb.pos, bestPoly.Area)
				heuristic = nb.pos.Sub(endPos).Len() * heuristicScale
			}
			total := cost + heuristic
			if nb.flags&(nodeOpen|nodeClosed) != 0 && total >= nb.total {
				continue
			}

			nb.parent = best
			nb.flags &^= nodeClosed
			nb.cost = cost
			nb.total = total
			if nb.flags&nodeOpen != 0 {
				open.update(nb)
			} else {
				nb.flags |= nodeOpen
				open.offer(nb)
			}
		}
	}
	return nil, QueryNoPath
}

func pathToNode(n *node) []PolygonRef {
	var path []PolygonRef
	for ; n != nil; n = n.parent {
		path = append(path, n.ref)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// findNearestPolygon returns the polygon closest to pos within radius and
// the closest point on it. Positions over a polygon measure only the
// vertical distance.
func findNearestPolygon(tiles *NavMeshTiles, settings *config.Settings, pos mgl32.Vec3, radius float32) (PolygonRef, mgl32.Vec3, bool) {
	lo, hi := settings.TilesInBounds(
		mgl32.Vec2{pos[0] - radius, pos[2] - radius},
		mgl32.Vec2{pos[0] + radius, pos[2] + radius})

	var bestRef PolygonRef
	var bestPos mgl32.Vec3
	bestDist := float32(math.MaxFloat32)
	for y := lo.Y; y <= hi.Y; y++ {
		for x := lo.X; x <= hi.X; x++ {
			tile, ok := tiles.Tile(config.TileCoord{X: x, Y: y})
			if !ok {
				continue
			}
			for pi := range tile.Polygons {
				p := &tile.Polygons[pi]
				if pos[0] < p.Min[0]-radius || pos[0] > p.Max[0]+radius ||
					pos[1] < p.Min[1]-radius || pos[1] > p.Max[1]+radius ||
					pos[2] < p.Min[2]-radius || pos[2] > p.Max[2]+radius {
					continue
				}
				closest, _ := closestPointOnPolygon(tile.PolygonVertices(uint32(pi)), pos)
				if d := closest.Sub(pos).Len(); d <= radius && d < bestDist {
					bestDist = d
					bestPos = closest
					bestRef = PolygonRef{Tile: tile.Coord, Polygon: uint32(pi)}
				}
			}
		}
	}
	return bestRef, bestPos, bestDist <= radius
}

// portal is the opening from one polygon into a neighbour, left and right
// as seen walking along the source polygon's edge.
type portal struct {
	to          PolygonRef
	left, right mgl32.Vec3
}

func polygonLinks(tiles *NavMeshTiles, ref PolygonRef) []portal {
	tile, poly, ok := tiles.Polygon(ref)
	if !ok {
		return nil
	}
	var out []portal
	for e, edge := range poly.Edges {
		switch edge.Kind {
		case recast.EdgeInternal:
			a, b := tile.Edge(ref.Polygon, e)
			out = append(out, portal{
				to:    PolygonRef{Tile: tile.Coord, Polygon: edge.Polygon},
				left:  a,
				right: b,
			})
		case recast.EdgeExternal:
			out = append(out, externalPortals(tiles, tile, ref.Polygon, e, int(edge.Direction))...)
		}
	}
	return out
}

// externalPortals matches a border edge against the facing border edges of
// the neighbouring tile. The portal is the overlap of the two edges.
func externalPortals(tiles *NavMeshTiles, tile *NavMeshTile, poly uint32, e, dir int) []portal {
	coord, ok := neighbourTile(tile.Coord, dir)
	if !ok {
		return nil
	}
	other, ok := tiles.Tile(coord)
	if !ok {
		return nil
	}
	// edges on the x sides run along z and the other way round
	axis, fixed := 2, 0
	if dir == 1 || dir == 3 {
		axis, fixed = 0, 2
	}
	a, b := tile.Edge(poly, e)
	if a[axis] == b[axis] {
		return nil
	}
	amin, amax := min(a[axis], b[axis]), max(a[axis], b[axis])
	opposite := uint8(common.OppositeDir(dir))
	eps := tile.CellWidth * 0.01

	var out []portal
	for pi := range other.Polygons {
		op := &other.Polygons[pi]
		for oe, edge := range op.Edges {
			if edge.Kind != recast.EdgeExternal || edge.Direction != opposite {
				continue
			}
			c, d := other.Edge(uint32(pi), oe)
			if math.Abs(float64(c[fixed]-a[fixed])) > float64(tile.CellWidth)*0.5 {
				continue
			}
			lo := max(amin, min(c[axis], d[axis]))
			hi := min(amax, max(c[axis], d[axis]))
			if hi-lo <= eps {
				continue
			}
			t0 := (lo - a[axis]) / (b[axis] - a[axis])
			t1 := (hi - a[axis]) / (b[axis] - a[axis])
			tmin, tmax := min(t0, t1), max(t0, t1)
			left, right := lerp(a, b, tmin), lerp(a, b, tmax)

			// both edges must meet at a walkable height at the overlap
			mid := (lo + hi) / 2
			ya := lerp(a, b, (mid-a[axis])/(b[axis]-a[axis]))[1]
			yc := lerp(c, d, (mid-c[axis])/(d[axis]-c[axis]))[1]
			if float32(math.Abs(float64(ya-yc))) > max(tile.MaxClimb, other.MaxClimb) {
				continue
			}
			out = append(out, portal{
				to:    PolygonRef{Tile: coord, Polygon: uint32(pi)},
				left:  left,
				right: right,
			})
		}
	}
	return out
}

func portalBetween(tiles *NavMeshTiles, from, to PolygonRef) (mgl32.Vec3, mgl32.Vec3, bool) {
	for _, p := range polygonLinks(tiles, from) {
		if p.to == to {
			return p.left, p.right, true
		}
	}
	return mgl32.Vec3{}, mgl32.Vec3{}, false
}

// PerformStringPullingOnPath runs the funnel algorithm along the portals of
// a polygon path. It never searches the graph. Endpoints outside their
// polygon are clamped onto it.
func PerformStringPullingOnPath(tiles *NavMeshTiles, start, end mgl32.Vec3, path []PolygonRef) ([]mgl32.Vec3, QueryStatus) {
	if len(path) == 0 {
		return nil, QueryInvalidPath
	}
	first, ok := tiles.Tile(path[0].Tile)
	if !ok || int(path[0].Polygon) >= len(first.Polygons) {
		return nil, QueryInvalidPath
	}
	last, ok := tiles.Tile(path[len(path)-1].Tile)
	if !ok || int(path[len(path)-1].Polygon) >= len(last.Polygons) {
		return nil, QueryInvalidPath
	}
	if p, inside := closestPointOnPolygon(first.PolygonVertices(path[0].Polygon), start); !inside {
		start = p
	}
	if p, inside := closestPointOnPolygon(last.PolygonVertices(path[len(path)-1].Polygon), end); !inside {
		end = p
	}

	portals := make([][2]mgl32.Vec3, 0, len(path)-1)
	for i := 0; i+1 < len(path); i++ {
		left, right, ok := portalBetween(tiles, path[i], path[i+1])
		if !ok {
			return nil, QueryInvalidPath
		}
		portals = append(portals, [2]mgl32.Vec3{left, right})
	}
	return stringPull(start, end, portals), QuerySuccess
}

func appendPoint(points []mgl32.Vec3, p mgl32.Vec3) []mgl32.Vec3 {
	if len(points) > 0 && common.Vequal(points[len(points)-1], p) {
		return points
	}
	return append(points, p)
}

func stringPull(start, end mgl32.Vec3, portals [][2]mgl32.Vec3) []mgl32.Vec3 {
	points := []mgl32.Vec3{start}
	apex, portalLeft, portalRight := start, start, start
	apexIndex, leftIndex, rightIndex := 0, 0, 0

	for i := 0; i <= len(portals); i++ {
		var left, right mgl32.Vec3
		if i < len(portals) {
			left, right = portals[i][0], portals[i][1]
			// starting on the first portal
			if i == 0 {
				if d, _ := common.DistancePtSegSqr2D(apex, left, right); d < common.Sqr(float32(0.001)) {
					continue
				}
			}
		} else {
			left, right = end, end
		}

		// right vertex
		if common.TriArea2D(apex, portalRight, right) <= 0 {
			if common.Vequal(apex, portalRight) || common.TriArea2D(apex, portalLeft, right) > 0 {
				portalRight = right
				rightIndex = i
			} else {
				apex = portalLeft
				apexIndex = leftIndex
				points = appendPoint(points, apex)
				portalLeft, portalRight = apex, apex
				leftIndex, rightIndex = apexIndex, apexIndex
				i = apexIndex
				continue
			}
		}

		// left vertex
		if common.TriArea2D(apex, portalLeft, left) >= 0 {
			if common.Vequal(apex, portalLeft) || common.TriArea2D(apex, portalRight, left) < 0 {
				portalLeft = left
				leftIndex = i
			} else {
				apex = portalRight
				apexIndex = rightIndex
				points = appendPoint(points, apex)
				portalLeft, portalRight = apex, apex
				leftIndex, rightIndex = apexIndex, apexIndex
				i = apexIndex
				continue
			}
		}
	}
	return appendPoint(points, end)
}

// FindPath runs FindPath under the read lock.
func (n *NavMesh) FindPath(settings *config.Settings, start, end mgl32.Vec3, opts ...QueryOption) ([]mgl32.Vec3, QueryStatus, error) {
	var path []mgl32.Vec3
	var status QueryStatus
	err := n.Read(func(tiles *NavMeshTiles) error {
		path, status = FindPath(tiles, settings, start, end, opts...)
		return nil
	})
	return path, status, err
}

// FindPolygonPath runs FindPolygonPath under the read lock.
func (n *NavMesh) FindPolygonPath(settings *config.Settings, start, end mgl32.Vec3, opts ...QueryOption) ([]PolygonRef, QueryStatus, error) {
	var path []PolygonRef
	var status QueryStatus
	err := n.Read(func(tiles *NavMeshTiles) error {
		path, status = FindPolygonPath(tiles, settings, start, end, opts...)
		return nil
	})
	return path, status, err
}
