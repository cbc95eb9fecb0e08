package detour

import (
	"github.com/go-gl/mathgl/mgl32"

	"tilednav/config"
	"tilednav/recast"
)

// PolygonRef addresses a polygon in the tile map.
type PolygonRef struct {
	Tile    config.TileCoord
	Polygon uint32
}

// Polygon is a convex navigation polygon. Edges[i] describes the edge from
// Indices[i] to Indices[i+1].
type Polygon struct {
	Indices []uint32
	Edges   []recast.EdgeConnection
	Area    recast.Area
	// xz bounds, y included for snapshots
	Min, Max mgl32.Vec3
}

// NavMeshTile is the world-space polygon mesh of one tile.
type NavMeshTile struct {
	Coord    config.TileCoord
	Vertices []mgl32.Vec3
	Polygons []Polygon
	// CellWidth and MaxClimb bound how far apart two border edges of
	// neighbouring tiles may lie and still connect.
	CellWidth float32
	MaxClimb  float32
}

// CreateTile converts a grid-space polygon mesh into a tile.
func CreateTile(settings *config.Settings, coord config.TileCoord, mesh *recast.PolyMesh) *NavMeshTile {
	origin := settings.TileOriginWithBorder(coord)
	tile := &NavMeshTile{
		Coord:     coord,
		Vertices:  make([]mgl32.Vec3, len(mesh.Vertices)),
		Polygons:  make([]Polygon, len(mesh.Polygons)),
		CellWidth: settings.CellWidth,
		// one extra cell of slack for corner height rounding
		MaxClimb: float32(settings.StepHeight+1) * settings.CellHeight,
	}
	for i, v := range mesh.Vertices {
		tile.Vertices[i] = mgl32.Vec3{
			origin[0] + float32(v[0])*settings.CellWidth,
			settings.WorldBottomBound + float32(v[1])*settings.CellHeight,
			origin[1] + float32(v[2])*settings.CellWidth,
		}
	}
	for i, p := range mesh.Polygons {
		poly := Polygon{
			Indices: append([]uint32(nil), p.Indices...),
			Edges:   append([]recast.EdgeConnection(nil), p.Edges...),
			Area:    p.Area,
		}
		poly.updateBounds(tile.Vertices)
		tile.Polygons[i] = poly
	}
	return tile
}

func (p *Polygon) updateBounds(verts []mgl32.Vec3) {
	p.Min = verts[p.Indices[0]]
	p.Max = p.Min
	for _, i := range p.Indices[1:] {
		v := verts[i]
		for k := 0; k < 3; k++ {
			p.Min[k] = min(p.Min[k], v[k])
			p.Max[k] = max(p.Max[k], v[k])
		}
	}
}

// PolygonVertices returns the world positions of a polygon's corners.
func (t *NavMeshTile) PolygonVertices(poly uint32) []mgl32.Vec3 {
	p := &t.Polygons[poly]
	out := make([]mgl32.Vec3, len(p.Indices))
	for i, idx := range p.Indices {
		out[i] = t.Vertices[idx]
	}
	return out
}

// Edge returns the endpoints of edge e of a polygon.
func (t *NavMeshTile) Edge(poly uint32, e int) (mgl32.Vec3, mgl32.Vec3) {
	p := &t.Polygons[poly]
	return t.Vertices[p.Indices[e]], t.Vertices[p.Indices[(e+1)%len(p.Indices)]]
}
