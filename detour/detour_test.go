package detour

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap/zaptest"

	"tilednav/config"
	"tilednav/recast"
)

// gridSettings lays out 2x2 tiles of 3x3 world units.
func gridSettings() config.Settings {
	s := config.Default()
	s.CellWidth = 1
	s.TileWidth = 3
	s.WorldHalfExtents = 3
	s.WalkableRadius = 0
	return s
}

// gridTile covers a tile with n*n unit squares at height y, wound and
// linked like a generated mesh. Cells listed in holes are left out.
func gridTile(s *config.Settings, coord config.TileCoord, n int, y float32, holes ...[2]int) *NavMeshTile {
	origin := s.TileOrigin(coord)
	size := s.TileSize() / float32(n)
	tile := &NavMeshTile{Coord: coord, CellWidth: s.CellWidth, MaxClimb: float32(s.StepHeight+1) * s.CellHeight}
	vert := func(i, j int) uint32 { return uint32(i + j*(n+1)) }
	for j := 0; j <= n; j++ {
		for i := 0; i <= n; i++ {
			tile.Vertices = append(tile.Vertices, mgl32.Vec3{origin[0] + float32(i)*size, y, origin[1] + float32(j)*size})
		}
	}
	index := gridIndex(n, holes...)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			if _, ok := index[[2]int{i, j}]; !ok {
				continue
			}
			p := Polygon{Indices: []uint32{vert(i, j), vert(i, j+1), vert(i+1, j+1), vert(i+1, j)}}
			// edges face -x, +z, +x, -z
			steps := [4][2]int{{i - 1, j}, {i, j + 1}, {i + 1, j}, {i, j - 1}}
			for dir, st := range steps {
				if st[0] < 0 || st[1] < 0 || st[0] >= n || st[1] >= n {
					p.Edges = append(p.Edges, recast.EdgeConnection{Kind: recast.EdgeExternal, Direction: uint8(dir)})
					continue
				}
				if nb, ok := index[st]; ok {
					p.Edges = append(p.Edges, recast.EdgeConnection{Kind: recast.EdgeInternal, Polygon: nb})
					continue
				}
				p.Edges = append(p.Edges, recast.EdgeConnection{})
			}
			p.updateBounds(tile.Vertices)
			tile.Polygons = append(tile.Polygons, p)
		}
	}
	return tile
}

// gridIndex maps the cells of a holed n*n grid to polygon indices.
func gridIndex(n int, holes ...[2]int) map[[2]int]uint32 {
	skip := make(map[[2]int]bool, len(holes))
	for _, h := range holes {
		skip[h] = true
	}
	index := make(map[[2]int]uint32, n*n)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			if !skip[[2]int{i, j}] {
				index[[2]int{i, j}] = uint32(len(index))
			}
		}
	}
	return index
}

// cellCentre returns the world centre of cell (i, j) of an n*n grid tile.
func cellCentre(s *config.Settings, coord config.TileCoord, n, i, j int) mgl32.Vec3 {
	origin := s.TileOrigin(coord)
	size := s.TileSize() / float32(n)
	return mgl32.Vec3{origin[0] + (float32(i)+0.5)*size, 0, origin[1] + (float32(j)+0.5)*size}
}

// voxelSettings describes 8m tiles of 32x32 cells, 2x2 tiles in the world.
func voxelSettings() config.Settings {
	s := config.Default()
	s.TileWidth = 32
	s.WorldHalfExtents = 8
	s.WalkableRadius = 2
	s.WalkableHeight = 10
	s.StepHeight = 3
	s.MinRegionArea = 8
	s.MergeRegionArea = 2000
	s.MaxEdgeLength = 12
	s.MaxContourSimplificationError = 1.3
	return s
}

func flatGround(l float32) recast.Geometry {
	return recast.Geometry{
		Shape: &recast.TriangleMesh{
			Vertices: []mgl32.Vec3{{-l, 0, -l}, {-l, 0, 3 * l}, {3 * l, 0, -l}},
			Indices:  [][3]uint32{{0, 1, 2}},
		},
		Transform: recast.IdentityTransform(),
	}
}

func buildTile(t *testing.T, s *config.Settings, coord config.TileCoord, geometry ...recast.Geometry) *NavMeshTile {
	t.Helper()
	mesh := recast.BuildTileMesh(s, coord, geometry, zaptest.NewLogger(t))
	return CreateTile(s, coord, mesh)
}
