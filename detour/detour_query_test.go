package detour

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tilednav/config"
	"tilednav/recast"
)

func pathLength(points []mgl32.Vec3) float32 {
	var l float32
	for i := 1; i < len(points); i++ {
		d := points[i].Sub(points[i-1])
		l += mgl32.Vec2{d[0], d[2]}.Len()
	}
	return l
}

func assertNearXZ(t *testing.T, want, got mgl32.Vec3) {
	t.Helper()
	assert.InDelta(t, want[0], got[0], 1e-3)
	assert.InDelta(t, want[2], got[2], 1e-3)
}

func installAll(t *testing.T, tiles ...*NavMeshTile) *NavMesh {
	t.Helper()
	nm := NewNavMesh()
	for i, tile := range tiles {
		_, err := nm.InstallTile(uint64(i+1), tile)
		require.NoError(t, err)
	}
	return nm
}

func TestFindPathStraight(t *testing.T) {
	s := gridSettings()
	coord := config.TileCoord{}
	nm := installAll(t, gridTile(&s, coord, 3, 0))
	start, end := cellCentre(&s, coord, 3, 0, 1), cellCentre(&s, coord, 3, 2, 1)

	polys, status, err := nm.FindPolygonPath(&s, start, end)
	require.NoError(t, err)
	require.Equal(t, QuerySuccess, status)
	assert.Len(t, polys, 3)

	path, status, err := nm.FindPath(&s, start, end)
	require.NoError(t, err)
	require.Equal(t, QuerySuccess, status)
	require.Len(t, path, 2)
	assertNearXZ(t, start, path[0])
	assertNearXZ(t, end, path[1])
}

func TestFindPathSamePolygon(t *testing.T) {
	s := gridSettings()
	nm := installAll(t, gridTile(&s, config.TileCoord{}, 1, 0))
	start, end := mgl32.Vec3{-2.5, 0, -2.5}, mgl32.Vec3{-0.5, 0, -1}

	path, status, err := nm.FindPath(&s, start, end)
	require.NoError(t, err)
	require.Equal(t, QuerySuccess, status)
	assert.Equal(t, []mgl32.Vec3{start, end}, path)
}

func TestFindPathBendsAroundCorner(t *testing.T) {
	s := gridSettings()
	coord := config.TileCoord{}
	// a wall of two cells leaves a U-shaped corridor
	nm := installAll(t, gridTile(&s, coord, 3, 0, [2]int{1, 0}, [2]int{1, 1}))
	start, end := cellCentre(&s, coord, 3, 2, 0), cellCentre(&s, coord, 3, 0, 0)

	polys, status, err := nm.FindPolygonPath(&s, start, end)
	require.NoError(t, err)
	require.Equal(t, QuerySuccess, status)
	assert.Len(t, polys, 7)

	path, status, err := nm.FindPath(&s, start, end)
	require.NoError(t, err)
	require.Equal(t, QuerySuccess, status)
	require.Len(t, path, 4)
	origin := s.TileOrigin(coord)
	assertNearXZ(t, start, path[0])
	assertNearXZ(t, mgl32.Vec3{origin[0] + 2, 0, origin[1] + 2}, path[1])
	assertNearXZ(t, mgl32.Vec3{origin[0] + 1, 0, origin[1] + 2}, path[2])
	assertNearXZ(t, end, path[3])
}

func TestFindPathAcrossTiles(t *testing.T) {
	s := gridSettings()
	a, b := config.TileCoord{X: 0, Y: 0}, config.TileCoord{X: 1, Y: 0}
	nm := installAll(t, gridTile(&s, a, 3, 0), gridTile(&s, b, 3, 0.2))
	start, end := cellCentre(&s, a, 3, 0, 1), cellCentre(&s, b, 3, 2, 1)

	polys, status, err := nm.FindPolygonPath(&s, start, end)
	require.NoError(t, err)
	require.Equal(t, QuerySuccess, status)
	require.Len(t, polys, 6)
	assert.Equal(t, a, polys[0].Tile)
	assert.Equal(t, b, polys[5].Tile)

	path, status, err := nm.FindPath(&s, start, end)
	require.NoError(t, err)
	require.Equal(t, QuerySuccess, status)
	require.Len(t, path, 2)
	assert.InDelta(t, 5, pathLength(path), 1e-3)
}

func TestFindPathRejectsTooHighStep(t *testing.T) {
	s := gridSettings()
	a, b := config.TileCoord{X: 0, Y: 0}, config.TileCoord{X: 1, Y: 0}
	nm := installAll(t, gridTile(&s, a, 3, 0), gridTile(&s, b, 3, 1))

	_, status, err := nm.FindPath(&s, cellCentre(&s, a, 3, 0, 1), cellCentre(&s, b, 3, 2, 1).Add(mgl32.Vec3{0, 1, 0}))
	require.NoError(t, err)
	assert.Equal(t, QueryNoPath, status)
}

func TestFindPathUnconnectedTiles(t *testing.T) {
	s := gridSettings()
	a, b := config.TileCoord{X: 0, Y: 0}, config.TileCoord{X: 1, Y: 1}
	nm := installAll(t, gridTile(&s, a, 1, 0), gridTile(&s, b, 1, 0))

	_, status, err := nm.FindPath(&s, cellCentre(&s, a, 1, 0, 0), cellCentre(&s, b, 1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, QueryNoPath, status)
}

func TestFindPathEndpointsNotFound(t *testing.T) {
	s := gridSettings()
	s.WorldHalfExtents = 30
	nm := installAll(t, gridTile(&s, config.TileCoord{}, 1, 0))
	inside := cellCentre(&s, config.TileCoord{}, 1, 0, 0)
	far := mgl32.Vec3{20, 0, 20}

	_, status, err := nm.FindPath(&s, far, inside)
	require.NoError(t, err)
	assert.Equal(t, QueryStartNotFound, status)

	_, status, err = nm.FindPath(&s, inside, far)
	require.NoError(t, err)
	assert.Equal(t, QueryEndNotFound, status)

	// a wider search reaches the tile
	_, status, err = nm.FindPath(&s, inside, far, WithSearchRadius(100))
	require.NoError(t, err)
	assert.Equal(t, QuerySuccess, status)

	_, status, err = NewNavMesh().FindPath(&s, inside, inside)
	require.NoError(t, err)
	assert.Equal(t, QueryStartNotFound, status)
}

func TestFindPathAreaCosts(t *testing.T) {
	s := gridSettings()
	coord := config.TileCoord{}
	tile := gridTile(&s, coord, 3, 0)
	centre := gridIndex(3)[[2]int{1, 1}]
	tile.Polygons[centre].Area = 1
	nm := installAll(t, tile)
	start, end := cellCentre(&s, coord, 3, 0, 1), cellCentre(&s, coord, 3, 2, 1)

	polys, status, err := nm.FindPolygonPath(&s, start, end)
	require.NoError(t, err)
	require.Equal(t, QuerySuccess, status)
	assert.Contains(t, polys, PolygonRef{Tile: coord, Polygon: centre})

	polys, status, err = nm.FindPolygonPath(&s, start, end, WithAreaCosts(map[recast.Area]float32{1: 100}))
	require.NoError(t, err)
	require.Equal(t, QuerySuccess, status)
	assert.Len(t, polys, 5)
	assert.NotContains(t, polys, PolygonRef{Tile: coord, Polygon: centre})
}

func TestStringPullingRejectsInvalidPaths(t *testing.T) {
	s := gridSettings()
	coord := config.TileCoord{}
	nm := installAll(t, gridTile(&s, coord, 3, 0))
	index := gridIndex(3)
	start, end := cellCentre(&s, coord, 3, 0, 0), cellCentre(&s, coord, 3, 2, 2)

	require.NoError(t, nm.Read(func(tiles *NavMeshTiles) error {
		_, status := PerformStringPullingOnPath(tiles, start, end, nil)
		assert.Equal(t, QueryInvalidPath, status)

		missing := []PolygonRef{{Tile: config.TileCoord{X: 1}, Polygon: 0}}
		_, status = PerformStringPullingOnPath(tiles, start, end, missing)
		assert.Equal(t, QueryInvalidPath, status)

		gap := []PolygonRef{{Tile: coord, Polygon: index[[2]int{0, 0}]}, {Tile: coord, Polygon: index[[2]int{2, 2}]}}
		_, status = PerformStringPullingOnPath(tiles, start, end, gap)
		assert.Equal(t, QueryInvalidPath, status)

		// endpoints outside their polygons are clamped onto them
		single := []PolygonRef{{Tile: coord, Polygon: index[[2]int{0, 0}]}}
		path, status := PerformStringPullingOnPath(tiles, start, end, single)
		require.Equal(t, QuerySuccess, status)
		require.Len(t, path, 2)
		origin := s.TileOrigin(coord)
		assertNearXZ(t, mgl32.Vec3{origin[0] + 1, 0, origin[1] + 1}, path[1])
		return nil
	}))
}

func TestFindPathOnGeneratedTiles(t *testing.T) {
	s := voxelSettings()
	require.NoError(t, s.Validate())
	ground := flatGround(12)
	a, b := config.TileCoord{X: 0, Y: 0}, config.TileCoord{X: 1, Y: 0}
	nm := installAll(t, buildTile(t, &s, a, ground), buildTile(t, &s, b, ground))

	start, end := mgl32.Vec3{-6, 0, -4}, mgl32.Vec3{-2, 0, -4}
	path, status, err := nm.FindPath(&s, start, end)
	require.NoError(t, err)
	require.Equal(t, QuerySuccess, status)
	require.Len(t, path, 2)
	assert.InDelta(t, 4, pathLength(path), 1e-3)

	end = mgl32.Vec3{6, 0, -4}
	path, status, err = nm.FindPath(&s, start, end)
	require.NoError(t, err)
	require.Equal(t, QuerySuccess, status)
	assert.InDelta(t, 12, pathLength(path), 1.2)
	assertNearXZ(t, start, path[0])
	assertNearXZ(t, end, path[len(path)-1])
}

func TestFindPathBlockedByWall(t *testing.T) {
	s := voxelSettings()
	coord := config.TileCoord{}
	wall := recast.Geometry{
		Shape:     &recast.Primitive{Kind: recast.Cuboid, HalfExtents: mgl32.Vec3{0.5, 2, 10}},
		Transform: recast.Translate(-4, 2, 0),
		Area:      recast.NotWalkable,
	}
	nm := installAll(t, buildTile(t, &s, coord, flatGround(12), wall))

	_, status, err := nm.FindPath(&s, mgl32.Vec3{-6, 0, -4}, mgl32.Vec3{-2, 0, -4})
	require.NoError(t, err)
	assert.Equal(t, QueryNoPath, status)
}
