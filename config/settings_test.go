package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerivedGridMath(t *testing.T) {
	s := Default()
	assert.InDelta(t, 25.0, s.TileSize(), 1e-5)
	assert.InDelta(t, 0.25, s.BorderSize(), 1e-6)
	assert.Equal(t, 102, s.TileSideWithBorder())
	assert.Equal(t, 1, s.BorderSide())
	assert.Equal(t, uint32(20), s.TileCount())

	tile := s.TileContainingPosition(mgl32.Vec2{-250, 0.5})
	assert.Equal(t, TileCoord{X: 0, Y: 10}, tile)
	assert.Equal(t, mgl32.Vec2{-250, 0}, s.TileOrigin(tile))
	assert.Equal(t, mgl32.Vec2{-250.25, -0.25}, s.TileOriginWithBorder(tile))

	lo, hi := s.TileBounds(TileCoord{X: 1, Y: 1})
	assert.Equal(t, mgl32.Vec2{-225, -225}, lo)
	assert.Equal(t, mgl32.Vec2{-200, -200}, hi)
}

func TestTileContainingPositionSaturates(t *testing.T) {
	s := Default()
	assert.Equal(t, TileCoord{}, s.TileContainingPosition(mgl32.Vec2{-1000, -1000}))
	lo, hi := s.TilesInBounds(mgl32.Vec2{-1000, -1000}, mgl32.Vec2{1000, 1000})
	assert.Equal(t, TileCoord{}, lo)
	assert.Equal(t, TileCoord{X: 19, Y: 19}, hi)
}

func TestValidate(t *testing.T) {
	s := Default()
	require.NoError(t, s.Validate())

	bad := s
	bad.MergeRegionArea = bad.MinRegionArea - 1
	assert.ErrorIs(t, bad.Validate(), ErrInvalidSettings)

	bad = s
	bad.CellWidth = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidSettings)

	bad = s
	bad.MaxVerticesPerPolygon = 2
	assert.ErrorIs(t, bad.Validate(), ErrInvalidSettings)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "navmesh.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
nav_mesh:
  cell_width: 0.5
  tile_width: 40
  max_tile_generation_tasks: 2
log:
  level: debug
`), 0o644))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, float32(0.5), f.NavMesh.CellWidth)
	assert.Equal(t, uint16(40), f.NavMesh.TileWidth)
	assert.Equal(t, 2, f.NavMesh.MaxTileGenerationTasks)
	assert.Equal(t, float32(0.1), f.NavMesh.CellHeight)
	assert.Equal(t, "debug", f.Log.Level)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "navmesh.yaml")
	require.NoError(t, os.WriteFile(path, []byte("nav_mesh:\n  cell_height: -1\n"), 0o644))
	_, err := Load(path)
	assert.ErrorIs(t, err, ErrInvalidSettings)
}
