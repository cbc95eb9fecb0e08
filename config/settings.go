package config

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

var ErrInvalidSettings = errors.New("config: invalid nav-mesh settings")

// TileCoord addresses a tile on the xz plane. Y is the world z axis.
type TileCoord struct {
	X uint32 `yaml:"x"`
	Y uint32 `yaml:"y"`
}

func (t TileCoord) String() string {
	return fmt.Sprintf("(%d,%d)", t.X, t.Y)
}

// Settings is shared, read-only, by every generation stage and query.
// Heights and radii are in cells, areas in spans.
type Settings struct {
	// Horizontal voxel size in world units.
	CellWidth float32 `yaml:"cell_width"`
	// Vertical voxel size in world units.
	CellHeight float32 `yaml:"cell_height"`
	// Cells per tile side.
	TileWidth uint16 `yaml:"tile_width"`
	// The world spans [-WorldHalfExtents, WorldHalfExtents] on x and z.
	WorldHalfExtents float32 `yaml:"world_half_extents"`
	WorldBottomBound float32 `yaml:"world_bottom_bound"`

	MaxTraversableSlopeRadians float32 `yaml:"max_traversable_slope_radians"`
	WalkableHeight             uint16  `yaml:"walkable_height"`
	WalkableRadius             uint16  `yaml:"walkable_radius"`
	StepHeight                 uint16  `yaml:"step_height"`

	MinRegionArea   int `yaml:"min_region_area"`
	MergeRegionArea int `yaml:"merge_region_area"`

	MaxEdgeLength                 uint32  `yaml:"max_edge_length"`
	MaxContourSimplificationError float32 `yaml:"max_contour_simplification_error"`
	MaxVerticesPerPolygon         int     `yaml:"max_vertices_per_polygon"`

	// 0 means no cap.
	MaxTileGenerationTasks int `yaml:"max_tile_generation_tasks"`
}

// Default mirrors a mid-sized outdoor scene: 25cm cells, 25m tiles.
func Default() Settings {
	return Settings{
		CellWidth:                     0.25,
		CellHeight:                    0.1,
		TileWidth:                     100,
		WorldHalfExtents:              250,
		WorldBottomBound:              -100,
		MaxTraversableSlopeRadians:    mgl32.DegToRad(40 - 0.1),
		WalkableHeight:                20,
		WalkableRadius:                1,
		StepHeight:                    3,
		MinRegionArea:                 100,
		MergeRegionArea:               500,
		MaxEdgeLength:                 80,
		MaxContourSimplificationError: 1.1,
		MaxVerticesPerPolygon:         6,
		MaxTileGenerationTasks:        9,
	}
}

func (s *Settings) Validate() error {
	switch {
	case s.CellWidth <= 0 || s.CellHeight <= 0:
		return fmt.Errorf("%w: cell sizes must be positive", ErrInvalidSettings)
	case s.TileWidth == 0:
		return fmt.Errorf("%w: tile_width must be positive", ErrInvalidSettings)
	case s.WorldHalfExtents <= 0:
		return fmt.Errorf("%w: world_half_extents must be positive", ErrInvalidSettings)
	case s.WalkableHeight == 0:
		return fmt.Errorf("%w: walkable_height must be positive", ErrInvalidSettings)
	case s.MaxTraversableSlopeRadians < 0 || s.MaxTraversableSlopeRadians > math.Pi/2:
		return fmt.Errorf("%w: max_traversable_slope_radians out of [0, pi/2]", ErrInvalidSettings)
	case s.MinRegionArea < 0 || s.MergeRegionArea < s.MinRegionArea:
		return fmt.Errorf("%w: merge_region_area must be >= min_region_area >= 0", ErrInvalidSettings)
	case s.MaxContourSimplificationError < 0:
		return fmt.Errorf("%w: max_contour_simplification_error must not be negative", ErrInvalidSettings)
	case s.MaxVerticesPerPolygon != 0 && (s.MaxVerticesPerPolygon < 3 || s.MaxVerticesPerPolygon > 12):
		return fmt.Errorf("%w: max_vertices_per_polygon must be within [3, 12]", ErrInvalidSettings)
	case s.MaxTileGenerationTasks < 0:
		return fmt.Errorf("%w: max_tile_generation_tasks must not be negative", ErrInvalidSettings)
	}
	return nil
}

// VerticesPerPolygon returns the polygon vertex cap, defaulting to 6.
func (s *Settings) VerticesPerPolygon() int {
	if s.MaxVerticesPerPolygon == 0 {
		return 6
	}
	return s.MaxVerticesPerPolygon
}

// TileSize is the length of a tile side in world units.
func (s *Settings) TileSize() float32 {
	return s.CellWidth * float32(s.TileWidth)
}

func (s *Settings) BorderSize() float32 {
	return float32(s.WalkableRadius) * s.CellWidth
}

// TileSideWithBorder is the number of cells per side of a tile's voxel grid.
func (s *Settings) TileSideWithBorder() int {
	return int(s.TileWidth) + int(s.WalkableRadius)*2
}

func (s *Settings) BorderSide() int {
	return int(s.WalkableRadius)
}

// TileContainingPosition maps an xz world position to its tile. Positions
// below the world minimum saturate to tile 0.
func (s *Settings) TileContainingPosition(pos mgl32.Vec2) TileCoord {
	size := s.TileSize()
	toTile := func(v float32) uint32 {
		t := (v + s.WorldHalfExtents) / size
		if t <= 0 || math.IsNaN(float64(t)) {
			return 0
		}
		if t >= math.MaxUint32 {
			return math.MaxUint32
		}
		return uint32(t)
	}
	return TileCoord{X: toTile(pos[0]), Y: toTile(pos[1])}
}

// TileOrigin is the minimum xz corner of a tile.
func (s *Settings) TileOrigin(tile TileCoord) mgl32.Vec2 {
	size := s.TileSize()
	return mgl32.Vec2{
		float32(tile.X)*size - s.WorldHalfExtents,
		float32(tile.Y)*size - s.WorldHalfExtents,
	}
}

// TileOriginWithBorder is the xz world position of voxel cell (0, 0).
func (s *Settings) TileOriginWithBorder(tile TileCoord) mgl32.Vec2 {
	b := s.BorderSize()
	return s.TileOrigin(tile).Sub(mgl32.Vec2{b, b})
}

func (s *Settings) TileBounds(tile TileCoord) (mgl32.Vec2, mgl32.Vec2) {
	lo := s.TileOrigin(tile)
	size := s.TileSize()
	return lo, lo.Add(mgl32.Vec2{size, size})
}

// TileCount is the number of tiles along each world axis.
func (s *Settings) TileCount() uint32 {
	return uint32(math.Ceil(float64(2 * s.WorldHalfExtents / s.TileSize())))
}

// TilesInBounds returns the inclusive tile range covering an xz rectangle,
// clamped to the world.
func (s *Settings) TilesInBounds(bmin, bmax mgl32.Vec2) (TileCoord, TileCoord) {
	lo := s.TileContainingPosition(bmin)
	hi := s.TileContainingPosition(bmax)
	last := s.TileCount() - 1
	hi.X = min(hi.X, last)
	hi.Y = min(hi.Y, last)
	lo.X = min(lo.X, last)
	lo.Y = min(lo.Y, last)
	return lo, hi
}
