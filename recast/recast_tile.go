package recast

import (
	"go.uber.org/zap"

	"tilednav/config"
)

// BuildTileMesh runs every stage for one tile, from gathered geometry to
// the polygon mesh. It touches no shared state.
func BuildTileMesh(settings *config.Settings, tile config.TileCoord, geometry []Geometry, log *zap.Logger) *PolyMesh {
	if log == nil {
		log = zap.NewNop()
	}
	hf := Voxelize(settings, tile, geometry, log)
	oh := BuildOpenHeightfield(hf, settings)
	ErodeWalkableArea(oh, int(settings.WalkableRadius))
	BuildDistanceField(oh)
	regions := BuildRegions(oh, settings, log)
	cset := BuildContours(oh, settings, log)
	mesh := BuildPolyMesh(cset, settings, log)
	log.Debug("built tile mesh",
		zap.Stringer("tile", tile),
		zap.Int("spans", len(oh.Spans)),
		zap.Int("regions", len(regions)),
		zap.Int("contours", len(cset.Contours)),
		zap.Int("polygons", len(mesh.Polygons)))
	return mesh
}
