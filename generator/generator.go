// Package generator drives tile regeneration: it tracks which tiles each
// affector overlaps, collects dirty tiles and runs one build per dirty tile
// on a bounded pool. Results go through the nav mesh generation check, so
// runs may complete in any order.
package generator

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tilednav/config"
	"tilednav/detour"
	"tilednav/recast"
)

// AffectorID names one piece of affecting geometry, typically an entity.
type AffectorID uint64

type affector struct {
	geometry []recast.Geometry
	tiles    []config.TileCoord
}

type Option func(*Generator)

func WithLogger(log *zap.Logger) Option {
	return func(g *Generator) { g.log = log }
}

func WithMetrics(m *Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

type Generator struct {
	settings *config.Settings
	navMesh  *detour.NavMesh
	log      *zap.Logger
	metrics  *Metrics
	ticker   Ticker

	// build is swapped out by tests to control run timing.
	build func(coord config.TileCoord, geometry []recast.Geometry) *detour.NavMeshTile

	mu            sync.Mutex
	affectors     map[AffectorID]*affector
	tileAffectors map[config.TileCoord]map[AffectorID]struct{}
	dirty         map[config.TileCoord]struct{}

	groupMu  sync.Mutex
	group    *errgroup.Group
	inFlight atomic.Int64
}

func New(settings *config.Settings, navMesh *detour.NavMesh, opts ...Option) *Generator {
	g := &Generator{
		settings:      settings,
		navMesh:       navMesh,
		log:           zap.NewNop(),
		affectors:     make(map[AffectorID]*affector),
		tileAffectors: make(map[config.TileCoord]map[AffectorID]struct{}),
		dirty:         make(map[config.TileCoord]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.build = func(coord config.TileCoord, geometry []recast.Geometry) *detour.NavMeshTile {
		return buildTile(g.settings, coord, geometry, g.log)
	}
	g.group = g.newGroup()
	return g
}

func (g *Generator) newGroup() *errgroup.Group {
	group := &errgroup.Group{}
	if limit := g.settings.MaxTileGenerationTasks; limit > 0 {
		group.SetLimit(limit)
	}
	return group
}

// BuildTile runs the whole pipeline for one tile. It reads nothing but its
// arguments.
func BuildTile(settings *config.Settings, coord config.TileCoord, geometry []recast.Geometry) *detour.NavMeshTile {
	return buildTile(settings, coord, geometry, nil)
}

func buildTile(settings *config.Settings, coord config.TileCoord, geometry []recast.Geometry, log *zap.Logger) *detour.NavMeshTile {
	mesh := recast.BuildTileMesh(settings, coord, geometry, log)
	return detour.CreateTile(settings, coord, mesh)
}

// affectedTiles maps world bounds onto tiles. The bounds grow by twice the
// walkable radius so that erosion near a tile edge sees the geometry.
func (g *Generator) affectedTiles(geometry []recast.Geometry) []config.TileCoord {
	if len(geometry) == 0 {
		return nil
	}
	bmin := mgl32.Vec2{math.MaxFloat32, math.MaxFloat32}
	bmax := mgl32.Vec2{-math.MaxFloat32, -math.MaxFloat32}
	for i := range geometry {
		lo, hi := geometry[i].Bounds()
		if lo[0] > hi[0] {
			continue
		}
		bmin = mgl32.Vec2{min(bmin[0], lo[0]), min(bmin[1], lo[2])}
		bmax = mgl32.Vec2{max(bmax[0], hi[0]), max(bmax[1], hi[2])}
	}
	if bmin[0] > bmax[0] {
		return nil
	}
	expand := float32(2*g.settings.WalkableRadius) * g.settings.CellWidth
	bmin = bmin.Sub(mgl32.Vec2{expand, expand})
	bmax = bmax.Add(mgl32.Vec2{expand, expand})

	lo, hi := g.settings.TilesInBounds(bmin, bmax)
	tiles := make([]config.TileCoord, 0, (hi.X-lo.X+1)*(hi.Y-lo.Y+1))
	for y := lo.Y; y <= hi.Y; y++ {
		for x := lo.X; x <= hi.X; x++ {
			tiles = append(tiles, config.TileCoord{X: x, Y: y})
		}
	}
	return tiles
}

// UpsertAffector registers or replaces the geometry of an affector. Tiles
// it used to touch and tiles it touches now are marked dirty.
func (g *Generator) UpsertAffector(id AffectorID, geometry ...recast.Geometry) {
	tiles := g.affectedTiles(geometry)

	g.mu.Lock()
	defer g.mu.Unlock()
	if old, ok := g.affectors[id]; ok {
		g.detachLocked(id, old.tiles)
	}
	g.affectors[id] = &affector{geometry: geometry, tiles: tiles}
	for _, t := range tiles {
		set, ok := g.tileAffectors[t]
		if !ok {
			set = make(map[AffectorID]struct{})
			g.tileAffectors[t] = set
		}
		set[id] = struct{}{}
		g.dirty[t] = struct{}{}
	}
	g.log.Debug("affector updated", zap.Uint64("affector", uint64(id)), zap.Int("tiles", len(tiles)))
}

// RemoveAffector forgets an affector and marks the tiles it touched dirty.
// It reports whether the affector was known.
func (g *Generator) RemoveAffector(id AffectorID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	old, ok := g.affectors[id]
	if !ok {
		return false
	}
	g.detachLocked(id, old.tiles)
	delete(g.affectors, id)
	return true
}

func (g *Generator) detachLocked(id AffectorID, tiles []config.TileCoord) {
	for _, t := range tiles {
		if set, ok := g.tileAffectors[t]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(g.tileAffectors, t)
			}
		}
		g.dirty[t] = struct{}{}
	}
}

// AffectedTiles returns the tiles an affector is registered with.
func (g *Generator) AffectedTiles(id AffectorID) []config.TileCoord {
	g.mu.Lock()
	defer g.mu.Unlock()
	if a, ok := g.affectors[id]; ok {
		return append([]config.TileCoord(nil), a.tiles...)
	}
	return nil
}

// MarkDirty queues tiles for regeneration regardless of affector changes.
func (g *Generator) MarkDirty(tiles ...config.TileCoord) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, t := range tiles {
		g.dirty[t] = struct{}{}
	}
}

// Dirty returns the queued tiles in row-major order.
func (g *Generator) Dirty() []config.TileCoord {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dirtyLocked()
}

func (g *Generator) dirtyLocked() []config.TileCoord {
	out := make([]config.TileCoord, 0, len(g.dirty))
	for t := range g.dirty {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		return out[i].X < out[j].X
	})
	return out
}

// InFlight is the number of runs dispatched and not yet finished.
func (g *Generator) InFlight() int {
	return int(g.inFlight.Load())
}

// Dispatch starts a run for as many dirty tiles as the task cap allows and
// returns how many it started. Each run is stamped here, before it starts.
// Tiles left over stay dirty for the next call.
func (g *Generator) Dispatch() int {
	g.groupMu.Lock()
	defer g.groupMu.Unlock()
	g.mu.Lock()
	defer g.mu.Unlock()

	started := 0
	for _, coord := range g.dirtyLocked() {
		coord := coord
		geometry := g.gatherLocked(coord)
		gen := g.ticker.Next()
		g.taskStarted(1)
		if !g.group.TryGo(func() error { return g.run(gen, coord, geometry) }) {
			g.taskStarted(-1)
			break
		}
		delete(g.dirty, coord)
		started++
	}
	return started
}

// gatherLocked collects the geometry of every affector on a tile, ordered
// by affector id.
func (g *Generator) gatherLocked(coord config.TileCoord) []recast.Geometry {
	set := g.tileAffectors[coord]
	ids := make([]AffectorID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var geometry []recast.Geometry
	for _, id := range ids {
		geometry = append(geometry, g.affectors[id].geometry...)
	}
	return geometry
}

func (g *Generator) taskStarted(delta int64) {
	g.inFlight.Add(delta)
	if g.metrics != nil {
		g.metrics.TasksInFlight.Add(float64(delta))
	}
}

func (g *Generator) run(gen uint64, coord config.TileCoord, geometry []recast.Geometry) (err error) {
	defer g.taskStarted(-1)
	log := g.log.With(zap.Stringer("tile", coord), zap.Uint64("generation", gen))
	defer func() {
		if p := recover(); p != nil {
			log.Error("tile build panicked", zap.Any("panic", p), zap.Stack("stack"))
			err = fmt.Errorf("tile %s generation %d: build panicked: %v", coord, gen, p)
		}
	}()

	if len(geometry) == 0 {
		_, err = g.navMesh.RemoveTile(gen, coord)
	} else {
		start := time.Now()
		tile := g.build(coord, geometry)
		if g.metrics != nil {
			g.metrics.BuildSeconds.Observe(time.Since(start).Seconds())
		}
		_, err = g.navMesh.InstallTile(gen, tile)
	}
	if err != nil {
		log.Error("tile generation failed", zap.Error(err))
		return err
	}
	return nil
}

// Wait blocks until every dispatched run has finished and returns the
// first run error, if any. A failed tile is not requeued. Dispatch blocks
// while a Wait is in progress.
func (g *Generator) Wait() error {
	g.groupMu.Lock()
	defer g.groupMu.Unlock()
	err := g.group.Wait()
	g.group = g.newGroup()
	return err
}
