package detour

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"tilednav/config"
)

// ErrPoisoned is returned by every operation once a writer panicked while
// holding the tile map lock.
var ErrPoisoned = errors.New("detour: nav mesh is poisoned")

// NavMeshTiles is the tile map together with the generation of the last
// write applied to each coordinate. It is only reachable through NavMesh.
type NavMeshTiles struct {
	tiles       map[config.TileCoord]*NavMeshTile
	generations map[config.TileCoord]uint64
}

func newNavMeshTiles() *NavMeshTiles {
	return &NavMeshTiles{
		tiles:       make(map[config.TileCoord]*NavMeshTile),
		generations: make(map[config.TileCoord]uint64),
	}
}

func (t *NavMeshTiles) Tile(coord config.TileCoord) (*NavMeshTile, bool) {
	tile, ok := t.tiles[coord]
	return tile, ok
}

// TileCoords lists the installed tiles in row-major order.
func (t *NavMeshTiles) TileCoords() []config.TileCoord {
	out := make([]config.TileCoord, 0, len(t.tiles))
	for c := range t.tiles {
		out = append(out, c)
	}
	sortCoords(out)
	return out
}

func sortCoords(coords []config.TileCoord) {
	sort.Slice(coords, func(i, j int) bool {
		if coords[i].Y != coords[j].Y {
			return coords[i].Y < coords[j].Y
		}
		return coords[i].X < coords[j].X
	})
}

// Generation returns the stamp of the last write applied to coord, 0 if none.
func (t *NavMeshTiles) Generation(coord config.TileCoord) uint64 {
	return t.generations[coord]
}

// Generations returns a copy of every recorded generation, removed tiles
// included.
func (t *NavMeshTiles) Generations() map[config.TileCoord]uint64 {
	out := make(map[config.TileCoord]uint64, len(t.generations))
	for c, g := range t.generations {
		out[c] = g
	}
	return out
}

// Polygon resolves a reference, returning false for stale references.
func (t *NavMeshTiles) Polygon(ref PolygonRef) (*NavMeshTile, *Polygon, bool) {
	tile, ok := t.tiles[ref.Tile]
	if !ok || int(ref.Polygon) >= len(tile.Polygons) {
		return nil, nil, false
	}
	return tile, &tile.Polygons[ref.Polygon], true
}

// apply installs tile at coord, or removes it when tile is nil, if gen is
// not older than the recorded generation.
func (t *NavMeshTiles) apply(gen uint64, coord config.TileCoord, tile *NavMeshTile) bool {
	if recorded, ok := t.generations[coord]; ok && gen < recorded {
		return false
	}
	t.generations[coord] = gen
	if tile == nil {
		delete(t.tiles, coord)
	} else {
		t.tiles[coord] = tile
	}
	return true
}

// NavMesh is the shared tile map. Readers and the install path hold the
// lock only for the duration of the callback.
type NavMesh struct {
	mu       sync.RWMutex
	tiles    *NavMeshTiles
	poisoned atomic.Bool
	stale    atomic.Uint64
	log      *zap.Logger
	metrics  *Metrics
}

type Option func(*NavMesh)

func WithLogger(log *zap.Logger) Option {
	return func(n *NavMesh) { n.log = log }
}

func WithMetrics(m *Metrics) Option {
	return func(n *NavMesh) { n.metrics = m }
}

func NewNavMesh(opts ...Option) *NavMesh {
	n := &NavMesh{tiles: newNavMeshTiles(), log: zap.NewNop()}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Read runs fn under the shared lock. fn must not retain the tiles.
func (n *NavMesh) Read(fn func(tiles *NavMeshTiles) error) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.poisoned.Load() {
		return ErrPoisoned
	}
	return fn(n.tiles)
}

// write runs fn under the exclusive lock. A panic inside fn poisons the
// nav mesh instead of unwinding into the caller.
func (n *NavMesh) write(fn func(tiles *NavMeshTiles)) (err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.poisoned.Load() {
		return ErrPoisoned
	}
	defer func() {
		if r := recover(); r != nil {
			n.poisoned.Store(true)
			n.log.Error("nav mesh writer panicked, poisoning", zap.Any("panic", r), zap.Stack("stack"))
			err = fmt.Errorf("%w: %v", ErrPoisoned, r)
		}
	}()
	fn(n.tiles)
	return nil
}

// Poisoned reports whether a writer has crashed.
func (n *NavMesh) Poisoned() bool {
	return n.poisoned.Load()
}

// InstallTile stores tile if gen is not older than the generation recorded
// for its coordinate. Stale writes are dropped and reported as not applied.
func (n *NavMesh) InstallTile(gen uint64, tile *NavMeshTile) (bool, error) {
	if tile == nil {
		return false, errors.New("detour: install of nil tile")
	}
	return n.commit(gen, tile.Coord, tile)
}

// RemoveTile deletes the tile at coord under the same generation rule as
// InstallTile. Removing a missing tile still records the generation.
func (n *NavMesh) RemoveTile(gen uint64, coord config.TileCoord) (bool, error) {
	return n.commit(gen, coord, nil)
}

func (n *NavMesh) commit(gen uint64, coord config.TileCoord, tile *NavMeshTile) (bool, error) {
	var applied bool
	var recorded uint64
	err := n.write(func(tiles *NavMeshTiles) {
		recorded = tiles.Generation(coord)
		applied = tiles.apply(gen, coord, tile)
	})
	if err != nil {
		return false, err
	}
	if !applied {
		n.stale.Add(1)
		n.log.Debug("dropping stale tile write",
			zap.Stringer("tile", coord),
			zap.Uint64("generation", gen),
			zap.Uint64("recorded", recorded))
		if n.metrics != nil {
			n.metrics.StaleWrites.Inc()
		}
		return false, nil
	}
	if n.metrics != nil {
		if tile == nil {
			n.metrics.TilesRemoved.Inc()
		} else {
			n.metrics.TilesInstalled.Inc()
		}
		n.metrics.TileGeneration.WithLabelValues(coord.String()).Set(float64(gen))
	}
	return true, nil
}

// Generation returns the recorded generation of coord.
func (n *NavMesh) Generation(coord config.TileCoord) (uint64, error) {
	var gen uint64
	err := n.Read(func(tiles *NavMeshTiles) error {
		gen = tiles.Generation(coord)
		return nil
	})
	return gen, err
}

// StaleWrites counts writes dropped for carrying an old generation.
func (n *NavMesh) StaleWrites() uint64 {
	return n.stale.Load()
}
