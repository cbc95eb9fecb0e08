package detour

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/klauspost/compress/zstd"
	"google.golang.org/protobuf/encoding/protowire"

	"tilednav/common/message"
	"tilednav/common/rw"
	"tilednav/config"
	"tilednav/recast"
)

// Snapshot record fields.
const (
	fieldTileX      protowire.Number = 1
	fieldTileY      protowire.Number = 2
	fieldGeneration protowire.Number = 3
	fieldTileBody   protowire.Number = 4
)

// SnapshotEntry is one coordinate of a snapshot. Tile is nil for
// coordinates whose last applied write was a removal.
type SnapshotEntry struct {
	Coord      config.TileCoord
	Generation uint64
	Tile       *NavMeshTile
}

// EncodeSnapshot writes every recorded coordinate as a zstd compressed
// stream of length-delimited protobuf records.
func EncodeSnapshot(w io.Writer, tiles *NavMeshTiles) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 64*1024)

	gens := tiles.Generations()
	coords := make([]config.TileCoord, 0, len(gens))
	for c := range gens {
		coords = append(coords, c)
	}
	sortCoords(coords)

	var buf []byte
	for _, c := range coords {
		var e message.Encoder
		e.Uint(fieldTileX, uint64(c.X))
		e.Uint(fieldTileY, uint64(c.Y))
		e.Uint(fieldGeneration, gens[c])
		if tile, ok := tiles.Tile(c); ok {
			body, err := tile.ToBin()
			if err != nil {
				enc.Close()
				return fmt.Errorf("encode tile %s: %w", c, err)
			}
			e.Bytes(fieldTileBody, body)
		}
		buf = message.AppendDelimited(buf[:0], e.Encode())
		if _, err := bw.Write(buf); err != nil {
			enc.Close()
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// DecodeSnapshot reads a stream written by EncodeSnapshot.
func DecodeSnapshot(r io.Reader) ([]SnapshotEntry, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}

	var out []SnapshotEntry
	for len(data) > 0 {
		var msg []byte
		msg, data, err = message.ReadDelimited(data)
		if err != nil {
			return nil, err
		}
		var entry SnapshotEntry
		err = message.Walk(msg, func(f message.Field) error {
			switch f.Num {
			case fieldTileX:
				entry.Coord.X = uint32(f.Varint)
			case fieldTileY:
				entry.Coord.Y = uint32(f.Varint)
			case fieldGeneration:
				entry.Generation = f.Varint
			case fieldTileBody:
				tile := &NavMeshTile{}
				if err := tile.FromBin(f.Bytes); err != nil {
					return err
				}
				entry.Tile = tile
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		if entry.Tile != nil {
			entry.Tile.Coord = entry.Coord
		}
		out = append(out, entry)
	}
	return out, nil
}

// ToBin encodes the tile body. The coordinate travels in the record.
func (t *NavMeshTile) ToBin() ([]byte, error) {
	w := rw.NewNavMeshDataBinWriter()
	w.WriteFloat32(t.CellWidth)
	w.WriteFloat32(t.MaxClimb)
	w.WriteUInt32(uint32(len(t.Vertices)))
	for _, v := range t.Vertices {
		w.WriteFloat32s(v[:])
	}
	w.WriteUInt32(uint32(len(t.Polygons)))
	for _, p := range t.Polygons {
		w.WriteUInt8(uint8(len(p.Indices)))
		w.WriteInt32(int32(p.Area))
		w.WriteUInt32s(p.Indices)
		for _, e := range p.Edges {
			w.WriteUInt8(uint8(e.Kind))
			w.WriteUInt8(e.Direction)
			w.WriteUInt32(e.Polygon)
		}
	}
	return w.GetWriteBytes(), w.Err()
}

var errBadTile = errors.New("detour: corrupt tile body")

func (t *NavMeshTile) FromBin(data []byte) error {
	r := rw.NewNavMeshDataBinReader(data)
	t.CellWidth = r.ReadFloat32()
	t.MaxClimb = r.ReadFloat32()
	nverts := r.ReadUInt32()
	if r.Err() == nil && int(nverts)*12 > len(data) {
		return errBadTile
	}
	t.Vertices = make([]mgl32.Vec3, nverts)
	for i := range t.Vertices {
		r.ReadFloat32s(t.Vertices[i][:])
	}
	npolys := r.ReadUInt32()
	if r.Err() == nil && int(npolys) > len(data) {
		return errBadTile
	}
	t.Polygons = make([]Polygon, npolys)
	for i := range t.Polygons {
		p := &t.Polygons[i]
		n := int(r.ReadUInt8())
		p.Area = recast.Area(r.ReadInt32())
		p.Indices = make([]uint32, n)
		r.ReadUInt32s(p.Indices)
		p.Edges = make([]recast.EdgeConnection, n)
		for e := range p.Edges {
			p.Edges[e].Kind = recast.EdgeKind(r.ReadUInt8())
			p.Edges[e].Direction = r.ReadUInt8()
			p.Edges[e].Polygon = r.ReadUInt32()
		}
		if r.Err() != nil {
			break
		}
		if n < 3 {
			return errBadTile
		}
		for _, idx := range p.Indices {
			if idx >= nverts {
				return errBadTile
			}
		}
		p.updateBounds(t.Vertices)
	}
	if err := r.Err(); err != nil {
		return fmt.Errorf("%w: %v", errBadTile, err)
	}
	return nil
}

// Snapshot encodes the nav mesh under the read lock.
func (n *NavMesh) Snapshot(w io.Writer) error {
	return n.Read(func(tiles *NavMeshTiles) error {
		return EncodeSnapshot(w, tiles)
	})
}

// Restore replays snapshot entries through the generation check.
func (n *NavMesh) Restore(entries []SnapshotEntry) error {
	for _, e := range entries {
		var err error
		if e.Tile != nil {
			_, err = n.InstallTile(e.Generation, e.Tile)
		} else {
			_, err = n.RemoveTile(e.Generation, e.Coord)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
