package detour

import (
	"bufio"
	"fmt"
	"io"
)

// DumpObj writes every installed tile as one Wavefront OBJ object, polygons
// fanned into triangles. Tiles are written in row-major order.
func DumpObj(w io.Writer, tiles *NavMeshTiles) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "# tilednav nav mesh")
	base := 1
	for _, coord := range tiles.TileCoords() {
		tile, _ := tiles.Tile(coord)
		fmt.Fprintf(bw, "\no tile_%d_%d\n", coord.X, coord.Y)
		for _, v := range tile.Vertices {
			fmt.Fprintf(bw, "v %f %f %f\n", v[0], v[1], v[2])
		}
		for _, p := range tile.Polygons {
			for j := 2; j < len(p.Indices); j++ {
				fmt.Fprintf(bw, "f %d %d %d\n",
					base+int(p.Indices[0]), base+int(p.Indices[j-1]), base+int(p.Indices[j]))
			}
		}
		base += len(tile.Vertices)
	}
	return bw.Flush()
}

// DumpObj writes the nav mesh under the read lock.
func (n *NavMesh) DumpObj(w io.Writer) error {
	return n.Read(func(tiles *NavMeshTiles) error {
		return DumpObj(w, tiles)
	})
}
