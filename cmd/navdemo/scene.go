package main

import (
	"github.com/go-gl/mathgl/mgl32"

	"tilednav/recast"
)

// sampleScene returns one geometry list per affector: rolling terrain, a
// wall with a gap, a pillar and a raised platform with a ramp.
func sampleScene() [][]recast.Geometry {
	const rows, cols = 33, 33
	heights := make([]float32, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			x, z := float32(c-cols/2), float32(r-rows/2)
			heights[r*cols+c] = 0.002 * (x*x - z*z)
		}
	}
	terrain := recast.Geometry{
		Shape:     &recast.HeightfieldShape{Rows: rows, Cols: cols, Heights: heights, Scale: mgl32.Vec3{64, 1, 64}},
		Transform: recast.IdentityTransform(),
		Area:      recast.DefaultArea,
	}

	wall := func(x float32) recast.Geometry {
		return recast.Geometry{
			Shape:     &recast.Primitive{Kind: recast.Cuboid, HalfExtents: mgl32.Vec3{6, 2, 0.5}},
			Transform: recast.Translate(x, 2, 0),
			Area:      recast.NotWalkable,
		}
	}
	pillar := recast.Geometry{
		Shape:     &recast.Primitive{Kind: recast.Cylinder, Radius: 1.5, HalfHeight: 3},
		Transform: recast.Translate(10, 3, 10),
		Area:      recast.NotWalkable,
	}

	platform := recast.Geometry{
		Shape:     &recast.Primitive{Kind: recast.Cuboid, HalfExtents: mgl32.Vec3{4, 0.5, 4}},
		Transform: recast.Translate(-16, 0.5, 16),
		Area:      recast.DefaultArea,
	}
	ramp := recast.Geometry{
		Shape: &recast.TriangleMesh{
			Vertices: []mgl32.Vec3{{-12, 1, 14}, {-12, 1, 18}, {-6, 0, 18}, {-6, 0, 14}},
			Indices:  [][3]uint32{{0, 1, 2}, {0, 2, 3}},
		},
		Transform: recast.IdentityTransform(),
		Area:      recast.DefaultArea,
	}

	return [][]recast.Geometry{
		{terrain},
		{wall(-8), wall(8)},
		{pillar},
		{platform, ramp},
	}
}
