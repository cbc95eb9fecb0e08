package detour

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"tilednav/common"
	"tilednav/config"
)

// closestHeightPointTriangle returns the height of the triangle abc at the
// xz position of p, or false when p lies outside it.
func closestHeightPointTriangle(p, a, b, c mgl32.Vec3) (float32, bool) {
	const eps = 1e-6
	v0 := c.Sub(a)
	v1 := b.Sub(a)
	v2 := p.Sub(a)

	// scaled barycentric coordinates
	denom := v0[0]*v1[2] - v0[2]*v1[0]
	if math.Abs(float64(denom)) < eps {
		return 0, false
	}
	u := v1[2]*v2[0] - v1[0]*v2[2]
	v := v0[0]*v2[2] - v0[2]*v2[0]
	if denom < 0 {
		denom, u, v = -denom, -u, -v
	}
	if u >= 0 && v >= 0 && u+v <= denom {
		return a[1] + (v0[1]*u+v1[1]*v)/denom, true
	}
	return 0, false
}

// polygonHeight interpolates the height of a convex polygon at the xz
// position of p.
func polygonHeight(verts []mgl32.Vec3, p mgl32.Vec3) (float32, bool) {
	for i := 1; i+1 < len(verts); i++ {
		if h, ok := closestHeightPointTriangle(p, verts[0], verts[i], verts[i+1]); ok {
			return h, true
		}
	}
	return 0, false
}

// closestPointOnPolygon returns p projected onto the polygon surface when p
// lies over it, otherwise the closest point on its boundary.
func closestPointOnPolygon(verts []mgl32.Vec3, p mgl32.Vec3) (mgl32.Vec3, bool) {
	if common.PointInPolygon2D(verts, p) {
		if h, ok := polygonHeight(verts, p); ok {
			return mgl32.Vec3{p[0], h, p[2]}, true
		}
		var y float32
		for _, v := range verts {
			y += v[1]
		}
		return mgl32.Vec3{p[0], y / float32(len(verts)), p[2]}, true
	}
	best := verts[0]
	bestDist := float32(math.MaxFloat32)
	for i, j := 0, len(verts)-1; i < len(verts); j, i = i, i+1 {
		d, t := common.DistancePtSegSqr2D(p, verts[j], verts[i])
		if d < bestDist {
			bestDist = d
			best = verts[j].Add(verts[i].Sub(verts[j]).Mul(t))
		}
	}
	return best, false
}

// neighbourTile returns the tile across side dir of coord.
func neighbourTile(coord config.TileCoord, dir int) (config.TileCoord, bool) {
	switch dir {
	case 0:
		if coord.X == 0 {
			return coord, false
		}
		coord.X--
	case 1:
		if coord.Y == math.MaxUint32 {
			return coord, false
		}
		coord.Y++
	case 2:
		if coord.X == math.MaxUint32 {
			return coord, false
		}
		coord.X++
	case 3:
		if coord.Y == 0 {
			return coord, false
		}
		coord.Y--
	}
	return coord, true
}

func lerp(a, b mgl32.Vec3, t float32) mgl32.Vec3 {
	return a.Add(b.Sub(a).Mul(t))
}
