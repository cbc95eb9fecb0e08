package common

import "cmp"

func Sqr[T IT](a T) T {
	return a * a
}

func Abs[T IT](a T) T {
	if a < 0 {
		return -a
	}
	return a
}

func Clamp[T cmp.Ordered](value, minInclusive, maxInclusive T) T {
	if value < minInclusive {
		return minInclusive
	}
	if value > maxInclusive {
		return maxInclusive
	}
	return value
}

// Prev and Next walk a closed loop of n items.
func Prev[T IT](i, n T) T {
	if i-1 >= 0 {
		return i - 1
	}
	return n - 1
}

func Next[T IT](i, n T) T {
	if i+1 < n {
		return i + 1
	}
	return 0
}

// GetDirOffsetX returns the x step of a grid direction.
// Directions: 0 = -x, 1 = +z, 2 = +x, 3 = -z.
func GetDirOffsetX(direction int) int {
	offset := [4]int{-1, 0, 1, 0}
	return offset[direction&0x03]
}

// GetDirOffsetZ returns the z step of a grid direction.
func GetDirOffsetZ(direction int) int {
	offset := [4]int{0, 1, 0, -1}
	return offset[direction&0x03]
}

// OppositeDir returns the direction pointing back across the same edge.
func OppositeDir(direction int) int {
	return (direction + 2) & 0x03
}

// TriArea2D is the signed xz-plane area of ABC. Positive when C lies to
// the right of AB in the mesh winding.
func TriArea2D(a, b, c Vec3) float32 {
	abx := b[0] - a[0]
	abz := b[2] - a[2]
	acx := c[0] - a[0]
	acz := c[2] - a[2]
	return acx*abz - abx*acz
}

// Vequal reports whether two points are colocated within 1/16384.
func Vequal(p0, p1 Vec3) bool {
	return p0.Sub(p1).LenSqr() < Sqr(float32(1.0/16384.0))
}

// DistancePtSegSqr2D returns the squared xz distance from pt to segment pq
// and the segment parameter of the closest point.
func DistancePtSegSqr2D(pt, p, q Vec3) (float32, float32) {
	pqx := q[0] - p[0]
	pqz := q[2] - p[2]
	dx := pt[0] - p[0]
	dz := pt[2] - p[2]
	d := pqx*pqx + pqz*pqz
	t := pqx*dx + pqz*dz
	if d > 0 {
		t /= d
	}
	t = Clamp(t, 0, 1)
	dx = p[0] + t*pqx - pt[0]
	dz = p[2] + t*pqz - pt[2]
	return dx*dx + dz*dz, t
}

// PointInPolygon2D is the even-odd test on the xz plane.
func PointInPolygon2D(verts []Vec3, pt Vec3) bool {
	inside := false
	for i, j := 0, len(verts)-1; i < len(verts); j, i = i, i+1 {
		vi, vj := verts[i], verts[j]
		if (vi[2] > pt[2]) == (vj[2] > pt[2]) {
			continue
		}
		if pt[0] < (vj[0]-vi[0])*(pt[2]-vi[2])/(vj[2]-vi[2])+vi[0] {
			inside = !inside
		}
	}
	return inside
}

