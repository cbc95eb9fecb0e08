package common

// The predicates below work on the xz plane of integer grid vertices.
// Vertices are slices whose element 0 is x and element 2 is z.

// Area2 is twice the signed area of the triangle abc.
func Area2[T IT](a, b, c []T) T {
	return (b[0]-a[0])*(c[2]-a[2]) - (c[0]-a[0])*(b[2]-a[2])
}

// Left reports whether c is strictly left of the directed line a->b.
func Left[T IT](a, b, c []T) bool {
	return Area2(a, b, c) < 0
}

func LeftOn[T IT](a, b, c []T) bool {
	return Area2(a, b, c) <= 0
}

func Collinear[T IT](a, b, c []T) bool {
	return Area2(a, b, c) == 0
}

// IntersectProp reports whether ab and cd share a point interior to both.
func IntersectProp[T IT](a, b, c, d []T) bool {
	if Collinear(a, b, c) || Collinear(a, b, d) ||
		Collinear(c, d, a) || Collinear(c, d, b) {
		return false
	}
	return (Left(a, b, c) != Left(a, b, d)) && (Left(c, d, a) != Left(c, d, b))
}

// Between reports whether c is collinear with ab and lies on the closed segment.
func Between[T IT](a, b, c []T) bool {
	if !Collinear(a, b, c) {
		return false
	}
	if a[0] != b[0] {
		return ((a[0] <= c[0]) && (c[0] <= b[0])) || ((a[0] >= c[0]) && (c[0] >= b[0]))
	}
	return ((a[2] <= c[2]) && (c[2] <= b[2])) || ((a[2] >= c[2]) && (c[2] >= b[2]))
}

// Intersect reports whether ab and cd intersect, properly or not.
func Intersect[T IT](a, b, c, d []T) bool {
	if IntersectProp(a, b, c, d) {
		return true
	}
	return Between(a, b, c) || Between(a, b, d) ||
		Between(c, d, a) || Between(c, d, b)
}

// VequalXZ compares two grid vertices on the xz plane only.
func VequalXZ[T IT](a, b []T) bool {
	return a[0] == b[0] && a[2] == b[2]
}

// InCone reports whether pj lies strictly inside the cone formed at pi by
// its previous vertex pin1 and next vertex pi1.
func InCone[T IT](pin1, pi, pi1, pj []T) bool {
	if LeftOn(pin1, pi, pi1) {
		return Left(pi, pj, pin1) && Left(pj, pi, pi1)
	}
	// reflex vertex
	return !(LeftOn(pi, pj, pi1) && LeftOn(pj, pi, pin1))
}

// InConeLoose is InCone with the convex case relaxed to allow collinear
// diagonals.
func InConeLoose[T IT](pin1, pi, pi1, pj []T) bool {
	if LeftOn(pin1, pi, pi1) {
		return LeftOn(pi, pj, pin1) && LeftOn(pj, pi, pi1)
	}
	return !(LeftOn(pi, pj, pi1) && LeftOn(pj, pi, pin1))
}

// DistancePtSegSqrInt is the squared xz distance from (x, z) to segment pq.
func DistancePtSegSqrInt[T int | int32](x, z, px, pz, qx, qz T) float32 {
	pqx := float32(qx - px)
	pqz := float32(qz - pz)
	dx := float32(x - px)
	dz := float32(z - pz)
	d := pqx*pqx + pqz*pqz
	t := pqx*dx + pqz*dz
	if d > 0 {
		t /= d
	}
	t = Clamp(t, 0, 1)
	dx = float32(px) + t*pqx - float32(x)
	dz = float32(pz) + t*pqz - float32(z)
	return dx*dx + dz*dz
}

// PolygonArea2 returns twice the signed xz area of a flat vertex loop with
// the given stride.
func PolygonArea2(verts []int32, stride int) int64 {
	n := len(verts) / stride
	var area int64
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		vi := verts[i*stride:]
		vj := verts[j*stride:]
		area += int64(vi[0])*int64(vj[2]) - int64(vj[0])*int64(vi[2])
	}
	return area
}
