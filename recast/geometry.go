package recast

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Area is the walkable area type of a surface. Polygons only join regions
// of the same area. NotWalkable marks solid geometry agents cannot stand on.
type Area int32

const (
	NotWalkable Area = -1
	DefaultArea Area = 0
)

func (a Area) Walkable() bool {
	return a >= 0
}

// Triangle is a world-space triangle. Only triangles whose normal points up
// within the slope limit are walkable.
type Triangle [3]mgl32.Vec3

// Normal is the unit normal of the triangle, or the zero vector for
// degenerate triangles.
func (t Triangle) Normal() mgl32.Vec3 {
	n := t[1].Sub(t[0]).Cross(t[2].Sub(t[0]))
	l := n.Len()
	if l < 1e-6 {
		return mgl32.Vec3{}
	}
	return n.Mul(1 / l)
}

// Transform places a shape in the world: scale, then rotate, then translate.
type Transform struct {
	Translation mgl32.Vec3
	Rotation    mgl32.Quat
	Scale       mgl32.Vec3
}

func IdentityTransform() Transform {
	return Transform{Rotation: mgl32.QuatIdent(), Scale: mgl32.Vec3{1, 1, 1}}
}

func Translate(x, y, z float32) Transform {
	t := IdentityTransform()
	t.Translation = mgl32.Vec3{x, y, z}
	return t
}

func (t Transform) Apply(p mgl32.Vec3) mgl32.Vec3 {
	rot := t.Rotation
	if rot.Len() == 0 {
		rot = mgl32.QuatIdent()
	}
	scale := t.Scale
	if scale == (mgl32.Vec3{}) {
		scale = mgl32.Vec3{1, 1, 1}
	}
	return rot.Rotate(mgl32.Vec3{p[0] * scale[0], p[1] * scale[1], p[2] * scale[2]}).Add(t.Translation)
}

// Shape is the closed set of collision shapes the voxelizer understands:
// *Primitive, *TriangleMesh and *HeightfieldShape.
type Shape interface {
	isShape()
}

type PrimitiveKind uint8

const (
	Cuboid PrimitiveKind = iota
	Ball
	Capsule
	Cylinder
	Cone
	TrianglePrimitive
)

// Primitive is an analytic shape centred on its local origin, y up.
type Primitive struct {
	Kind PrimitiveKind
	// Cuboid only.
	HalfExtents mgl32.Vec3
	// Ball, Capsule, Cylinder and Cone.
	Radius float32
	// Capsule segment, Cylinder and Cone half height.
	HalfHeight float32
	// TrianglePrimitive only.
	Points [3]mgl32.Vec3
}

type TriangleMesh struct {
	Vertices []mgl32.Vec3
	Indices  [][3]uint32
}

// HeightfieldShape is a regular grid of heights centred on its local origin.
// Heights are row major, Rows along z and Cols along x. Scale gives the total
// x/z extent and the height multiplier. Only the translation of its transform
// applies.
type HeightfieldShape struct {
	Rows, Cols int
	Heights    []float32
	Scale      mgl32.Vec3
}

func (*Primitive) isShape()        {}
func (*TriangleMesh) isShape()     {}
func (*HeightfieldShape) isShape() {}

// Geometry is one affecting shape gathered for a tile.
type Geometry struct {
	Shape     Shape
	Transform Transform
	Area      Area
}

// Triangles returns the world-space triangles of a primitive or mesh. It
// returns nil for heightfields and malformed shapes.
func (g *Geometry) Triangles() []Triangle {
	var local []Triangle
	convex := false
	switch s := g.Shape.(type) {
	case *Primitive:
		local = s.triangles()
		convex = s.Kind != TrianglePrimitive
	case *TriangleMesh:
		local = make([]Triangle, 0, len(s.Indices))
		for _, idx := range s.Indices {
			if int(idx[0]) >= len(s.Vertices) || int(idx[1]) >= len(s.Vertices) || int(idx[2]) >= len(s.Vertices) {
				continue
			}
			local = append(local, Triangle{s.Vertices[idx[0]], s.Vertices[idx[1]], s.Vertices[idx[2]]})
		}
	default:
		return nil
	}
	out := make([]Triangle, 0, len(local))
	for _, tri := range local {
		if convex {
			tri = faceOutward(tri)
		}
		out = append(out, Triangle{g.Transform.Apply(tri[0]), g.Transform.Apply(tri[1]), g.Transform.Apply(tri[2])})
	}
	return out
}

// Bounds is the world-space AABB of the geometry.
func (g *Geometry) Bounds() (mgl32.Vec3, mgl32.Vec3) {
	bmin := mgl32.Vec3{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32}
	bmax := bmin.Mul(-1)
	grow := func(p mgl32.Vec3) {
		for i := 0; i < 3; i++ {
			bmin[i] = min(bmin[i], p[i])
			bmax[i] = max(bmax[i], p[i])
		}
	}
	if hf, ok := g.Shape.(*HeightfieldShape); ok {
		lo, hi := hf.heightRange()
		hx, hz := hf.Scale[0]/2, hf.Scale[2]/2
		grow(mgl32.Vec3{-hx, lo, -hz}.Add(g.Transform.Translation))
		grow(mgl32.Vec3{hx, hi, hz}.Add(g.Transform.Translation))
		return bmin, bmax
	}
	for _, tri := range g.Triangles() {
		for _, p := range tri {
			grow(p)
		}
	}
	return bmin, bmax
}

func faceOutward(t Triangle) Triangle {
	centre := t[0].Add(t[1]).Add(t[2]).Mul(1.0 / 3)
	if t.Normal().Dot(centre) < 0 {
		t[1], t[2] = t[2], t[1]
	}
	return t
}

const primitiveSegments = 12

func (p *Primitive) triangles() []Triangle {
	switch p.Kind {
	case Cuboid:
		return cuboidTriangles(p.HalfExtents)
	case Ball:
		return lathe(ballProfile(p.Radius, 0, primitiveSegments/2))
	case Capsule:
		return lathe(ballProfile(p.Radius, p.HalfHeight, primitiveSegments/2))
	case Cylinder:
		return lathe([][2]float32{{0, -p.HalfHeight}, {p.Radius, -p.HalfHeight}, {p.Radius, p.HalfHeight}, {0, p.HalfHeight}})
	case Cone:
		return lathe([][2]float32{{0, -p.HalfHeight}, {p.Radius, -p.HalfHeight}, {0, p.HalfHeight}})
	case TrianglePrimitive:
		return []Triangle{p.Points}
	}
	return nil
}

func cuboidTriangles(h mgl32.Vec3) []Triangle {
	c := func(i int) mgl32.Vec3 {
		v := h
		if i&1 == 0 {
			v[0] = -v[0]
		}
		if i&2 == 0 {
			v[1] = -v[1]
		}
		if i&4 == 0 {
			v[2] = -v[2]
		}
		return v
	}
	faces := [6][4]int{
		{0, 1, 3, 2}, {4, 6, 7, 5}, // -z, +z
		{0, 4, 5, 1}, {2, 3, 7, 6}, // -y, +y
		{0, 2, 6, 4}, {1, 5, 7, 3}, // -x, +x
	}
	tris := make([]Triangle, 0, 12)
	for _, f := range faces {
		tris = append(tris, Triangle{c(f[0]), c(f[1]), c(f[2])}, Triangle{c(f[0]), c(f[2]), c(f[3])})
	}
	return tris
}

// ballProfile returns a (radius, y) outline from the south to the north pole
// of a sphere whose hemispheres are pulled apart by 2*halfHeight.
func ballProfile(radius, halfHeight float32, rings int) [][2]float32 {
	profile := make([][2]float32, 0, rings+2)
	point := func(i int, shift float32) {
		a := -math.Pi/2 + math.Pi*float64(i)/float64(rings)
		r := float32(math.Cos(a)) * radius
		if i == 0 || i == rings {
			r = 0
		}
		profile = append(profile, [2]float32{r, float32(math.Sin(a))*radius + shift})
	}
	for i := 0; i <= rings/2; i++ {
		point(i, -halfHeight)
	}
	if halfHeight > 0 {
		point(rings/2, halfHeight)
	}
	for i := rings/2 + 1; i <= rings; i++ {
		point(i, halfHeight)
	}
	return profile
}

// lathe revolves a (radius, y) profile around the y axis.
func lathe(profile [][2]float32) []Triangle {
	ring := func(i, s int) mgl32.Vec3 {
		a := 2 * math.Pi * float64(s%primitiveSegments) / primitiveSegments
		r := profile[i][0]
		return mgl32.Vec3{r * float32(math.Cos(a)), profile[i][1], r * float32(math.Sin(a))}
	}
	var tris []Triangle
	for i := 0; i+1 < len(profile); i++ {
		for s := 0; s < primitiveSegments; s++ {
			a, b := ring(i, s), ring(i, s+1)
			c, d := ring(i+1, s), ring(i+1, s+1)
			if profile[i][0] > 0 {
				tris = append(tris, Triangle{a, b, d})
			}
			if profile[i+1][0] > 0 {
				tris = append(tris, Triangle{a, d, c})
			}
		}
	}
	return tris
}

func (h *HeightfieldShape) valid() bool {
	return h.Rows >= 2 && h.Cols >= 2 && len(h.Heights) >= h.Rows*h.Cols && h.Scale[0] > 0 && h.Scale[2] > 0
}

func (h *HeightfieldShape) heightRange() (float32, float32) {
	lo, hi := float32(math.MaxFloat32), float32(-math.MaxFloat32)
	for _, v := range h.Heights {
		lo = min(lo, v*h.Scale[1])
		hi = max(hi, v*h.Scale[1])
	}
	return lo, hi
}

// sample returns the bilinear height and its gradient at a local xz
// position, or false outside the grid.
func (h *HeightfieldShape) sample(x, z float32) (float32, mgl32.Vec2, bool) {
	cellX := h.Scale[0] / float32(h.Cols-1)
	cellZ := h.Scale[2] / float32(h.Rows-1)
	fx := (x + h.Scale[0]/2) / cellX
	fz := (z + h.Scale[2]/2) / cellZ
	if fx < 0 || fz < 0 || fx > float32(h.Cols-1) || fz > float32(h.Rows-1) {
		return 0, mgl32.Vec2{}, false
	}
	c := min(int(fx), h.Cols-2)
	r := min(int(fz), h.Rows-2)
	tx, tz := fx-float32(c), fz-float32(r)
	at := func(r, c int) float32 { return h.Heights[r*h.Cols+c] * h.Scale[1] }
	h00, h01 := at(r, c), at(r, c+1)
	h10, h11 := at(r+1, c), at(r+1, c+1)
	top := h00 + (h01-h00)*tx
	bottom := h10 + (h11-h10)*tx
	height := top + (bottom-top)*tz
	dx := ((h01-h00)*(1-tz) + (h11-h10)*tz) / cellX
	dz := ((h10-h00)*(1-tx) + (h11-h01)*tx) / cellZ
	return height, mgl32.Vec2{dx, dz}, true
}
