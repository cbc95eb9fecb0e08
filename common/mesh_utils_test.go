package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func v(x, z int32) []int32 { return []int32{x, 0, z, 0} }

func TestOrientation(t *testing.T) {
	a, b := v(0, 0), v(10, 0)
	assert.True(t, Left(a, b, v(5, -3)))
	assert.False(t, Left(a, b, v(5, 3)))
	assert.True(t, LeftOn(a, b, v(5, 0)))
	assert.True(t, Collinear(a, b, v(20, 0)))
}

func TestIntersect(t *testing.T) {
	assert.True(t, IntersectProp(v(0, 0), v(10, 10), v(0, 10), v(10, 0)))
	assert.False(t, IntersectProp(v(0, 0), v(10, 0), v(5, 0), v(5, 5)))
	assert.True(t, Intersect(v(0, 0), v(10, 0), v(5, 0), v(5, 5)))
	assert.False(t, Intersect(v(0, 0), v(10, 0), v(0, 1), v(10, 1)))
	assert.True(t, Between(v(0, 0), v(0, 10), v(0, 4)))
	assert.False(t, Between(v(0, 0), v(0, 10), v(0, 11)))
}

func TestPrevNext(t *testing.T) {
	assert.Equal(t, 3, Prev(0, 4))
	assert.Equal(t, 0, Next(3, 4))
	assert.Equal(t, 2, Next(1, 4))
}

func TestDirections(t *testing.T) {
	for dir := 0; dir < 4; dir++ {
		o := OppositeDir(dir)
		assert.Equal(t, -GetDirOffsetX(dir), GetDirOffsetX(o))
		assert.Equal(t, -GetDirOffsetZ(dir), GetDirOffsetZ(o))
	}
}

func TestPointInPolygon2D(t *testing.T) {
	square := []Vec3{{0, 0, 0}, {0, 0, 4}, {4, 0, 4}, {4, 0, 0}}
	assert.True(t, PointInPolygon2D(square, Vec3{1, 9, 1}))
	assert.False(t, PointInPolygon2D(square, Vec3{5, 0, 1}))
}

func TestPolygonArea2(t *testing.T) {
	square := []int32{0, 0, 0, 0, 4, 0, 0, 0, 4, 0, 4, 0, 0, 0, 4, 0}
	assert.Equal(t, int64(32), Abs(PolygonArea2(square, 4)))
}
