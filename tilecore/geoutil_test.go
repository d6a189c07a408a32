package tilecore

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
)

func square() orb.Ring {
	return orb.Ring{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}
}

func lShape() orb.Ring {
	return orb.Ring{
		{0, 0}, {10, 0}, {10, 5}, {5, 5}, {5, 10}, {0, 10}, {0, 0},
	}
}

func nearConvexWithTinyConcavity() orb.Ring {
	// A square with one edge nudged inward by a fraction of a percent of
	// the edge length, well under the 0.1% threshold.
	return orb.Ring{
		{0, 0}, {5, 0.003}, {10, 0}, {10, 10}, {0, 10}, {0, 0},
	}
}

func convexWithCollinearVertex() orb.Ring {
	return orb.Ring{
		{0, 0}, {5, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0},
	}
}

func TestIsConvex(t *testing.T) {
	assert.True(t, IsConvex(square()), "square should be convex")
	assert.False(t, IsConvex(lShape()), "L-shape should not be convex")
	assert.True(t, IsConvex(nearConvexWithTinyConcavity()), "tiny concavity under threshold should still read convex")
	assert.True(t, IsConvex(convexWithCollinearVertex()), "a collinear vertex should not break convexity")
	assert.False(t, IsConvex(orb.Ring{{0, 0}, {1, 1}, {2, 2}}), "ring with <=3 distinct points is never convex")
	assert.False(t, IsConvex(nil))
}

func TestMinZoomForPixelSizeMonotonicity(t *testing.T) {
	worldSize := 1.0 / (1 << 10)

	prev := MinZoomForPixelSize(worldSize, 1)
	for minPx := 2.0; minPx <= 64; minPx *= 2 {
		z := MinZoomForPixelSize(worldSize, minPx)
		assert.GreaterOrEqual(t, z, prev, "minZoomForPixelSize must be non-decreasing in minPixelSize")
		assert.GreaterOrEqual(t, z, 0)
		assert.LessOrEqual(t, z, MaxMaxzoom)
		prev = z
	}

	prevBySize := MinZoomForPixelSize(1.0/(1<<2), 16)
	for shift := 3; shift <= 12; shift++ {
		size := 1.0 / float64(int64(1)<<uint(shift))
		z := MinZoomForPixelSize(size, 16)
		assert.GreaterOrEqual(t, z, prevBySize, "minZoomForPixelSize must be non-increasing in worldGeometrySize, so a smaller size never lowers the zoom")
		prevBySize = z
	}
}

func TestLabelGridIDIdempotence(t *testing.T) {
	tilesAtZoom := 8.0
	gridSize := 0.5

	a := orb.Point{3.2, 1.1}
	b := orb.Point{3.4, 1.4}
	c := orb.Point{3.9, 1.1}

	idA := LabelGridID(tilesAtZoom, gridSize, a)
	idB := LabelGridID(tilesAtZoom, gridSize, b)
	idC := LabelGridID(tilesAtZoom, gridSize, c)

	assert.Equal(t, idA, idB, "points in the same grid cell must share an id")
	assert.NotEqual(t, idA, idC, "points in different grid cells must not share an id")

	wrapped := orb.Point{a[0] + tilesAtZoom, a[1]}
	assert.Equal(t, idA, LabelGridID(tilesAtZoom, gridSize, wrapped), "x wraps modulo the world")

	shiftedY := orb.Point{a[0], a[1] + tilesAtZoom}
	assert.NotEqual(t, idA, LabelGridID(tilesAtZoom, gridSize, shiftedY), "y must not wrap")
}

func TestEncodeDecodeFlatLocation(t *testing.T) {
	encoded := EncodeFlatLocation(2.3522, 48.8566) // Paris
	x := DecodeWorldX(encoded)
	y := DecodeWorldY(encoded)
	assert.InDelta(t, 0.50653, x, 1e-3)
	assert.InDelta(t, 0.34404, y, 5e-3)
}
