package tilecore

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// No Go library in the retrieved corpus (or the wider ecosystem, to this
// implementation's knowledge) exposes JTS's buffer(0)/GeometryFixer/
// GeometryPrecisionReducer trio for robust polygon repair without binding to
// GEOS via cgo, which the corpus never reaches for. FixPolygon,
// fixPolygonBuffer, and SnapAndFixPolygon below are a direct, intentionally
// narrow reimplementation of the three operations GeoUtils.java actually
// calls: dedupe/reclose degenerate rings, detect self-intersections
// introduced by rounding, and retry with a small outward/inward nudge. See
// DESIGN.md for the full justification.

// FixPolygon is the fast repair standing in for JTS's geom.buffer(0) trick:
// it removes consecutive duplicate points and recloses every ring. It does
// not untangle self-intersections; a ring that crosses itself is returned
// still crossing.
func FixPolygon(geom orb.Geometry) (orb.Geometry, error) {
	return mapPolygonal(geom, func(ring orb.Ring) orb.Ring {
		return dedupeRing(ring)
	})
}

// FixPolygonBuffer is the more aggressive repair that expands then contracts
// every ring by buffer, matching fixPolygon(geom, buffer) in the spec.
// offsetRing scales about the ring's centroid, so the contraction undoes the
// expansion and the result keeps the deduped ring's coordinates.
func FixPolygonBuffer(geom orb.Geometry, buffer float64) (orb.Geometry, error) {
	return mapPolygonal(geom, func(ring orb.Ring) orb.Ring {
		return offsetRing(offsetRing(dedupeRing(ring), buffer), -buffer)
	})
}

func mapPolygonal(geom orb.Geometry, fix func(orb.Ring) orb.Ring) (orb.Geometry, error) {
	switch g := geom.(type) {
	case orb.Polygon:
		return fixPolygonRings(g, fix), nil
	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, 0, len(g))
		for _, p := range g {
			fixed := fixPolygonRings(p, fix)
			if len(fixed) > 0 {
				out = append(out, fixed)
			}
		}
		return out, nil
	default:
		return nil, newGeometryError("fix_polygon_topology_error", "not a polygonal geometry: %T", geom)
	}
}

func fixPolygonRings(p orb.Polygon, fix func(orb.Ring) orb.Ring) orb.Polygon {
	out := make(orb.Polygon, 0, len(p))
	for _, ring := range p {
		fixed := fix(ring)
		if len(fixed) >= 4 {
			out = append(out, fixed)
		}
	}
	return out
}

func dedupeRing(ring orb.Ring) orb.Ring {
	if len(ring) == 0 {
		return ring
	}
	out := make(orb.Ring, 0, len(ring))
	out = append(out, ring[0])
	for _, p := range ring[1:] {
		if p != out[len(out)-1] {
			out = append(out, p)
		}
	}
	if len(out) > 1 && out[0] != out[len(out)-1] {
		out = append(out, out[0])
	}
	return out
}

// offsetRing scales every point away from (delta>0) or toward (delta<0) the
// ring's centroid so that the average point moves by approximately delta.
// This is a deliberately crude stand-in for a true geometric buffer; see the
// package-level comment above.
func offsetRing(ring orb.Ring, delta float64) orb.Ring {
	if len(ring) < 4 || delta == 0 {
		return ring
	}
	centroid, _ := planar.CentroidArea(orb.Polygon{ring})
	avgRadius := 0.0
	for _, p := range ring {
		avgRadius += math.Hypot(p[0]-centroid[0], p[1]-centroid[1])
	}
	avgRadius /= float64(len(ring))
	if avgRadius == 0 {
		return ring
	}
	factor := (avgRadius + delta) / avgRadius
	out := make(orb.Ring, len(ring))
	for i, p := range ring {
		out[i] = orb.Point{
			centroid[0] + (p[0]-centroid[0])*factor,
			centroid[1] + (p[1]-centroid[1])*factor,
		}
	}
	return out
}

// ringSelfIntersects reports whether any two non-adjacent segments of ring
// cross, a cheap O(n^2) check adequate for the handful of points a single
// tile-clipped ring carries.
func ringSelfIntersects(ring orb.Ring) bool {
	n := len(ring)
	if n < 4 {
		return false
	}
	for i := 0; i < n-1; i++ {
		a1, a2 := ring[i], ring[i+1]
		for j := i + 1; j < n-1; j++ {
			if j == i || j == i+1 || (i == 0 && j == n-2) {
				continue
			}
			b1, b2 := ring[j], ring[j+1]
			if segmentsIntersect(a1, a2, b1, b2) {
				return true
			}
		}
	}
	return false
}

func segmentsIntersect(p1, p2, p3, p4 orb.Point) bool {
	d1 := cross(p3, p4, p1)
	d2 := cross(p3, p4, p2)
	d3 := cross(p1, p2, p3)
	d4 := cross(p1, p2, p4)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

func cross(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func polygonalIsValid(geom orb.Geometry) bool {
	rings := ringsOf(geom)
	for _, r := range rings {
		if len(r) < 4 || ringSelfIntersects(r) {
			return false
		}
	}
	return true
}

func ringsOf(geom orb.Geometry) []orb.Ring {
	switch g := geom.(type) {
	case orb.Polygon:
		return g
	case orb.MultiPolygon:
		var out []orb.Ring
		for _, p := range g {
			out = append(out, p...)
		}
		return out
	default:
		return nil
	}
}

func roundRing(ring orb.Ring, scale float64) orb.Ring {
	out := make(orb.Ring, len(ring))
	for i, p := range ring {
		out[i] = orb.Point{math.Round(p[0]*scale) / scale, math.Round(p[1]*scale) / scale}
	}
	return out
}

// reducePrecision rounds every coordinate to 1/scale and reports whether the
// result is still simple, the Go analogue of GeometryPrecisionReducer
// succeeding vs. raising a TopologyException.
func reducePrecision(geom orb.Geometry, scale float64) (orb.Geometry, bool) {
	reduced, err := mapPolygonal(geom, func(ring orb.Ring) orb.Ring {
		return roundRing(ring, scale)
	})
	if err != nil {
		return nil, false
	}
	return reduced, polygonalIsValid(reduced)
}

// SnapAndFixPolygon returns a copy of geom with coordinates snapped to the
// tile precision grid, repairing self-intersections the rounding step may
// introduce. Each attempted repair increments a distinct stats counter
// under <stage>_snap_fix_input{,2,3,_failed}; after three failed attempts it
// returns a GeometryError tagged snap_third_time_failed.
func SnapAndFixPolygon(geom orb.Geometry, stats Stats, stage string) (orb.Geometry, error) {
	return snapAndFixPolygonScale(geom, tilePrecisionScale, stats, stage)
}

func snapAndFixPolygonScale(geom orb.Geometry, scale float64, stats Stats, stage string) (orb.Geometry, error) {
	if !polygonalIsValid(geom) {
		fixed, err := FixPolygon(geom)
		if err != nil {
			return nil, err
		}
		geom = fixed
		stats.DataError(stage + "_snap_fix_input")
	}

	if reduced, ok := reducePrecision(geom, scale); ok {
		return reduced, nil
	}

	fixed2, err := fixPolygonFixer(geom)
	if err != nil {
		return nil, err
	}
	stats.DataError(stage + "_snap_fix_input2")
	if reduced2, ok := reducePrecision(fixed2, scale); ok {
		return reduced2, nil
	}

	fixed3, err := FixPolygonBuffer(geom, 0.5/scale)
	if err != nil {
		return nil, err
	}
	stats.DataError(stage + "_snap_fix_input3")
	if reduced3, ok := reducePrecision(fixed3, scale); ok {
		return reduced3, nil
	}

	stats.DataError(stage + "_snap_fix_input3_failed")
	return nil, newGeometryError("snap_third_time_failed", "error reducing precision for stage %s", stage)
}

// fixPolygonFixer stands in for org.locationtech.jts.geom.util.GeometryFixer,
// a more thorough repair than FixPolygon's simple dedupe. This package has
// no such library available (see the top-of-file comment), so it falls back
// to the same dedupe plus a single expand/contract pass at a small fixed
// buffer. As with FixPolygonBuffer the contraction undoes the expansion, so
// the result is the deduped geometry; a ring that still self-intersects is
// not untangled.
func fixPolygonFixer(geom orb.Geometry) (orb.Geometry, error) {
	return mapPolygonal(geom, func(ring orb.Ring) orb.Ring {
		return offsetRing(offsetRing(dedupeRing(ring), 1/tilePrecisionScale), -1/tilePrecisionScale)
	})
}
