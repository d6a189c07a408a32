package tilecore

import (
	"math"
	"sync/atomic"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
	"github.com/paulmach/orb/simplify"
)

// FeatureRenderer turns one Feature into the RenderedFeatures it occupies
// across its configured zoom range. It carries no per-feature state: the
// only mutable state it touches is the process-wide featureID counter, so
// one renderer may be shared across as many worker goroutines as render
// features concurrently.
type FeatureRenderer struct {
	config Config
	stats  Stats
	encode GeometryEncoder
	emit   RenderedFeatureSink
}

// nextFeatureID is the process-wide featureID counter shared by every
// FeatureRenderer.
var nextFeatureID int64

// NewFeatureRenderer builds a renderer that emits into sink. A nil encoder
// falls back to DefaultGeometryEncoder.
func NewFeatureRenderer(config Config, stats Stats, encoder GeometryEncoder, sink RenderedFeatureSink) *FeatureRenderer {
	if encoder == nil {
		encoder = DefaultGeometryEncoder
	}
	return &FeatureRenderer{config: config, stats: stats, encode: encoder, emit: sink}
}

func (r *FeatureRenderer) allocateFeatureID() int64 {
	return atomic.AddInt64(&nextFeatureID, 1)
}

// Render dispatches feature's geometry, slicing and emitting it across every
// tile and zoom it touches. GeometryCollection children recurse under a
// single shared featureID; everything else is decided by the geometry's
// concrete orb type.
func (r *FeatureRenderer) Render(feature Feature) {
	geom := feature.Geometry()
	if isEmptyGeometry(geom) {
		r.stats.DataError("empty_geometry")
		return
	}

	if kind := classifyKind(geom); kind != "" {
		r.stats.ProcessedElement(kind, feature.Layer())
	}

	id := r.allocateFeatureID()
	r.renderGeometry(id, feature, geom)
}

func (r *FeatureRenderer) renderGeometry(id int64, feature Feature, geom orb.Geometry) {
	switch g := geom.(type) {
	case orb.Point:
		r.renderPoints(id, feature, []orb.Point{g}, false)
	case orb.MultiPoint:
		r.renderPoints(id, feature, []orb.Point(g), true)
	case orb.LineString:
		r.renderLineOrPolygon(id, feature, g, false)
	case orb.MultiLineString:
		r.renderLineOrPolygon(id, feature, g, false)
	case orb.Polygon:
		r.renderLineOrPolygon(id, feature, g, true)
	case orb.MultiPolygon:
		r.renderLineOrPolygon(id, feature, g, true)
	case orb.Collection:
		for _, child := range g {
			if isEmptyGeometry(child) {
				continue
			}
			r.renderGeometry(id, feature, child)
		}
	default:
		r.stats.DataError("unrecognized_geometry_type")
	}
}

func isEmptyGeometry(geom orb.Geometry) bool {
	if geom == nil {
		return true
	}
	switch g := geom.(type) {
	case orb.MultiPoint:
		return len(g) == 0
	case orb.LineString:
		return len(g) == 0
	case orb.MultiLineString:
		return len(g) == 0
	case orb.Polygon:
		return len(g) == 0
	case orb.MultiPolygon:
		return len(g) == 0
	case orb.Collection:
		return len(g) == 0
	default:
		return false
	}
}

func classifyKind(geom orb.Geometry) string {
	switch g := geom.(type) {
	case orb.Point, orb.MultiPoint:
		return "point"
	case orb.LineString, orb.MultiLineString:
		return "line"
	case orb.Polygon, orb.MultiPolygon:
		return "polygon"
	case orb.Collection:
		for _, c := range g {
			if k := classifyKind(c); k != "" {
				return k
			}
		}
	}
	return ""
}

// renderPoints implements the Point/MultiPoint branch of render(feature). A
// multipoint feature with an active label grid is decomposed into
// single-point batches so each gets its own group; otherwise every point in
// the batch is sliced and emitted together under one VectorFeature.
func (r *FeatureRenderer) renderPoints(id int64, feature Feature, points []orb.Point, isMulti bool) {
	layer := feature.Layer()
	decompose := isMulti && feature.HasLabelGrid()

	for z := feature.MaxZoom(); z >= feature.MinZoom(); z-- {
		attrs := feature.Attrs(z)
		buffer := feature.BufferPixels(z) / 256
		tilesAtZoom := float64(uint32(1) << uint(z))
		extents := r.config.Bounds().TileExtents().ForZoom(uint8(z))

		count := 0
		if decompose {
			for _, p := range points {
				count += r.renderPointBatch(id, layer, attrs, []orb.Point{p}, feature, z, buffer, tilesAtZoom, extents)
			}
		} else {
			count = r.renderPointBatch(id, layer, attrs, points, feature, z, buffer, tilesAtZoom, extents)
		}
		r.stats.EmittedFeatures(z, layer, count)
	}
}

func (r *FeatureRenderer) renderPointBatch(
	id int64,
	layer string,
	attrs map[string]interface{},
	batch []orb.Point,
	feature Feature,
	z int,
	buffer, tilesAtZoom float64,
	extents Extent,
) int {
	var group *Group
	if len(batch) == 1 && feature.HasLabelGrid() {
		gridCellSize := feature.GridPixelSize(z) / 256
		if gridCellSize >= 1.0/4096 {
			scaled := orb.Point{batch[0][0] * tilesAtZoom, batch[0][1] * tilesAtZoom}
			group = &Group{GridID: LabelGridID(tilesAtZoom, gridCellSize, scaled), Limit: feature.GridLimit(z)}
		}
	}

	tg := SlicePointsIntoTiles(extents, buffer, uint8(z), batch, feature.SourceID())

	count := 0
	for tile, groups := range tg.TileData() {
		var pts []orb.Point
		for _, rg := range groups {
			for _, seq := range rg {
				pts = append(pts, seq...)
			}
		}
		if len(pts) == 0 {
			continue
		}

		var geomToEncode orb.Geometry
		if len(pts) == 1 {
			geomToEncode = pts[0]
		} else {
			geomToEncode = orb.MultiPoint(pts)
		}

		encoded, err := r.encode(geomToEncode, 0)
		if err != nil {
			r.stats.DataError("write_tile_features")
			continue
		}
		vf := &VectorFeature{Layer: layer, FeatureID: id, Geometry: encoded, Attrs: attrs}
		if group != nil {
			vf.GroupHash = group.GridID
		}
		r.emit(RenderedFeature{Tile: tile, Feature: vf, SortKey: feature.SortKey(), Group: group})
		count++
	}
	return count
}

// renderLineOrPolygon implements the Line/MultiLine/Polygon/MultiPolygon
// branch of render(feature): scale, simplify, extract connected groups,
// slice into tiles, then snap-and-fix (polygons) or scale-preserve (lines)
// each tile fragment before encoding.
func (r *FeatureRenderer) renderLineOrPolygon(id int64, feature Feature, geom orb.Geometry, isArea bool) {
	layer := feature.Layer()

	var worldLength float64
	if ls, ok := geom.(orb.LineString); ok {
		worldLength = lineStringLength(ls)
	}

	for z := feature.MaxZoom(); z >= feature.MinZoom(); z-- {
		scale := float64(uint32(1) << uint(z))
		tolerance := feature.PixelTolerance(z) / 256
		minSize := feature.MinPixelSize(z) / 256
		if isArea {
			minSize *= minSize
		} else if worldLength > 0 && worldLength*scale < minSize {
			continue
		}

		scaled := scaleGeometry(geom, scale)
		simplified := simplify.DouglasPeucker(tolerance).Simplify(scaled)
		groups := extractGroups(simplified, isArea, minSize)
		if len(groups) == 0 {
			continue
		}

		extents := r.config.Bounds().TileExtents().ForZoom(uint8(z))
		buffer := feature.BufferPixels(z) / 256
		tg := SliceIntoTiles(groups, buffer, isArea, uint8(z), extents, feature.SourceID())

		attrs := feature.Attrs(z)
		if np := feature.NumPointsAttr(); np != "" {
			attrs = withNumPoints(attrs, np, countPoints(simplified))
		}

		lineScale := 0
		if !isArea {
			lineScale = minInt(maxInt(int(r.config.Maxzoom()), 14)-z, 31-14)
		}

		count := 0
		for tile, ringGroups := range tg.TileData() {
			if isArea {
				for _, rg := range ringGroups {
					poly, err := toValidPolygon(rg, r.stats, "write_tile_features")
					if err != nil {
						r.stats.DataError("write_tile_features")
						continue
					}
					encoded, err := r.encode(poly, 0)
					if err != nil {
						r.stats.DataError("write_tile_features")
						continue
					}
					vf := &VectorFeature{Layer: layer, FeatureID: id, Geometry: encoded, Attrs: attrs}
					r.emit(RenderedFeature{Tile: tile, Feature: vf, SortKey: feature.SortKey()})
					count++
				}
				continue
			}

			for _, rg := range ringGroups {
				for _, seq := range rg {
					if len(seq) < 2 {
						continue
					}
					encoded, err := r.encode(orb.LineString(seq), lineScale)
					if err != nil {
						r.stats.DataError("write_tile_features")
						continue
					}
					vf := &VectorFeature{Layer: layer, FeatureID: id, Geometry: encoded, Attrs: attrs}
					r.emit(RenderedFeature{Tile: tile, Feature: vf, SortKey: feature.SortKey()})
					count++
				}
			}
		}

		if isArea {
			filled := tg.FilledTiles()
			if len(filled) > 0 {
				fillVF := &VectorFeature{Layer: layer, FeatureID: id, Geometry: FILL, Attrs: attrs}
				for _, tile := range filled {
					r.emit(RenderedFeature{Tile: tile, Feature: fillVF, SortKey: feature.SortKey()})
					count++
				}
			}
		}

		r.stats.EmittedFeatures(z, layer, count)
	}
}

// scaleGeometry scales a copy of geom: project.Geometry writes its results
// back into its input, and the feature's world geometry must stay unscaled
// for the next zoom.
func scaleGeometry(geom orb.Geometry, scale float64) orb.Geometry {
	return project.Geometry(orb.Clone(geom), func(p orb.Point) orb.Point {
		return orb.Point{p[0] * scale, p[1] * scale}
	})
}

func lineStringLength(ls orb.LineString) float64 {
	var total float64
	for i := 1; i < len(ls); i++ {
		dx := ls[i][0] - ls[i-1][0]
		dy := ls[i][1] - ls[i-1][1]
		total += math.Hypot(dx, dy)
	}
	return total
}

// ringArea returns the ring's signed shoelace area: positive for
// counter-clockwise winding, negative for clockwise.
func ringArea(ring orb.Ring) float64 {
	var sum float64
	n := len(ring)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += ring[i][0]*ring[j][1] - ring[j][0]*ring[i][1]
	}
	return sum / 2
}

// extractGroups pulls the connected coordinate-sequence groups out of a
// scaled+simplified geometry, dropping polygons/holes/lines smaller than
// minSize. For polygons a group is one outer ring plus its surviving holes;
// for lines each linestring is its own group.
func extractGroups(geom orb.Geometry, isArea bool, minSize float64) []RingGroup {
	if isArea {
		switch g := geom.(type) {
		case orb.Polygon:
			if grp := polygonGroup(g, minSize); grp != nil {
				return []RingGroup{grp}
			}
			return nil
		case orb.MultiPolygon:
			var out []RingGroup
			for _, p := range g {
				if grp := polygonGroup(p, minSize); grp != nil {
					out = append(out, grp)
				}
			}
			return out
		default:
			return nil
		}
	}

	switch g := geom.(type) {
	case orb.LineString:
		if lineStringLength(g) < minSize {
			return nil
		}
		return []RingGroup{{orb.LineString(g)}}
	case orb.MultiLineString:
		var out []RingGroup
		for _, ls := range g {
			if lineStringLength(ls) >= minSize {
				out = append(out, RingGroup{ls})
			}
		}
		return out
	default:
		return nil
	}
}

func polygonGroup(p orb.Polygon, minSize float64) RingGroup {
	if len(p) == 0 {
		return nil
	}
	if math.Abs(ringArea(p[0])) < minSize {
		return nil
	}
	grp := RingGroup{orb.LineString(p[0])}
	for _, hole := range p[1:] {
		if math.Abs(ringArea(hole)) >= minSize {
			grp = append(grp, orb.LineString(hole))
		}
	}
	return grp
}

func countPoints(geom orb.Geometry) int {
	switch g := geom.(type) {
	case orb.LineString:
		return len(g)
	case orb.MultiLineString:
		n := 0
		for _, ls := range g {
			n += len(ls)
		}
		return n
	case orb.Polygon:
		n := 0
		for _, ring := range g {
			n += len(ring)
		}
		return n
	case orb.MultiPolygon:
		n := 0
		for _, p := range g {
			for _, ring := range p {
				n += len(ring)
			}
		}
		return n
	default:
		return 0
	}
}

func withNumPoints(attrs map[string]interface{}, name string, count int) map[string]interface{} {
	out := make(map[string]interface{}, len(attrs)+1)
	for k, v := range attrs {
		out[k] = v
	}
	out[name] = count
	return out
}

// toValidPolygon reassembles a sliced ring-group into a closed polygon,
// snaps it to the tile precision grid, and reverses every ring so the
// emitted orientation is CCW outer / CW inner.
//
// SnapAndFixPolygon's repair stages (dedupe, centroid offset, precision
// reduction) are all winding-preserving, so the ring order coming out of fix
// still reflects whatever the caller's input happened to use; unlike JTS's
// buffer(0)/GeometryFixer, nothing upstream canonicalizes it. canonicalizeRingWinding
// fixes that by deriving winding from signed area instead of trusting it,
// so the unconditional reverse below always lands on the required
// CCW-outer/CW-inner convention regardless of input winding.
func toValidPolygon(rg RingGroup, stats Stats, stage string) (orb.Polygon, error) {
	poly := make(orb.Polygon, len(rg))
	for i, seq := range rg {
		poly[i] = closeRing(orb.Ring(seq))
	}
	fixed, err := SnapAndFixPolygon(poly, stats, stage)
	if err != nil {
		return nil, err
	}
	fp, ok := fixed.(orb.Polygon)
	if !ok {
		return nil, newGeometryError("fix_polygon_topology_error", "expected polygon after snap and fix, got %T", fixed)
	}
	return reversePolygonRings(canonicalizeRingWinding(fp)), nil
}

// canonicalizeRingWinding forces ring[0] (the outer ring) to a negative
// signed area and every other ring (holes) to a positive one, so that the
// unconditional reversal applied afterwards always produces a positive
// outer ring and negative holes, independent of how the input was wound.
func canonicalizeRingWinding(poly orb.Polygon) orb.Polygon {
	out := make(orb.Polygon, len(poly))
	for i, ring := range poly {
		area := ringArea(ring)
		if i == 0 && area > 0 {
			ring = reverseRing(ring)
		} else if i > 0 && area < 0 {
			ring = reverseRing(ring)
		}
		out[i] = ring
	}
	return out
}

func closeRing(ring orb.Ring) orb.Ring {
	if len(ring) == 0 || ring[0] == ring[len(ring)-1] {
		return ring
	}
	out := make(orb.Ring, len(ring)+1)
	copy(out, ring)
	out[len(ring)] = ring[0]
	return out
}

func reverseRing(ring orb.Ring) orb.Ring {
	out := make(orb.Ring, len(ring))
	for i, p := range ring {
		out[len(ring)-1-i] = p
	}
	return out
}

func reversePolygonRings(poly orb.Polygon) orb.Polygon {
	out := make(orb.Polygon, len(poly))
	for i, r := range poly {
		out[i] = reverseRing(r)
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
