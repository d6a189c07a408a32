package tilecore

import (
	"math"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
)

// RingGroup is a list of coordinate sequences that travel together through
// slicing: outer ring followed by inner rings for a polygon, or a single
// sequence for a line or point.
type RingGroup []orb.LineString

// TiledGeometry is the result of cutting a world-coordinate geometry into
// per-tile coordinate sequences at one zoom level, tracking which tiles lie
// entirely inside the source polygon along the way.
type TiledGeometry struct {
	tileData map[TileCoord][]RingGroup
	filled   *roaring64.Bitmap
	zoom     uint8
	extents  Extent
}

func newTiledGeometry(z uint8, extents Extent) *TiledGeometry {
	return &TiledGeometry{
		tileData: make(map[TileCoord][]RingGroup),
		filled:   roaring64.New(),
		zoom:     z,
		extents:  extents,
	}
}

func (tg *TiledGeometry) addGroup(tile TileCoord, group RingGroup) {
	tg.tileData[tile] = append(tg.tileData[tile], group)
}

func (tg *TiledGeometry) addFilledTile(tile TileCoord) {
	tg.filled.Add(tileKey(tile))
}

func tileKey(t TileCoord) uint64 {
	return uint64(t.X)<<32 | uint64(t.Y)
}

// TileData returns the per-tile ring groups produced by slicing. Iteration
// order is not guaranteed, only reproducibility given identical inputs.
func (tg *TiledGeometry) TileData() map[TileCoord][]RingGroup { return tg.tileData }

// FilledTiles returns every tile that lies entirely inside the source
// polygon, empty for non-polygon geometries.
func (tg *TiledGeometry) FilledTiles() []TileCoord {
	out := make([]TileCoord, 0, tg.filled.GetCardinality())
	it := tg.filled.Iterator()
	for it.HasNext() {
		k := it.Next()
		out = append(out, TileCoord{Z: tg.zoom, X: uint32(k >> 32), Y: uint32(k & 0xFFFFFFFF)})
	}
	return out
}

func (tg *TiledGeometry) ZoomLevel() uint8 { return tg.zoom }

// SlicePointsIntoTiles assigns each world-coordinate point in coords to
// every tile at zoom z whose [-buffer, 1+buffer] expanded footprint contains
// it. A point near a tile corner can replicate into up to nine tiles.
// sourceID is accepted only for diagnostics, mirroring FeatureCollector's
// opaque source id plumbing.
func SlicePointsIntoTiles(extents Extent, buffer float64, z uint8, coords []orb.Point, sourceID int64) *TiledGeometry {
	tg := newTiledGeometry(z, extents)
	tilesAtZoom := int64(uint32(1) << z)

	for _, c := range coords {
		tsx := c[0] * float64(tilesAtZoom)
		tsy := c[1] * float64(tilesAtZoom)
		minTX := int64(math.Floor(tsx - buffer))
		maxTX := int64(math.Floor(tsx + buffer))
		minTY := int64(math.Floor(tsy - buffer))
		maxTY := int64(math.Floor(tsy + buffer))

		for tx := minTX; tx <= maxTX; tx++ {
			if tx < 0 || tx >= tilesAtZoom {
				continue
			}
			for ty := minTY; ty <= maxTY; ty++ {
				if ty < 0 || ty >= tilesAtZoom {
					continue
				}
				if !extents.Contains(uint32(tx), uint32(ty)) {
					continue
				}
				local := orb.Point{(tsx - float64(tx)) * 256, (tsy - float64(ty)) * 256}
				tile := NewTileCoord(z, uint32(tx), uint32(ty))
				tg.addGroup(tile, RingGroup{orb.LineString{local}})
			}
		}
	}
	return tg
}

// SliceIntoTiles cuts lines/polygons with a Sutherland-Hodgman clip against
// each candidate tile's buffered bound (groups' coordinates are already
// scaled to tile-space units for zoom z), producing per-tile coordinate
// sequences in local 0-256px tile coordinates. For polygons it additionally
// records tiles that lie entirely inside the shape as filled, so the caller
// can emit them as a constant fill instead of re-encoding.
func SliceIntoTiles(groups []RingGroup, buffer float64, isArea bool, z uint8, extents Extent, sourceID int64) *TiledGeometry {
	tg := newTiledGeometry(z, extents)
	tilesAtZoom := int64(uint32(1) << z)

	for _, group := range groups {
		if len(group) == 0 {
			continue
		}
		b := groupBound(group)
		minTX := int64(math.Floor(b.Min[0] - buffer))
		maxTX := int64(math.Floor(b.Max[0] + buffer))
		minTY := int64(math.Floor(b.Min[1] - buffer))
		maxTY := int64(math.Floor(b.Max[1] + buffer))

		for tx := minTX; tx <= maxTX; tx++ {
			if tx < 0 || tx >= tilesAtZoom {
				continue
			}
			for ty := minTY; ty <= maxTY; ty++ {
				if ty < 0 || ty >= tilesAtZoom {
					continue
				}
				if !extents.Contains(uint32(tx), uint32(ty)) {
					continue
				}
				tileBound := orb.Bound{
					Min: orb.Point{float64(tx) - buffer, float64(ty) - buffer},
					Max: orb.Point{float64(tx) + 1 + buffer, float64(ty) + 1 + buffer},
				}
				clipped, full := clipGroup(group, tileBound, isArea)
				tile := NewTileCoord(z, uint32(tx), uint32(ty))
				if isArea && full {
					tg.addFilledTile(tile)
					continue
				}
				if len(clipped) == 0 {
					continue
				}
				tg.addGroup(tile, toLocalPixels(clipped, tx, ty))
			}
		}
	}
	return tg
}

func groupBound(group RingGroup) orb.Bound {
	b := orb.Bound{Min: orb.Point{math.Inf(1), math.Inf(1)}, Max: orb.Point{math.Inf(-1), math.Inf(-1)}}
	for _, seq := range group {
		for _, p := range seq {
			b = b.Extend(p)
		}
	}
	return b
}

// clipGroup clips one ring-group against bound. For polygons it reports
// whether the clip result is the tile's own rectangle, i.e. the tile lies
// entirely inside the source polygon.
func clipGroup(group RingGroup, bound orb.Bound, isArea bool) (RingGroup, bool) {
	if isArea {
		// clip.Geometry uses its polygon input as scratch space, so every
		// tile clips its own copy and the group stays intact for the next.
		poly := make(orb.Polygon, len(group))
		for i, ring := range group {
			poly[i] = orb.Ring(ring).Clone()
		}
		switch c := clip.Geometry(bound, poly).(type) {
		case orb.Polygon:
			if len(c) == 0 {
				return nil, false
			}
			full := len(c) == 1 && isFullTileRect(c[0], bound)
			out := make(RingGroup, len(c))
			for i, r := range c {
				out[i] = orb.LineString(r)
			}
			return out, full
		case orb.MultiPolygon:
			var out RingGroup
			for _, p := range c {
				for _, r := range p {
					out = append(out, orb.LineString(r))
				}
			}
			return out, false
		default:
			return nil, false
		}
	}

	switch c := clip.Geometry(bound, orb.LineString(group[0])).(type) {
	case orb.LineString:
		if len(c) == 0 {
			return nil, false
		}
		return RingGroup{c}, false
	case orb.MultiLineString:
		out := make(RingGroup, len(c))
		for i, ls := range c {
			out[i] = ls
		}
		return out, false
	default:
		return nil, false
	}
}

// isFullTileRect reports whether ring is exactly bound's rectangle, meaning
// the clip introduced none of the source polygon's own edges: the tile is
// entirely covered.
func isFullTileRect(ring orb.Ring, bound orb.Bound) bool {
	if len(ring) != 4 && len(ring) != 5 {
		return false
	}
	corners := [4]orb.Point{bound.Min, {bound.Max[0], bound.Min[1]}, bound.Max, {bound.Min[0], bound.Max[1]}}
	n := len(ring)
	if ring[0] == ring[n-1] {
		n--
	}
	if n != 4 {
		return false
	}
	for _, p := range ring[:n] {
		found := false
		for _, c := range corners {
			if math.Abs(p[0]-c[0]) < 1e-9 && math.Abs(p[1]-c[1]) < 1e-9 {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func toLocalPixels(group RingGroup, tx, ty int64) RingGroup {
	out := make(RingGroup, len(group))
	for i, seq := range group {
		ls := make(orb.LineString, len(seq))
		for j, p := range seq {
			ls[j] = orb.Point{(p[0] - float64(tx)) * 256, (p[1] - float64(ty)) * 256}
		}
		out[i] = ls
	}
	return out
}
