package tilecore

import "fmt"

// MaxMaxzoom bounds every zoom-dependent computation in this package, the
// same ceiling PlanetilerConfig.MAX_MAXZOOM imposes in the Java source.
const MaxMaxzoom = 24

// TileCoord addresses a single 256px tile in the pyramid. Ordering is by
// (Z, X, Y), matching the total ordering required by the data model.
type TileCoord struct {
	Z    uint8
	X, Y uint32
}

func NewTileCoord(z uint8, x, y uint32) TileCoord {
	return TileCoord{Z: z, X: x, Y: y}
}

func (t TileCoord) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y)
}

// Less implements the total ordering by (z, x, y) required by the data model.
func (t TileCoord) Less(o TileCoord) bool {
	if t.Z != o.Z {
		return t.Z < o.Z
	}
	if t.X != o.X {
		return t.X < o.X
	}
	return t.Y < o.Y
}

// Extent is an axis-aligned rectangle of valid tile coordinates at one zoom
// level, as returned by Bounds.TileExtents().ForZoom(z).
type Extent struct {
	MinX, MinY, MaxX, MaxY uint32 // inclusive
}

func (e Extent) Contains(x, y uint32) bool {
	return x >= e.MinX && x <= e.MaxX && y >= e.MinY && y <= e.MaxY
}

// TileExtents resolves the valid tile rectangle for any zoom in [0, MaxMaxzoom].
type TileExtents struct {
	maxzoom uint8
}

// NewWorldTileExtents returns extents covering the entire world at every
// zoom up to maxzoom, the degenerate case PlanetilerConfig uses when no
// bounding polygon restricts the run.
func NewWorldTileExtents(maxzoom uint8) TileExtents {
	return TileExtents{maxzoom: maxzoom}
}

func (e TileExtents) ForZoom(z uint8) Extent {
	n := uint32(1) << z
	return Extent{MinX: 0, MinY: 0, MaxX: n - 1, MaxY: n - 1}
}

// Bounds mirrors PlanetilerConfig.bounds(): it supplies the tile extents a
// render run is restricted to at each zoom.
type Bounds interface {
	TileExtents() TileExtents
}

type worldBounds struct {
	extents TileExtents
}

func (b worldBounds) TileExtents() TileExtents { return b.extents }

// NewWorldBounds wraps NewWorldTileExtents behind the Bounds interface.
func NewWorldBounds(maxzoom uint8) Bounds {
	return worldBounds{extents: NewWorldTileExtents(maxzoom)}
}

// Config mirrors the subset of PlanetilerConfig the renderer depends on.
// CLI flag parsing, schema loading, and the rest of a real config object are
// out of scope for this package; callers construct one directly or via
// DefaultConfig.
type Config struct {
	bounds  Bounds
	maxzoom uint8
}

func DefaultConfig(maxzoom uint8) Config {
	return Config{bounds: NewWorldBounds(maxzoom), maxzoom: maxzoom}
}

func NewConfig(bounds Bounds, maxzoom uint8) Config {
	return Config{bounds: bounds, maxzoom: maxzoom}
}

func (c Config) Bounds() Bounds { return c.bounds }
func (c Config) Maxzoom() uint8 { return c.maxzoom }
