package tilecore

import "github.com/paulmach/orb"

// Feature is the immutable per-source-feature contract the renderer
// consumes. Implementations typically close over a schema-mapped attribute
// function and the zoom range a map-styling layer assigned to this feature;
// both are out of scope here and live in the external collaborator that
// constructs Feature values.
type Feature interface {
	Layer() string
	SortKey() int64
	MinZoom() int
	MaxZoom() int

	// Attrs returns the attribute set to emit at zoom z. Callers must treat
	// the returned map as owned by the caller; this package never mutates
	// a map returned from Attrs in place.
	Attrs(z int) map[string]interface{}

	BufferPixels(z int) float64
	PixelTolerance(z int) float64
	MinPixelSize(z int) float64

	HasLabelGrid() bool
	GridPixelSize(z int) float64
	GridLimit(z int) int

	// NumPointsAttr names the attribute that should carry the pre-tiling
	// simplified point count, or "" if the feature doesn't want one.
	NumPointsAttr() string

	Geometry() orb.Geometry
	SourceID() int64
}

// Group identifies a label-grid cell and the maximum number of features a
// downstream limiter should keep in it.
type Group struct {
	GridID int64
	Limit  int
}

// VectorFeature is one encoded fragment of a source feature. FeatureID is
// shared by every fragment of the same source feature, however many tiles
// or zooms it was sliced across.
type VectorFeature struct {
	Layer     string
	FeatureID int64
	Geometry  EncodedGeometry
	Attrs     map[string]interface{}
	GroupHash int64
}

// RenderedFeature pairs one VectorFeature with the tile it belongs in. Group
// is non-nil only for single points carrying an active label-grid cell.
type RenderedFeature struct {
	Tile    TileCoord
	Feature *VectorFeature
	SortKey int64
	Group   *Group
}

// RenderedFeatureSink receives every RenderedFeature the renderer emits. It
// runs on the rendering goroutine and must be safe for concurrent use if the
// caller shares one sink across multiple renderers.
type RenderedFeatureSink func(RenderedFeature)
