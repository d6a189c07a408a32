package tilecore

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testFeature is a minimal, fully static Feature for exercising the
// renderer without a real schema layer.
type testFeature struct {
	layer       string
	sortKey     int64
	minZoom     int
	maxZoom     int
	geom        orb.Geometry
	buffer      float64
	tolerance   float64
	minPixel    float64
	hasGrid     bool
	gridPixel   float64
	gridLimit   int
	numPtsAttr  string
	sourceID    int64
	attrsByZoom map[int]map[string]interface{}
}

func (f *testFeature) Layer() string  { return f.layer }
func (f *testFeature) SortKey() int64 { return f.sortKey }
func (f *testFeature) MinZoom() int   { return f.minZoom }
func (f *testFeature) MaxZoom() int   { return f.maxZoom }
func (f *testFeature) Attrs(z int) map[string]interface{} {
	if f.attrsByZoom != nil {
		return f.attrsByZoom[z]
	}
	return map[string]interface{}{}
}
func (f *testFeature) BufferPixels(int) float64   { return f.buffer }
func (f *testFeature) PixelTolerance(int) float64 { return f.tolerance }
func (f *testFeature) MinPixelSize(int) float64   { return f.minPixel }
func (f *testFeature) HasLabelGrid() bool         { return f.hasGrid }
func (f *testFeature) GridPixelSize(int) float64  { return f.gridPixel }
func (f *testFeature) GridLimit(int) int          { return f.gridLimit }
func (f *testFeature) NumPointsAttr() string      { return f.numPtsAttr }
func (f *testFeature) Geometry() orb.Geometry     { return f.geom }
func (f *testFeature) SourceID() int64            { return f.sourceID }

func newRenderer(maxzoom uint8) (*FeatureRenderer, *[]RenderedFeature) {
	var out []RenderedFeature
	config := DefaultConfig(maxzoom)
	r := NewFeatureRenderer(config, NopStats{}, nil, func(rf RenderedFeature) {
		out = append(out, rf)
	})
	return r, &out
}

func TestRenderPointScenarioS1(t *testing.T) {
	r, out := newRenderer(2)
	feature := &testFeature{
		layer:   "places",
		minZoom: 0,
		maxZoom: 2,
		geom:    orb.Point{0.5, 0.5},
	}
	r.Render(feature)

	require.Len(t, *out, 3)
	tiles := map[TileCoord]bool{}
	for _, rf := range *out {
		tiles[rf.Tile] = true
	}
	assert.True(t, tiles[NewTileCoord(0, 0, 0)])
	assert.True(t, tiles[NewTileCoord(1, 1, 1)])
	assert.True(t, tiles[NewTileCoord(2, 2, 2)])
}

func TestRenderLabelledPointAcrossTileEdgeScenarioS2(t *testing.T) {
	r, out := newRenderer(1)
	feature := &testFeature{
		layer:     "places",
		minZoom:   1,
		maxZoom:   1,
		geom:      orb.Point{0.5, 0.5},
		buffer:    4,
		hasGrid:   true,
		gridPixel: 32,
		gridLimit: 5,
	}
	r.Render(feature)

	require.Len(t, *out, 4)
	ids := map[int64]bool{}
	groupIDs := map[int64]bool{}
	for _, rf := range *out {
		ids[rf.Feature.FeatureID] = true
		require.NotNil(t, rf.Group)
		groupIDs[rf.Group.GridID] = true
	}
	assert.Len(t, ids, 1, "all fragments share one featureId")
}

func TestRenderFilledOceanPolygonScenarioS3(t *testing.T) {
	r, out := newRenderer(2)
	feature := &testFeature{
		layer:   "water",
		minZoom: 2,
		maxZoom: 2,
		geom:    orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}},
		minPixel: 0,
	}
	r.Render(feature)

	require.Len(t, *out, 16)
	for _, rf := range *out {
		assert.Equal(t, FILL.Commands, rf.Feature.Geometry.Commands)
	}
}

func TestRenderSmallFeatureDroppedScenarioS4(t *testing.T) {
	r, out := newRenderer(0)
	feature := &testFeature{
		layer:    "roads",
		minZoom:  0,
		maxZoom:  0,
		geom:     orb.LineString{{0, 0}, {0.001, 0}},
		minPixel: 5,
	}
	r.Render(feature)
	assert.Empty(t, *out)
}

func TestRenderMultipointWithLabelGridScenarioS5(t *testing.T) {
	r, out := newRenderer(0)
	feature := &testFeature{
		layer:     "places",
		minZoom:   0,
		maxZoom:   0,
		geom:      orb.MultiPoint{{0.1, 0.1}, {0.9, 0.9}},
		hasGrid:   true,
		gridPixel: 32,
		gridLimit: 1,
	}
	r.Render(feature)

	require.Len(t, *out, 2)
	assert.NotNil(t, (*out)[0].Group)
	assert.NotNil(t, (*out)[1].Group)
	assert.Equal(t, (*out)[0].Feature.FeatureID, (*out)[1].Feature.FeatureID)
}

func TestFeatureIDDistinctAcrossFeatures(t *testing.T) {
	r, out := newRenderer(0)
	r.Render(&testFeature{layer: "a", geom: orb.Point{0.1, 0.1}})
	r.Render(&testFeature{layer: "a", geom: orb.Point{0.2, 0.2}})

	require.Len(t, *out, 2)
	assert.NotEqual(t, (*out)[0].Feature.FeatureID, (*out)[1].Feature.FeatureID)
}

func TestExtentContainment(t *testing.T) {
	r, out := newRenderer(3)
	feature := &testFeature{
		layer:   "roads",
		minZoom: 3,
		maxZoom: 3,
		geom:    orb.LineString{{0.0, 0.0}, {1.0, 1.0}},
		tolerance: 0,
	}
	r.Render(feature)
	require.NotEmpty(t, *out)
	extents := r.config.Bounds().TileExtents().ForZoom(3)
	for _, rf := range *out {
		assert.True(t, extents.Contains(rf.Tile.X, rf.Tile.Y))
	}
}

// decodeMVTRings decodes the command/zigzag stream produced by
// DefaultGeometryEncoder back into its rings, independently of any
// tilecore winding convention, so TestPolygonRingOrientation can check the
// emitted sign directly rather than trusting the package's own notion of
// "correct".
func decodeMVTRings(t *testing.T, cmds []uint32) []orb.Ring {
	t.Helper()
	unzigzag := func(v uint32) int32 { return int32((v >> 1) ^ -(v & 1)) }

	var rings []orb.Ring
	var px, py int32
	i := 0
	for i < len(cmds) {
		cmd := cmds[i]
		i++
		id := cmd & 0x7
		count := int(cmd >> 3)
		switch id {
		case 1: // moveTo always starts a new ring
			var ring orb.Ring
			for c := 0; c < count; c++ {
				require.LessOrEqual(t, i+1, len(cmds))
				px += unzigzag(cmds[i])
				py += unzigzag(cmds[i+1])
				i += 2
				ring = append(ring, orb.Point{float64(px), float64(py)})
			}
			rings = append(rings, ring)
		case 2: // lineTo continues the ring currently being built
			ring := rings[len(rings)-1]
			for c := 0; c < count; c++ {
				require.LessOrEqual(t, i+1, len(cmds))
				px += unzigzag(cmds[i])
				py += unzigzag(cmds[i+1])
				i += 2
				ring = append(ring, orb.Point{float64(px), float64(py)})
			}
			rings[len(rings)-1] = ring
		case 7: // closePath
			ring := rings[len(rings)-1]
			if len(ring) > 0 && ring[0] != ring[len(ring)-1] {
				ring = append(ring, ring[0])
			}
			rings[len(rings)-1] = ring
		}
	}
	return rings
}

func signedArea(ring orb.Ring) float64 {
	var sum float64
	n := len(ring)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += ring[i][0]*ring[j][1] - ring[j][0]*ring[i][1]
	}
	return sum / 2
}

func TestPolygonRingOrientation(t *testing.T) {
	ccwRing := orb.Ring{{0.1, 0.1}, {0.9, 0.1}, {0.9, 0.9}, {0.1, 0.9}, {0.1, 0.1}}
	cwRing := orb.Ring{{0.1, 0.1}, {0.1, 0.9}, {0.9, 0.9}, {0.9, 0.1}, {0.1, 0.1}}

	for name, ring := range map[string]orb.Ring{"ccw-input": ccwRing, "cw-input": cwRing} {
		t.Run(name, func(t *testing.T) {
			r, out := newRenderer(1)
			feature := &testFeature{
				layer:   "land",
				minZoom: 1,
				maxZoom: 1,
				geom:    orb.Polygon{ring},
			}
			r.Render(feature)
			require.NotEmpty(t, *out)

			for _, rf := range *out {
				rings := decodeMVTRings(t, rf.Feature.Geometry.Commands)
				require.NotEmpty(t, rings)
				outer := rings[0]
				assert.Greater(t, signedArea(outer), 0.0,
					"outer ring must be CCW regardless of input winding (%s)", name)
				for _, hole := range rings[1:] {
					assert.Less(t, signedArea(hole), 0.0,
						"inner ring must be CW regardless of input winding (%s)", name)
				}
			}
		})
	}
}
