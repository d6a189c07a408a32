package main

import (
	"fmt"
	"log"
	"os"

	"github.com/alecthomas/kong"
	"github.com/cespare/xxhash/v2"
	"github.com/dustin/go-humanize"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/flatgeo/tilecore/tilecore"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var cli struct {
	Render struct {
		Input   string `arg:"" help:"GeoJSON FeatureCollection to render." type:"existingfile"`
		Layer   string `default:"features" help:"Output layer name."`
		Minzoom int    `default:"0" help:"Minimum zoom to render."`
		Maxzoom int    `default:"14" help:"Maximum zoom to render."`
		NodeMap string `help:"Path for the scratch mmap node-coordinate table; a temp file is used if omitted." type:"path"`
	} `cmd:"" help:"Render a GeoJSON FeatureCollection into tile-sliced, encoded features."`

	Version struct {
	} `cmd:"" help:"Show the program version."`
}

func main() {
	if len(os.Args) < 2 {
		os.Args = append(os.Args, "--help")
	}

	logger := log.New(os.Stdout, "", log.Ldate|log.Ltime|log.Lshortfile)
	ctx := kong.Parse(&cli)

	switch ctx.Command() {
	case "render <input>":
		if err := runRender(logger); err != nil {
			logger.Fatalf("render failed: %v", err)
		}
	case "version":
		fmt.Printf("tilecore %s, commit %s, built at %s\n", version, commit, date)
	default:
		panic(ctx.Command())
	}
}

func runRender(logger *log.Logger) error {
	if cli.Render.Maxzoom > tilecore.MaxMaxzoom {
		return fmt.Errorf("maxzoom %d exceeds MAX_MAXZOOM %d", cli.Render.Maxzoom, tilecore.MaxMaxzoom)
	}

	raw, err := os.ReadFile(cli.Render.Input)
	if err != nil {
		return err
	}
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return err
	}

	config := tilecore.DefaultConfig(uint8(cli.Render.Maxzoom))
	stats := tilecore.NewPrometheusStats(prometheus.NewRegistry())

	nodeMapPath := cli.Render.NodeMap
	if nodeMapPath == "" {
		tmp, err := os.CreateTemp("", "tilecore-nodes-*.bin")
		if err != nil {
			return err
		}
		tmp.Close()
		nodeMapPath = tmp.Name()
	}
	nodes, err := tilecore.NewLongLongMap(nodeMapPath)
	if err != nil {
		return err
	}
	defer nodes.Close()
	nodeWriter := nodes.NewWriter()

	counts := map[tilecore.TileCoord]int{}
	renderer := tilecore.NewFeatureRenderer(config, stats, nil, func(rf tilecore.RenderedFeature) {
		counts[rf.Tile]++
	})

	rendered := 0
	for i, f := range fc.Features {
		feature, ok := newCLIFeature(f, cli.Render.Layer, cli.Render.Minzoom, cli.Render.Maxzoom)
		if !ok {
			logger.Printf("skipping feature %d: unsupported or missing geometry", i)
			continue
		}
		if p, ok := f.Geometry.(orb.Point); ok {
			// LongLongMapWriter requires non-decreasing keys from a single
			// writer; feature.SourceID() is an xxhash digest and carries no
			// such ordering, so the node table is keyed on the feature's
			// position in the input instead, which is monotonic by
			// construction under this single-writer, single-pass loop.
			if err := nodeWriter.Put(int64(i), tilecore.EncodeFlatLocation(p[0], p[1])); err != nil {
				logger.Printf("node table put failed for feature %d: %v", i, err)
			}
		}
		renderer.Render(feature)
		rendered++
	}

	if err := nodes.Seal(); err != nil {
		return err
	}
	usage, err := nodes.DiskUsageBytes()
	if err != nil {
		return err
	}

	logger.Printf("rendered %d features into %d tiles, node table %s", rendered, len(counts), humanize.Bytes(uint64(usage)))
	return nil
}

// cliFeature adapts a decoded GeoJSON feature to the tilecore.Feature
// contract with static per-zoom knobs; a real pipeline would derive these
// from a map-styling schema, which is out of scope here.
type cliFeature struct {
	layer    string
	minZoom  int
	maxZoom  int
	geom     orb.Geometry
	attrs    map[string]interface{}
	sourceID int64
}

func newCLIFeature(f *geojson.Feature, layer string, minZoom, maxZoom int) (*cliFeature, bool) {
	if f.Geometry == nil {
		return nil, false
	}
	return &cliFeature{
		layer:    layer,
		minZoom:  minZoom,
		maxZoom:  maxZoom,
		geom:     tilecore.ProjectToWorld(f.Geometry),
		attrs:    map[string]interface{}(f.Properties),
		sourceID: sourceIDFor(f.ID),
	}, true
}

// sourceIDFor folds a GeoJSON feature id of any JSON-decodable type into an
// opaque int64: numeric ids pass through, anything else is hashed with
// xxhash so two features with the same string id always collide to the
// same diagnostic source id.
func sourceIDFor(id interface{}) int64 {
	switch v := id.(type) {
	case float64:
		return int64(v)
	case string:
		return int64(xxhash.Sum64String(v))
	default:
		return int64(xxhash.Sum64String(fmt.Sprint(v)))
	}
}

func (f *cliFeature) Layer() string { return f.layer }
func (f *cliFeature) SortKey() int64 { return 0 }
func (f *cliFeature) MinZoom() int { return f.minZoom }
func (f *cliFeature) MaxZoom() int { return f.maxZoom }
func (f *cliFeature) Attrs(int) map[string]interface{} { return f.attrs }
func (f *cliFeature) BufferPixels(int) float64 { return 4 }
func (f *cliFeature) PixelTolerance(int) float64 { return 1 }
func (f *cliFeature) MinPixelSize(int) float64 { return 0 }
func (f *cliFeature) HasLabelGrid() bool { return false }
func (f *cliFeature) GridPixelSize(int) float64 { return 0 }
func (f *cliFeature) GridLimit(int) int { return 0 }
func (f *cliFeature) NumPointsAttr() string { return "" }
func (f *cliFeature) Geometry() orb.Geometry { return f.geom }
func (f *cliFeature) SourceID() int64 { return f.sourceID }
