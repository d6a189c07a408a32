package tilecore

import (
	"math"

	"github.com/paulmach/orb"
)

// EncodedGeometry is the compiled geometry this package hands to its
// caller. The renderer itself never decodes it; Scale records the power-of-
// two the coordinates were multiplied by before rounding, so a downstream
// consumer can unscale sub-pixel-precision line geometry before final
// output.
type EncodedGeometry struct {
	Commands []uint32
	Scale    int
}

// GeometryEncoder mirrors the tile-container layer's encodeGeometry(geom,
// scale) operation. The renderer is injected with one rather than owning a
// wire tile format itself.
type GeometryEncoder func(geom orb.Geometry, scale int) (EncodedGeometry, error)

const (
	cmdMoveTo    = 1
	cmdLineTo    = 2
	cmdClosePath = 7
)

func encodeCommand(id, count uint32) uint32 {
	return (id & 0x7) | (count << 3)
}

func zigzag(v int32) uint32 {
	return uint32((v << 1) ^ (v >> 31))
}

// DefaultGeometryEncoder implements the Mapbox Vector Tile command/zigzag
// geometry encoding: MoveTo/LineTo/ClosePath commands over delta-encoded,
// zigzag-varint-ready integer coordinates. scale multiplies every
// coordinate by 2^scale before rounding, so callers that need sub-pixel
// precision (unfinished line geometry awaiting a merge pass) pass a
// positive scale and unscale later.
func DefaultGeometryEncoder(geom orb.Geometry, scale int) (EncodedGeometry, error) {
	mult := math.Pow(2, float64(scale))
	switch g := geom.(type) {
	case orb.Point:
		return EncodedGeometry{Commands: encodePointCommands([]orb.Point{g}, mult), Scale: scale}, nil
	case orb.MultiPoint:
		return EncodedGeometry{Commands: encodePointCommands([]orb.Point(g), mult), Scale: scale}, nil
	case orb.LineString:
		return EncodedGeometry{Commands: encodeLineCommands([]orb.LineString{g}, mult), Scale: scale}, nil
	case orb.MultiLineString:
		return EncodedGeometry{Commands: encodeLineCommands([]orb.LineString(g), mult), Scale: scale}, nil
	case orb.Polygon:
		return EncodedGeometry{Commands: encodePolygonCommands([]orb.Ring(g), mult), Scale: scale}, nil
	case orb.MultiPolygon:
		var rings []orb.Ring
		for _, p := range g {
			rings = append(rings, p...)
		}
		return EncodedGeometry{Commands: encodePolygonCommands(rings, mult), Scale: scale}, nil
	default:
		return EncodedGeometry{}, newGeometryError("unrecognized_geometry_type", "cannot encode %T", geom)
	}
}

func encodePointCommands(points []orb.Point, mult float64) []uint32 {
	cmds := make([]uint32, 0, 1+len(points)*2)
	cmds = append(cmds, encodeCommand(cmdMoveTo, uint32(len(points))))
	var px, py int32
	for _, p := range points {
		x := int32(math.Round(p[0] * mult))
		y := int32(math.Round(p[1] * mult))
		cmds = append(cmds, zigzag(x-px), zigzag(y-py))
		px, py = x, y
	}
	return cmds
}

func encodeLineCommands(lines []orb.LineString, mult float64) []uint32 {
	var cmds []uint32
	var px, py int32
	for _, line := range lines {
		if len(line) < 2 {
			continue
		}
		x0 := int32(math.Round(line[0][0] * mult))
		y0 := int32(math.Round(line[0][1] * mult))
		cmds = append(cmds, encodeCommand(cmdMoveTo, 1), zigzag(x0-px), zigzag(y0-py))
		px, py = x0, y0

		cmds = append(cmds, encodeCommand(cmdLineTo, uint32(len(line)-1)))
		for _, p := range line[1:] {
			x := int32(math.Round(p[0] * mult))
			y := int32(math.Round(p[1] * mult))
			cmds = append(cmds, zigzag(x-px), zigzag(y-py))
			px, py = x, y
		}
	}
	return cmds
}

func encodePolygonCommands(rings []orb.Ring, mult float64) []uint32 {
	var cmds []uint32
	var px, py int32
	for _, ring := range rings {
		pts := ring
		if len(pts) > 1 && pts[0] == pts[len(pts)-1] {
			pts = pts[:len(pts)-1]
		}
		if len(pts) < 3 {
			continue
		}
		x0 := int32(math.Round(pts[0][0] * mult))
		y0 := int32(math.Round(pts[0][1] * mult))
		cmds = append(cmds, encodeCommand(cmdMoveTo, 1), zigzag(x0-px), zigzag(y0-py))
		px, py = x0, y0

		cmds = append(cmds, encodeCommand(cmdLineTo, uint32(len(pts)-1)))
		for _, p := range pts[1:] {
			x := int32(math.Round(p[0] * mult))
			y := int32(math.Round(p[1] * mult))
			cmds = append(cmds, zigzag(x-px), zigzag(y-py))
			px, py = x, y
		}
		cmds = append(cmds, encodeCommand(cmdClosePath, 1))
	}
	return cmds
}

// FILL is the fixed pre-encoded polygon covering [-5,261]^2 in tile
// coordinates (a full 256px tile plus buffer), shared by reference across
// every filled tile a polygon feature produces at one zoom.
var FILL = mustEncodeFill()

func mustEncodeFill() EncodedGeometry {
	ring := orb.Ring{{-5, -5}, {261, -5}, {261, 261}, {-5, 261}, {-5, -5}}
	enc, err := DefaultGeometryEncoder(orb.Polygon{ring}, 0)
	if err != nil {
		panic(err)
	}
	return enc
}
