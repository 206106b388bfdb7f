package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/lucasb-eyer/go-colorful"
)

// NewVector convenience method for creating a vector.
func NewVector(x, y, z float64) r3.Vector {
	return r3.Vector{X: x, Y: y, Z: z}
}

// Color holds the red, green and blue channels of a point on a 0-255 scale.
// Channels are kept as floats so photometric noise can be accumulated before
// the cloud is finalized.
type Color struct {
	R, G, B float64
}

// NewColor returns a Color from 8 bit channels.
func NewColor(r, g, b uint8) Color {
	return Color{R: float64(r), G: float64(g), B: float64(b)}
}

// Clamped returns the color with every channel limited to [0, 255].
func (c Color) Clamped() Color {
	return Color{R: clampChannel(c.R), G: clampChannel(c.G), B: clampChannel(c.B)}
}

// Truncated returns the color clamped to [0, 255] with every channel truncated toward zero.
func (c Color) Truncated() Color {
	c = c.Clamped()
	return Color{R: math.Trunc(c.R), G: math.Trunc(c.G), B: math.Trunc(c.B)}
}

// RGB255 returns the truncated 8 bit channels of the color.
func (c Color) RGB255() (uint8, uint8, uint8) {
	t := c.Truncated()
	return uint8(t.R), uint8(t.G), uint8(t.B)
}

// Normalized returns the color with every channel scaled to [0, 1].
func (c Color) Normalized() colorful.Color {
	t := c.Truncated()
	return colorful.Color{R: t.R / 255, G: t.G / 255, B: t.B / 255}
}

func clampChannel(v float64) float64 {
	return math.Max(0, math.Min(255, v))
}

// Point is a single row of a PointCloud: a position and a color.
type Point struct {
	Position r3.Vector
	Color    Color
}

// NewPoint returns a point from its six columns.
func NewPoint(x, y, z, r, g, b float64) Point {
	return Point{Position: NewVector(x, y, z), Color: Color{R: r, G: g, B: b}}
}

// RGB255 returns the truncated 8 bit color channels of the point.
func (p Point) RGB255() (uint8, uint8, uint8) {
	return p.Color.RGB255()
}

// Row returns the point as its six columns x, y, z, r, g, b.
func (p Point) Row() [6]float64 {
	return [6]float64{p.Position.X, p.Position.Y, p.Position.Z, p.Color.R, p.Color.G, p.Color.B}
}
