package features

import (
	"image/color"
	"math"
	"path/filepath"
	"strings"

	"github.com/fogleman/gg"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/pcdaug/pointcloud"
)

const (
	visualizationMargin = 10
	jpegQuality         = 95
)

var (
	backgroundColor = color.White
	missingColor    = colorful.Color{R: 0.5, G: 0.5, B: 0.5}
)

// ColorMap maps t in [0, 1] from blue through green to red.
func ColorMap(t float64) colorful.Color {
	t = math.Max(0, math.Min(1, t))
	return colorful.Hsv(240*(1-t), 1, 1)
}

// Normalize rescales values to [0, 1] using the minimum and maximum of the
// finite values. NaN stays NaN. All equal values map to 0.
func Normalize(values []float64) []float64 {
	finite := lo.Filter(values, func(v float64, _ int) bool {
		return !math.IsNaN(v) && !math.IsInf(v, 0)
	})
	out := make([]float64, len(values))
	low, errLow := stats.Min(finite)
	high, errHigh := stats.Max(finite)
	for i, v := range values {
		switch {
		case math.IsNaN(v) || errLow != nil || errHigh != nil:
			out[i] = math.NaN()
		case high == low:
			out[i] = 0
		default:
			out[i] = math.Max(0, math.Min(1, (v-low)/(high-low)))
		}
	}
	return out
}

// Render draws the cloud seen from above onto a size by size image, each point
// colored by its normalized value.
func Render(cloud *pointcloud.PointCloud, values []float64, size int) (*gg.Context, error) {
	if len(values) != cloud.Size() {
		return nil, errors.Errorf("got %d values for %d points", len(values), cloud.Size())
	}
	if size <= 2*visualizationMargin {
		return nil, errors.Errorf("image size %d is too small", size)
	}
	dc := gg.NewContext(size, size)
	dc.SetColor(backgroundColor)
	dc.Clear()
	if cloud.Size() == 0 {
		return dc, nil
	}

	meta := cloud.MetaData()
	span := math.Max(meta.MaxX-meta.MinX, meta.MaxY-meta.MinY)
	if span == 0 {
		span = 1
	}
	scale := float64(size-2*visualizationMargin-1) / span
	norm := Normalize(values)
	cloud.Iterate(func(i int, p pointcloud.Point) bool {
		if math.IsNaN(norm[i]) {
			dc.SetColor(missingColor)
		} else {
			dc.SetColor(ColorMap(norm[i]))
		}
		px := visualizationMargin + (p.Position.X-meta.MinX)*scale
		// image rows grow downwards
		py := float64(size-visualizationMargin-1) - (p.Position.Y-meta.MinY)*scale
		dc.SetPixel(int(math.Round(px)), int(math.Round(py)))
		return true
	})
	return dc, nil
}

// Visualize renders the cloud colored by values and saves it as JPEG or PNG
// depending on the extension of fn.
func Visualize(cloud *pointcloud.PointCloud, values []float64, fn string, size int) error {
	dc, err := Render(cloud, values, size)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(fn)) {
	case ".jpg", ".jpeg":
		return gg.SaveJPG(fn, dc.Image(), jpegQuality)
	case ".png":
		return dc.SavePNG(fn)
	default:
		return errors.Errorf("do not know how to save image %q", fn)
	}
}
