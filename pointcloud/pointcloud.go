// Package pointcloud defines an ordered, colored point cloud and the file formats
// it is read from and written to.
//
// Unlike a spatially indexed cloud, points keep the order they were loaded in and
// duplicates are never collapsed: the cloud is a table of rows (points) and six
// columns (x, y, z, r, g, b), optionally extended with named per-point values.
package pointcloud

import (
	"math"

	"github.com/pkg/errors"
)

// MetaData is data about what's stored in the point cloud.
type MetaData struct {
	HasColor bool
	HasValue bool

	MinX, MaxX float64
	MinY, MaxY float64
	MinZ, MaxZ float64
}

// NewMetaData returns MetaData whose bounds are ready to be merged into.
func NewMetaData() MetaData {
	return MetaData{
		MinX: math.MaxFloat64,
		MinY: math.MaxFloat64,
		MinZ: math.MaxFloat64,
		MaxX: -math.MaxFloat64,
		MaxY: -math.MaxFloat64,
		MaxZ: -math.MaxFloat64,
	}
}

// Merge updates the bounds to include the given point.
func (meta *MetaData) Merge(p Point) {
	meta.HasColor = true
	v := p.Position

	if v.X > meta.MaxX {
		meta.MaxX = v.X
	}
	if v.Y > meta.MaxY {
		meta.MaxY = v.Y
	}
	if v.Z > meta.MaxZ {
		meta.MaxZ = v.Z
	}

	if v.X < meta.MinX {
		meta.MinX = v.X
	}
	if v.Y < meta.MinY {
		meta.MinY = v.Y
	}
	if v.Z < meta.MinZ {
		meta.MinZ = v.Z
	}
}

// PointCloud is an ordered table of colored points. It is not safe for
// concurrent use; a cloud is expected to have exactly one owner at a time.
type PointCloud struct {
	points []Point

	valueNames []string
	values     map[string][]float64
}

// New returns an empty PointCloud.
func New() *PointCloud {
	return NewWithPrealloc(0)
}

// NewWithPrealloc returns an empty, preallocated PointCloud.
func NewWithPrealloc(size int) *PointCloud {
	return &PointCloud{
		points: make([]Point, 0, size),
		values: map[string][]float64{},
	}
}

// NewFromPoints returns a PointCloud holding the given points in order.
func NewFromPoints(points ...Point) *PointCloud {
	pc := NewWithPrealloc(len(points))
	pc.points = append(pc.points, points...)
	return pc
}

// Size returns the number of points in the cloud.
func (cloud *PointCloud) Size() int {
	return len(cloud.points)
}

// Append adds a point at the end of the cloud.
func (cloud *PointCloud) Append(p Point) {
	cloud.points = append(cloud.points, p)
}

// At returns the i'th point.
func (cloud *PointCloud) At(i int) Point {
	return cloud.points[i]
}

// Points returns the backing rows of the cloud. Mutating an element mutates the cloud.
func (cloud *PointCloud) Points() []Point {
	return cloud.points
}

// Iterate calls fn for every point in order. If fn returns false, iteration stops.
func (cloud *PointCloud) Iterate(fn func(i int, p Point) bool) {
	for i, p := range cloud.points {
		if !fn(i, p) {
			return
		}
	}
}

// MetaData computes the current meta data of the cloud.
func (cloud *PointCloud) MetaData() MetaData {
	meta := NewMetaData()
	for _, p := range cloud.points {
		meta.Merge(p)
	}
	meta.HasValue = len(cloud.valueNames) > 0
	return meta
}

// Finalize coerces every color channel to an integer in [0, 255], truncating toward zero.
func (cloud *PointCloud) Finalize() {
	for i := range cloud.points {
		cloud.points[i].Color = cloud.points[i].Color.Truncated()
	}
}

// SetValues attaches a named per-point value column. The column must have one
// entry per point. Setting an existing name replaces its column.
func (cloud *PointCloud) SetValues(name string, vals []float64) error {
	if name == "" {
		return errors.New("value name must not be empty")
	}
	if len(vals) != len(cloud.points) {
		return errors.Errorf("value %q has %d entries but cloud has %d points", name, len(vals), len(cloud.points))
	}
	if _, ok := cloud.values[name]; !ok {
		cloud.valueNames = append(cloud.valueNames, name)
	}
	cloud.values[name] = vals
	return nil
}

// Values returns the named per-point value column, if present.
func (cloud *PointCloud) Values(name string) ([]float64, bool) {
	vals, ok := cloud.values[name]
	return vals, ok
}

// ValueNames returns the names of the attached value columns in the order they were set.
func (cloud *PointCloud) ValueNames() []string {
	return append([]string(nil), cloud.valueNames...)
}
