package features

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/kdtree"

	"go.viam.com/pcdaug/pointcloud"
)

// minNeighbors is the smallest neighborhood with a meaningful covariance.
const minNeighbors = 3

// Compute returns, for each requested feature name, one value per point of the
// cloud. The neighborhood of a point is every point, itself included, within
// radius of it. Points with too few neighbors get NaN for every feature except
// number_of_neighbors.
func Compute(cloud *pointcloud.PointCloud, radius float64, names []string) ([][]float64, error) {
	if radius <= 0 || math.IsNaN(radius) {
		return nil, errors.Errorf("radius must be positive, got %v", radius)
	}
	indexes := make([]int, len(names))
	for j, name := range names {
		idx, err := indexOf(name)
		if err != nil {
			return nil, err
		}
		indexes[j] = idx
	}

	out := make([][]float64, len(names))
	for j := range out {
		out[j] = make([]float64, cloud.Size())
	}
	if cloud.Size() == 0 {
		return out, nil
	}

	pts := make(kdtree.Points, 0, cloud.Size())
	for _, p := range cloud.Points() {
		pts = append(pts, kdtree.Point{p.Position.X, p.Position.Y, p.Position.Z})
	}
	// kdtree.New reorders what it is given
	tree := kdtree.New(append(kdtree.Points(nil), pts...), false)

	all := make([]float64, len(allNames))
	for i, q := range pts {
		neighbors := radiusSearch(tree, q, radius)
		pointFeatures(neighbors, all)
		for j, idx := range indexes {
			out[j][i] = all[idx]
		}
	}
	return out, nil
}

// radiusSearch returns every point of the tree within radius of q.
func radiusSearch(tree *kdtree.Tree, q kdtree.Point, radius float64) []kdtree.Point {
	// distances of kdtree.Point are squared
	keeper := kdtree.NewDistKeeper(radius * radius)
	tree.NearestSet(keeper, q)
	neighbors := make([]kdtree.Point, 0, keeper.Len())
	for _, c := range keeper.Heap {
		if c.Comparable == nil {
			continue
		}
		neighbors = append(neighbors, c.Comparable.(kdtree.Point))
	}
	return neighbors
}

// pointFeatures fills dst, indexed like Names, with the features of one neighborhood.
func pointFeatures(neighbors []kdtree.Point, dst []float64) {
	for i := range dst {
		dst[i] = math.NaN()
	}
	dst[lookup[NumberOfNeighbors]] = float64(len(neighbors))
	if len(neighbors) < minNeighbors {
		return
	}

	var mean [3]float64
	for _, n := range neighbors {
		for k := range mean {
			mean[k] += n[k]
		}
	}
	for k := range mean {
		mean[k] /= float64(len(neighbors))
	}
	cov := mat.NewSymDense(3, nil)
	for r := 0; r < 3; r++ {
		for c := r; c < 3; c++ {
			var sum float64
			for _, n := range neighbors {
				sum += (n[r] - mean[r]) * (n[c] - mean[c])
			}
			cov.SetSym(r, c, sum/float64(len(neighbors)))
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(cov, true); !ok {
		return
	}
	// ascending
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	l1, l2, l3 := math.Max(values[2], 0), math.Max(values[1], 0), math.Max(values[0], 0)
	sum := l1 + l2 + l3
	if sum == 0 {
		return
	}
	e1, e2, e3 := l1/sum, l2/sum, l3/sum

	dst[lookup[EigenvalueSum]] = sum
	dst[lookup[Omnivariance]] = math.Cbrt(e1 * e2 * e3)
	entropy := 0.
	for _, e := range []float64{e1, e2, e3} {
		if e > 0 {
			entropy -= e * math.Log(e)
		}
	}
	dst[lookup[Eigenentropy]] = entropy
	dst[lookup[Anisotropy]] = (e1 - e3) / e1
	dst[lookup[Planarity]] = (e2 - e3) / e1
	dst[lookup[Linearity]] = (e1 - e2) / e1
	dst[lookup[PCA1]] = e1
	dst[lookup[PCA2]] = e2
	dst[lookup[SurfaceVariation]] = e3
	dst[lookup[Sphericity]] = e3 / e1

	// the eigenvector of the smallest eigenvalue is the normal
	nx, ny, nz := vectors.At(0, 0), vectors.At(1, 0), vectors.At(2, 0)
	dst[lookup[Verticality]] = 1 - math.Abs(nz)
	dst[lookup[NormalX]] = nx
	dst[lookup[NormalY]] = ny
	dst[lookup[NormalZ]] = nz

	dst[lookup[Eigenvalue1]] = l1
	dst[lookup[Eigenvalue2]] = l2
	dst[lookup[Eigenvalue3]] = l3
	for k, col := range []int{2, 1, 0} {
		base := lookup[Eigenvector1X] + 3*k
		for axis := 0; axis < 3; axis++ {
			dst[base+axis] = vectors.At(axis, col)
		}
	}
}

var lookup = func() map[string]int {
	m := make(map[string]int, len(allNames))
	for i, name := range allNames {
		m[name] = i
	}
	return m
}()

// Attach stores each feature column on the cloud as a per-point value.
func Attach(cloud *pointcloud.PointCloud, names []string, values [][]float64) error {
	if len(names) != len(values) {
		return errors.Errorf("got %d feature names but %d columns", len(names), len(values))
	}
	for j, name := range names {
		if err := cloud.SetValues(name, values[j]); err != nil {
			return errors.Wrapf(err, "error attaching feature %q", name)
		}
	}
	return nil
}
