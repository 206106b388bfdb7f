// Package features computes eigenvalue based descriptors of the local
// neighborhood of every point in a cloud.
package features

import (
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// Feature names, in the order Names returns them.
const (
	EigenvalueSum     = "eigenvalue_sum"
	Omnivariance      = "omnivariance"
	Eigenentropy      = "eigenentropy"
	Anisotropy        = "anisotropy"
	Planarity         = "planarity"
	Linearity         = "linearity"
	PCA1              = "PCA1"
	PCA2              = "PCA2"
	SurfaceVariation  = "surface_variation"
	Sphericity        = "sphericity"
	Verticality       = "verticality"
	NormalX           = "nx"
	NormalY           = "ny"
	NormalZ           = "nz"
	NumberOfNeighbors = "number_of_neighbors"
	Eigenvalue1       = "eigenvalue1"
	Eigenvalue2       = "eigenvalue2"
	Eigenvalue3       = "eigenvalue3"
	Eigenvector1X     = "eigenvector1x"
	Eigenvector1Y     = "eigenvector1y"
	Eigenvector1Z     = "eigenvector1z"
	Eigenvector2X     = "eigenvector2x"
	Eigenvector2Y     = "eigenvector2y"
	Eigenvector2Z     = "eigenvector2z"
	Eigenvector3X     = "eigenvector3x"
	Eigenvector3Y     = "eigenvector3y"
	Eigenvector3Z     = "eigenvector3z"
)

var allNames = []string{
	EigenvalueSum,
	Omnivariance,
	Eigenentropy,
	Anisotropy,
	Planarity,
	Linearity,
	PCA1,
	PCA2,
	SurfaceVariation,
	Sphericity,
	Verticality,
	NormalX,
	NormalY,
	NormalZ,
	NumberOfNeighbors,
	Eigenvalue1,
	Eigenvalue2,
	Eigenvalue3,
	Eigenvector1X,
	Eigenvector1Y,
	Eigenvector1Z,
	Eigenvector2X,
	Eigenvector2Y,
	Eigenvector2Z,
	Eigenvector3X,
	Eigenvector3Y,
	Eigenvector3Z,
}

// Names returns every supported feature name.
func Names() []string {
	return append([]string(nil), allNames...)
}

// indexOf returns the position of name in Names.
func indexOf(name string) (int, error) {
	idx := lo.IndexOf(allNames, name)
	if idx < 0 {
		return -1, errors.Errorf("unknown feature %q", name)
	}
	return idx, nil
}
