package molecule

import (
	"gonum.org/v1/gonum/mat"

	"github.com/molforge/graphchem/internal/gnn/graph"
	"github.com/molforge/graphchem/pkg/errors"
)

// NumAtomFeatures is the width of the per-atom feature vector produced by
// the featurizer:
//
//	44  element one-hot
//	11  degree one-hot (0..10)
//	 7  implicit valence one-hot (0..6)
//	 1  formal charge
//	 1  radical electrons (always 0; kept for layout compatibility)
//	 5  hybridization one-hot (sp, sp2, sp3, sp3d, sp3d2)
//	 1  aromaticity flag
//	 5  total hydrogen count one-hot (0..4)
const NumAtomFeatures = 75

// featureElements is the ordered element list for the one-hot block.  The
// final "other" position catches anything not listed.
var featureElements = []string{
	"C", "N", "O", "S", "F", "Si", "P", "Cl", "Br", "Mg", "Na", "Ca", "Fe",
	"As", "Al", "I", "B", "V", "K", "Tl", "Yb", "Sb", "Sn", "Ag", "Pd", "Co",
	"Se", "Ti", "Zn", "H", "Li", "Ge", "Cu", "Au", "Ni", "Cd", "In", "Mn",
	"Zr", "Cr", "Pt", "Hg", "Pb",
}

const (
	elementBlock     = 44 // len(featureElements) + 1 "other" slot
	degreeBlock      = 11
	valenceBlock     = 7
	hybridBlock      = 5
	totalHBlock      = 5
	maxFeaturizeAtom = 600
)

// Hybridization classes for the one-hot block.
const (
	hybridSP = iota
	hybridSP2
	hybridSP3
	hybridSP3D
	hybridSP3D2
)

// Featurizer converts parsed molecules into MolGraphs with fixed-width atom
// feature vectors.
type Featurizer struct {
	maxDegree int
}

// NewFeaturizer returns a Featurizer that rejects atoms whose degree exceeds
// maxDegree.  A non-positive maxDegree selects the platform default.
func NewFeaturizer(maxDegree int) *Featurizer {
	if maxDegree < 1 {
		maxDegree = graph.DefaultMaxDegree
	}
	return &Featurizer{maxDegree: maxDegree}
}

// Featurize parses a SMILES string and converts it into a MolGraph.
func (f *Featurizer) Featurize(smiles string) (*graph.MolGraph, error) {
	mol, err := ParseSMILES(smiles)
	if err != nil {
		return nil, err
	}
	return f.FeaturizeMolecule(mol)
}

// FeaturizeMolecule converts an already-parsed molecule into a MolGraph.
func (f *Featurizer) FeaturizeMolecule(mol *Molecule) (*graph.MolGraph, error) {
	n := mol.NumAtoms()
	if n == 0 {
		return nil, errors.New(errors.ErrCodeFeaturizationFailed, "molecule has no atoms").
			WithDetail(mol.SMILES)
	}
	if n > maxFeaturizeAtom {
		return nil, errors.Newf(errors.ErrCodeMoleculeTooLarge,
			"molecule has %d atoms, max supported is %d", n, maxFeaturizeAtom).
			WithDetail(mol.SMILES)
	}

	adj := mol.AdjacencyList()
	for i := range adj {
		if len(adj[i]) > f.maxDegree {
			return nil, errors.Newf(errors.ErrCodeDegreeOutOfRange,
				"atom %d has degree %d, max supported is %d", i, len(adj[i]), f.maxDegree).
				WithDetail(mol.SMILES)
		}
	}

	features := mat.NewDense(n, NumAtomFeatures, nil)
	for i := 0; i < n; i++ {
		features.SetRow(i, atomFeatureVector(mol, i, adj))
	}

	return &graph.MolGraph{
		SMILES:   mol.SMILES,
		Features: features,
		Adj:      adj,
	}, nil
}

// atomFeatureVector encodes atom i of mol into the fixed feature layout.
func atomFeatureVector(mol *Molecule, i int, adj [][]int) []float64 {
	a := mol.Atoms[i]
	v := make([]float64, NumAtomFeatures)
	offset := 0

	// Element one-hot with trailing "other" slot.
	elemIdx := len(featureElements)
	for ei, sym := range featureElements {
		if sym == a.Symbol {
			elemIdx = ei
			break
		}
	}
	v[offset+elemIdx] = 1
	offset += elementBlock

	// Degree one-hot, clamped at the block width.
	deg := len(adj[i])
	if deg >= degreeBlock {
		deg = degreeBlock - 1
	}
	v[offset+deg] = 1
	offset += degreeBlock

	// Implicit valence one-hot.
	iv := mol.ImplicitHCount(i)
	if iv >= valenceBlock {
		iv = valenceBlock - 1
	}
	v[offset+iv] = 1
	offset += valenceBlock

	// Formal charge and radical electrons as raw scalars.
	v[offset] = float64(a.Charge)
	offset++
	v[offset] = 0
	offset++

	// Hybridization one-hot.
	v[offset+hybridization(mol, i)] = 1
	offset += hybridBlock

	// Aromaticity flag.
	if a.Aromatic {
		v[offset] = 1
	}
	offset++

	// Total hydrogen count one-hot, clamped.
	totalH := mol.ImplicitHCount(i)
	if totalH >= totalHBlock {
		totalH = totalHBlock - 1
	}
	v[offset+totalH] = 1

	return v
}

// hybridization estimates the hybridization class of atom i from its bonds.
// Aromatic atoms are sp2; a triple bond forces sp; a double bond sp2;
// everything else defaults to sp3.
func hybridization(mol *Molecule, i int) int {
	if mol.Atoms[i].Aromatic {
		return hybridSP2
	}
	class := hybridSP3
	for _, b := range mol.Bonds {
		if b.Src != i && b.Dst != i {
			continue
		}
		switch b.Order {
		case 3:
			return hybridSP
		case 2:
			class = hybridSP2
		}
	}
	return class
}

// FeaturizeAll featurizes a slice of SMILES strings.  It returns the graphs
// for every string that featurized cleanly, the indices of the failures, and
// the first error encountered (nil when all succeed).  Benchmark datasets
// routinely contain a handful of unparseable entries; callers decide whether
// a partial result is acceptable.
func (f *Featurizer) FeaturizeAll(smiles []string) ([]*graph.MolGraph, []int, error) {
	graphs := make([]*graph.MolGraph, 0, len(smiles))
	var failed []int
	var firstErr error
	for i, s := range smiles {
		g, err := f.Featurize(s)
		if err != nil {
			failed = append(failed, i)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		graphs = append(graphs, g)
	}
	return graphs, failed, firstErr
}
