// Package graph defines the molecular graph representations consumed by the
// graph convolution layers: MolGraph for a single molecule and BatchGraph for
// a degree-sorted batch of molecules packed into one tensor.
package graph

import (
	"gonum.org/v1/gonum/mat"

	"github.com/molforge/graphchem/pkg/errors"
)

// DefaultMaxDegree is the highest atom degree representable in a batch.
// Atoms with more neighbors are rejected at featurization time.
const DefaultMaxDegree = 10

// MolGraph is the graph of a single molecule: one feature row per heavy atom
// plus an adjacency list.
type MolGraph struct {
	SMILES string

	// Features is numAtoms × numFeatures.
	Features *mat.Dense

	// Adj holds, for each atom, the indices of its bonded neighbors within
	// this molecule.
	Adj [][]int
}

// NumAtoms returns the number of atoms in the molecule graph.
func (g *MolGraph) NumAtoms() int {
	if g.Features == nil {
		return 0
	}
	r, _ := g.Features.Dims()
	return r
}

// NumFeatures returns the per-atom feature width.
func (g *MolGraph) NumFeatures() int {
	if g.Features == nil {
		return 0
	}
	_, c := g.Features.Dims()
	return c
}

// Degree returns the degree of atom i.
func (g *MolGraph) Degree(i int) int { return len(g.Adj[i]) }

// MaxDegree returns the highest atom degree in the molecule, or 0 for a
// single-atom molecule.
func (g *MolGraph) MaxDegree() int {
	max := 0
	for _, nbrs := range g.Adj {
		if len(nbrs) > max {
			max = len(nbrs)
		}
	}
	return max
}

// ─────────────────────────────────────────────────────────────────────────────
// BatchGraph
// ─────────────────────────────────────────────────────────────────────────────

// Slice is a half-open [Start, Start+Size) range of rows in a batch tensor.
type Slice struct {
	Start int
	Size  int
}

// BatchGraph packs several molecule graphs into one fixed-layout tensor so
// that the convolution layers can process a whole minibatch with a handful of
// dense matrix operations.
//
// Atoms from all molecules are concatenated and sorted by degree: all
// degree-0 atoms first, then degree-1, and so on up to MaxDegree.  Within a
// degree block, atoms keep molecule order, and within a molecule, original
// atom order.  Three structures describe the layout:
//
//   - Membership maps every batch atom row to the index of its molecule.
//   - DegreeSlice[d] gives the row range occupied by degree-d atoms.
//   - DegreeAdj[d] is a (DegreeSlice[d].Size × d) table whose row i lists the
//     batch-global indices of the d neighbors of the i-th degree-d atom.
//
// DegreeAdj[0] is always empty: degree-0 atoms have no neighbor rows.
type BatchGraph struct {
	// Atoms is totalAtoms × numFeatures, rows in degree-sorted order.
	Atoms *mat.Dense

	// Membership[i] is the molecule index of batch atom row i.
	Membership []int

	// DegreeSlice has MaxDegree+1 entries, one per degree 0..MaxDegree.
	DegreeSlice []Slice

	// DegreeAdj has MaxDegree+1 entries; entry d is the neighbor table for
	// degree-d atoms (nil or empty for d=0 and for unpopulated degrees).
	DegreeAdj [][][]int

	// NumMolecules is the number of molecules packed into the batch.
	NumMolecules int

	// MaxDegree is the highest representable degree (table capacity, not the
	// highest degree actually present).
	MaxDegree int
}

// NumAtoms returns the total number of atom rows in the batch.
func (b *BatchGraph) NumAtoms() int {
	if b.Atoms == nil {
		return 0
	}
	r, _ := b.Atoms.Dims()
	return r
}

// NumFeatures returns the per-atom feature width.
func (b *BatchGraph) NumFeatures() int {
	if b.Atoms == nil {
		return 0
	}
	_, c := b.Atoms.Dims()
	return c
}

// MoleculeSizes returns the atom count of each molecule in the batch.
func (b *BatchGraph) MoleculeSizes() []int {
	sizes := make([]int, b.NumMolecules)
	for _, m := range b.Membership {
		sizes[m]++
	}
	return sizes
}

// NewBatchGraph assembles a batch tensor from individual molecule graphs.
// All graphs must share the same feature width, and no atom may exceed
// maxDegree neighbors.
func NewBatchGraph(mols []*MolGraph, maxDegree int) (*BatchGraph, error) {
	if len(mols) == 0 {
		return nil, errors.New(errors.ErrCodeBadRequest, "cannot batch zero molecules")
	}
	if maxDegree < 1 {
		maxDegree = DefaultMaxDegree
	}

	numFeatures := mols[0].NumFeatures()
	totalAtoms := 0
	for mi, g := range mols {
		if g.NumFeatures() != numFeatures {
			return nil, errors.Newf(errors.ErrCodeShapeMismatch,
				"molecule %d has feature width %d, batch expects %d", mi, g.NumFeatures(), numFeatures)
		}
		if d := g.MaxDegree(); d > maxDegree {
			return nil, errors.Newf(errors.ErrCodeDegreeOutOfRange,
				"molecule %d contains an atom of degree %d, max supported is %d", mi, d, maxDegree)
		}
		totalAtoms += g.NumAtoms()
	}
	if totalAtoms == 0 {
		return nil, errors.New(errors.ErrCodeBadRequest, "batch contains no atoms")
	}

	b := &BatchGraph{
		Atoms:        mat.NewDense(totalAtoms, numFeatures, nil),
		Membership:   make([]int, totalAtoms),
		DegreeSlice:  make([]Slice, maxDegree+1),
		DegreeAdj:    make([][][]int, maxDegree+1),
		NumMolecules: len(mols),
		MaxDegree:    maxDegree,
	}

	// First pass: assign every (molecule, atom) pair its batch row.  Rows are
	// grouped by degree, then by molecule order, then by atom order.
	batchIndex := make([][]int, len(mols))
	for mi, g := range mols {
		batchIndex[mi] = make([]int, g.NumAtoms())
	}

	row := 0
	for d := 0; d <= maxDegree; d++ {
		start := row
		for mi, g := range mols {
			for ai := 0; ai < g.NumAtoms(); ai++ {
				if g.Degree(ai) != d {
					continue
				}
				batchIndex[mi][ai] = row
				row++
			}
		}
		b.DegreeSlice[d] = Slice{Start: start, Size: row - start}
	}

	// Second pass: fill features, membership, and the per-degree neighbor
	// tables using the now-complete row assignment.
	for d := 1; d <= maxDegree; d++ {
		if b.DegreeSlice[d].Size > 0 {
			b.DegreeAdj[d] = make([][]int, 0, b.DegreeSlice[d].Size)
		}
	}
	for mi, g := range mols {
		for ai := 0; ai < g.NumAtoms(); ai++ {
			r := batchIndex[mi][ai]
			b.Atoms.SetRow(r, g.Features.RawRowView(ai))
			b.Membership[r] = mi
		}
	}
	for d := 1; d <= maxDegree; d++ {
		sl := b.DegreeSlice[d]
		for r := sl.Start; r < sl.Start+sl.Size; r++ {
			mi := b.Membership[r]
			ai := molAtomIndex(batchIndex[mi], r)
			nbrs := make([]int, 0, d)
			for _, n := range mols[mi].Adj[ai] {
				nbrs = append(nbrs, batchIndex[mi][n])
			}
			b.DegreeAdj[d] = append(b.DegreeAdj[d], nbrs)
		}
	}

	return b, nil
}

// molAtomIndex finds the molecule-local atom index whose batch row is r.
func molAtomIndex(rows []int, r int) int {
	for ai, br := range rows {
		if br == r {
			return ai
		}
	}
	return -1
}

// Validate checks the structural invariants of the batch layout:
//
//  1. Every atom belongs to exactly one molecule, and molecule indices are
//     within range.
//  2. Every neighbor index in every degree table points at a valid atom row.
//  3. The degree slices partition the atom rows without gaps or overlaps,
//     and each degree-d table has exactly Size rows of exactly d columns.
func (b *BatchGraph) Validate() error {
	n := b.NumAtoms()

	if len(b.Membership) != n {
		return errors.Newf(errors.ErrCodeGraphInvariantBroken,
			"membership has %d entries for %d atom rows", len(b.Membership), n)
	}
	for i, m := range b.Membership {
		if m < 0 || m >= b.NumMolecules {
			return errors.Newf(errors.ErrCodeGraphInvariantBroken,
				"atom row %d maps to molecule %d, batch has %d molecules", i, m, b.NumMolecules)
		}
	}

	if len(b.DegreeSlice) != b.MaxDegree+1 {
		return errors.Newf(errors.ErrCodeGraphInvariantBroken,
			"degree slice table has %d entries, want %d", len(b.DegreeSlice), b.MaxDegree+1)
	}
	expectedStart := 0
	for d, sl := range b.DegreeSlice {
		if sl.Start != expectedStart {
			return errors.Newf(errors.ErrCodeGraphInvariantBroken,
				"degree %d slice starts at %d, want %d (gap or overlap)", d, sl.Start, expectedStart)
		}
		if sl.Size < 0 {
			return errors.Newf(errors.ErrCodeGraphInvariantBroken,
				"degree %d slice has negative size %d", d, sl.Size)
		}
		expectedStart += sl.Size
	}
	if expectedStart != n {
		return errors.Newf(errors.ErrCodeGraphInvariantBroken,
			"degree slices cover %d rows, batch has %d", expectedStart, n)
	}

	if len(b.DegreeAdj) != b.MaxDegree+1 {
		return errors.Newf(errors.ErrCodeGraphInvariantBroken,
			"degree adjacency table has %d entries, want %d", len(b.DegreeAdj), b.MaxDegree+1)
	}
	if len(b.DegreeAdj) > 0 && len(b.DegreeAdj[0]) != 0 {
		return errors.New(errors.ErrCodeGraphInvariantBroken,
			"degree-0 adjacency table must be empty")
	}
	for d := 1; d <= b.MaxDegree; d++ {
		sl := b.DegreeSlice[d]
		if len(b.DegreeAdj[d]) != sl.Size {
			return errors.Newf(errors.ErrCodeGraphInvariantBroken,
				"degree %d adjacency has %d rows, slice size is %d", d, len(b.DegreeAdj[d]), sl.Size)
		}
		for ri, nbrs := range b.DegreeAdj[d] {
			if len(nbrs) != d {
				return errors.Newf(errors.ErrCodeGraphInvariantBroken,
					"degree %d adjacency row %d has %d neighbors, want %d", d, ri, len(nbrs), d)
			}
			for _, idx := range nbrs {
				if idx < 0 || idx >= n {
					return errors.Newf(errors.ErrCodeGraphInvariantBroken,
						"degree %d adjacency row %d references atom %d, batch has %d", d, ri, idx, n)
				}
			}
		}
	}

	return nil
}

// NeighborList reconstructs a flat per-atom adjacency list (batch-global
// indices) from the degree tables.  Used by the pooling layer.
func (b *BatchGraph) NeighborList() [][]int {
	adj := make([][]int, b.NumAtoms())
	for d := 1; d <= b.MaxDegree; d++ {
		sl := b.DegreeSlice[d]
		for ri, nbrs := range b.DegreeAdj[d] {
			adj[sl.Start+ri] = nbrs
		}
	}
	return adj
}
