package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/molforge/graphchem/pkg/errors"
)

// chainGraph builds a linear molecule of n atoms where atom i has feature
// vector [base+i, base+i].
func chainGraph(n int, base float64) *MolGraph {
	features := mat.NewDense(n, 2, nil)
	adj := make([][]int, n)
	for i := 0; i < n; i++ {
		features.Set(i, 0, base+float64(i))
		features.Set(i, 1, base+float64(i))
		if i > 0 {
			adj[i] = append(adj[i], i-1)
		}
		if i < n-1 {
			adj[i] = append(adj[i], i+1)
		}
	}
	return &MolGraph{Features: features, Adj: adj}
}

func singleAtomGraph(val float64) *MolGraph {
	return &MolGraph{
		Features: mat.NewDense(1, 2, []float64{val, val}),
		Adj:      [][]int{nil},
	}
}

func TestNewBatchGraph_DegreeSorting(t *testing.T) {
	// Molecule 0: 3-atom chain (degrees 1, 2, 1).
	// Molecule 1: single atom (degree 0).
	b, err := NewBatchGraph([]*MolGraph{chainGraph(3, 1), singleAtomGraph(9)}, 3)
	require.NoError(t, err)
	require.NoError(t, b.Validate())

	assert.Equal(t, 4, b.NumAtoms())
	assert.Equal(t, 2, b.NumMolecules)

	// Row order: degree-0 atom first, then the two degree-1 chain ends, then
	// the degree-2 middle atom.
	assert.Equal(t, 9.0, b.Atoms.At(0, 0))
	assert.Equal(t, 1.0, b.Atoms.At(1, 0))
	assert.Equal(t, 3.0, b.Atoms.At(2, 0))
	assert.Equal(t, 2.0, b.Atoms.At(3, 0))

	assert.Equal(t, []int{1, 0, 0, 0}, b.Membership)

	assert.Equal(t, Slice{Start: 0, Size: 1}, b.DegreeSlice[0])
	assert.Equal(t, Slice{Start: 1, Size: 2}, b.DegreeSlice[1])
	assert.Equal(t, Slice{Start: 3, Size: 1}, b.DegreeSlice[2])
	assert.Equal(t, Slice{Start: 4, Size: 0}, b.DegreeSlice[3])
}

func TestNewBatchGraph_DegreeAdjacency(t *testing.T) {
	b, err := NewBatchGraph([]*MolGraph{chainGraph(3, 1), singleAtomGraph(9)}, 3)
	require.NoError(t, err)

	// Both chain ends neighbor the middle atom, which sits at row 3.
	require.Len(t, b.DegreeAdj[1], 2)
	assert.Equal(t, []int{3}, b.DegreeAdj[1][0])
	assert.Equal(t, []int{3}, b.DegreeAdj[1][1])

	// The middle atom neighbors both chain ends (rows 1 and 2).
	require.Len(t, b.DegreeAdj[2], 1)
	assert.ElementsMatch(t, []int{1, 2}, b.DegreeAdj[2][0])

	assert.Empty(t, b.DegreeAdj[0])
}

func TestNewBatchGraph_MultiMolecule(t *testing.T) {
	b, err := NewBatchGraph([]*MolGraph{chainGraph(4, 10), chainGraph(2, 20)}, DefaultMaxDegree)
	require.NoError(t, err)
	require.NoError(t, b.Validate())

	assert.Equal(t, 6, b.NumAtoms())
	assert.Equal(t, []int{4, 2}, b.MoleculeSizes())

	// All neighbor indices must point back to rows of the same molecule.
	adj := b.NeighborList()
	for i, nbrs := range adj {
		for _, n := range nbrs {
			assert.Equal(t, b.Membership[i], b.Membership[n],
				"atom %d and neighbor %d in different molecules", i, n)
		}
	}
}

func TestNewBatchGraph_Errors(t *testing.T) {
	_, err := NewBatchGraph(nil, 3)
	assert.Error(t, err)

	// Mismatched feature widths.
	wide := &MolGraph{Features: mat.NewDense(1, 5, nil), Adj: [][]int{nil}}
	_, err = NewBatchGraph([]*MolGraph{chainGraph(2, 0), wide}, 3)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeShapeMismatch, errors.GetCode(err))

	// Degree exceeds the batch capacity.
	_, err = NewBatchGraph([]*MolGraph{chainGraph(3, 0)}, 1)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDegreeOutOfRange, errors.GetCode(err))
}

func TestValidate_DetectsCorruption(t *testing.T) {
	fresh := func() *BatchGraph {
		b, err := NewBatchGraph([]*MolGraph{chainGraph(3, 1), singleAtomGraph(9)}, 3)
		require.NoError(t, err)
		return b
	}

	b := fresh()
	b.Membership[0] = 99
	assert.Error(t, b.Validate())

	b = fresh()
	b.DegreeSlice[1].Start++
	assert.Error(t, b.Validate())

	b = fresh()
	b.DegreeSlice[2].Size++
	assert.Error(t, b.Validate())

	b = fresh()
	b.DegreeAdj[1][0] = []int{100}
	assert.Error(t, b.Validate())

	b = fresh()
	b.DegreeAdj[2][0] = []int{1}
	assert.Error(t, b.Validate())

	b = fresh()
	b.Membership = b.Membership[:2]
	assert.Error(t, b.Validate())
}

func TestNeighborList_RoundTrip(t *testing.T) {
	mols := []*MolGraph{chainGraph(5, 0), chainGraph(3, 10), singleAtomGraph(42)}
	b, err := NewBatchGraph(mols, DefaultMaxDegree)
	require.NoError(t, err)

	adj := b.NeighborList()
	require.Len(t, adj, b.NumAtoms())

	// Degree of each row must match the slice block it lives in.
	for d := 0; d <= b.MaxDegree; d++ {
		sl := b.DegreeSlice[d]
		for r := sl.Start; r < sl.Start+sl.Size; r++ {
			assert.Len(t, adj[r], d, "row %d", r)
		}
	}

	// Adjacency is symmetric.
	for i, nbrs := range adj {
		for _, n := range nbrs {
			assert.Contains(t, adj[n], i)
		}
	}
}
