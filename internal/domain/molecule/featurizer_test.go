package molecule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/molforge/graphchem/pkg/errors"
)

const (
	degreeOffset   = elementBlock
	valenceOffset  = degreeOffset + degreeBlock
	chargeOffset   = valenceOffset + valenceBlock
	hybridOffset   = chargeOffset + 2
	aromaticOffset = hybridOffset + hybridBlock
	totalHOffset   = aromaticOffset + 1
)

func TestFeaturize_Shape(t *testing.T) {
	f := NewFeaturizer(0)

	g, err := f.Featurize("CCO")
	require.NoError(t, err)

	assert.Equal(t, 3, g.NumAtoms())
	assert.Equal(t, NumAtomFeatures, g.NumFeatures())
	assert.Equal(t, "CCO", g.SMILES)
	require.Len(t, g.Adj, 3)
	assert.Equal(t, []int{0, 2}, g.Adj[1])
}

func TestFeaturize_ElementOneHot(t *testing.T) {
	f := NewFeaturizer(0)

	g, err := f.Featurize("CN")
	require.NoError(t, err)

	// "C" is position 0 and "N" position 1 in the element list.
	assert.Equal(t, 1.0, g.Features.At(0, 0))
	assert.Equal(t, 0.0, g.Features.At(0, 1))
	assert.Equal(t, 1.0, g.Features.At(1, 1))

	// Every listed element hits its own slot, never the "other" slot.
	for ei, sym := range featureElements {
		g, err := f.Featurize("[" + sym + "]")
		require.NoError(t, err, sym)
		assert.Equal(t, 1.0, g.Features.At(0, ei), sym)
		assert.Equal(t, 0.0, g.Features.At(0, len(featureElements)), sym)
	}
}

func TestFeaturize_DegreeOneHot(t *testing.T) {
	f := NewFeaturizer(0)

	g, err := f.Featurize("CC(C)C")
	require.NoError(t, err)

	// Central carbon has degree 3, terminal carbons degree 1.
	assert.Equal(t, 1.0, g.Features.At(1, degreeOffset+3))
	assert.Equal(t, 1.0, g.Features.At(0, degreeOffset+1))
	assert.Equal(t, 0.0, g.Features.At(0, degreeOffset+3))
}

func TestFeaturize_AromaticFlag(t *testing.T) {
	f := NewFeaturizer(0)

	g, err := f.Featurize("c1ccccc1")
	require.NoError(t, err)
	for i := 0; i < g.NumAtoms(); i++ {
		assert.Equal(t, 1.0, g.Features.At(i, aromaticOffset), "atom %d", i)
		// Aromatic carbons are sp2.
		assert.Equal(t, 1.0, g.Features.At(i, hybridOffset+hybridSP2), "atom %d", i)
	}

	g, err = f.Featurize("CC")
	require.NoError(t, err)
	assert.Equal(t, 0.0, g.Features.At(0, aromaticOffset))
	assert.Equal(t, 1.0, g.Features.At(0, hybridOffset+hybridSP3))
}

func TestFeaturize_Hybridization(t *testing.T) {
	f := NewFeaturizer(0)

	g, err := f.Featurize("C#N")
	require.NoError(t, err)
	assert.Equal(t, 1.0, g.Features.At(0, hybridOffset+hybridSP))

	g, err = f.Featurize("C=C")
	require.NoError(t, err)
	assert.Equal(t, 1.0, g.Features.At(0, hybridOffset+hybridSP2))
}

func TestFeaturize_Charge(t *testing.T) {
	f := NewFeaturizer(0)

	g, err := f.Featurize("[NH4+]")
	require.NoError(t, err)
	assert.Equal(t, 1.0, g.Features.At(0, chargeOffset))

	g, err = f.Featurize("[O-]C")
	require.NoError(t, err)
	assert.Equal(t, -1.0, g.Features.At(0, chargeOffset))
}

func TestFeaturize_HydrogenCount(t *testing.T) {
	f := NewFeaturizer(0)

	g, err := f.Featurize("CCO")
	require.NoError(t, err)

	// CH3, CH2, OH.
	assert.Equal(t, 1.0, g.Features.At(0, totalHOffset+3))
	assert.Equal(t, 1.0, g.Features.At(1, totalHOffset+2))
	assert.Equal(t, 1.0, g.Features.At(2, totalHOffset+1))
}

func TestFeaturize_DegreeLimit(t *testing.T) {
	f := NewFeaturizer(1)

	_, err := f.Featurize("CCO")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDegreeOutOfRange, errors.GetCode(err))
}

func TestFeaturize_InvalidSMILES(t *testing.T) {
	f := NewFeaturizer(0)

	_, err := f.Featurize("C1CC")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeSMILESParseFailed, errors.GetCode(err))
}

func TestFeaturizeAll_PartialFailure(t *testing.T) {
	f := NewFeaturizer(0)

	graphs, failed, err := f.FeaturizeAll([]string{"CCO", "not_valid_(", "c1ccccc1"})
	assert.Error(t, err)
	assert.Equal(t, []int{1}, failed)
	require.Len(t, graphs, 2)
	assert.Equal(t, 3, graphs[0].NumAtoms())
	assert.Equal(t, 6, graphs[1].NumAtoms())
}
