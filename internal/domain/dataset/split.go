package dataset

import (
	"math"
	"math/rand"

	"github.com/molforge/graphchem/pkg/errors"
)

// Split holds the three partitions of a random dataset split.
type Split struct {
	Train *Dataset
	Valid *Dataset
	Test  *Dataset
}

// RandomSplit shuffles the dataset rows with the given seed and partitions
// them by the three fractions, which must sum to 1.  The same seed always
// produces the same split.
func RandomSplit(d *Dataset, trainFrac, validFrac, testFrac float64, seed int64) (*Split, error) {
	if trainFrac < 0 || validFrac < 0 || testFrac < 0 {
		return nil, errors.New(errors.ErrCodeSplitFractions, "split fractions must be non-negative")
	}
	if math.Abs(trainFrac+validFrac+testFrac-1.0) > 1e-9 {
		return nil, errors.Newf(errors.ErrCodeSplitFractions,
			"split fractions sum to %v, want 1.0", trainFrac+validFrac+testFrac)
	}

	n := d.Len()
	perm := rand.New(rand.NewSource(seed)).Perm(n)

	trainEnd := int(math.Round(trainFrac * float64(n)))
	validEnd := trainEnd + int(math.Round(validFrac*float64(n)))
	if trainEnd > n {
		trainEnd = n
	}
	if validEnd > n {
		validEnd = n
	}

	train, err := d.Select(perm[:trainEnd])
	if err != nil {
		return nil, err
	}
	valid, err := d.Select(perm[trainEnd:validEnd])
	if err != nil {
		return nil, err
	}
	test, err := d.Select(perm[validEnd:])
	if err != nil {
		return nil, err
	}
	return &Split{Train: train, Valid: valid, Test: test}, nil
}
