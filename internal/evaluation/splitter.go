package evaluation

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"sort"

	"github.com/cespare/xxhash/v2"

	perrors "roadsafety/internal/errors"
)

// Partition holds disjoint row index sets into a dataset.
type Partition struct {
	Train []int
	Test  []int
}

// Fingerprint hashes the exact assignment, order included.
func (p Partition) Fingerprint() uint64 {
	d := xxhash.New()
	buf := make([]byte, 8)
	write := func(v uint64) {
		binary.LittleEndian.PutUint64(buf, v)
		_, _ = d.Write(buf)
	}
	write(uint64(len(p.Train)))
	for _, i := range p.Train {
		write(uint64(i))
	}
	write(uint64(len(p.Test)))
	for _, i := range p.Test {
		write(uint64(i))
	}
	return d.Sum64()
}

func (p Partition) String() string {
	return fmt.Sprintf("train=%d test=%d fingerprint=%016x", len(p.Train), len(p.Test), p.Fingerprint())
}

type TrainTestSplitter struct {
	testSize   float64
	randomSeed int64
	shuffle    bool
}

func NewTrainTestSplitter(testSize float64, randomSeed int64, shuffle bool) *TrainTestSplitter {
	return &TrainTestSplitter{
		testSize:   testSize,
		randomSeed: randomSeed,
		shuffle:    shuffle,
	}
}

func DefaultTrainTestSplitter() *TrainTestSplitter {
	return NewTrainTestSplitter(0.2, 42, true)
}

func (tts *TrainTestSplitter) validate(n int) error {
	if n < 2 {
		return perrors.NewInvalidInputError("Partition", fmt.Sprintf("cannot split %d rows", n))
	}
	if tts.testSize <= 0 || tts.testSize >= 1 {
		return perrors.NewInvalidInputError("Partition", "test size must be between 0 and 1")
	}
	return nil
}

// Split partitions n rows: the shuffled order is cut so that the last
// floor(n*testSize) rows, at least one, form the test set.
func (tts *TrainTestSplitter) Split(n int) (Partition, error) {
	if err := tts.validate(n); err != nil {
		return Partition{}, err
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}

	if tts.shuffle {
		rng := rand.New(rand.NewSource(tts.randomSeed))
		rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}

	testCount := tts.testCount(n)
	trainCount := n - testCount

	return Partition{
		Train: append([]int(nil), indices[:trainCount]...),
		Test:  append([]int(nil), indices[trainCount:]...),
	}, nil
}

// StratifiedSplit keeps the class proportions of y in both sets.
func (tts *TrainTestSplitter) StratifiedSplit(y []float64) (Partition, error) {
	if err := tts.validate(len(y)); err != nil {
		return Partition{}, err
	}

	classIndices := make(map[float64][]int)
	for i, label := range y {
		classIndices[label] = append(classIndices[label], i)
	}
	classes := make([]float64, 0, len(classIndices))
	for label := range classIndices {
		classes = append(classes, label)
	}
	sort.Float64s(classes)

	var trainIndices, testIndices []int

	rng := rand.New(rand.NewSource(tts.randomSeed))
	for _, class := range classes {
		indices := classIndices[class]
		if tts.shuffle {
			rng.Shuffle(len(indices), func(i, j int) {
				indices[i], indices[j] = indices[j], indices[i]
			})
		}

		testCount := int(float64(len(indices)) * tts.testSize)
		if testCount == 0 && len(indices) > 1 {
			testCount = 1
		}
		trainCount := len(indices) - testCount

		trainIndices = append(trainIndices, indices[:trainCount]...)
		testIndices = append(testIndices, indices[trainCount:]...)
	}

	if tts.shuffle {
		rng.Shuffle(len(trainIndices), func(i, j int) {
			trainIndices[i], trainIndices[j] = trainIndices[j], trainIndices[i]
		})
		rng.Shuffle(len(testIndices), func(i, j int) {
			testIndices[i], testIndices[j] = testIndices[j], testIndices[i]
		})
	}

	return Partition{Train: trainIndices, Test: testIndices}, nil
}

func (tts *TrainTestSplitter) testCount(n int) int {
	testCount := int(float64(n) * tts.testSize)
	if testCount == 0 {
		testCount = 1
	}
	return testCount
}

type KFoldSplitter struct {
	nFolds     int
	shuffle    bool
	randomSeed int64
}

func NewKFoldSplitter(nFolds int, shuffle bool, randomSeed int64) *KFoldSplitter {
	return &KFoldSplitter{
		nFolds:     nFolds,
		shuffle:    shuffle,
		randomSeed: randomSeed,
	}
}

// Split returns one partition per fold; every row is tested exactly once.
func (kfs *KFoldSplitter) Split(n int) ([]Partition, error) {
	if n == 0 {
		return nil, perrors.NewInvalidInputError("KFold", "cannot split empty dataset")
	}

	if kfs.nFolds <= 1 || kfs.nFolds > n {
		return nil, perrors.NewInvalidInputError("KFold",
			fmt.Sprintf("number of folds must be between 2 and %d", n))
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}

	if kfs.shuffle {
		rng := rand.New(rand.NewSource(kfs.randomSeed))
		rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}

	folds := make([]Partition, 0, kfs.nFolds)
	foldSize := n / kfs.nFolds

	for fold := 0; fold < kfs.nFolds; fold++ {
		testStart := fold * foldSize
		testEnd := testStart + foldSize
		if fold == kfs.nFolds-1 {
			testEnd = n
		}

		var trainIndices []int
		trainIndices = append(trainIndices, indices[:testStart]...)
		trainIndices = append(trainIndices, indices[testEnd:]...)

		folds = append(folds, Partition{
			Train: trainIndices,
			Test:  append([]int(nil), indices[testStart:testEnd]...),
		})
	}

	return folds, nil
}

// StratifiedSplit deals every class round-robin over the folds so that each
// fold keeps roughly the class proportions of y.
func (kfs *KFoldSplitter) StratifiedSplit(y []float64) ([]Partition, error) {
	n := len(y)
	if n == 0 {
		return nil, perrors.NewInvalidInputError("KFold", "cannot split empty dataset")
	}
	if kfs.nFolds <= 1 || kfs.nFolds > n {
		return nil, perrors.NewInvalidInputError("KFold",
			fmt.Sprintf("number of folds must be between 2 and %d", n))
	}

	classIndices := make(map[float64][]int)
	for i, label := range y {
		classIndices[label] = append(classIndices[label], i)
	}
	classes := make([]float64, 0, len(classIndices))
	for label := range classIndices {
		classes = append(classes, label)
	}
	sort.Float64s(classes)

	rng := rand.New(rand.NewSource(kfs.randomSeed))
	assignment := make([][]int, kfs.nFolds)
	next := 0
	for _, class := range classes {
		indices := classIndices[class]
		if kfs.shuffle {
			rng.Shuffle(len(indices), func(i, j int) {
				indices[i], indices[j] = indices[j], indices[i]
			})
		}
		for _, idx := range indices {
			assignment[next] = append(assignment[next], idx)
			next = (next + 1) % kfs.nFolds
		}
	}

	folds := make([]Partition, kfs.nFolds)
	for fold := range folds {
		var train []int
		for other, indices := range assignment {
			if other != fold {
				train = append(train, indices...)
			}
		}
		sort.Ints(train)
		test := append([]int(nil), assignment[fold]...)
		sort.Ints(test)
		folds[fold] = Partition{Train: train, Test: test}
	}
	return folds, nil
}
