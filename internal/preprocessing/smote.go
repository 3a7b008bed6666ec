package preprocessing

import (
	"math"
	"math/rand"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/floats"

	perrors "roadsafety/internal/errors"
)

const DefaultNeighbors = 5

// SMOTE oversamples minority classes by interpolating between a sample and
// one of its K nearest same-class neighbours. K = 0 duplicates samples.
type SMOTE struct {
	K    int
	Seed int64
	// Ratio sets each class target to ceil(Ratio * majority); 0 means the
	// majority count.
	Ratio float64
}

func NewSMOTE(k int, seed int64) *SMOTE {
	return &SMOTE{K: k, Seed: seed}
}

// Resample returns new slices holding the original samples followed by the
// synthetic ones. X and y are not modified.
func (s *SMOTE) Resample(X [][]float64, y []float64) ([][]float64, []float64, error) {
	if len(X) != len(y) {
		return nil, nil, perrors.NewInvalidInputError("Balance", "feature matrix and labels have different lengths")
	}
	if s.K < 0 {
		return nil, nil, perrors.NewInvalidInputError("Balance", "neighbour count must not be negative")
	}

	members := make(map[float64][]int)
	for i, label := range y {
		members[label] = append(members[label], i)
	}
	classes := make([]float64, 0, len(members))
	majority := 0
	for label, idx := range members {
		classes = append(classes, label)
		if len(idx) > majority {
			majority = len(idx)
		}
	}
	sort.Float64s(classes)

	target := majority
	if s.Ratio > 0 {
		target = int(math.Ceil(s.Ratio * float64(majority)))
	}

	outX := make([][]float64, len(X), len(X)+len(classes)*target)
	outY := make([]float64, len(y), len(y)+len(classes)*target)
	for i := range X {
		outX[i] = append([]float64(nil), X[i]...)
	}
	copy(outY, y)

	rng := rand.New(rand.NewSource(s.Seed))
	for _, label := range classes {
		idx := members[label]
		need := target - len(idx)
		if need <= 0 {
			continue
		}
		if s.K > 0 && len(idx) <= s.K {
			return nil, nil, perrors.NewInsufficientSamplesError(
				strconv.FormatFloat(label, 'g', -1, 64), len(idx), s.K+1)
		}

		neighbours := s.neighbours(X, idx)
		for n := 0; n < need; n++ {
			pick := rng.Intn(len(idx))
			base := X[idx[pick]]
			if s.K == 0 {
				outX = append(outX, append([]float64(nil), base...))
				outY = append(outY, label)
				continue
			}
			nn := X[neighbours[pick][rng.Intn(s.K)]]
			u := rng.Float64()

			synthetic := make([]float64, len(base))
			floats.SubTo(synthetic, nn, base)
			floats.Scale(u, synthetic)
			floats.Add(synthetic, base)

			outX = append(outX, synthetic)
			outY = append(outY, label)
		}
	}

	return outX, outY, nil
}

// neighbours returns, for each member, the indices of its K nearest other
// members by Euclidean distance, ties broken by index.
func (s *SMOTE) neighbours(X [][]float64, idx []int) [][]int {
	if s.K == 0 {
		return nil
	}
	out := make([][]int, len(idx))
	type candidate struct {
		row  int
		dist float64
	}
	for a, i := range idx {
		cands := make([]candidate, 0, len(idx)-1)
		for _, j := range idx {
			if j == i {
				continue
			}
			cands = append(cands, candidate{row: j, dist: floats.Distance(X[i], X[j], 2)})
		}
		sort.Slice(cands, func(p, q int) bool {
			if cands[p].dist != cands[q].dist {
				return cands[p].dist < cands[q].dist
			}
			return cands[p].row < cands[q].row
		})
		nearest := make([]int, s.K)
		for k := 0; k < s.K; k++ {
			nearest[k] = cands[k].row
		}
		out[a] = nearest
	}
	return out
}

// ClassCounts reports the number of samples per label.
func ClassCounts(y []float64) map[float64]int {
	counts := make(map[float64]int)
	for _, label := range y {
		counts[label]++
	}
	return counts
}
