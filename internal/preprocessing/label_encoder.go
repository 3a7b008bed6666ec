package preprocessing

import (
	"fmt"
	"sort"
	"strconv"
)

// LabelMap translates source target labels to numeric codes and back.
type LabelMap struct {
	ClassToCode map[string]float64
	CodeToClass map[float64]string
}

// NewLabelMap builds a map from an explicit remap. When several labels share a
// code, decoding yields the first of them in sorted order.
func NewLabelMap(remap map[string]float64) *LabelMap {
	lm := &LabelMap{
		ClassToCode: make(map[string]float64, len(remap)),
		CodeToClass: make(map[float64]string, len(remap)),
	}

	labels := make([]string, 0, len(remap))
	for label := range remap {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	for _, label := range labels {
		code := remap[label]
		lm.ClassToCode[label] = code
		if _, taken := lm.CodeToClass[code]; !taken {
			lm.CodeToClass[code] = label
		}
	}
	return lm
}

// FitLabelMap assigns codes 0..n-1 to the distinct labels in sorted order.
func FitLabelMap(labels []string) *LabelMap {
	unique := make(map[string]bool)
	for _, label := range labels {
		unique[label] = true
	}
	sorted := make([]string, 0, len(unique))
	for label := range unique {
		sorted = append(sorted, label)
	}
	sort.Strings(sorted)

	remap := make(map[string]float64, len(sorted))
	for i, label := range sorted {
		remap[label] = float64(i)
	}
	return NewLabelMap(remap)
}

func (lm *LabelMap) Encode(label string) (float64, bool) {
	code, ok := lm.ClassToCode[label]
	return code, ok
}

func (lm *LabelMap) Decode(code float64) (string, error) {
	if label, ok := lm.CodeToClass[code]; ok {
		return label, nil
	}
	return "", fmt.Errorf("unknown encoding: %s", strconv.FormatFloat(code, 'g', -1, 64))
}

// Inverse maps predicted codes back to source labels.
func (lm *LabelMap) Inverse(codes []float64) ([]string, error) {
	result := make([]string, len(codes))
	for i, code := range codes {
		label, err := lm.Decode(code)
		if err != nil {
			return nil, err
		}
		result[i] = label
	}
	return result, nil
}

// Classes lists the labels ordered by code.
func (lm *LabelMap) Classes() []string {
	codes := make([]float64, 0, len(lm.CodeToClass))
	for code := range lm.CodeToClass {
		codes = append(codes, code)
	}
	sort.Float64s(codes)

	classes := make([]string, len(codes))
	for i, code := range codes {
		classes[i] = lm.CodeToClass[code]
	}
	return classes
}
