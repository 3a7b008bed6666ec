package data

// BatchProcessor walks a feature matrix in fixed-size row windows.
type BatchProcessor struct {
	batchSize int
}

func NewBatchProcessor(batchSize int) *BatchProcessor {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &BatchProcessor{batchSize: batchSize}
}

// ProcessBatches calls processFn with each window and the index of its first row.
func (bp *BatchProcessor) ProcessBatches(X [][]float64, processFn func(start int, batch [][]float64) error) error {
	totalSamples := len(X)

	for start := 0; start < totalSamples; start += bp.batchSize {
		end := start + bp.batchSize
		if end > totalSamples {
			end = totalSamples
		}

		if err := processFn(start, X[start:end]); err != nil {
			return err
		}
	}

	return nil
}

func (bp *BatchProcessor) GetBatchSize() int {
	return bp.batchSize
}
