package syncer

import "fmt"

// BlockRange is an inclusive [From, To] slice of the chain.
type BlockRange struct {
	From uint64
	To   uint64
}

// SplitRange cuts the inclusive range [from, to] into consecutive ranges of
// at most batchSize blocks. The last range takes whatever remains.
func SplitRange(from, to, batchSize uint64) ([]BlockRange, error) {
	if batchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to block must be >= from block")
	}

	total := to - from + 1
	ranges := make([]BlockRange, 0, (total+batchSize-1)/batchSize)
	for start := from; start <= to; {
		end := start + batchSize - 1
		if end > to || end < start {
			end = to
		}
		ranges = append(ranges, BlockRange{From: start, To: end})
		if end == to {
			break
		}
		start = end + 1
	}

	return ranges, nil
}
