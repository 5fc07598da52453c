package IO

import (
	"fmt"
	"sort"
	"strings"

	"github.com/manningwu07/VaeLM/params"
)

// Batch is the index range [Begin, Begin+Count) into a length-sorted corpus.
type Batch struct {
	Begin int
	Count int
}

func (b Batch) End() int { return b.Begin + b.Count }

// ConsistencyError lists every batch that breaks the partition invariants.
type ConsistencyError struct {
	Problems []string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("batch consistency check failed (%d problems): %s",
		len(e.Problems), strings.Join(e.Problems, "; "))
}

// SortByLength orders sentences by ascending length. Ties keep corpus order.
func SortByLength(data [][]int) {
	sort.SliceStable(data, func(i, j int) bool { return len(data[i]) < len(data[j]) })
}

// CreateBatches scans a length-sorted corpus once, extending the current
// batch while the next sentence has the same length and the batch holds
// fewer than maxBatchSize sentences.
func CreateBatches(data [][]int, maxBatchSize int) ([]Batch, error) {
	if maxBatchSize <= 0 {
		return nil, &params.ConfigError{Field: "batch_size", Reason: fmt.Sprintf("must be > 0 (got %d)", maxBatchSize)}
	}
	if len(data) == 0 {
		return nil, &params.ConfigError{Field: "corpus", Reason: "no sentences to batch"}
	}

	var batches []Batch
	cur := Batch{Begin: 0, Count: 1}
	for i := 1; i < len(data); i++ {
		if len(data[i]) == len(data[cur.Begin]) && cur.Count < maxBatchSize {
			cur.Count++
			continue
		}
		batches = append(batches, cur)
		cur = Batch{Begin: i, Count: 1}
	}
	batches = append(batches, cur)

	if err := CheckBatches(data, batches, maxBatchSize); err != nil {
		return nil, err
	}
	return batches, nil
}

// CheckBatches verifies that batches partition data in order, that each
// batch holds only same-length sentences and that none exceeds maxBatchSize.
func CheckBatches(data [][]int, batches []Batch, maxBatchSize int) error {
	var problems []string
	next, total := 0, 0
	for i, b := range batches {
		if b.Begin != next {
			problems = append(problems, fmt.Sprintf("batch %d begins at %d, want %d", i, b.Begin, next))
		}
		if b.Count <= 0 || b.Count > maxBatchSize {
			problems = append(problems, fmt.Sprintf("batch %d has %d sentences (max %d)", i, b.Count, maxBatchSize))
		}
		if b.Begin < 0 || b.End() > len(data) {
			problems = append(problems, fmt.Sprintf("batch %d range [%d,%d) outside corpus of %d", i, b.Begin, b.End(), len(data)))
		} else if b.Count > 0 {
			want := len(data[b.Begin])
			for j := b.Begin + 1; j < b.End(); j++ {
				if len(data[j]) != want {
					problems = append(problems, fmt.Sprintf("batch %d mixes lengths %d and %d at sentence %d", i, want, len(data[j]), j))
					break
				}
			}
		}
		next = b.End()
		total += b.Count
	}
	if total != len(data) {
		problems = append(problems, fmt.Sprintf("batch sizes sum to %d, corpus has %d sentences", total, len(data)))
	}
	if len(problems) > 0 {
		return &ConsistencyError{Problems: problems}
	}
	return nil
}
