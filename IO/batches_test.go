package IO

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/manningwu07/VaeLM/params"
)

func corpusOfLengths(lengths ...int) [][]int {
	data := make([][]int, len(lengths))
	for i, n := range lengths {
		data[i] = make([]int, n)
	}
	return data
}

func TestCreateBatchesBoundaries(t *testing.T) {
	data := corpusOfLengths(2, 2, 2, 3, 4, 4, 4, 4, 4)
	got, err := CreateBatches(data, 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []Batch{{0, 3}, {3, 1}, {4, 3}, {7, 2}}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("batch %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestCreateBatchesNewBatchOnLengthChange(t *testing.T) {
	data := corpusOfLengths(2, 3, 4)
	got, err := CreateBatches(data, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("want one batch per length, got %v", got)
	}
}

func TestCreateBatchesPartitionProperty(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for trial := 0; trial < 200; trial++ {
		n := 1 + rng.IntN(60)
		lengths := make([]int, n)
		for i := range lengths {
			lengths[i] = 2 + rng.IntN(6)
		}
		data := corpusOfLengths(lengths...)
		SortByLength(data)
		maxB := 1 + rng.IntN(8)

		batches, err := CreateBatches(data, maxB)
		if err != nil {
			t.Fatalf("trial %d: %v", trial, err)
		}
		next, total := 0, 0
		for i, b := range batches {
			if b.Begin != next {
				t.Fatalf("trial %d: batch %d begins at %d, want %d", trial, i, b.Begin, next)
			}
			if b.Count < 1 || b.Count > maxB {
				t.Fatalf("trial %d: batch %d size %d exceeds %d", trial, i, b.Count, maxB)
			}
			for j := b.Begin; j < b.End(); j++ {
				if len(data[j]) != len(data[b.Begin]) {
					t.Fatalf("trial %d: batch %d mixes lengths", trial, i)
				}
			}
			// a batch under the limit must end at a length change or the corpus end
			if b.Count < maxB && b.End() < len(data) && len(data[b.End()]) == len(data[b.Begin]) {
				t.Fatalf("trial %d: batch %d closed early", trial, i)
			}
			next = b.End()
			total += b.Count
		}
		if total != len(data) {
			t.Fatalf("trial %d: sizes sum to %d, corpus %d", trial, total, len(data))
		}
	}
}

func TestCreateBatchesConfigErrors(t *testing.T) {
	var ce *params.ConfigError
	if _, err := CreateBatches(corpusOfLengths(2, 2), 0); !errors.As(err, &ce) {
		t.Fatalf("B=0: want *ConfigError, got %v", err)
	}
	if _, err := CreateBatches(nil, 4); !errors.As(err, &ce) {
		t.Fatalf("empty corpus: want *ConfigError, got %v", err)
	}
}

func TestCheckBatchesReportsEveryProblem(t *testing.T) {
	data := corpusOfLengths(2, 2, 3, 3)
	bad := []Batch{{0, 3}, {3, 2}}
	err := CheckBatches(data, bad, 4)
	var ce *ConsistencyError
	if !errors.As(err, &ce) {
		t.Fatalf("want *ConsistencyError, got %v", err)
	}
	// mixed lengths in batch 0, range overflow in batch 1, wrong total
	if len(ce.Problems) != 3 {
		t.Fatalf("want 3 problems, got %d: %v", len(ce.Problems), ce.Problems)
	}
}

func TestSortByLengthStable(t *testing.T) {
	data := [][]int{{9, 9, 9}, {1, 1}, {2, 2}, {8, 8, 8, 8}, {3, 3}}
	SortByLength(data)
	want := [][]int{{1, 1}, {2, 2}, {3, 3}, {9, 9, 9}, {8, 8, 8, 8}}
	for i := range want {
		if data[i][0] != want[i][0] || len(data[i]) != len(want[i]) {
			t.Fatalf("position %d = %v, want %v", i, data[i], want[i])
		}
	}
}
