package IO

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/manningwu07/VaeLM/params"
)

func ExportVocabJSON(path string, v params.Vocabulary) error {
	f, err := os.Create(path)
	if err != nil {
		return &FileError{Path: path, Err: err}
	}
	defer f.Close()
	data := map[string]any{
		"TokenToID": v.TokenToID,
		"IDToToken": v.IDToToken,
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// ImportVocabJSON loads a vocab.json written by ExportVocabJSON.
func ImportVocabJSON(path string) (params.Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return params.Vocabulary{}, &FileError{Path: path, Err: err}
	}
	defer f.Close()
	var data struct {
		TokenToID map[string]int `json:"TokenToID"`
		IDToToken []string       `json:"IDToToken"`
	}
	if err := json.NewDecoder(f).Decode(&data); err != nil {
		return params.Vocabulary{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return params.Vocabulary{
		TokenToID: data.TokenToID,
		IDToToken: data.IDToToken,
	}, nil
}

// DataStats summarizes a loaded corpus.
type DataStats struct {
	Sentences int
	Tokens    int
	MinLen    int
	MaxLen    int
	Unknown   int
	VocabSize int
}

func ComputeDataStats(data [][]int, d *Dictionary) DataStats {
	s := DataStats{Sentences: len(data), VocabSize: d.Size()}
	unk := d.UnkID()
	for i, sent := range data {
		n := len(sent)
		s.Tokens += n
		if i == 0 || n < s.MinLen {
			s.MinLen = n
		}
		if n > s.MaxLen {
			s.MaxLen = n
		}
		for _, id := range sent {
			if id == unk {
				s.Unknown++
			}
		}
	}
	return s
}

// LogDataStats prints one summary line per corpus.
func LogDataStats(w io.Writer, data [][]int, d *Dictionary, dataType string) {
	s := ComputeDataStats(data, d)
	fmt.Fprintf(w, "%s data: %d sentences, %d tokens (len %d..%d), %d unk, vocab %d\n",
		dataType, s.Sentences, s.Tokens, s.MinLen, s.MaxLen, s.Unknown, s.VocabSize)
}
