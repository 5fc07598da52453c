package IO

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// FileError is returned when a corpus or vocabulary file cannot be opened or read.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("could not open file %s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// ReadCorpus reads one sentence per line. Each line is wrapped in the
// dictionary's begin/end sentinels before tokenization, so every sentence
// has at least two ids. Unfrozen dictionaries grow as a side effect.
func ReadCorpus(path string, d *Dictionary) ([][]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &FileError{Path: path, Err: err}
	}
	defer f.Close()
	data, err := readSentences(f, d)
	if err != nil {
		return nil, &FileError{Path: path, Err: err}
	}
	return data, nil
}

func readSentences(r io.Reader, d *Dictionary) ([][]int, error) {
	br := bufio.NewReaderSize(r, 1<<20) // 1MB buffer
	var data [][]int
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			ids, encErr := d.Encode(strings.TrimRight(line, "\r\n"))
			if encErr != nil {
				return nil, encErr
			}
			data = append(data, ids)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return data, nil
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
