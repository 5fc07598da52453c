package IO

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
)

// ExportTokenIDsBinary writes encoded sentences to a binary data file plus an index:
//
//   - .bin = concatenated little-endian uint32 token sequences
//   - .idx = uint64 (byte offset, length) per sentence
//
// It will split into shards <= maxShardBytes.
func ExportTokenIDsBinary(data [][]int, outPrefix string, maxShardBytes int64) (shards int, err error) {
	if maxShardBytes <= 0 {
		return 0, fmt.Errorf("maxShardBytes must be > 0 (got %d)", maxShardBytes)
	}

	var (
		dataF, idxF *os.File
		wData, wIdx *bufio.Writer
		cur         int64
	)

	closeShard := func() error {
		if dataF == nil {
			return nil
		}
		if err := wData.Flush(); err != nil {
			return err
		}
		if err := wIdx.Flush(); err != nil {
			return err
		}
		if err := dataF.Close(); err != nil {
			return err
		}
		return idxF.Close()
	}

	openShard := func() error {
		if err := closeShard(); err != nil {
			return err
		}
		binPath := fmt.Sprintf("%s-%03d.bin", outPrefix, shards)
		idxPath := fmt.Sprintf("%s-%03d.idx", outPrefix, shards)
		var err error
		if dataF, err = os.Create(binPath); err != nil {
			return &FileError{Path: binPath, Err: err}
		}
		if idxF, err = os.Create(idxPath); err != nil {
			dataF.Close()
			return &FileError{Path: idxPath, Err: err}
		}
		wData = bufio.NewWriter(dataF)
		wIdx = bufio.NewWriter(idxF)
		cur = 0
		shards++
		return nil
	}

	if err := openShard(); err != nil {
		return 0, err
	}

	buf4 := make([]byte, 4)
	buf8 := make([]byte, 8)
	for _, ids := range data {
		// rollover if shard too big
		if cur > 0 && cur+int64(4*len(ids)) > maxShardBytes {
			if err := openShard(); err != nil {
				return shards, err
			}
		}

		binary.LittleEndian.PutUint64(buf8, uint64(cur))
		if _, err := wIdx.Write(buf8); err != nil {
			return shards, err
		}
		binary.LittleEndian.PutUint64(buf8, uint64(len(ids)))
		if _, err := wIdx.Write(buf8); err != nil {
			return shards, err
		}

		for _, id := range ids {
			binary.LittleEndian.PutUint32(buf4, uint32(id))
			if _, err := wData.Write(buf4); err != nil {
				return shards, err
			}
		}
		cur += int64(4 * len(ids))
	}
	return shards, closeShard()
}

// ShardMissing = true if no shard files exist yet for prefix
func ShardMissing(prefix string) bool {
	return !fileExists(prefix + "-000.bin")
}
