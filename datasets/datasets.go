package datasets

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"sort"
	"time"

	"github.com/yargevad/filepathx"
)

// Record is a single dataset example: a map of field names to raw byte
// values. Non-string JSONL fields are not represented.
type Record map[string][]byte

// RecordIterator
// Pull-style iterator over a dataset stream. Returns nil when the stream is
// exhausted.
type RecordIterator func() Record

type PathInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// GlobJSONL
// Given a directory path, recursively finds all `.jsonl` files, returning a
// slice of PathInfo.
func GlobJSONL(dirPath string) (pathInfos []PathInfo, err error) {
	jsonlPaths, err := filepathx.Glob(dirPath + "/**/*.jsonl")
	if err != nil {
		return nil, err
	}
	numMatches := len(jsonlPaths)
	if numMatches == 0 {
		return nil, errors.New(fmt.Sprintf(
			"%s does not contain any .jsonl files", dirPath))
	}
	pathInfos = make([]PathInfo, numMatches)
	for matchIdx := range jsonlPaths {
		currPath := jsonlPaths[matchIdx]
		if stat, statErr := os.Stat(currPath); statErr != nil {
			return nil, statErr
		} else {
			pathInfos[matchIdx] = PathInfo{
				Path:    currPath,
				Size:    stat.Size(),
				ModTime: stat.ModTime(),
			}
		}
	}
	sort.Slice(pathInfos, func(i, j int) bool {
		return pathInfos[i].Path < pathInfos[j].Path
	})
	return pathInfos, nil
}

func ShufflePathInfos(pathInfos []PathInfo) {
	for i := len(pathInfos) - 1; i > 0; i-- {
		j := rand.Intn(i + 1)
		pathInfos[i], pathInfos[j] = pathInfos[j], pathInfos[i]
	}
}

// decodeRecord
// Decodes one JSONL line into a Record, keeping only string-valued fields.
func decodeRecord(line []byte) (Record, error) {
	fields := make(map[string]interface{})
	if err := json.Unmarshal(line, &fields); err != nil {
		return nil, err
	}
	record := make(Record, len(fields))
	for key, value := range fields {
		if str, ok := value.(string); ok {
			record[key] = []byte(str)
		}
	}
	return record, nil
}

// recordsFromReader
// Scans JSONL lines from a reader and sends decoded Records to `out`. Blank
// lines are skipped; malformed lines are fatal, as a corrupt dataset would
// otherwise silently skew the sample.
func recordsFromReader(reader io.Reader, path string, out chan<- Record) {
	scanner := bufio.NewScanner(bufio.NewReaderSize(reader, 8*1024*1024))
	scanner.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)
	lineIdx := 0
	for scanner.Scan() {
		lineIdx += 1
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		record, decodeErr := decodeRecord(line)
		if decodeErr != nil {
			log.Fatalf("Error decoding %s:%d: %v", path, lineIdx, decodeErr)
		}
		out <- record
	}
	if scanErr := scanner.Err(); scanErr != nil {
		log.Fatalf("Error reading %s: %v", path, scanErr)
	}
}

// ReadJSONLRecords
// Consumes a directory path and recursively scans for `.jsonl` files,
// producing a RecordIterator that yields each line of each file as a Record.
// Files are read sequentially by a background goroutine so decoding overlaps
// with consumption.
func ReadJSONLRecords(dirPath string, shuffle bool) (RecordIterator, error) {
	matches, err := GlobJSONL(dirPath)
	if err != nil {
		return nil, err
	}
	if shuffle {
		ShufflePathInfos(matches)
	}

	records := make(chan Record, 64)
	go func() {
		for matchIdx := range matches {
			path := matches[matchIdx].Path
			fileReader, openErr := os.Open(path)
			if openErr != nil {
				log.Fatal(openErr)
			}
			log.Print("Reading ", path)
			recordsFromReader(fileReader, path, records)
			fileReader.Close()
		}
		close(records)
	}()

	return func() Record {
		if record, ok := <-records; !ok {
			return nil
		} else {
			return record
		}
	}, nil
}

// RecordsFromSlice
// Wraps a fixed slice of Records in a RecordIterator. Used for small inputs
// and in tests.
func RecordsFromSlice(recs []Record) RecordIterator {
	idx := 0
	return func() Record {
		if idx >= len(recs) {
			return nil
		}
		record := recs[idx]
		idx += 1
		return record
	}
}
