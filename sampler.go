package vocab_builder

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jdkato/prose/v2"

	"github.com/wbrown/vocab_builder/datasets"
)

// ErrStreamExhausted indicates the dataset stream ended before the sampler's
// byte budget was met. The job cannot produce a correctly sized sample, so
// this is fatal and must not be retried against the same finite stream.
var ErrStreamExhausted = errors.New(
	"record stream exhausted before byte budget was met")

// CorpusSample is a scratch text file of newline-terminated record values.
// ByteCount is the exact number of bytes written; it may exceed the requested
// budget by at most the length of the one field write that crossed it.
type CorpusSample struct {
	Path      string
	ByteCount int
}

// CorpusSampler
// A struct that encapsulates the configuration for drawing a bounded text
// sample out of a record stream.
type CorpusSampler struct {
	DataKeys       []string
	MaxBytes       int
	ScratchDir     string
	Sanitize       bool
	SplitSentences bool
}

// NewCorpusSampler
// Creates a new CorpusSampler struct with the default configuration.
func NewCorpusSampler() CorpusSampler {
	return CorpusSampler{
		DataKeys: []string{"text"},
		MaxBytes: 10_000_000,
	}
}

// sampleProgress reports accumulated sample size every 10 seconds.
type sampleProgress struct {
	Total  uint64
	Budget uint64
	Last   time.Time
}

func (sp *sampleProgress) Add(n int) {
	sp.Total += uint64(n)
	if time.Now().Sub(sp.Last).Seconds() > 10 {
		sp.Last = time.Now()
		log.Print(fmt.Sprintf("Sampling corpus... %s / %s written.",
			humanize.Bytes(sp.Total), humanize.Bytes(sp.Budget)))
	}
}

var extraWhitespace = regexp.MustCompile("[[:space:]]+")

// sanitizeValue applies dataset hygiene to one record value: Windows `\r`
// and tabs are dropped or spaced, literal `\n` escapes become newlines, runs
// of whitespace collapse to one space, and lines are trimmed.
func sanitizeValue(value []byte) []byte {
	text := string(value)
	text = strings.ReplaceAll(text, "\r", "")
	text = strings.ReplaceAll(text, "\\n", "\n")
	text = strings.ReplaceAll(text, "\t", " ")
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for lineIdx := range lines {
		line := extraWhitespace.ReplaceAllString(lines[lineIdx], " ")
		line = strings.TrimSpace(line)
		line = strings.ReplaceAll(line, " :", ":")
		if line != "" {
			kept = append(kept, line)
		}
	}
	return []byte(strings.Join(kept, "\n"))
}

// splitSentences breaks a record value into sentence-per-line form. Values
// that fail segmentation are passed through whole.
func splitSentences(value []byte) [][]byte {
	doc, err := prose.NewDocument(
		string(value),
		prose.WithTagging(false),
		prose.WithExtraction(false),
		prose.WithTokenization(false),
	)
	if err != nil {
		return [][]byte{value}
	}
	sentences := doc.Sentences()
	if len(sentences) == 0 {
		return [][]byte{value}
	}
	lines := make([][]byte, 0, len(sentences))
	for _, sentence := range sentences {
		trimmed := strings.TrimSpace(sentence.Text)
		if trimmed != "" {
			lines = append(lines, []byte(trimmed))
		}
	}
	return lines
}

// lines produces the newline-terminated output lines for one record value,
// applying the configured sanitization and sentence splitting.
func (cs CorpusSampler) lines(value []byte) [][]byte {
	if cs.Sanitize {
		value = sanitizeValue(value)
	}
	if cs.SplitSentences {
		return splitSentences(value)
	}
	return [][]byte{value}
}

// Sample
// Consumes records from `next` and writes one newline-terminated line per
// configured data key, in key order, until the accumulated byte count
// (newlines included) reaches or exceeds MaxBytes. The budget is checked
// after every line, so sampling stops mid-record and the current record's
// remaining keys are not written. Returns ErrStreamExhausted if the stream
// ends first; the partial scratch file is removed in that case.
func (cs CorpusSampler) Sample(next datasets.RecordIterator) (*CorpusSample,
	error) {
	if cs.MaxBytes <= 0 {
		return nil, errors.New(fmt.Sprintf(
			"sample byte budget must be positive, got %d", cs.MaxBytes))
	}
	if len(cs.DataKeys) == 0 {
		return nil, errors.New("no data keys configured for sampling")
	}
	outFile, err := os.CreateTemp(cs.ScratchDir, "corpus_sample_*.txt")
	if err != nil {
		return nil, err
	}
	writer := bufio.NewWriterSize(outFile, 1024*1024)
	progress := &sampleProgress{Budget: uint64(cs.MaxBytes), Last: time.Now()}

	written := 0
	for written < cs.MaxBytes {
		record := next()
		if record == nil {
			outFile.Close()
			os.Remove(outFile.Name())
			return nil, fmt.Errorf("%w: wrote %d of %d bytes",
				ErrStreamExhausted, written, cs.MaxBytes)
		}
		for _, key := range cs.DataKeys {
			value, ok := record[key]
			if !ok {
				outFile.Close()
				os.Remove(outFile.Name())
				return nil, errors.New(fmt.Sprintf(
					"record is missing data key '%s'", key))
			}
			for _, line := range cs.lines(value) {
				if _, writeErr := writer.Write(line); writeErr != nil {
					outFile.Close()
					return nil, writeErr
				}
				if writeErr := writer.WriteByte('\n'); writeErr != nil {
					outFile.Close()
					return nil, writeErr
				}
				written += len(line) + 1
				progress.Add(len(line) + 1)
				if written >= cs.MaxBytes {
					break
				}
			}
			if written >= cs.MaxBytes {
				break
			}
		}
	}
	if flushErr := writer.Flush(); flushErr != nil {
		outFile.Close()
		return nil, flushErr
	}
	if closeErr := outFile.Close(); closeErr != nil {
		return nil, closeErr
	}
	log.Printf("Sampled %s of corpus text to %s",
		humanize.Bytes(uint64(written)), outFile.Name())
	return &CorpusSample{Path: outFile.Name(), ByteCount: written}, nil
}

// SanitizeText
// Applies the sampler's sanitization rules to a string. Exposed for dataset
// preparation tooling.
func SanitizeText(text string) string {
	return string(bytes.TrimRight(sanitizeValue([]byte(text)), "\n"))
}
