package datasets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSONL(t *testing.T, path string, lines ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	content := ""
	for _, line := range lines {
		content += line + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func drain(next RecordIterator) []Record {
	records := make([]Record, 0)
	for {
		record := next()
		if record == nil {
			return records
		}
		records = append(records, record)
	}
}

func TestGlobJSONL(t *testing.T) {
	dir := t.TempDir()
	writeJSONL(t, filepath.Join(dir, "a.jsonl"), `{"text": "a"}`)
	writeJSONL(t, filepath.Join(dir, "nested", "b.jsonl"), `{"text": "b"}`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"),
		[]byte("not jsonl"), 0644))

	matches, err := GlobJSONL(dir)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, filepath.Join(dir, "a.jsonl"), matches[0].Path)
	assert.Equal(t, filepath.Join(dir, "nested", "b.jsonl"),
		matches[1].Path)
}

func TestGlobJSONLEmptyDir(t *testing.T) {
	_, err := GlobJSONL(t.TempDir())
	assert.ErrorContains(t, err, "does not contain any .jsonl files")
}

func TestReadJSONLRecords(t *testing.T) {
	dir := t.TempDir()
	writeJSONL(t, filepath.Join(dir, "a.jsonl"),
		`{"text": "first", "meta": "m1"}`,
		``,
		`{"text": "second"}`)
	writeJSONL(t, filepath.Join(dir, "b.jsonl"),
		`{"text": "third", "count": 3}`)

	next, err := ReadJSONLRecords(dir, false)
	require.NoError(t, err)
	records := drain(next)
	require.Len(t, records, 3)
	assert.Equal(t, []byte("first"), records[0]["text"])
	assert.Equal(t, []byte("m1"), records[0]["meta"])
	assert.Equal(t, []byte("second"), records[1]["text"])
	assert.Equal(t, []byte("third"), records[2]["text"])
	// Non-string fields are dropped, not surfaced.
	_, hasCount := records[2]["count"]
	assert.False(t, hasCount)
}

func TestDecodeRecord(t *testing.T) {
	record, err := decodeRecord([]byte(
		`{"text": "hello", "score": 0.5, "tags": ["a"]}`))
	require.NoError(t, err)
	assert.Equal(t, Record{"text": []byte("hello")}, record)

	_, err = decodeRecord([]byte(`{truncated`))
	assert.Error(t, err)
}

func TestRecordsFromSlice(t *testing.T) {
	next := RecordsFromSlice([]Record{
		{"text": []byte("a")},
		{"text": []byte("b")},
	})
	assert.Equal(t, []byte("a"), next()["text"])
	assert.Equal(t, []byte("b"), next()["text"])
	assert.Nil(t, next())
	assert.Nil(t, next())
}
