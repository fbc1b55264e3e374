package reporter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResults() []Result {
	modified := time.Date(2023, 5, 17, 10, 30, 20, 0, time.UTC)
	return []Result{
		{SessionID: "s1", AssignedOutputName: "carved/carved_000000001000.jpg", SizeBytes: 3000,
			SourceMethod: MethodCarving, SourceLocation: "0x1000", Status: StatusSuccess, TypeTag: "jpg",
			Confidence: "footer", Hash: "abcd"},
		{SessionID: "s1", OriginalName: "notes.txt", SizeBytes: 50, SourceMethod: MethodMetadata,
			SourceLocation: "partition 0 record 30", Status: StatusSkipped, ErrorDetail: "extension txt not selected"},
		{SessionID: "s1", AssignedOutputName: "deleted/report.docx", OriginalName: "/Documents/report.docx",
			SizeBytes: 2500, SourceMethod: MethodMetadata, SourceLocation: "partition 1 record 25696",
			Status: StatusPartial, ErrorDetail: "partial reconstruction", Overlaps: []int64{7, 9},
			ModifiedTime: modified},
	}
}

func TestLogAppendAssignsSequence(t *testing.T) {
	log := NewLog()
	for idx, result := range sampleResults() {
		stamped := log.Append(result)
		assert.Equal(t, idx, stamped.Sequence)
	}
	require.Equal(t, 3, log.Len())

	var first, second []int
	for result := range log.All() {
		first = append(first, result.Sequence)
	}
	for result := range log.All() {
		second = append(second, result.Sequence)
	}
	assert.Equal(t, []int{0, 1, 2}, first)
	assert.Equal(t, first, second)

	counts := log.Counts()
	assert.Equal(t, 3, counts.Total)
	assert.Equal(t, int64(5500), counts.Bytes)
	assert.Equal(t, 1, counts.ByStatus[StatusSuccess])
	assert.Equal(t, 1, counts.ByStatus[StatusSkipped])
	assert.Equal(t, 2, counts.ByMethod[MethodMetadata])
}

func TestLogConcurrentAppend(t *testing.T) {
	log := NewLog()
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				log.Append(Result{Status: StatusFailed})
			}
		}()
	}
	wg.Wait()

	seen := map[int]bool{}
	for result := range log.All() {
		seen[result.Sequence] = true
	}
	assert.Len(t, seen, 400)
}

func TestFlushWritesJSONLinesOnce(t *testing.T) {
	var out bytes.Buffer
	log := NewLog(NewJSONLWriter(&out))
	results := sampleResults()
	log.Append(results[0])
	require.NoError(t, log.Flush(context.Background()))
	log.Append(results[1])
	log.Append(results[2])
	require.NoError(t, log.Flush(context.Background()))
	require.NoError(t, log.Flush(context.Background()))

	var decoded []Result
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var result Result
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &result))
		decoded = append(decoded, result)
	}
	require.Len(t, decoded, 3)
	assert.Equal(t, 2, decoded[2].Sequence)
	assert.Equal(t, StatusPartial, decoded[2].Status)
	assert.Equal(t, []int64{7, 9}, decoded[2].Overlaps)
	assert.True(t, results[2].ModifiedTime.Equal(decoded[2].ModifiedTime))
	assert.NotContains(t, out.String(), `"hash":""`)
}

func TestCreateJSONLAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.jsonl")
	jsonl, err := CreateJSONL(path)
	require.NoError(t, err)
	log := NewLog(jsonl)
	log.Append(sampleResults()[0])
	require.NoError(t, log.Close(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, bytes.Count(data, []byte("\n")))
	assert.Contains(t, string(data), `"source_method":"carving"`)
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)

	log := NewLog(store)
	for _, result := range sampleResults() {
		log.Append(result)
	}
	require.NoError(t, log.Flush(context.Background()))

	stored, err := store.List(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, "carved/carved_000000001000.jpg", stored[0].AssignedOutputName)
	assert.Equal(t, MethodCarving, stored[0].SourceMethod)
	assert.Equal(t, StatusSkipped, stored[1].Status)
	assert.Equal(t, []int64{7, 9}, stored[2].Overlaps)
	assert.True(t, stored[2].ModifiedTime.Equal(sampleResults()[2].ModifiedTime))

	other, err := store.List(context.Background(), "s2")
	require.NoError(t, err)
	assert.Empty(t, other)
	require.NoError(t, log.Close(context.Background()))
}

func TestSummaryAndShow(t *testing.T) {
	log := NewLog()
	for _, result := range sampleResults() {
		log.Append(result)
	}
	rp := Reporter{Log: log}

	var summary bytes.Buffer
	require.NoError(t, rp.Summary(&summary))
	assert.Contains(t, summary.String(), "3 candidates considered")
	assert.Contains(t, summary.String(), "success  1")
	assert.Contains(t, summary.String(), "carving  1")
	assert.Contains(t, summary.String(), "metadata 2")

	var shown bytes.Buffer
	require.NoError(t, rp.Show(&shown))
	assert.Equal(t, 2, bytes.Count(shown.Bytes(), []byte("\n")))
	assert.NotContains(t, shown.String(), "notes.txt")

	shown.Reset()
	rp.ShowSkipped = true
	require.NoError(t, rp.Show(&shown))
	assert.Contains(t, shown.String(), "notes.txt")
}
