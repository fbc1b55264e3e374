package reporter

import (
	"context"
	"errors"
	"iter"
	"sync"
)

// Log is the append-only result log of one session. Sequence numbers follow the order
// of Append.
type Log struct {
	mu      sync.Mutex
	results []Result
	counts  Counts

	flushMu sync.Mutex
	flushed int
	sinks   []Sink
}

type Counts struct {
	Total    int
	Bytes    int64
	ByStatus map[Status]int
	ByMethod map[Method]int
}

func NewLog(sinks ...Sink) *Log {
	return &Log{sinks: sinks,
		counts: Counts{ByStatus: map[Status]int{}, ByMethod: map[Method]int{}}}
}

func (log *Log) AddSink(sink Sink) {
	log.flushMu.Lock()
	defer log.flushMu.Unlock()
	log.sinks = append(log.sinks, sink)
}

// Append stamps the next sequence number on result and stores it.
func (log *Log) Append(result Result) Result {
	log.mu.Lock()
	defer log.mu.Unlock()
	result.Sequence = len(log.results)
	log.results = append(log.results, result)

	log.counts.Total++
	log.counts.ByStatus[result.Status]++
	log.counts.ByMethod[result.SourceMethod]++
	if result.Written() {
		log.counts.Bytes += result.SizeBytes
	}
	return result
}

// All yields the results appended so far, every call starts from the first one.
func (log *Log) All() iter.Seq[Result] {
	return func(yield func(Result) bool) {
		for _, result := range log.snapshot(0) {
			if !yield(result) {
				return
			}
		}
	}
}

func (log *Log) Len() int {
	log.mu.Lock()
	defer log.mu.Unlock()
	return len(log.results)
}

func (log *Log) Counts() Counts {
	log.mu.Lock()
	defer log.mu.Unlock()
	counts := Counts{Total: log.counts.Total, Bytes: log.counts.Bytes,
		ByStatus: make(map[Status]int, len(log.counts.ByStatus)),
		ByMethod: make(map[Method]int, len(log.counts.ByMethod))}
	for status, count := range log.counts.ByStatus {
		counts.ByStatus[status] = count
	}
	for method, count := range log.counts.ByMethod {
		counts.ByMethod[method] = count
	}
	return counts
}

func (log *Log) snapshot(from int) []Result {
	log.mu.Lock()
	defer log.mu.Unlock()
	if from >= len(log.results) {
		return nil
	}
	return append([]Result(nil), log.results[from:]...)
}

// Flush hands the results not yet flushed to every sink. Appends are not blocked while
// sinks write.
func (log *Log) Flush(ctx context.Context) error {
	log.flushMu.Lock()
	defer log.flushMu.Unlock()

	pending := log.snapshot(log.flushed)
	if len(pending) == 0 {
		return nil
	}
	var errs []error
	for _, sink := range log.sinks {
		if err := sink.Write(ctx, pending); err != nil {
			errs = append(errs, err)
		}
	}
	log.flushed += len(pending)
	return errors.Join(errs...)
}

// Close flushes pending results and closes the sinks.
func (log *Log) Close(ctx context.Context) error {
	errs := []error{log.Flush(ctx)}
	log.flushMu.Lock()
	defer log.flushMu.Unlock()
	for _, sink := range log.sinks {
		errs = append(errs, sink.Close())
	}
	log.sinks = nil
	return errors.Join(errs...)
}
