package carver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/utxob/Data-Recover-toll/logger"
	"github.com/utxob/Data-Recover-toll/readers"
	"golang.org/x/sync/errgroup"
)

type shardRange struct {
	start int64
	end   int64
}

// ScanSharded splits the scan range into non-overlapping shards scanned concurrently.
// Results are merged by ascending start and match a sequential Scan, a candidate
// spilling into the next shard triggers a rescan of that shard from its end.
func (carver *Carver) ScanSharded(ctx context.Context, shards int, candidates chan<- Candidate, progress chan<- int64) error {
	if err := carver.prepare(); err != nil {
		return err
	}
	end := carver.scanEnd()
	if shards <= 1 || end == readers.SizeUnknown || end-carver.Start < int64(shards*carver.ChunkSize)/2 {
		return carver.Scan(ctx, candidates, progress)
	}

	ranges := carver.split(end, shards)
	processed := make([]atomic.Int64, len(ranges))
	var mu sync.Mutex
	var last int64
	publish := func() {
		var total int64
		for idx := range processed {
			total += processed[idx].Load()
		}
		mu.Lock()
		defer mu.Unlock()
		if total <= last || progress == nil {
			return
		}
		last = total
		select {
		case progress <- total:
		default:
		}
	}

	results := make([][]Candidate, len(ranges))
	group, groupCtx := errgroup.WithContext(ctx)
	for idx, shard := range ranges {
		group.Go(func() error {
			sub := carver.child(shard.start, shard.end)
			report := func(pos int64) {
				processed[idx].Store(pos - shard.start)
				publish()
			}
			found, err := collect(groupCtx, sub, report)
			results[idx] = found
			logger.RecoveryLogger.Info(fmt.Sprintf("shard %d [%d, %d) yielded %d candidates",
				idx, shard.start, shard.end, len(found)))
			return err
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	var lastEnd int64 = -1
	for idx, shard := range ranges {
		found := results[idx]
		if lastEnd > shard.start {
			if lastEnd >= shard.end {
				found = dropNested(found, lastEnd)
			} else {
				repaired, err := carver.resync(ctx, lastEnd, shard.end, found)
				if err != nil {
					return err
				}
				found = repaired
			}
		}
		for _, cand := range found {
			select {
			case candidates <- cand:
			case <-ctx.Done():
				return ctx.Err()
			}
			lastEnd = max(lastEnd, resumeOf(cand))
		}
	}
	return nil
}

func resumeOf(cand Candidate) int64 {
	if cand.Fault != nil {
		return max(cand.End, cand.Fault.End())
	}
	return cand.End
}

func dropNested(found []Candidate, lastEnd int64) []Candidate {
	var kept []Candidate
	for _, cand := range found {
		if cand.Start >= lastEnd {
			kept = append(kept, cand)
		}
	}
	return kept
}

func (carver *Carver) split(end int64, shards int) []shardRange {
	size := (end - carver.Start + int64(shards) - 1) / int64(shards)
	var ranges []shardRange
	for start := carver.Start; start < end; start += size {
		ranges = append(ranges, shardRange{start: start, end: min(start+size, end)})
	}
	return ranges
}

func (carver *Carver) child(start int64, end int64) *Carver {
	return &Carver{
		Reader:    carver.Reader,
		Registry:  carver.Registry,
		ChunkSize: carver.ChunkSize,
		Start:     start,
		End:       end,
		Excluded:  carver.Excluded,
		hits:      carver.hits,
	}
}

func collect(ctx context.Context, sub *Carver, report func(int64)) ([]Candidate, error) {
	if err := sub.prepare(); err != nil {
		return nil, err
	}
	out := make(chan Candidate, 64)
	done := make(chan error, 1)
	go func() {
		err := sub.newScanner(ctx, out, report).run()
		close(out)
		done <- err
	}()
	var found []Candidate
	for cand := range out {
		found = append(found, cand)
	}
	return found, <-done
}

// resync rescans [from, end) until it meets a candidate the shard already found,
// from there the shard results are identical.
func (carver *Carver) resync(ctx context.Context, from int64, end int64, original []Candidate) ([]Candidate, error) {
	sub := carver.child(from, end)
	if err := sub.prepare(); err != nil {
		return nil, err
	}
	index := make(map[int64]int, len(original))
	for idx, cand := range original {
		index[cand.Start] = idx
	}

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	out := make(chan Candidate)
	done := make(chan error, 1)
	go func() {
		err := sub.newScanner(subCtx, out, func(int64) {}).run()
		close(out)
		done <- err
	}()

	var repaired []Candidate
	synced := false
	for cand := range out {
		if synced {
			continue
		}
		if idx, ok := index[cand.Start]; ok && original[idx].End == cand.End && original[idx].Tag == cand.Tag {
			repaired = append(repaired, original[idx:]...)
			synced = true
			cancel()
			continue
		}
		repaired = append(repaired, cand)
	}
	err := <-done
	if synced && errors.Is(err, context.Canceled) && ctx.Err() == nil {
		err = nil
	}
	return repaired, err
}
