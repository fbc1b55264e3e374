package carver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/utxob/Data-Recover-toll/logger"
	"github.com/utxob/Data-Recover-toll/readers"
	"github.com/utxob/Data-Recover-toll/signatures"
	"github.com/utxob/Data-Recover-toll/utils"
)

const DefaultChunkSize = 64 * 1024 * 1024

var ErrInvalidChunkSize = errors.New("chunk size must exceed the longest header")

// Carver finds signature delimited files in [Start, End) of a medium, End zero means the medium end.
// Candidates may extend past End, only header positions are bounded.
type Carver struct {
	Reader    readers.DiskReader
	Registry  *signatures.Registry
	ChunkSize int
	Start     int64
	End       int64
	// Excluded signatures are matched but never carved, their header hits are counted.
	Excluded *signatures.Registry

	matchers       [256][]matcher
	offsetMatchers []matcher
	mediumEnd      int64
	hits           *headerHits
}

type matcher struct {
	idx      int
	sig      signatures.Signature
	excluded bool
}

// headerHits counts matches of excluded signatures, shared with the shard scanners.
type headerHits struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (hits *headerHits) add(tag string) {
	hits.mu.Lock()
	defer hits.mu.Unlock()
	hits.counts[tag]++
}

type lookahead struct {
	offset int64
	data   []byte
}

func New(hD readers.DiskReader, registry *signatures.Registry, chunkSize int) *Carver {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Carver{Reader: hD, Registry: registry, ChunkSize: chunkSize}
}

// longestHeader spans the carved and the excluded signatures.
func (carver *Carver) longestHeader() int {
	longest := carver.Registry.LongestHeader()
	if carver.Excluded != nil {
		longest = max(longest, carver.Excluded.LongestHeader())
	}
	return longest
}

func (carver *Carver) prepare() error {
	if carver.ChunkSize < carver.longestHeader() {
		return fmt.Errorf("%w: %d", ErrInvalidChunkSize, carver.ChunkSize)
	}
	carver.matchers = [256][]matcher{}
	carver.offsetMatchers = nil
	add := func(sigs []signatures.Signature, excluded bool) {
		for idx, sig := range sigs {
			m := matcher{idx: idx, sig: sig, excluded: excluded}
			if sig.HeaderOffset == 0 && (sig.Mask == nil || sig.Mask[0] != 0) {
				carver.matchers[sig.Header[0]] = append(carver.matchers[sig.Header[0]], m)
			} else {
				carver.offsetMatchers = append(carver.offsetMatchers, m)
			}
		}
	}
	add(carver.Registry.All(), false)
	if carver.Excluded != nil {
		add(carver.Excluded.All(), true)
	}
	if carver.hits == nil {
		carver.hits = &headerHits{counts: make(map[string]int64)}
	}
	carver.mediumEnd = carver.Reader.GetDiskSize()
	return nil
}

// ExcludedHits reports how many headers of each excluded tag the scans passed over.
// Shard rescans may count a header twice.
func (carver *Carver) ExcludedHits() map[string]int64 {
	if carver.hits == nil {
		return nil
	}
	carver.hits.mu.Lock()
	defer carver.hits.mu.Unlock()
	return maps.Clone(carver.hits.counts)
}

// scanEnd bounds header positions.
func (carver *Carver) scanEnd() int64 {
	if carver.End > 0 && (carver.mediumEnd == readers.SizeUnknown || carver.End < carver.mediumEnd) {
		return carver.End
	}
	return carver.mediumEnd
}

// match returns the first signature in registry order matching at the window start
// together with the other tags that matched too. Carved signatures win over excluded
// ones, excluded reports an excluded best match.
func (carver *Carver) match(window []byte) (sig signatures.Signature, ambiguous []string, excluded bool, ok bool) {
	var best *matcher
	var matched []*matcher
	before := func(a *matcher, b *matcher) bool {
		if a.excluded != b.excluded {
			return !a.excluded
		}
		return a.idx < b.idx
	}
	test := func(candidates []matcher) {
		for idx := range candidates {
			if !candidates[idx].sig.Matches(window) {
				continue
			}
			matched = append(matched, &candidates[idx])
			if best == nil || before(&candidates[idx], best) {
				best = &candidates[idx]
			}
		}
	}
	if len(window) > 0 {
		test(carver.matchers[window[0]])
	}
	test(carver.offsetMatchers)
	if best == nil {
		return signatures.Signature{}, nil, false, false
	}
	if best.excluded {
		return best.sig, nil, true, true
	}

	for _, other := range matched {
		if other.excluded || other.sig.Tag == best.sig.Tag {
			continue
		}
		duplicate := false
		for _, tag := range ambiguous {
			duplicate = duplicate || tag == other.sig.Tag
		}
		if !duplicate {
			ambiguous = append(ambiguous, other.sig.Tag)
		}
	}
	return best.sig, ambiguous, false, true
}

// readAt serves from the buffered window when it covers the range.
func (carver *Carver) readAt(arena []byte, base int64, offset int64, length int) ([]byte, error) {
	if offset >= base && offset+int64(length) <= base+int64(len(arena)) {
		return arena[offset-base : offset-base+int64(length)], nil
	}
	return carver.Reader.ReadFile(offset, length)
}

// resolve fixes the end of a candidate whose header matched at start.
func (carver *Carver) resolve(sig signatures.Signature, start int64, arena []byte, base int64) (Candidate, lookahead) {
	cand := Candidate{Start: start, Tag: sig.Tag, Extension: carver.Registry.Extension(sig.Tag)}
	mediumEnd := carver.mediumEnd

	if sig.Measure != nil {
		read := func(offset int64, length int) ([]byte, error) {
			return carver.readAt(arena, base, start+offset, length)
		}
		if size, ok := sig.Measure(read, sig.MaxSize); ok && size >= sig.MinSize {
			cand.End = start + size
			cand.Confidence = ConfidenceDeclared
			if mediumEnd != readers.SizeUnknown && cand.End > mediumEnd {
				cand.End = mediumEnd
				cand.Status = StatusPartial
			}
			return cand, lookahead{}
		}
	}

	var look lookahead
	observedEnd := mediumEnd
	if sig.HasFooter() {
		result := carver.findFooter(sig, start, arena, base)
		look = result.look
		switch {
		case result.found:
			cand.End = result.end
			cand.Confidence = ConfidenceFooter
			if mediumEnd != readers.SizeUnknown && cand.End > mediumEnd {
				cand.End = mediumEnd
				cand.Status = StatusPartial
			}
			return cand, look
		case result.fault != nil:
			cand.End = max(result.fault.Offset, start+int64(sig.Span()))
			cand.Confidence = ConfidenceTruncated
			cand.Status = StatusPartial
			cand.Fault = result.fault
			logger.RecoveryLogger.Warning(fmt.Sprintf("footer search for %s at %s stopped by %v",
				sig.Tag, utils.Stringify(start), result.fault))
			return cand, look
		}
		if result.observedEnd != readers.SizeUnknown {
			observedEnd = result.observedEnd
		}
	}

	cand.End = start + sig.MaxSize
	if observedEnd != readers.SizeUnknown && cand.End > observedEnd {
		cand.End = observedEnd
	}
	cand.Confidence = ConfidenceTruncated
	cand.Status = StatusPartial
	return cand, look
}

type footerResult struct {
	end         int64
	found       bool
	fault       *readers.MediumFault
	look        lookahead
	observedEnd int64
}

// findFooter looks for the first footer at or after start+MinSize whose trailer ends
// within start+MaxSize, first in the buffered window then reading ahead.
func (carver *Carver) findFooter(sig signatures.Signature, start int64, arena []byte, base int64) footerResult {
	result := footerResult{observedEnd: readers.SizeUnknown}
	footer := sig.Footer
	from := start + max(sig.MinSize, int64(sig.Span()))
	limit := start + sig.MaxSize - int64(sig.FooterTail)
	if carver.mediumEnd != readers.SizeUnknown {
		limit = min(limit, carver.mediumEnd)
	}
	found := func(pos int64) footerResult {
		result.found = true
		result.end = pos + int64(sig.FooterLength())
		return result
	}

	arenaEnd := base + int64(len(arena))
	if searchEnd := min(arenaEnd, limit); from < searchEnd {
		if idx := bytes.Index(arena[from-base:searchEnd-base], footer); idx >= 0 {
			return found(from + int64(idx))
		}
	}

	pos := max(from, arenaEnd-int64(len(footer)-1))
	for pos+int64(len(footer)) <= limit {
		length := int(min(int64(carver.ChunkSize), limit-pos))
		data, err := carver.Reader.ReadFile(pos, length)
		result.look = lookahead{offset: pos, data: data}
		if idx := bytes.Index(data, footer); idx >= 0 {
			return found(pos + int64(idx))
		}
		if fault, ok := readers.AsFault(err); ok {
			result.fault = fault
			return result
		} else if err != nil {
			result.fault = &readers.MediumFault{Offset: pos + int64(len(data)), Length: int64(length - len(data)), Err: err}
			return result
		}
		if len(data) < length {
			result.observedEnd = pos + int64(len(data))
			break
		}
		if len(data) < len(footer) {
			break
		}
		pos += int64(len(data) - (len(footer) - 1))
	}
	return result
}

// Scan streams candidates in ascending start order. Progress receives the number of
// bytes processed from Start, sends never block.
func (carver *Carver) Scan(ctx context.Context, candidates chan<- Candidate, progress chan<- int64) error {
	if err := carver.prepare(); err != nil {
		return err
	}
	var last int64
	report := func(pos int64) {
		processed := pos - carver.Start
		if processed <= last {
			return
		}
		last = processed
		select {
		case progress <- processed:
		default:
		}
	}
	if progress == nil {
		report = func(int64) {}
	}
	return carver.newScanner(ctx, candidates, report).run()
}
