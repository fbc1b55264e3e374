package carver

import (
	"context"
	"fmt"

	"github.com/utxob/Data-Recover-toll/logger"
	"github.com/utxob/Data-Recover-toll/readers"
	"github.com/utxob/Data-Recover-toll/utils"
)

// scanner keeps the sliding window over the medium. The arena holds bytes
// [base, base+len(arena)) and every position before next has been tested.
type scanner struct {
	carver  *Carver
	ctx     context.Context
	out     chan<- Candidate
	report  func(int64)
	it      *readers.ChunkIterator
	arena   []byte
	base    int64
	next    int64
	limit   int64
	overlap int
}

func (carver *Carver) newScanner(ctx context.Context, out chan<- Candidate, report func(int64)) *scanner {
	overlap := carver.longestHeader() - 1
	limit := carver.scanEnd()
	readEnd := limit
	if limit != readers.SizeUnknown && carver.mediumEnd != readers.SizeUnknown {
		readEnd = min(limit+int64(overlap), carver.mediumEnd)
	}
	return &scanner{
		carver:  carver,
		ctx:     ctx,
		out:     out,
		report:  report,
		it:      readers.NewChunkIterator(carver.Reader, carver.Start, readEnd, carver.ChunkSize),
		arena:   make([]byte, 0, overlap+carver.ChunkSize),
		base:    carver.Start,
		next:    carver.Start,
		limit:   limit,
		overlap: overlap,
	}
}

func (s *scanner) run() error {
	for {
		if err := s.ctx.Err(); err != nil {
			return err
		}
		chunk, ok := s.it.Next()
		if !ok {
			return s.scan(true)
		}
		if chunk.Offset != s.base+int64(len(s.arena)) {
			if err := s.scan(true); err != nil {
				return err
			}
			s.arena = s.arena[:0]
			s.base = chunk.Offset
			s.next = max(s.next, chunk.Offset)
		}
		if chunk.Fault != nil {
			logger.RecoveryLogger.Warning(fmt.Sprintf("skipping unreadable region at %s len %d",
				utils.Stringify(chunk.Fault.Offset), chunk.Fault.Length))
		}
		s.load(chunk.Data)
		if err := s.scan(false); err != nil {
			return err
		}
	}
}

// load appends new bytes keeping the untested tail of the previous window.
func (s *scanner) load(data []byte) {
	arenaEnd := s.base + int64(len(s.arena))
	keep := int(max(0, min(arenaEnd-s.next, int64(len(s.arena)))))
	copy(s.arena, s.arena[len(s.arena)-keep:])
	s.arena = append(s.arena[:keep], data...)
	s.base = arenaEnd - int64(keep)
}

// scan tests positions of the window, the last overlap bytes wait for the next
// chunk unless final is set.
func (s *scanner) scan(final bool) error {
	for {
		arenaEnd := s.base + int64(len(s.arena))
		limit := arenaEnd
		if !final {
			limit -= int64(s.overlap)
		}
		if s.limit != readers.SizeUnknown {
			limit = min(limit, s.limit)
		}
		if s.next >= limit {
			s.report(min(s.next, arenaEnd))
			return nil
		}

		jumped := false
		for s.next < limit {
			pos := s.next
			sig, ambiguous, excluded, ok := s.carver.match(s.arena[pos-s.base:])
			if !ok {
				s.next++
				continue
			}
			if excluded {
				s.carver.hits.add(sig.Tag)
				s.next++
				continue
			}
			cand, look := s.carver.resolve(sig, pos, s.arena, s.base)
			cand.Ambiguous = ambiguous
			if err := s.emit(cand); err != nil {
				return err
			}

			resume := cand.End
			if cand.Fault != nil {
				resume = max(resume, cand.Fault.End())
			}
			s.next = resume
			if resume > arenaEnd {
				s.jump(resume, look)
				jumped = true
				break
			}
		}
		if !jumped {
			s.report(s.next)
			return nil
		}
		// the window now holds read-ahead bytes which are never the last ones
		final = false
		s.report(s.next)
		if err := s.ctx.Err(); err != nil {
			return err
		}
	}
}

// jump restarts the window at pos reusing read-ahead bytes when they cover it.
func (s *scanner) jump(pos int64, look lookahead) {
	s.arena = s.arena[:0]
	s.base = pos
	lookEnd := look.offset + int64(len(look.data))
	if look.data != nil && pos >= look.offset && pos < lookEnd && lookEnd-pos <= int64(cap(s.arena)) {
		s.arena = append(s.arena, look.data[pos-look.offset:]...)
		s.it.SeekTo(lookEnd)
		return
	}
	s.it.SeekTo(pos)
}

func (s *scanner) emit(cand Candidate) error {
	logger.RecoveryLogger.Info(fmt.Sprintf("carved %s", cand))
	select {
	case s.out <- cand:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}
