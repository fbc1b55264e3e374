package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/utxob/Data-Recover-toll/carver"
	"github.com/utxob/Data-Recover-toll/exporter"
	"github.com/utxob/Data-Recover-toll/filters"
	"github.com/utxob/Data-Recover-toll/logger"
	"github.com/utxob/Data-Recover-toll/readers"
	"github.com/utxob/Data-Recover-toll/reporter"
)

func (session *Session) carve(ctx context.Context) error {
	registry, err := session.Config.carvingRegistry(session.registry)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfigurationInvalid, err)
	}
	excluded, err := session.Config.excludedRegistry(session.registry)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfigurationInvalid, err)
	}
	flm := session.filterManager(registry)
	engine := carver.New(session.reader, registry, session.Config.ChunkSize)
	engine.Excluded = excluded
	defer logExcluded(engine)

	candidates := make(chan carver.Candidate, 16)
	scanned := make(chan int64, 1)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(scanned)
		defer close(candidates)
		if session.Config.Shards > 1 {
			return engine.ScanSharded(gctx, session.Config.Shards, candidates, scanned)
		}
		return engine.Scan(gctx, candidates, scanned)
	})

	g.Go(func() error {
		progress := (<-chan int64)(scanned)
		for {
			select {
			case cand, ok := <-candidates:
				if !ok {
					for processed := range progress {
						session.report(processed)
					}
					return nil
				}
				if err := session.recoverCandidate(flm, cand); err != nil {
					return err
				}
			case processed := <-progress:
				session.report(processed)
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})
	return g.Wait()
}

// logExcluded reports the headers of types the extension filter left out of carving.
func logExcluded(engine *carver.Carver) {
	hits := engine.ExcludedHits()
	for _, tag := range slices.Sorted(maps.Keys(hits)) {
		logger.RecoveryLogger.Info(fmt.Sprintf("skipped %d %s headers excluded by the extension filter", hits[tag], tag))
	}
}

// recoverCandidate records one result for cand, only output failures are returned.
func (session *Session) recoverCandidate(flm *filters.FilterManager, cand carver.Candidate) error {
	result := reporter.Result{
		OriginalName:   cand.GetFname(),
		SizeBytes:      cand.Length(),
		SourceMethod:   reporter.MethodCarving,
		SourceLocation: fmt.Sprintf("0x%x-0x%x", cand.Start, cand.End),
		TypeTag:        cand.Tag,
		Confidence:     cand.Confidence.String(),
	}

	if decision := flm.Evaluate(cand); !decision.Accepted {
		result.Status, result.ErrorDetail = reporter.StatusSkipped, decision.Reason
		session.record(result)
		return nil
	}
	if reason := session.invalidRange(cand.Start, cand.End); reason != "" {
		result.Status, result.ErrorDetail = reporter.StatusFailed, reason
		session.record(result)
		return nil
	}

	exported, err := session.exporter.Export(carvedDir, cand.GetFname(), cand.Start, func(w io.Writer) error {
		_, err := copyRange(session.reader, cand.Start, cand.End, w)
		return err
	})
	result.AssignedOutputName, result.SizeBytes, result.Hash = exported.Name, exported.Written, exported.Hash

	switch {
	case errors.Is(err, exporter.ErrOutputWriteFailed):
		result.Status, result.ErrorDetail = reporter.StatusFailed, err.Error()
		session.record(result)
		return err
	case err != nil:
		result.Status, result.ErrorDetail = reporter.StatusPartial, err.Error()
	case cand.Status == carver.StatusPartial:
		result.Status, result.ErrorDetail = reporter.StatusPartial, candidateDetail(cand)
	default:
		result.Status = reporter.StatusSuccess
	}
	if len(cand.Ambiguous) > 0 {
		logger.RecoveryLogger.Info(fmt.Sprintf("%s also matched %v", cand, cand.Ambiguous))
	}
	session.record(result)
	return nil
}

func candidateDetail(cand carver.Candidate) string {
	if cand.Fault != nil {
		return fmt.Sprintf("truncated by %v", cand.Fault)
	}
	return fmt.Sprintf("no footer, truncated at %d bytes", cand.Length())
}

// invalidRange describes why [start, end) cannot be written, empty when it can.
func (session *Session) invalidRange(start int64, end int64) string {
	switch size := session.reader.GetDiskSize(); {
	case end <= start:
		return "zero length"
	case start < 0:
		return "negative offset"
	case size != readers.SizeUnknown && end > size:
		return fmt.Sprintf("range ends at %d past the medium end %d", end, size)
	}
	return ""
}
