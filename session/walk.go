package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	metadata "github.com/utxob/Data-Recover-toll/FS"
	"github.com/utxob/Data-Recover-toll/disk"
	"github.com/utxob/Data-Recover-toll/exporter"
	"github.com/utxob/Data-Recover-toll/filters"
	"github.com/utxob/Data-Recover-toll/readers"
	"github.com/utxob/Data-Recover-toll/reporter"
	"github.com/utxob/Data-Recover-toll/utils"
)

// records up to this size are reconstructed by the workers, larger ones stream at export
const bufferLimit = 16 * 1024 * 1024

type prepared struct {
	deleted  metadata.Deleted
	decision filters.Decision
	invalid  string
	content  *bytes.Buffer
	readErr  error
}

func (session *Session) walk(ctx context.Context) error {
	dsk := disk.New(session.reader)
	if err := dsk.Process(session.Config.Partition); err != nil {
		return fmt.Errorf("metadata walk: %w", err)
	}
	session.total = readers.SizeUnknown
	flm := session.filterManager(session.registry)

	records := make(chan metadata.Deleted, session.Config.Workers)
	ready := make(chan prepared, session.Config.Workers)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return dsk.WalkDeleted(gctx, session.Config.Partition, records)
	})

	var workers sync.WaitGroup
	for range session.Config.Workers {
		workers.Add(1)
		g.Go(func() error {
			defer workers.Done()
			for deleted := range records {
				item := session.prepare(flm, deleted)
				select {
				case ready <- item:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		workers.Wait()
		close(ready)
		return nil
	})

	g.Go(func() error {
		return session.writeInOrder(gctx, ready)
	})
	return g.Wait()
}

// prepare filters and checks one record, small accepted records are reconstructed here
// so that the writer only copies them out.
func (session *Session) prepare(flm *filters.FilterManager, deleted metadata.Deleted) prepared {
	item := prepared{deleted: deleted, decision: flm.Evaluate(deleted)}
	if !item.decision.Accepted {
		return item
	}
	if item.invalid = session.invalidRecord(deleted.Record); item.invalid != "" {
		return item
	}
	if deleted.GetLogicalFileSize() <= bufferLimit {
		item.content = utils.GetBuffer()
		_, item.readErr = metadata.Reconstruct(session.reader, deleted.Record, item.content)
	}
	return item
}

func (session *Session) invalidRecord(record metadata.Record) string {
	if record.GetLogicalFileSize() <= 0 {
		return "zero length"
	}
	if record.IsResident() {
		return ""
	}
	for _, extent := range record.GetExtents() {
		if extent.Sparse {
			continue
		}
		if reason := session.invalidRange(extent.Offset, extent.End()); reason != "" {
			return "extent " + reason
		}
	}
	return ""
}

// writeInOrder exports prepared records in walk sequence whatever order the workers
// finish them in.
func (session *Session) writeInOrder(ctx context.Context, ready <-chan prepared) error {
	pending := make(map[int]prepared)
	next := 0
	for item := range ready {
		pending[item.deleted.Sequence] = item
		for {
			item, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			if err := ctx.Err(); err != nil {
				release(item)
				return err
			}
			if err := session.recoverRecord(item); err != nil {
				return err
			}
		}
	}
	return ctx.Err()
}

func release(item prepared) {
	if item.content != nil {
		utils.PutBuffer(item.content)
	}
}

func (session *Session) recoverRecord(item prepared) error {
	defer release(item)
	deleted := item.deleted
	record := deleted.Record
	result := reporter.Result{
		OriginalName: deleted.Path,
		SizeBytes:    record.GetLogicalFileSize(),
		SourceMethod: reporter.MethodMetadata,
		SourceLocation: fmt.Sprintf("partition %d %s record %d", deleted.Partition, record.GetFilesystem(),
			record.GetID()),
		Overlaps:     deleted.Overlaps,
		ModifiedTime: record.GetModifiedTime(),
	}
	defer func() {
		session.report(session.processed + record.GetLogicalFileSize())
	}()

	switch {
	case !item.decision.Accepted:
		result.Status, result.ErrorDetail = reporter.StatusSkipped, item.decision.Reason
		session.record(result)
		return nil
	case item.invalid != "":
		result.Status, result.ErrorDetail = reporter.StatusFailed, item.invalid
		session.record(result)
		return nil
	}

	exported, err := session.exporter.Export(deletedDir, deleted.GetFname(), record.GetID(), func(w io.Writer) error {
		if item.content != nil {
			if _, err := w.Write(item.content.Bytes()); err != nil {
				return err
			}
			return item.readErr
		}
		_, err := metadata.Reconstruct(session.reader, record, w)
		return err
	})
	result.AssignedOutputName, result.SizeBytes, result.Hash = exported.Name, exported.Written, exported.Hash

	switch {
	case errors.Is(err, exporter.ErrOutputWriteFailed):
		result.Status, result.ErrorDetail = reporter.StatusFailed, err.Error()
		session.record(result)
		return err
	case errors.Is(err, metadata.ErrPartial):
		result.Status, result.ErrorDetail = reporter.StatusPartial, err.Error()
	case err != nil:
		result.Status, result.ErrorDetail = reporter.StatusFailed, err.Error()
	default:
		result.Status = reporter.StatusSuccess
	}
	if len(deleted.Overlaps) > 0 && result.ErrorDetail == "" {
		result.ErrorDetail = fmt.Sprintf("shares clusters with records %v", deleted.Overlaps)
	}
	session.record(result)
	return nil
}
