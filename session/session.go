// Package session drives one recovery run: a single engine against one medium, the
// filter in front of every candidate, the exporter behind it and one result per candidate.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/utxob/Data-Recover-toll/exporter"
	"github.com/utxob/Data-Recover-toll/filters"
	"github.com/utxob/Data-Recover-toll/logger"
	"github.com/utxob/Data-Recover-toll/readers"
	"github.com/utxob/Data-Recover-toll/reporter"
	"github.com/utxob/Data-Recover-toll/signatures"
	"github.com/utxob/Data-Recover-toll/utils"
)

const (
	carvedDir  = "carved"
	deletedDir = "deleted"
	readChunk  = 1 << 20
)

// Progress is monotonic, Total is readers.SizeUnknown when the amount of work is not known.
type Progress struct {
	Processed int64
	Total     int64
}

type Option func(*Session)

// WithProgress sends progress updates on ch. Sends never block, an update is dropped
// when ch is full and a later one supersedes it.
func WithProgress(ch chan<- Progress) Option {
	return func(session *Session) {
		session.progress = ch
	}
}

// WithRegistry replaces the default signature catalogue.
func WithRegistry(registry *signatures.Registry) Option {
	return func(session *Session) {
		session.registry = registry
	}
}

// WithSinks adds result sinks besides those named by the configuration.
func WithSinks(sinks ...reporter.Sink) Option {
	return func(session *Session) {
		session.sinks = append(session.sinks, sinks...)
	}
}

type Session struct {
	ID     string
	Config Config

	reader   readers.DiskReader
	registry *signatures.Registry
	sinks    []reporter.Sink
	log      *reporter.Log
	exporter *exporter.Exporter

	progress  chan<- Progress
	processed int64
	total     int64
	logEvery  rate.Sometimes
}

// New validates config and checks that the start of the medium can be read. The session
// owns hD from here on, Close releases it.
func New(config Config, hD readers.DiskReader, opts ...Option) (*Session, error) {
	session := &Session{
		ID:       uuid.NewString(),
		Config:   config,
		logEvery: rate.Sometimes{Interval: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(session)
	}
	if session.registry == nil {
		session.registry = signatures.Default()
	}
	if err := config.Validate(session.registry); err != nil {
		return nil, err
	}

	session.reader = readers.NewSectorReader(readers.NewTimeoutReader(hD, config.ReadTimeout), config.SectorSize)
	if err := session.checkMedium(); err != nil {
		return nil, err
	}
	session.total = session.reader.GetDiskSize()

	sinks, err := openSinks(config)
	if err != nil {
		return nil, err
	}
	session.log = reporter.NewLog(append(sinks, session.sinks...)...)
	session.exporter = &exporter.Exporter{Location: config.Output, Hash: config.Hash, Strategy: config.Strategy}

	msg := "session %s %s over %s, %s bytes"
	logger.RecoveryLogger.Info(fmt.Sprintf(msg, session.ID, config.Mode, config.Source, utils.Stringify(session.total)))
	return session, nil
}

func (session *Session) checkMedium() error {
	if session.reader.GetDiskSize() == 0 {
		return fmt.Errorf("%w: empty medium", readers.ErrMediumUnreadable)
	}
	data, err := session.reader.ReadFile(0, session.Config.SectorSize)
	if len(data) == 0 {
		if err == nil {
			err = errors.New("no data at offset 0")
		}
		return fmt.Errorf("%w: %w", readers.ErrMediumUnreadable, err)
	}
	return nil
}

func openSinks(config Config) ([]reporter.Sink, error) {
	var sinks []reporter.Sink
	if config.ResultsJSONL != "" {
		jsonl, err := reporter.CreateJSONL(config.ResultsJSONL)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, jsonl)
	}
	if config.ResultsDB != "" {
		store, err := reporter.OpenSQLiteStore(config.ResultsDB)
		if err != nil {
			for _, sink := range sinks {
				_ = sink.Close()
			}
			return nil, fmt.Errorf("results db %s: %w", config.ResultsDB, err)
		}
		sinks = append(sinks, store)
	}
	return sinks, nil
}

// Log is the result log of the session, complete once Run returned.
func (session *Session) Log() *reporter.Log {
	return session.log
}

func (session *Session) Reporter() reporter.Reporter {
	return reporter.Reporter{Log: session.log}
}

// Run drives the configured engine to completion or cancellation. Results produced
// before a failure or cancellation are flushed to the sinks either way.
func (session *Session) Run(ctx context.Context) error {
	var err error
	switch session.Config.Mode {
	case ModeCarving:
		err = session.carve(ctx)
	case ModeMetadata:
		err = session.walk(ctx)
	}
	session.report(session.processed)

	counts := session.log.Counts()
	msg := "session %s finished with %d results, %d success %d partial %d failed %d skipped"
	logger.RecoveryLogger.Info(fmt.Sprintf(msg, session.ID, counts.Total, counts.ByStatus[reporter.StatusSuccess],
		counts.ByStatus[reporter.StatusPartial], counts.ByStatus[reporter.StatusFailed],
		counts.ByStatus[reporter.StatusSkipped]))

	if flushErr := session.log.Flush(context.WithoutCancel(ctx)); flushErr != nil {
		logger.RecoveryLogger.Error(fmt.Sprintf("flushing results: %v", flushErr))
		err = errors.Join(err, flushErr)
	}
	if err != nil {
		logger.RecoveryLogger.Error(fmt.Sprintf("session %s stopped: %v", session.ID, err))
	}
	return err
}

// Close flushes and closes the result sinks and releases the medium.
func (session *Session) Close() error {
	return errors.Join(session.log.Close(context.Background()), session.reader.CloseHandler())
}

func (session *Session) filterManager(registry *signatures.Registry) *filters.FilterManager {
	return filters.NewFilterManager(session.Config.Filter, registry)
}

func (session *Session) record(result reporter.Result) {
	result.SessionID = session.ID
	session.log.Append(result)
}

// report is called from one goroutine at a time.
func (session *Session) report(processed int64) {
	if processed < session.processed {
		return
	}
	session.processed = processed
	update := Progress{Processed: processed, Total: session.total}
	session.logEvery.Do(func() {
		msg := "session %s processed %s of %s bytes"
		logger.RecoveryLogger.Info(fmt.Sprintf(msg, session.ID, utils.Stringify(processed), utils.Stringify(update.Total)))
	})
	if session.progress == nil {
		return
	}
	select {
	case session.progress <- update:
	default:
	}
}

// copyRange streams [start, end) of the medium to w and stops at the first fault.
func copyRange(hD readers.DiskReader, start int64, end int64, w io.Writer) (int64, error) {
	var written int64
	for pos := start; pos < end; {
		length := int(min(int64(readChunk), end-pos))
		data, err := hD.ReadFile(pos, length)
		if len(data) > 0 {
			n, writeErr := w.Write(data)
			written += int64(n)
			if writeErr != nil {
				return written, writeErr
			}
		}
		if err != nil {
			return written, err
		}
		if len(data) < length {
			return written, &readers.MediumFault{Offset: pos + int64(len(data)), Length: end - pos - int64(len(data)),
				Err: errors.New("short read")}
		}
		pos += int64(len(data))
	}
	return written, nil
}
