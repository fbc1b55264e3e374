package exporter

import (
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/utxob/Data-Recover-toll/logger"
	"github.com/utxob/Data-Recover-toll/utils"
)

// ErrOutputWriteFailed is fatal to a session, the output sink cannot take more files.
var ErrOutputWriteFailed = errors.New("output write failed")

const (
	StrategySequence = "sequence"
	StrategyID       = "Id"
)

type Exporter struct {
	Location string
	Hash     string
	Strategy string

	mu   sync.Mutex
	next map[string]int // next collision suffix to try per path
}

// Exported describes a written artifact, Name is relative to Location.
type Exported struct {
	Name    string
	Written int64
	Hash    string
}

// sinkWriter remembers the first write error so fill errors can be told apart.
type sinkWriter struct {
	file    *os.File
	hasher  hash.Hash
	written int64
	err     error
}

func (w *sinkWriter) Write(data []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	n, err := w.file.Write(data)
	if w.hasher != nil {
		w.hasher.Write(data[:n])
	}
	w.written += int64(n)
	if err != nil {
		w.err = fmt.Errorf("%w: %w", ErrOutputWriteFailed, err)
		return n, w.err
	}
	return n, nil
}

func splitExt(fname string) (string, string) {
	ext := filepath.Ext(fname)
	if ext == fname {
		return fname, ""
	}
	return strings.TrimSuffix(fname, ext), ext
}

func (exp *Exporter) candidate(fname string, id int64, attempt int) string {
	if exp.Strategy == StrategyID {
		fname = fmt.Sprintf("[%d]%s", id, fname)
	}
	if attempt == 0 {
		return fname
	}
	base, ext := splitExt(fname)
	return fmt.Sprintf("%s_%d%s", base, attempt, ext)
}

func (exp *Exporter) startAttempt(key string) int {
	exp.mu.Lock()
	defer exp.mu.Unlock()
	return exp.next[key]
}

func (exp *Exporter) setAttempt(key string, attempt int) {
	exp.mu.Lock()
	defer exp.mu.Unlock()
	if exp.next == nil {
		exp.next = make(map[string]int)
	}
	if attempt > exp.next[key] {
		exp.next[key] = attempt
	}
}

// create opens a fresh file, existing files are never overwritten.
func (exp *Exporter) create(dir string, fname string, id int64) (*os.File, string, error) {
	key := filepath.Join(dir, fname)
	for attempt := exp.startAttempt(key); ; attempt++ {
		name := exp.candidate(fname, id, attempt)
		file, err := os.OpenFile(filepath.Join(exp.Location, dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0640)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("%w: %w", ErrOutputWriteFailed, err)
		}
		exp.setAttempt(key, attempt+1)
		return file, filepath.Join(dir, name), nil
	}
}

// Export writes what fill produces to a uniquely named file under Location/dir. Failures
// of the sink wrap ErrOutputWriteFailed, any other error of fill is returned with the
// artifact it left behind.
func (exp *Exporter) Export(dir string, fname string, id int64, fill func(io.Writer) error) (Exported, error) {
	if err := os.MkdirAll(filepath.Join(exp.Location, dir), 0750); err != nil {
		return Exported{}, fmt.Errorf("%w: %w", ErrOutputWriteFailed, err)
	}
	hasher, err := utils.NewHasher(exp.Hash)
	if err != nil {
		return Exported{}, err
	}

	file, name, err := exp.create(dir, utils.SanitizeName(fname), id)
	if err != nil {
		return Exported{}, err
	}
	w := &sinkWriter{file: file, hasher: hasher}
	fillErr := fill(w)
	closeErr := file.Close()

	exported := Exported{Name: name, Written: w.written}
	if hasher != nil {
		exported.Hash = utils.Hexify(hasher.Sum(nil))
	}
	switch {
	case w.err != nil:
		return exported, w.err
	case closeErr != nil:
		return exported, fmt.Errorf("%w: %w", ErrOutputWriteFailed, closeErr)
	case errors.Is(fillErr, ErrOutputWriteFailed):
		return exported, fillErr
	}
	logger.RecoveryLogger.Info(fmt.Sprintf("exported %s %s bytes", name, utils.Stringify(w.written)))
	return exported, fillErr
}
