package reporter

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	_ "modernc.org/sqlite"
)

// Sink persists flushed results. Results reach a sink once, in sequence order.
type Sink interface {
	Write(ctx context.Context, results []Result) error
	Close() error
}

// JSONLWriter writes one JSON object per result line.
type JSONLWriter struct {
	buffer  *bufio.Writer
	encoder *json.Encoder
	closer  io.Closer
}

func NewJSONLWriter(w io.Writer) *JSONLWriter {
	buffer := bufio.NewWriter(w)
	jsonl := &JSONLWriter{buffer: buffer, encoder: json.NewEncoder(buffer)}
	if closer, ok := w.(io.Closer); ok {
		jsonl.closer = closer
	}
	return jsonl
}

func CreateJSONL(path string) (*JSONLWriter, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0640)
	if err != nil {
		return nil, fmt.Errorf("result log %s: %w", path, err)
	}
	return NewJSONLWriter(file), nil
}

func (jsonl *JSONLWriter) Write(ctx context.Context, results []Result) error {
	for _, result := range results {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := jsonl.encoder.Encode(result); err != nil {
			return err
		}
	}
	return jsonl.buffer.Flush()
}

func (jsonl *JSONLWriter) Close() error {
	err := jsonl.buffer.Flush()
	if jsonl.closer != nil {
		if closeErr := jsonl.closer.Close(); err == nil {
			err = closeErr
		}
	}
	return err
}

// SQLiteStore keeps results in a results table keyed by session and sequence.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store, err := NewSQLiteStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, err
	}
	return store, nil
}

func (store *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS results (
		session_id TEXT NOT NULL,
		sequence INTEGER NOT NULL,
		assigned_output_name TEXT,
		original_name TEXT,
		size_bytes INTEGER,
		source_method TEXT,
		source_location TEXT,
		status TEXT,
		error_detail TEXT,
		type_tag TEXT,
		confidence TEXT,
		hash TEXT,
		overlaps JSON,
		modified_time TEXT,
		PRIMARY KEY (session_id, sequence)
	);`
	_, err := store.db.ExecContext(context.Background(), query)
	return err
}

func (store *SQLiteStore) Write(ctx context.Context, results []Result) error {
	tx, err := store.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	query := `INSERT INTO results (
		session_id, sequence, assigned_output_name, original_name, size_bytes, source_method, source_location,
		status, error_detail, type_tag, confidence, hash, overlaps, modified_time
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range results {
		overlaps, _ := json.Marshal(r.Overlaps)
		var modified string
		if !r.ModifiedTime.IsZero() {
			modified = r.ModifiedTime.UTC().Format(time.RFC3339Nano)
		}
		_, err := stmt.ExecContext(ctx, r.SessionID, r.Sequence, r.AssignedOutputName, r.OriginalName,
			r.SizeBytes, string(r.SourceMethod), r.SourceLocation, string(r.Status), r.ErrorDetail, r.TypeTag,
			r.Confidence, r.Hash, string(overlaps), modified)
		if err != nil {
			return fmt.Errorf("failed to insert result %d: %w", r.Sequence, err)
		}
	}
	return tx.Commit()
}

// List returns the results of a session in sequence order.
func (store *SQLiteStore) List(ctx context.Context, sessionID string) ([]Result, error) {
	query := `
	SELECT session_id, sequence, assigned_output_name, original_name, size_bytes, source_method, source_location,
		status, error_detail, type_tag, confidence, hash, overlaps, modified_time
	FROM results
	WHERE session_id = ?
	ORDER BY sequence`
	rows, err := store.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []Result
	for rows.Next() {
		var (
			r        Result
			method   string
			status   string
			overlaps string
			modified string
		)
		err := rows.Scan(&r.SessionID, &r.Sequence, &r.AssignedOutputName, &r.OriginalName, &r.SizeBytes,
			&method, &r.SourceLocation, &status, &r.ErrorDetail, &r.TypeTag, &r.Confidence, &r.Hash,
			&overlaps, &modified)
		if err != nil {
			return nil, err
		}
		r.SourceMethod, r.Status = Method(method), Status(status)
		if err := json.Unmarshal([]byte(overlaps), &r.Overlaps); err != nil {
			return nil, fmt.Errorf("result %d overlaps: %w", r.Sequence, err)
		}
		if modified != "" {
			if r.ModifiedTime, err = time.Parse(time.RFC3339Nano, modified); err != nil {
				return nil, err
			}
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (store *SQLiteStore) Close() error {
	return store.db.Close()
}
