package reporter

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

type Method string

const (
	MethodMetadata Method = "metadata"
	MethodCarving  Method = "carving"
)

// Result is the audit entry of one candidate considered by a session.
type Result struct {
	SessionID          string    `json:"session_id"`
	Sequence           int       `json:"sequence"`
	AssignedOutputName string    `json:"assigned_output_name,omitempty"`
	OriginalName       string    `json:"original_name,omitempty"`
	SizeBytes          int64     `json:"size_bytes"`
	SourceMethod       Method    `json:"source_method"`
	SourceLocation     string    `json:"source_location"`
	Status             Status    `json:"status"`
	ErrorDetail        string    `json:"error_detail,omitempty"`
	TypeTag            string    `json:"type_tag,omitempty"`
	Confidence         string    `json:"confidence,omitempty"`
	Hash               string    `json:"hash,omitempty"`
	Overlaps           []int64   `json:"overlaps,omitempty"`
	ModifiedTime       time.Time `json:"modified_time,omitzero"`
}

// Written reports whether an output artifact exists for the result.
func (result Result) Written() bool {
	return result.Status == StatusSuccess || result.Status == StatusPartial
}

func (result Result) String() string {
	name := result.AssignedOutputName
	if name == "" {
		name = "-"
	}
	line := fmt.Sprintf("%6d %-8s %-8s %s <- %s %s", result.Sequence, result.Status, result.SourceMethod,
		name, result.SourceLocation, result.OriginalName)
	if result.ErrorDetail != "" {
		line += " (" + result.ErrorDetail + ")"
	}
	return line
}
