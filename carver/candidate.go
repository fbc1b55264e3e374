package carver

import (
	"fmt"

	"github.com/utxob/Data-Recover-toll/readers"
)

type Confidence int

const (
	ConfidenceTruncated Confidence = iota
	ConfidenceDeclared
	ConfidenceFooter
)

func (confidence Confidence) String() string {
	switch confidence {
	case ConfidenceFooter:
		return "footer"
	case ConfidenceDeclared:
		return "declared-size"
	}
	return "truncated"
}

type Status int

const (
	StatusComplete Status = iota
	StatusPartial
)

func (status Status) String() string {
	if status == StatusPartial {
		return "partial"
	}
	return "complete"
}

// Candidate is a byte range [Start, End) believed to hold one file.
type Candidate struct {
	Start      int64
	End        int64
	Tag        string
	Extension  string
	Confidence Confidence
	Status     Status
	Fault      *readers.MediumFault
	Ambiguous  []string
}

func (cand Candidate) Length() int64 {
	return cand.End - cand.Start
}

// GetFname is the provisional name derived from the start offset.
func (cand Candidate) GetFname() string {
	return fmt.Sprintf("carved_%012x.%s", cand.Start, cand.Extension)
}

func (cand Candidate) GetTypeTag() string {
	return cand.Tag
}

func (cand Candidate) GetLogicalFileSize() int64 {
	return cand.Length()
}

// GetDepth reports carved files as top level.
func (cand Candidate) GetDepth() int {
	return 0
}

func (cand Candidate) String() string {
	return fmt.Sprintf("%s [%d, %d) %s %s", cand.Tag, cand.Start, cand.End, cand.Confidence, cand.Status)
}
