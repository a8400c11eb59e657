package ingest

import (
	"errors"
	"fmt"
)

// Kind classifies ingestion errors.
type Kind int

const (
	KindUnknown          Kind = iota
	KindRowParse              // Row rejected by the parser (non-fatal)
	KindSourceFormat          // Source layout unusable (fatal)
	KindSourceRead            // Source missing or unreadable (fatal)
	KindStoreUnavailable      // Store unreachable or timed out (fatal)
	KindWriteConflict         // Row already stored (non-fatal)
	KindWriteFailure          // Batch could not be committed (fatal)
	KindCanceled              // Run context canceled or expired (fatal)
)

var kindNames = map[Kind]string{
	KindUnknown:          "Unknown",
	KindRowParse:         "RowParseError",
	KindSourceFormat:     "SourceFormatError",
	KindSourceRead:       "SourceReadError",
	KindStoreUnavailable: "StoreUnavailable",
	KindWriteConflict:    "WriteConflict",
	KindWriteFailure:     "WriteFailure",
	KindCanceled:         "Canceled",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Fatal reports whether errors of this kind abort a run.
func (k Kind) Fatal() bool {
	switch k {
	case KindRowParse, KindWriteConflict:
		return false
	default:
		return true
	}
}

// Error is a run-level failure.
type Error struct {
	Kind   Kind
	Stage  State  // State the run was in when it failed
	Source string // Source identifier
	RunID  string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s in %s", e.Kind, e.Stage)
	if e.Source != "" {
		msg += " (source " + e.Source + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or KindUnknown when err is not an *Error.
func KindOf(err error) Kind {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return KindUnknown
}

func newError(kind Kind, stage State, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Err: err}
}
