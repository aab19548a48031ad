package domain

import (
	"fmt"
	"strings"
)

// ConfigError reports an invalid or missing setting. It is always fatal and
// raised before any task is dispatched.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config: " + e.Reason
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// FileError reports an input path that is missing or unreadable.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string { return fmt.Sprintf("file %s: %v", e.Path, e.Err) }
func (e *FileError) Unwrap() error { return e.Err }

// MaxRawLen caps the record text kept in a ParseError.
const MaxRawLen = 256

// NewParseError builds a ParseError whose Raw is the first physical line of
// raw, cut to MaxRawLen bytes. A cut is marked with "...".
func NewParseError(path string, line int, raw string, err error) *ParseError {
	return &ParseError{Path: path, Line: line, Raw: clipRaw(raw), Err: err}
}

func clipRaw(raw string) string {
	cut := false
	if i := strings.IndexByte(raw, '\n'); i >= 0 {
		raw, cut = strings.TrimRight(raw[:i], "\r"), true
	}
	if len(raw) > MaxRawLen {
		raw, cut = strings.ToValidUTF8(raw[:MaxRawLen], ""), true
	}
	if cut {
		raw += "..."
	}
	return raw
}

// ParseError reports a malformed input line. Line is the 1-based physical
// line number where the offending record starts; Raw is a bounded prefix of
// its content.
type ParseError struct {
	Path string
	Line int
	Raw  string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s:%d: %v (line %q)", e.Path, e.Line, e.Err, e.Raw)
}
func (e *ParseError) Unwrap() error { return e.Err }

// ConnectionError reports a store that could not be reached for one task.
type ConnectionError struct {
	Driver string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Driver, e.Err)
}
func (e *ConnectionError) Unwrap() error { return e.Err }

// QueryError reports a batched statement or commit rejected by the store.
type QueryError struct {
	Statement string
	Err       error
}

func (e *QueryError) Error() string { return fmt.Sprintf("query: %v", e.Err) }
func (e *QueryError) Unwrap() error { return e.Err }

// AggregationError is reserved for states the aggregator rules out by
// construction (an id present with zero events).
type AggregationError struct {
	EntityID int64
	Reason   string
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregate entity %d: %s", e.EntityID, e.Reason)
}

// TaskError records the failure of one write task. It never affects other
// tasks of the same run.
type TaskError struct {
	Table      string
	ChunkIndex int
	Err        error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("table %s chunk %d: %v", e.Table, e.ChunkIndex, e.Err)
}
func (e *TaskError) Unwrap() error { return e.Err }

// TaskErrors is the complete set of task failures collected by one run.
type TaskErrors []*TaskError

func (es TaskErrors) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d write task(s) failed:", len(es))
	for _, e := range es {
		sb.WriteString("\n  - ")
		sb.WriteString(e.Error())
	}
	return sb.String()
}

// Unwrap exposes every task error to errors.Is / errors.As.
func (es TaskErrors) Unwrap() []error {
	out := make([]error, len(es))
	for i, e := range es {
		out[i] = e
	}
	return out
}
