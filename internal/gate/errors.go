package gate

import (
	"errors"
	"fmt"
)

// ErrNotARepository is returned when the working tree has no version-control
// metadata.
var ErrNotARepository = errors.New("not a git repository")

// ErrCancelled is returned when the caller aborts a run. No report is
// produced.
var ErrCancelled = errors.New("run cancelled")

// RevisionNotFoundError reports a revision that could not be resolved.
type RevisionNotFoundError struct {
	Revision string
	Err      error
}

func (e *RevisionNotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("revision %q not found: %v", e.Revision, e.Err)
	}
	return fmt.Sprintf("revision %q not found", e.Revision)
}

func (e *RevisionNotFoundError) Unwrap() error { return e.Err }

// FormatterUnavailableError reports a formatter that could not be started.
// It is fatal for a run.
type FormatterUnavailableError struct {
	Formatter string
	Path      string
	Err       error
}

func (e *FormatterUnavailableError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("formatter %s unavailable: %v", e.Formatter, e.Err)
	}
	return fmt.Sprintf("formatter %s unavailable for %s: %v", e.Formatter, e.Path, e.Err)
}

func (e *FormatterUnavailableError) Unwrap() error { return e.Err }

// FormatterCrashError reports a formatter that started but failed on a file:
// non-zero exit, signal or timeout.
type FormatterCrashError struct {
	Formatter string
	Path      string
	ExitCode  int
	Stderr    string
	Err       error
}

func (e *FormatterCrashError) Error() string {
	msg := fmt.Sprintf("formatter %s failed on %s", e.Formatter, e.Path)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *FormatterCrashError) Unwrap() error { return e.Err }

// StaleEditError is returned by Apply when a file no longer matches the text
// an edit was computed against.
type StaleEditError struct {
	Path  string
	Range LineRange
}

func (e *StaleEditError) Error() string {
	return fmt.Sprintf("%s:%s changed since it was checked; re-run the check", e.Path, e.Range)
}

// IsFatal reports whether err must abort a run rather than be recorded per
// file.
func IsFatal(err error) bool {
	var rnf *RevisionNotFoundError
	var fu *FormatterUnavailableError
	return errors.Is(err, ErrNotARepository) || errors.As(err, &rnf) || errors.As(err, &fu)
}
