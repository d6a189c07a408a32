package tilecore

import "fmt"

// GeometryError reports a recoverable geometry failure: an empty or
// unrecognized input, or a robustness error from the snap/fix pipeline.
// Renderer code logs these through Stats and drops the affected feature or
// tile rather than aborting the whole run.
type GeometryError struct {
	Category string
	Message  string
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func newGeometryError(category, format string, args ...any) *GeometryError {
	return &GeometryError{Category: category, Message: fmt.Sprintf(format, args...)}
}

// MisuseError reports a programmer error the LongLongMap detects cheaply at
// the call site: a zero value passed to put, or a writer used after the
// table has sealed.
type MisuseError struct {
	Message string
}

func (e *MisuseError) Error() string { return e.Message }

func newMisuseError(format string, args ...any) *MisuseError {
	return &MisuseError{Message: fmt.Sprintf(format, args...)}
}
