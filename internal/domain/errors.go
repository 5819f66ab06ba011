package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig covers unparseable policies, invalid expressions, and
	// missing required fields. Surfaced at load time; never reaches the
	// executor.
	ErrConfig = errors.New("configuration error")

	// ErrToolMissing means a required external tool was not found or is
	// too old for the requested operation.
	ErrToolMissing = errors.New("required tool unavailable")

	// ErrPreflight covers insufficient disk space, missing capabilities,
	// and unreadable targets. The plan is aborted before any mutation.
	ErrPreflight = errors.New("pre-flight check failed")

	// ErrSubprocess covers nonzero exits, timeouts, and OS-level spawn
	// failures. Triggers backup restore.
	ErrSubprocess = errors.New("subprocess failed")

	// ErrValidation means the subprocess succeeded but its output is
	// missing, empty, or otherwise invalid. Triggers restore.
	ErrValidation = errors.New("output validation failed")

	// ErrNoWork is the queue's "nothing to claim" signal, including lock
	// contention converted by the claim path. Never surfaced to callers.
	ErrNoWork = errors.New("no work available")

	// ErrIntegrity covers schema mismatches and constraint violations.
	// Fatal at daemon startup.
	ErrIntegrity = errors.New("data integrity error")

	ErrNotFound = errors.New("not found")
)

// ConditionalFailError is raised by a policy fail action. It carries the
// rule name and the rendered message for the job record.
type ConditionalFailError struct {
	Rule    string
	Message string
}

func (e *ConditionalFailError) Error() string {
	return fmt.Sprintf("rule %q failed: %s", e.Rule, e.Message)
}

// IncompatibleCodecError names the streams that cannot be carried into the
// target container during conversion pre-flight.
type IncompatibleCodecError struct {
	Container string
	Streams   []IncompatibleStream
}

type IncompatibleStream struct {
	Index int
	Codec string
}

func (e *IncompatibleCodecError) Error() string {
	return fmt.Sprintf("%d stream(s) incompatible with container %s (first: stream %d codec %s)",
		len(e.Streams), e.Container, e.Streams[0].Index, e.Streams[0].Codec)
}

func (e *IncompatibleCodecError) Unwrap() error { return ErrPreflight }
