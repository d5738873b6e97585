package ecs

import (
	"errors"

	"github.com/rotisserie/eris"
)

// Kind classifies a failure into one of the abstract error kinds named by
// the core's error handling design. Callers should switch on Kind rather
// than on error strings.
type Kind uint8

const (
	// KindInvalidEntity means the id is 0, out of range, or not alive.
	KindInvalidEntity Kind = iota
	// KindTypeTooLarge means a type would exceed MaxEntitiesInType.
	KindTypeTooLarge
	// KindUnknownComponent means the component id is not registered, or
	// raw component bytes do not match the registered component size.
	KindUnknownComponent
	// KindStageViolation means a mutation was attempted on the main stage
	// while iteration is in progress, without routing through a stage.
	KindStageViolation
	// KindInternal means an invariant was violated. In non-release
	// builds this also panics via internal/assert before the error is
	// ever constructed.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidEntity:
		return "InvalidEntity"
	case KindTypeTooLarge:
		return "TypeTooLarge"
	case KindUnknownComponent:
		return "UnknownComponent"
	case KindStageViolation:
		return "StageViolation"
	case KindInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// coreError wraps an abstract Kind around an eris-tracked error so callers
// get both a stable classification and a stack trace when logged.
type coreError struct {
	kind Kind
	err  error
}

func (e *coreError) Error() string { return e.err.Error() }
func (e *coreError) Unwrap() error { return e.err }

// KindOf returns the Kind carried by err, and whether err originated from
// this package at all.
func KindOf(err error) (Kind, bool) {
	var ce *coreError
	if errors.As(err, &ce) {
		return ce.kind, true
	}
	return 0, false
}

// newErr builds a classified error from a format string.
func newErr(kind Kind, format string, args ...any) error {
	return &coreError{kind: kind, err: eris.Errorf(format, args...)}
}

// wrapErr classifies an upstream error, preserving its eris stack.
func wrapErr(kind Kind, err error, message string) error {
	return &coreError{kind: kind, err: eris.Wrap(err, message)}
}

var (
	// ErrEntityZero is returned when id 0 (reserved "none") is used as a
	// live entity handle.
	ErrEntityZero = newErr(KindInvalidEntity, "entity id 0 is reserved")
	// ErrNotAlive is returned when an operation targets a dead entity.
	ErrNotAlive = newErr(KindInvalidEntity, "entity is not alive")
	// ErrEntityRange is returned when an id falls outside the configured
	// [MinHandle, MaxHandle] window.
	ErrEntityRange = newErr(KindInvalidEntity, "entity id out of handle range")
	// ErrStaged is returned when a main-stage mutation is attempted while
	// parallel iteration is in progress.
	ErrStaged = newErr(KindStageViolation, "world is iterating, mutation must go through a stage")
)
