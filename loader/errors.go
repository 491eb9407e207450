package loader

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrCancelled marks an aborted load. Cancelled loads invoke no error callback.
	ErrCancelled = errors.New("loader: cancelled")

	// ErrResourceExhausted marks an out-of-memory class failure. Generators
	// wrap it when an allocation cannot be satisfied.
	ErrResourceExhausted = errors.New("loader: resource exhausted")
)

// Kind classifies the outcome of a load.
type Kind int

const (
	KindOK Kind = iota
	KindCancelled
	KindResourceExhausted
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindCancelled:
		return "cancelled"
	case KindResourceExhausted:
		return "resource_exhausted"
	default:
		return "failed"
	}
}

// Error is returned by Task operations. It wraps the underlying cause.
type Error struct {
	Kind Kind
	Key  string
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("loader: %s %q: %s", e.Op, e.Key, e.Kind)
	}
	return fmt.Sprintf("loader: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match the kind sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrCancelled:
		return e.Kind == KindCancelled
	case ErrResourceExhausted:
		return e.Kind == KindResourceExhausted
	}
	return false
}

// KindOf classifies err. Context cancellation counts as KindCancelled.
func KindOf(err error) Kind {
	if err == nil {
		return KindOK
	}
	if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	if errors.Is(err, ErrResourceExhausted) {
		return KindResourceExhausted
	}
	var le *Error
	if errors.As(err, &le) && le.Kind != KindOK {
		return le.Kind
	}
	return KindFailed
}

func wrap(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var le *Error
	if errors.As(err, &le) {
		return err
	}
	return &Error{Kind: KindOf(err), Key: key, Op: op, Err: err}
}
