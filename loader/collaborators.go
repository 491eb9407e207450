package loader

import (
	"context"
	"io"

	"github.com/IvanBrykalov/imageloader/cache"
	"github.com/IvanBrykalov/imageloader/key"
)

// Resolved is the outcome of a resolve step. The Task closes Data on every
// exit path.
type Resolved struct {
	Data   io.ReadCloser
	Result Result
	Info   cache.ImageInfo
}

// Resolver fetches the raw bytes for a path. It must honour ctx.
type Resolver interface {
	Resolve(ctx context.Context, path string, p *Params) (*Resolved, error)
}

// SizeHinter is implemented by resolvers that render vector sources at a
// logical size. The size becomes part of the cache key.
type SizeHinter interface {
	SizeHint() key.SizeHint
}

// ResolverFactory picks the default resolver for a path and source kind.
type ResolverFactory interface {
	Resolver(path string, source Source, p *Params) (Resolver, error)
}

// GenerateRequest is the input of a decode/transform step.
type GenerateRequest struct {
	Path   string
	Source Source
	Data   io.Reader
	// Info is updated in place with the decoded dimensions and format.
	Info *cache.ImageInfo
	// Transformations is nil when transformations are disabled for this step.
	Transformations []Transformation
	// Downsample is already converted to pixels.
	Downsample    Downsample
	IsPlaceholder bool
}

// Generator decodes and transforms resolved bytes. A nil buffer with a nil
// error means no renderable result; it is not a failure.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (cache.Buffer, error)
}

// Target is the UI binding slot a task renders into. Implementations call
// cache.OnEntryDisplayed / OnEntryHidden as entries go on and off screen.
type Target interface {
	// Bind shows e (nil clears the slot). It may block, e.g. for animation.
	Bind(ctx context.Context, e *cache.Entry, animated bool) error
	// IsTaskCurrent reports whether t is still the task owning this slot.
	IsTaskCurrent(t *Task) bool
	// SetCurrentTask records the task owning this slot (nil clears it).
	SetCurrentTask(t *Task)
	// UsesSameNativeHandle reports whether t renders into the same native view.
	UsesSameNativeHandle(t *Task) bool
}

// Owner is the service a task reports back to.
type Owner interface {
	RemovePending(t *Task)
	// ExitTasksEarly is a global fast-fail signal checked before running.
	ExitTasksEarly() bool
}

// Dispatcher runs callbacks on a designated execution context. Post blocks
// until fn has run; a non-nil error means fn was not run.
type Dispatcher interface {
	Post(ctx context.Context, fn func()) error
}

type noopOwner struct{}

func (noopOwner) RemovePending(*Task)  {}
func (noopOwner) ExitTasksEarly() bool { return false }
