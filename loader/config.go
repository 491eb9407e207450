package loader

import "go.uber.org/zap"

// Config holds loader-wide defaults. Per-request overrides in Params win.
type Config struct {
	FadeAnimationEnabled         bool
	FadeAnimationForCachedImages bool
	TransformPlaceholders        bool

	// ExecuteCallbacksOnDispatcher routes success/error/finish callbacks
	// through the Dispatcher.
	ExecuteCallbacksOnDispatcher bool

	// ClearCacheOnOutOfMemory clears the memory cache on ErrResourceExhausted.
	ClearCacheOnOutOfMemory bool

	VerboseLoadingCancelledLogging bool

	// DPIToPixels converts DIP sizes. Nil => identity.
	DPIToPixels func(int) int

	Logger *zap.Logger
}

func (c Config) dpiToPixels(v int) int {
	if c.DPIToPixels == nil {
		return v
	}
	return c.DPIToPixels(v)
}
