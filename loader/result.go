package loader

// Result tells where a successfully loaded image came from.
type Result int

const (
	ResultFailed Result = iota
	ResultMemoryCache
	ResultDiskCache
	ResultInternet
	ResultLocalFile
	ResultStream
	ResultCustom
)

func (r Result) String() string {
	switch r {
	case ResultMemoryCache:
		return "memory_cache"
	case ResultDiskCache:
		return "disk_cache"
	case ResultInternet:
		return "internet"
	case ResultLocalFile:
		return "local_file"
	case ResultStream:
		return "stream"
	case ResultCustom:
		return "custom"
	default:
		return "failed"
	}
}

// State is the lifecycle position of a Task.
type State int32

const (
	StateCreated State = iota
	StateMemoryCacheHit
	StateResolving
	StatePreloadDone
	StateTargetBound
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateMemoryCacheHit:
		return "memory_cache_hit"
	case StateResolving:
		return "resolving"
	case StatePreloadDone:
		return "preload_done"
	case StateTargetBound:
		return "target_bound"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "created"
	}
}

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}
