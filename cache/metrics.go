package cache

// NoopMetrics is a drop-in Metrics implementation that does nothing.
// It is safe for concurrent use and is the default when no observability
// backend is configured.
type NoopMetrics struct{}

func (NoopMetrics) Hit()                   {}
func (NoopMetrics) Miss()                  {}
func (NoopMetrics) ReuseHit()              {}
func (NoopMetrics) ReuseMiss()             {}
func (NoopMetrics) Evict(EvictReason)      {}
func (NoopMetrics) Size(_, _ int, _ int64) {}

// Ensure NoopMetrics implements the Metrics interface at compile time.
var _ Metrics = NoopMetrics{}
