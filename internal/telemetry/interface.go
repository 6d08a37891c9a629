package telemetry

// Collector records counters about device sessions and channel traffic.
// Implementations must be safe for concurrent use; methods are called
// from driver callback goroutines.
type Collector interface {
	AccessRequested()
	AccessResult(outcome string)
	SearchRetried()
	SessionBound()
	SessionUnbound()
	ChannelEvent(channel string)
	ChannelFailure(channel string)
	StoreReset()
}

// Nop returns a Collector that records nothing.
func Nop() Collector {
	return noopCollector{}
}

type noopCollector struct{}

func (noopCollector) AccessRequested()      {}
func (noopCollector) AccessResult(string)   {}
func (noopCollector) SearchRetried()        {}
func (noopCollector) SessionBound()         {}
func (noopCollector) SessionUnbound()       {}
func (noopCollector) ChannelEvent(string)   {}
func (noopCollector) ChannelFailure(string) {}
func (noopCollector) StoreReset()           {}
