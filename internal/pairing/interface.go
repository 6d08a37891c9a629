package pairing

import "context"

// Store remembers the last concrete device number resolved for each
// device class, so a restart can request that device directly instead of
// searching.
type Store interface {
	Remember(ctx context.Context, deviceClass string, deviceNumber int) error
	// Lookup reports found=false when nothing is remembered for the class.
	Lookup(ctx context.Context, deviceClass string) (deviceNumber int, found bool, err error)
	Forget(ctx context.Context, deviceClass string) error
	Close() error
}
