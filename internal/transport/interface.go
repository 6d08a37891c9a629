// Package transport describes the boundary with the wireless device driver.
// The driver discovers devices, grants access, and delivers raw channel
// events on its own goroutines. Nothing here talks to hardware; a driver
// binding (or the sim package) implements these interfaces.
package transport

// Transport grants access to one device class.
type Transport interface {
	// RequestAccess asks for the device with the given number, 0 meaning
	// the first available device of the class. It returns at once; the
	// outcome arrives through onResult, and device state changes through
	// onState, both on driver goroutines. The outcome may arrive before
	// RequestAccess returns.
	RequestAccess(deviceNumber int, onResult AccessResultFunc, onState StateChangeFunc) (ReleaseHandle, error)
}

// Device is the handle granted by a successful access request.
type Device interface {
	// DeviceNumber is the concrete number the driver resolved.
	DeviceNumber() int
	// Subscribe registers rcv for one channel. Devices that do not
	// advertise the channel return ErrChannelUnsupported.
	Subscribe(ch ChannelID, rcv Receiver) error
	// Unsubscribe removes the receiver for ch, if any.
	Unsubscribe(ch ChannelID)
}

// ReleaseHandle ends an access request. Release may be called any number
// of times; only the first call has an effect.
type ReleaseHandle interface {
	Release()
}

// AccessResultFunc receives the outcome of an access request. dev is nil
// unless outcome is Success.
type AccessResultFunc func(dev Device, outcome Outcome, initial DeviceState)

// StateChangeFunc receives device state changes after access was granted.
type StateChangeFunc func(state DeviceState)

// Receiver receives raw events for one channel.
type Receiver func(ev Event)
