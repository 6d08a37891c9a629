// Package transporttest provides a scriptable Transport for tests. Every
// callback is delivered on a fresh goroutine, like a real driver, and the
// scripting call waits for it to return.
package transporttest

import (
	"sync"
	"sync/atomic"

	"codeberg.org/mutker/ridelogger/internal/errors"
	"codeberg.org/mutker/ridelogger/internal/transport"
)

type Transport struct {
	mu        sync.Mutex
	requests  []*Request
	err       error
	onRequest func(*Request)
}

func New() *Transport {
	return &Transport{}
}

// FailRequests makes RequestAccess return err; nil restores normal
// behavior.
func (t *Transport) FailRequests(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.err = err
}

// OnRequest runs fn inside every later RequestAccess call, before it
// returns, the way a driver that answers synchronously would.
func (t *Transport) OnRequest(fn func(*Request)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onRequest = fn
}

func (t *Transport) RequestAccess(
	deviceNumber int,
	onResult transport.AccessResultFunc,
	onState transport.StateChangeFunc,
) (transport.ReleaseHandle, error) {
	t.mu.Lock()
	if t.err != nil {
		err := t.err
		t.mu.Unlock()
		return nil, err
	}

	r := &Request{DeviceNumber: deviceNumber, onResult: onResult, onState: onState}
	t.requests = append(t.requests, r)
	fn := t.onRequest
	t.mu.Unlock()

	if fn != nil {
		fn(r)
	}

	return r, nil
}

// Requests returns every request issued so far, oldest first.
func (t *Transport) Requests() []*Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Request(nil), t.requests...)
}

func (t *Transport) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.requests)
}

// Last returns the newest request, or nil.
func (t *Transport) Last() *Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.requests) == 0 {
		return nil
	}
	return t.requests[len(t.requests)-1]
}

// Request is one access request. It doubles as its own release handle and
// counts every Release call.
type Request struct {
	DeviceNumber int

	onResult transport.AccessResultFunc
	onState  transport.StateChangeFunc
	released atomic.Int32
}

func (r *Request) Release() {
	r.released.Add(1)
}

// Releases reports how many times the handle was released.
func (r *Request) Releases() int {
	return int(r.released.Load())
}

// Grant reports Success with dev.
func (r *Request) Grant(dev transport.Device) {
	deliver(func() { r.onResult(dev, transport.Success, transport.StateTracking) })
}

// Timeout reports SearchTimeout.
func (r *Request) Timeout() {
	deliver(func() { r.onResult(nil, transport.SearchTimeout, transport.StateSearching) })
}

// Fail reports a non-success outcome.
func (r *Request) Fail(outcome transport.Outcome) {
	deliver(func() { r.onResult(nil, outcome, transport.StateClosed) })
}

// SetState reports a device state change.
func (r *Request) SetState(state transport.DeviceState) {
	deliver(func() { r.onState(state) })
}

// Device is a granted device. Channels listed in Unsupported refuse
// subscription.
type Device struct {
	Number      int
	Unsupported map[transport.ChannelID]bool

	mu        sync.Mutex
	receivers map[transport.ChannelID]transport.Receiver
}

func NewDevice(number int, unsupported ...transport.ChannelID) *Device {
	d := &Device{
		Number:      number,
		Unsupported: make(map[transport.ChannelID]bool),
		receivers:   make(map[transport.ChannelID]transport.Receiver),
	}
	for _, ch := range unsupported {
		d.Unsupported[ch] = true
	}
	return d
}

func (d *Device) DeviceNumber() int {
	return d.Number
}

func (d *Device) Subscribe(ch transport.ChannelID, rcv transport.Receiver) error {
	if d.Unsupported[ch] {
		return errors.New().WithData(transport.ErrChannelUnsupported, ch.String())
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.receivers[ch] = rcv
	return nil
}

func (d *Device) Unsubscribe(ch transport.ChannelID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.receivers, ch)
}

func (d *Device) Subscribed(ch transport.ChannelID) bool {
	_, ok := d.Receiver(ch)
	return ok
}

// Receiver returns the receiver currently subscribed to ch.
func (d *Device) Receiver(ch transport.ChannelID) (transport.Receiver, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rcv, ok := d.receivers[ch]
	return rcv, ok
}

// Emit delivers one event on ch and reports whether anything was
// subscribed.
func (d *Device) Emit(ch transport.ChannelID, fields ...float64) bool {
	rcv, ok := d.Receiver(ch)
	if !ok {
		return false
	}
	deliver(func() { rcv(transport.Event{Fields: fields}) })
	return true
}

func deliver(fn func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	<-done
}
