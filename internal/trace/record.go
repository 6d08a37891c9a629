package trace

import "time"

// Record is one session state transition.
type Record struct {
	Time         time.Time `cbor:"1,keyasint"`
	SessionID    string    `cbor:"2,keyasint"`
	DeviceClass  string    `cbor:"3,keyasint,omitempty"`
	DeviceNumber int       `cbor:"4,keyasint"`
	OldState     string    `cbor:"5,keyasint,omitempty"`
	NewState     string    `cbor:"6,keyasint"`
	Outcome      string    `cbor:"7,keyasint,omitempty"`
	Reason       string    `cbor:"8,keyasint,omitempty"`
}

// Recorder receives records. Implementations must be safe for concurrent
// use and must not block.
type Recorder interface {
	Record(r Record)
}

// NopRecorder discards all records. Usable as a zero value.
type NopRecorder struct{}

func (NopRecorder) Record(Record) {}

var _ Recorder = NopRecorder{}
