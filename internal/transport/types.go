package transport

import "sync"

// Outcome is the result of an access request.
type Outcome uint8

const (
	Success Outcome = iota
	SearchTimeout
	ChannelNotAvailable
	DependencyNotInstalled
	DeviceAlreadyInUse
	UserCancelled
	OtherFailure
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "SUCCESS"
	case SearchTimeout:
		return "SEARCH_TIMEOUT"
	case ChannelNotAvailable:
		return "CHANNEL_NOT_AVAILABLE"
	case DependencyNotInstalled:
		return "DEPENDENCY_NOT_INSTALLED"
	case DeviceAlreadyInUse:
		return "DEVICE_ALREADY_IN_USE"
	case UserCancelled:
		return "USER_CANCELLED"
	default:
		return "OTHER_FAILURE"
	}
}

// DeviceState is the link state reported by the driver.
type DeviceState uint8

const (
	StateUnrecognized DeviceState = iota
	StateSearching
	StateTracking
	StateProcessingRequest
	StateClosed
	StateDead
)

func (s DeviceState) String() string {
	switch s {
	case StateSearching:
		return "SEARCHING"
	case StateTracking:
		return "TRACKING"
	case StateProcessingRequest:
		return "PROCESSING_REQUEST"
	case StateClosed:
		return "CLOSED"
	case StateDead:
		return "DEAD"
	default:
		return "UNRECOGNIZED"
	}
}

// ChannelID names one subscribable measurement stream.
type ChannelID uint8

const (
	CalculatedPower ChannelID = iota
	CalculatedTorque
	CalculatedCrankCadence
	CalculatedWheelSpeed
	CalculatedWheelDistance
	InstantaneousCadence
	RawPowerOnly
	TorqueEffectiveness
	PedalSmoothness
	PedalPowerBalance
)

var channelNames = map[ChannelID]string{
	CalculatedPower:         "calculated_power",
	CalculatedTorque:        "calculated_torque",
	CalculatedCrankCadence:  "calculated_crank_cadence",
	CalculatedWheelSpeed:    "calculated_wheel_speed",
	CalculatedWheelDistance: "calculated_wheel_distance",
	InstantaneousCadence:    "instantaneous_cadence",
	RawPowerOnly:            "raw_power_only",
	TorqueEffectiveness:     "torque_effectiveness",
	PedalSmoothness:         "pedal_smoothness",
	PedalPowerBalance:       "pedal_power_balance",
}

func (c ChannelID) String() string {
	if n, ok := channelNames[c]; ok {
		return n
	}
	return "unknown"
}

// EventFlag is a bit set attached to each event.
type EventFlag uint8

const (
	FlagUpdateRequired EventFlag = 1 << iota
	FlagRolloverFixed
)

// DataSource tags where a calculated value came from.
type DataSource uint8

const (
	SourceUnknown DataSource = iota
	SourcePowerOnlyData
	SourceWheelTorqueData
	SourceCrankTorqueData
	SourceCTFData
	SourceInvalidCTFCalData
	SourceCoastOrStopDetected
)

// Event is one raw reading delivered on a channel. Fields are in the
// channel's documented order; the transport does not validate them.
type Event struct {
	Timestamp int64
	Flags     EventFlag
	Source    DataSource
	Fields    []float64
}

type releaseFunc struct {
	once sync.Once
	fn   func()
}

// NewReleaseHandle wraps fn so that only the first Release runs it.
func NewReleaseHandle(fn func()) ReleaseHandle {
	return &releaseFunc{fn: fn}
}

func (r *releaseFunc) Release() {
	r.once.Do(func() {
		if r.fn != nil {
			r.fn()
		}
	})
}
