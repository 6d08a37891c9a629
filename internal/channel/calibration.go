package channel

// DefaultWheelCircumference is a 700x23c road wheel, in meters.
const DefaultWheelCircumference = 2.096

// Calibration holds user supplied constants the bindings close over.
type Calibration struct {
	// WheelCircumference in meters.
	WheelCircumference float64
}

func DefaultCalibration() Calibration {
	return Calibration{WheelCircumference: DefaultWheelCircumference}
}
