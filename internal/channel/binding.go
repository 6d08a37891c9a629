// Package channel maps raw device channels onto metric keys.
package channel

import (
	"codeberg.org/mutker/ridelogger/internal/errors"
	"codeberg.org/mutker/ridelogger/internal/metric"
	"codeberg.org/mutker/ridelogger/internal/transport"
)

// maxKeys bounds how many keys one event may carry.
const maxKeys = 4

// Writer is the part of metric.Store a binding may touch.
type Writer interface {
	Set(key metric.Key, value float64) error
	SetMany(keys []metric.Key, values []float64) error
}

type normalizeFunc func(ev transport.Event, cal Calibration, out []float64) error

// Binding subscribes one channel and writes its readings to Keys.
type Binding struct {
	Channel transport.ChannelID
	Keys    []metric.Key
	// Fields is the number of raw fields the channel must deliver.
	Fields    int
	normalize normalizeFunc
}

// Apply normalizes ev and writes the result. Multi-key readings go through
// a single SetMany so both sides change together.
func (b Binding) Apply(w Writer, ev transport.Event, cal Calibration) error {
	if len(ev.Fields) < b.Fields {
		return errors.New().WithData(ErrMalformedEvent, struct {
			Channel string
			Want    int
			Got     int
		}{
			Channel: b.Channel.String(),
			Want:    b.Fields,
			Got:     len(ev.Fields),
		})
	}

	var buf [maxKeys]float64
	out := buf[:len(b.Keys)]
	if err := b.normalize(ev, cal, out); err != nil {
		return err
	}

	if len(b.Keys) == 1 {
		return w.Set(b.Keys[0], out[0])
	}
	return w.SetMany(b.Keys, out)
}

// field returns a normalizer copying raw field i.
func field(i int) normalizeFunc {
	return func(ev transport.Event, _ Calibration, out []float64) error {
		out[0] = ev.Fields[i]
		return nil
	}
}

// wheelSpeed converts wheel rpm to km/h.
func wheelSpeed(ev transport.Event, cal Calibration, out []float64) error {
	if cal.WheelCircumference <= 0 {
		return errors.New().WithData(ErrInvalidCalibration, cal.WheelCircumference)
	}
	out[0] = ev.Fields[0] * cal.WheelCircumference * 60 / 1000
	return nil
}

// wheelDistance converts accumulated wheel revolutions to km.
func wheelDistance(ev transport.Event, cal Calibration, out []float64) error {
	if cal.WheelCircumference <= 0 {
		return errors.New().WithData(ErrInvalidCalibration, cal.WheelCircumference)
	}
	out[0] = ev.Fields[0] * cal.WheelCircumference / 1000
	return nil
}

// torqueEffectiveness fields: event count, left %, right %.
func torqueEffectiveness(ev transport.Event, _ Calibration, out []float64) error {
	out[0] = ev.Fields[1]
	out[1] = ev.Fields[2]
	return nil
}

// pedalSmoothness fields: event count, separate support, left or combined %,
// right %. A combined reading is written to both sides.
func pedalSmoothness(ev transport.Event, _ Calibration, out []float64) error {
	out[0] = ev.Fields[2]
	if ev.Fields[1] == 0 {
		out[1] = ev.Fields[2]
		return nil
	}
	out[1] = ev.Fields[3]
	return nil
}
