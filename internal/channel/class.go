package channel

import (
	"codeberg.org/mutker/ridelogger/internal/metric"
	"codeberg.org/mutker/ridelogger/internal/transport"
)

// DeviceClass is a kind of sensor together with every channel this
// program binds for it.
type DeviceClass struct {
	Name     string
	Bindings []Binding
}

// Keys returns the distinct keys written by the class, in binding order.
func (c DeviceClass) Keys() []metric.Key {
	seen := make(map[metric.Key]bool)
	var keys []metric.Key
	for _, b := range c.Bindings {
		for _, k := range b.Keys {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	return keys
}

// Binding returns the binding for ch, if the class has one.
func (c DeviceClass) Binding(ch transport.ChannelID) (Binding, bool) {
	for _, b := range c.Bindings {
		if b.Channel == ch {
			return b, true
		}
	}
	return Binding{}, false
}

// BikePower is a bicycle power meter.
var BikePower = DeviceClass{
	Name: "bike_power",
	Bindings: []Binding{
		{
			Channel:   transport.CalculatedPower,
			Keys:      []metric.Key{metric.Watts},
			Fields:    1,
			normalize: field(0),
		},
		{
			Channel:   transport.CalculatedTorque,
			Keys:      []metric.Key{metric.TorqueNM},
			Fields:    1,
			normalize: field(0),
		},
		{
			Channel:   transport.CalculatedCrankCadence,
			Keys:      []metric.Key{metric.CadenceRPM},
			Fields:    1,
			normalize: field(0),
		},
		{
			Channel:   transport.CalculatedWheelSpeed,
			Keys:      []metric.Key{metric.SpeedKPH},
			Fields:    1,
			normalize: wheelSpeed,
		},
		{
			Channel:   transport.CalculatedWheelDistance,
			Keys:      []metric.Key{metric.DistanceKM},
			Fields:    1,
			normalize: wheelDistance,
		},
		{
			// Shares the cadence slot with the calculated channel.
			Channel:   transport.InstantaneousCadence,
			Keys:      []metric.Key{metric.CadenceRPM},
			Fields:    1,
			normalize: field(0),
		},
		{
			// count, instantaneous watts, accumulated watts
			Channel:   transport.RawPowerOnly,
			Keys:      []metric.Key{metric.Watts},
			Fields:    3,
			normalize: field(1),
		},
		{
			Channel:   transport.TorqueEffectiveness,
			Keys:      []metric.Key{metric.LeftTorqueEffectiveness, metric.RightTorqueEffectiveness},
			Fields:    3,
			normalize: torqueEffectiveness,
		},
		{
			Channel:   transport.PedalSmoothness,
			Keys:      []metric.Key{metric.LeftPedalSmoothness, metric.RightPedalSmoothness},
			Fields:    4,
			normalize: pedalSmoothness,
		},
		{
			// right pedal indicator, percent
			Channel:   transport.PedalPowerBalance,
			Keys:      []metric.Key{metric.PedalPowerBalance},
			Fields:    2,
			normalize: field(1),
		},
	},
}
