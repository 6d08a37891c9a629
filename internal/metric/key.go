package metric

// Key identifies one normalized reading in a Store.
type Key uint8

const (
	Watts Key = iota
	TorqueNM
	CadenceRPM
	SpeedKPH
	DistanceKM
	LeftTorqueEffectiveness
	RightTorqueEffectiveness
	LeftPedalSmoothness
	RightPedalSmoothness
	PedalPowerBalance

	numKeys
)

var keyNames = [numKeys]string{
	Watts:                    "POWER_WATTS",
	TorqueNM:                 "TORQUE_NM",
	CadenceRPM:               "CADENCE_RPM",
	SpeedKPH:                 "SPEED_KPH",
	DistanceKM:               "DISTANCE_KM",
	LeftTorqueEffectiveness:  "LEFT_TORQUE_EFF",
	RightTorqueEffectiveness: "RIGHT_TORQUE_EFF",
	LeftPedalSmoothness:      "LEFT_PEDAL_SMOOTH",
	RightPedalSmoothness:     "RIGHT_PEDAL_SMOOTH",
	PedalPowerBalance:        "PEDAL_POWER_BALANCE",
}

// String returns the upper-case key name.
func (k Key) String() string {
	if !k.Valid() {
		return "UNKNOWN"
	}
	return keyNames[k]
}

// Valid reports whether k names a slot.
func (k Key) Valid() bool {
	return k < numKeys
}

// Keys returns every key in declaration order.
func Keys() []Key {
	keys := make([]Key, numKeys)
	for i := range keys {
		keys[i] = Key(i)
	}
	return keys
}
