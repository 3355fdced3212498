package mavlink

// ArduCopter's fixed custom-mode table. ArduPilot does not transmit this
// table over the wire; it is a firmware constant, mirrored here the same
// way PX4's custom-mode table is hard-coded by PX4-speaking clients.
var arduCopterModes = map[string]uint32{
	"STABILIZE":     0,
	"ACRO":          1,
	"ALT_HOLD":      2,
	"AUTO":          3,
	"GUIDED":        4,
	"LOITER":        5,
	"RTL":           6,
	"CIRCLE":        7,
	"LAND":          9,
	"DRIFT":         11,
	"SPORT":         13,
	"FLIP":          14,
	"AUTOTUNE":      15,
	"POSHOLD":       16,
	"BRAKE":         17,
	"THROW":         18,
	"AVOID_ADSB":    19,
	"GUIDED_NOGPS":  20,
	"SMART_RTL":     21,
	"FLOWHOLD":      22,
	"FOLLOW":        23,
	"ZIGZAG":        24,
	"SYSTEMID":      25,
	"AUTOROTATE":    26,
	"AUTO_RTL":      27,
}

var arduCopterModeNames = invertModes(arduCopterModes)

func invertModes(m map[string]uint32) map[uint32]string {
	out := make(map[uint32]string, len(m))
	for name, id := range m {
		out[id] = name
	}
	return out
}

// ModeMapping returns ArduCopter's name→custom_mode table.
func ModeMapping() map[string]uint32 {
	out := make(map[string]uint32, len(arduCopterModes))
	for k, v := range arduCopterModes {
		out[k] = v
	}
	return out
}

// modeName resolves a custom_mode value to its ArduCopter mode name,
// defaulting to "STABILIZE" per the telemetry state's zero value when the
// mode is unrecognized or no heartbeat has been observed yet.
func modeName(customMode uint32) string {
	if name, ok := arduCopterModeNames[customMode]; ok {
		return name
	}
	return "STABILIZE"
}
