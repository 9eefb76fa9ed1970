package mode

// Target names the two declarative profiles.
type Target string

const (
	TargetOn  Target = "on"  // kiosk
	TargetOff Target = "off" // normal desktop
)

func ParseTarget(raw string) (Target, bool) {
	switch raw {
	case string(TargetOn):
		return TargetOn, true
	case string(TargetOff):
		return TargetOff, true
	default:
		return "", false
	}
}

// State is the inferred answer to "which profile is currently applied".
type State string

const (
	StateKiosk   State = "kiosk"
	StateShow    State = "show"
	StateCustom  State = "custom"
	StateUnknown State = "unknown"
)
