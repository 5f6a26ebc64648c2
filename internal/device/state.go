package device

import "github.com/Xylopyrographer/CabinMonitor/internal/indicator"

// State is the orchestrator state. Exactly one is active at a time.
type State string

const (
	Init               State = "INIT"
	NeedsProvisioning  State = "NEEDS_PROVISIONING"
	Provisioning       State = "PROVISIONING"
	Idle               State = "IDLE"
	MotionDetected     State = "MOTION_DETECTED"
	SoundDetected      State = "SOUND_DETECTED"
	Capturing          State = "CAPTURING"
	Uploading          State = "UPLOADING"
	OTAUpdate          State = "OTA_UPDATE"
	FactoryReset       State = "FACTORY_RESET"
	MonitoringDisabled State = "MONITORING_DISABLED"
	Error              State = "ERROR"
)

// States lists every state.
var States = []State{
	Init, NeedsProvisioning, Provisioning, Idle, MotionDetected, SoundDetected,
	Capturing, Uploading, OTAUpdate, FactoryReset, MonitoringDisabled, Error,
}

var stateNames = func() []string {
	out := make([]string, len(States))
	for i, s := range States {
		out[i] = string(s)
	}
	return out
}()

// Indicator returns the LED state shown while s is active.
func (s State) Indicator() indicator.State {
	switch s {
	case Init:
		return indicator.Init
	case NeedsProvisioning, Provisioning:
		return indicator.Provisioning
	case Idle:
		return indicator.Idle
	case MotionDetected:
		return indicator.PIR
	case SoundDetected:
		return indicator.Sound
	case Capturing:
		return indicator.Capturing
	case Uploading:
		return indicator.Uploading
	case OTAUpdate:
		return indicator.OTA
	case FactoryReset:
		return indicator.FactoryReset
	case MonitoringDisabled:
		return indicator.MonitoringDisabled
	default:
		return indicator.Error
	}
}
