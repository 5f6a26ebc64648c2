package notify

import (
	"errors"
	"fmt"

	"github.com/Xylopyrographer/CabinMonitor/internal/settings"
)

// Kind identifies a notification.
type Kind string

const (
	Activity           Kind = "activity"
	NoActivity         Kind = "no_activity"
	NoCommunication    Kind = "no_communication"
	CommunicationOK    Kind = "communication_ok"
	MonitoringDisabled Kind = "monitoring_disabled"
	MonitoringEnabled  Kind = "monitoring_enabled"
)

// Kinds lists every notification kind.
var Kinds = []Kind{Activity, NoActivity, NoCommunication, CommunicationOK, MonitoringDisabled, MonitoringEnabled}

const (
	maxPhone   = 13
	minMessage = 3
	maxMessage = 80
)

// Messages is the recipient and the text for each kind.
type Messages struct {
	Phone string          `json:"phone"`
	Texts map[Kind]string `json:"texts"`
}

// DefaultMessages returns the stock texts with no recipient.
func DefaultMessages() Messages {
	return Messages{Texts: map[Kind]string{
		Activity:           "Activity detected",
		NoActivity:         "No activity detected",
		NoCommunication:    "No communication to upload server",
		CommunicationOK:    "Communication to upload server OK",
		MonitoringDisabled: "Monitoring disabled",
		MonitoringEnabled:  "Monitoring enabled",
	}}
}

// Text returns the message for k, falling back to the default text.
func (m Messages) Text(k Kind) string {
	if t, ok := m.Texts[k]; ok {
		return t
	}
	return DefaultMessages().Texts[k]
}

// Validate checks the phone number and every message length.
func (m Messages) Validate() error {
	var errs []error
	if len(m.Phone) == 0 || len(m.Phone) > maxPhone {
		errs = append(errs, fmt.Errorf("phone must be 1-%d characters, got %d", maxPhone, len(m.Phone)))
	}
	for _, r := range m.Phone {
		if (r < '0' || r > '9') && r != '+' {
			errs = append(errs, fmt.Errorf("phone contains invalid character %q", r))
			break
		}
	}
	for _, k := range Kinds {
		if n := len(m.Text(k)); n < minMessage || n > maxMessage {
			errs = append(errs, fmt.Errorf("%s message must be %d-%d characters, got %d", k, minMessage, maxMessage, n))
		}
	}
	return errors.Join(errs...)
}

// Load reads the messages from the sms namespace over the defaults.
func Load(store *settings.Store) Messages {
	m := DefaultMessages()
	m.Phone = store.String(settings.SMS, "phone", "")
	for _, k := range Kinds {
		m.Texts[k] = store.String(settings.SMS, string(k), m.Texts[k])
	}
	return m
}

// Save validates m and writes it to the sms namespace.
func Save(store *settings.Store, m Messages) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if err := store.Put(settings.SMS, "phone", m.Phone); err != nil {
		return err
	}
	for _, k := range Kinds {
		if err := store.Put(settings.SMS, string(k), m.Text(k)); err != nil {
			return err
		}
	}
	return nil
}
