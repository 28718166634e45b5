package audio

import (
	"fmt"
)

// Kind identifies a capture source.
type Kind string

const (
	Microphone Kind = "microphone"
	Secondary  Kind = "secondary"
)

// Kinds lists every source kind in mixing order.
var Kinds = []Kind{Microphone, Secondary}

// ParseKind accepts "microphone"/"mic" and "secondary"/"tab".
func ParseKind(s string) (Kind, error) {
	switch s {
	case "microphone", "mic":
		return Microphone, nil
	case "secondary", "tab":
		return Secondary, nil
	}
	return "", fmt.Errorf("unknown source kind %q", s)
}

// Mode selects which sources a recording captures.
type Mode string

const (
	ModeMicOnly   Mode = "mic-only"
	ModeTabOnly   Mode = "tab-only"
	ModeMicAndTab Mode = "mic+tab"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeMicOnly, ModeTabOnly, ModeMicAndTab:
		return m, nil
	}
	return "", fmt.Errorf("unknown audio mode %q", s)
}

// Uses reports whether the mode captures the given source.
func (m Mode) Uses(k Kind) bool {
	switch k {
	case Microphone:
		return m == ModeMicOnly || m == ModeMicAndTab
	case Secondary:
		return m == ModeTabOnly || m == ModeMicAndTab
	}
	return false
}

// Requires reports whether a failure to acquire k aborts a recording in this
// mode. In mic+tab only the microphone is mandatory.
func (m Mode) Requires(k Kind) bool {
	switch m {
	case ModeMicOnly, ModeMicAndTab:
		return k == Microphone
	case ModeTabOnly:
		return k == Secondary
	}
	return false
}

// Status is the availability of a source kind.
type Status string

const (
	StatusReady       Status = "ready"
	StatusRecording   Status = "recording"
	StatusDenied      Status = "denied"
	StatusUnavailable Status = "unavailable"
	StatusError       Status = "error"
)
