package kernel

import "strings"

// Mode is the restoration mode for a job, fixed at creation.
type Mode string

const (
	ModeRestore Mode = "RESTORE"
	ModeRemake  Mode = "REMAKE"
	ModeEnhance Mode = "ENHANCE"
)

// ParseMode parses a string into a Mode, defaulting to RESTORE.
func ParseMode(s string) Mode {
	switch strings.ToUpper(s) {
	case "REMAKE":
		return ModeRemake
	case "ENHANCE":
		return ModeEnhance
	default:
		return ModeRestore
	}
}

func (m Mode) String() string { return string(m) }
