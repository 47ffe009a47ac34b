package logx

import (
	"strings"
)

// Level is a log severity. Levels order from most to least verbose;
// a record is emitted when its level is at or above the configured
// minimum.
type Level uint8

const (
	// LevelTrace traces per-call detail, including rate-limiter waits
	LevelTrace Level = iota
	// LevelDebug for diagnostic output such as audit event appends
	LevelDebug
	// LevelInfo for lifecycle events: transitions, decisions, finalization
	LevelInfo
	// LevelWarn for degraded but recoverable conditions
	LevelWarn
	// LevelError for failures that surface to the caller
	LevelError
	// LevelFatal logs and then exits the process
	LevelFatal
	// LevelOff silences the logger entirely
	LevelOff
)

// String returns the level's name as it appears in log output
func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	case LevelOff:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a configuration string onto a Level. Unrecognized
// input falls back to LevelInfo rather than failing: a typo in the
// level knob should never stop the worker.
func ParseLevel(level string) Level {
	switch strings.ToUpper(level) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	case "FATAL":
		return LevelFatal
	case "OFF":
		return LevelOff
	default:
		return LevelInfo
	}
}

// Enabled reports whether a record at target passes the minimum l
func (l Level) Enabled(target Level) bool {
	return l <= target
}
