package logx

import (
	"fmt"
	"sort"
	"strings"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorGreen  = "\033[32m"

	colorBoldRed = "\033[1;31m"
)

// ConsoleFormatter formats logs for console output with colors
type ConsoleFormatter struct {
	config *Config
}

// NewConsoleFormatter creates a new console formatter
func NewConsoleFormatter(config *Config) *ConsoleFormatter {
	return &ConsoleFormatter{config: config}
}

// Format formats a log entry for console output
func (f *ConsoleFormatter) Format(entry *LogEntry) ([]byte, error) {
	var builder strings.Builder

	if f.config.EnableTimestamp {
		ts := formatTimestamp(entry.Timestamp, f.config.TimeFormat)
		if f.config.EnableColors {
			builder.WriteString(colorGray + ts + colorReset)
		} else {
			builder.WriteString(ts)
		}
		builder.WriteByte(' ')
	}

	level := fmt.Sprintf("%-5s", entry.Level.String())
	if f.config.EnableColors {
		builder.WriteString(f.levelColor(entry.Level) + level + colorReset)
	} else {
		builder.WriteString(level)
	}
	builder.WriteByte(' ')

	if f.config.EnableCaller && entry.Caller != "" {
		builder.WriteString(entry.Caller)
		builder.WriteByte(' ')
	}

	builder.WriteString(entry.Message)

	if len(entry.Fields) > 0 {
		keys := make([]string, 0, len(entry.Fields))
		for k := range entry.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			builder.WriteString(fmt.Sprintf(" %s=%v", k, entry.Fields[k]))
		}
	}

	if entry.Error != nil {
		if f.config.EnableColors {
			builder.WriteString(" " + colorRed + "error=" + entry.Error.Error() + colorReset)
		} else {
			builder.WriteString(" error=" + entry.Error.Error())
		}
	}

	if entry.Data != nil {
		builder.WriteString(" data=" + compactJSON(entry.Data))
	}

	builder.WriteByte('\n')
	return []byte(builder.String()), nil
}

func (f *ConsoleFormatter) levelColor(level Level) string {
	switch level {
	case LevelTrace, LevelDebug:
		return colorGray
	case LevelInfo:
		return colorGreen
	case LevelWarn:
		return colorYellow
	case LevelError:
		return colorRed
	case LevelFatal:
		return colorBoldRed
	default:
		return colorCyan
	}
}
