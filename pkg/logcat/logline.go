// Package logcat parses the text produced by `adb logcat -v epoch,uid`.
package logcat

// Level is the single-character logcat priority code.
type Level string

const (
	LevelError   Level = "E"
	LevelWarn    Level = "W"
	LevelInfo    Level = "I"
	LevelDebug   Level = "D"
	LevelVerbose Level = "V"
)

// Levels lists every accepted code, most verbose first.
var Levels = []Level{LevelVerbose, LevelDebug, LevelInfo, LevelWarn, LevelError}

// ParseLevel accepts exactly one of the five logcat codes.
func ParseLevel(s string) (Level, bool) {
	switch Level(s) {
	case LevelError, LevelWarn, LevelInfo, LevelDebug, LevelVerbose:
		return Level(s), true
	}
	return "", false
}

func (l Level) String() string { return string(l) }

// Name returns the long lowercase name ("error", "warn", ...).
func (l Level) Name() string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarn:
		return "warn"
	case LevelInfo:
		return "info"
	case LevelDebug:
		return "debug"
	case LevelVerbose:
		return "verbose"
	default:
		return "unknown"
	}
}

// Rank orders levels by severity: V=0 up to E=4. Unknown levels rank -1.
func (l Level) Rank() int {
	for i, lv := range Levels {
		if lv == l {
			return i
		}
	}
	return -1
}

// LogLine is one structured logcat record.
type LogLine struct {
	Timestamp uint64 `json:"timestamp"` // ms since epoch
	UID       string `json:"uid"`
	PID       uint32 `json:"pid"`
	TID       uint32 `json:"tid"`
	Level     Level  `json:"level"`
	Tag       string `json:"tag"`
	Msg       string `json:"msg"`
}
