package report

import (
	"fmt"
	"strings"
)

// Level is a message severity on the syslog scale: lower is more severe.
type Level int

const (
	Emergency Level = iota
	Alert
	Critical
	Error
	Warning
	Notice
	Info
	Debug
)

var levelNames = [...]string{"emergency", "alert", "critical", "error", "warning", "notice", "info", "debug"}

func (l Level) String() string {
	if l < Emergency || l > Debug {
		return fmt.Sprintf("level(%d)", int(l))
	}
	return levelNames[l]
}

// ParseLevel resolves a severity name.
func ParseLevel(s string) (Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range levelNames {
		if name == s {
			return Level(i), nil
		}
	}
	return 0, fmt.Errorf("unknown level %q", s)
}

// Sink names a destination for reported messages.
type Sink string

const (
	Console Sink = "console"
	Log     Sink = "log"
)

// Thresholds holds the most verbose level each sink accepts. A sink without
// an entry is not filtered at all.
type Thresholds map[Sink]int

// ShouldEmit reports whether a message at level reaches sink.
func ShouldEmit(level Level, sink Sink, thresholds Thresholds) bool {
	limit, ok := thresholds[sink]
	if !ok {
		return true
	}
	return int(level) <= limit
}
