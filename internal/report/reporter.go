package report

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

// ConsoleSink writes a formatted line for the operator.
type ConsoleSink interface {
	WriteLine(level Level, msg string)
}

// LogSink writes a message at the matching severity.
type LogSink interface {
	Log(level Level, msg string)
}

// Reporter mirrors status messages to a console and a log, filtering each
// destination by its own threshold.
type Reporter struct {
	console    ConsoleSink
	log        LogSink
	thresholds Thresholds
}

// NewReporter builds a Reporter. A nil sink is skipped.
func NewReporter(console ConsoleSink, logSink LogSink, thresholds Thresholds) *Reporter {
	t := make(Thresholds, len(thresholds))
	for k, v := range thresholds {
		t[k] = v
	}
	return &Reporter{console: console, log: logSink, thresholds: t}
}

// Report routes msg to every sink whose threshold admits level.
func (r *Reporter) Report(msg string, level Level) {
	if r.console != nil && ShouldEmit(level, Console, r.thresholds) {
		r.console.WriteLine(level, msg)
	}
	if r.log != nil && ShouldEmit(level, Log, r.thresholds) {
		r.log.Log(level, msg)
	}
}

// Debugf reports a formatted message at Debug.
func (r *Reporter) Debugf(format string, args ...any) { r.Report(fmt.Sprintf(format, args...), Debug) }

// Infof reports a formatted message at Info.
func (r *Reporter) Infof(format string, args ...any) { r.Report(fmt.Sprintf(format, args...), Info) }

// Noticef reports a formatted message at Notice.
func (r *Reporter) Noticef(format string, args ...any) { r.Report(fmt.Sprintf(format, args...), Notice) }

// Warningf reports a formatted message at Warning.
func (r *Reporter) Warningf(format string, args ...any) { r.Report(fmt.Sprintf(format, args...), Warning) }

// Errorf reports a formatted message at Error.
func (r *Reporter) Errorf(format string, args ...any) { r.Report(fmt.Sprintf(format, args...), Error) }

// Terminal is a ConsoleSink that tags each line with a severity style.
type Terminal struct {
	mu     sync.Mutex
	w      io.Writer
	styles map[Level]lipgloss.Style
}

// NewTerminal builds a console sink on w. Colors are dropped automatically
// when w is not a terminal.
func NewTerminal(w io.Writer) *Terminal {
	r := lipgloss.NewRenderer(w)
	danger := r.NewStyle().Foreground(lipgloss.Color("15")).Background(lipgloss.Color("1"))
	return &Terminal{
		w: w,
		styles: map[Level]lipgloss.Style{
			Emergency: danger.Bold(true),
			Alert:     danger.Bold(true),
			Critical:  danger,
			Error:     danger,
			Warning:   r.NewStyle().Foreground(lipgloss.Color("3")).Bold(true),
			Notice:    r.NewStyle().Foreground(lipgloss.Color("3")),
			Info:      r.NewStyle().Foreground(lipgloss.Color("2")),
			Debug:     r.NewStyle().Faint(true),
		},
	}
}

// WriteLine prints msg in the style of level.
func (t *Terminal) WriteLine(level Level, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	style, ok := t.styles[level]
	if !ok {
		_, _ = fmt.Fprintln(t.w, msg)
		return
	}
	_, _ = fmt.Fprintln(t.w, style.Render(msg))
}

// Logger adapts a charmbracelet logger into a LogSink. The syslog name is
// kept under the "severity" key since the logger has fewer levels.
type Logger struct {
	l *log.Logger
}

// NewLogger wraps l.
func NewLogger(l *log.Logger) *Logger {
	return &Logger{l: l}
}

// Log writes msg at the closest charm level.
func (s *Logger) Log(level Level, msg string) {
	switch {
	case level >= Debug:
		s.l.Debug(msg, "severity", level.String())
	case level >= Notice:
		s.l.Info(msg, "severity", level.String())
	case level == Warning:
		s.l.Warn(msg, "severity", level.String())
	default:
		s.l.Error(msg, "severity", level.String())
	}
}
