package esexec

import "fmt"

// Severity classifies an outbound notification.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityError
)

// String renders the severity the way the notification payload expects it.
func (s Severity) String() string {
	if s == SeverityError {
		return "ERROR"
	}
	return "INFO"
}

// EventSink is the destination for the two kinds of outbound
// notification this package emits: structured event records and
// append-only syslog lines. Event/Syslog subsystems are out of scope
// (spec.md section 1); this package only ever calls through this
// interface.
type EventSink interface {
	// Event records a structured notification with a reverse-domain
	// event id (see the Event* constants below), a severity, and a
	// printf-style message.
	Event(id string, severity Severity, format string, args ...any)

	// Syslog appends one line to the append-only syslog stream.
	Syslog(format string, args ...any)
}

// Event type constants, following CloudEvents reverse-domain notation.
// This is the finite taxonomy covering all six control-request outcomes
// plus creation/load failures (spec.md section 6).
const (
	EventExitAppInf    = "com.esexec.app.exit.completed"
	EventExitAppErr    = "com.esexec.app.exit.failed"
	EventErrExitAppInf = "com.esexec.app.errorexit.completed"
	EventErrExitAppErr = "com.esexec.app.errorexit.failed"
	EventStopInf       = "com.esexec.app.stop.completed"
	EventStopErr       = "com.esexec.app.stop.failed"
	EventRestartAppInf = "com.esexec.app.restart.completed"
	EventRestartAppErr = "com.esexec.app.restart.failed"
	EventReloadAppInf  = "com.esexec.app.reload.completed"
	EventReloadAppErr  = "com.esexec.app.reload.failed"
	EventPCRErr1       = "com.esexec.app.control.invalid_state"
	EventPCRErr2       = "com.esexec.app.control.unknown_request"
	EventAppCreateErr  = "com.esexec.app.create.failed"
	EventLoadLibErr    = "com.esexec.lib.load.failed"
)

// nopSink discards everything. It is the zero-value-friendly default for
// code paths that construct a Creator without an external event/syslog
// subsystem wired in (e.g. unit tests).
type nopSink struct{}

func (nopSink) Event(string, Severity, string, ...any) {}
func (nopSink) Syslog(string, ...any)                  {}

// NopSink returns an EventSink that discards all notifications.
func NopSink() EventSink { return nopSink{} }

// LogSink adapts a Logger into an EventSink, for deployments that don't
// run a separate event/syslog subsystem. Events are logged at Info or
// Error depending on severity; syslog lines are logged at Debug.
type LogSink struct {
	logger Logger
}

// NewLogSink builds an EventSink backed by logger.
func NewLogSink(logger Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Event(id string, severity Severity, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if severity == SeverityError {
		s.logger.Error(msg, "event_id", id)
	} else {
		s.logger.Info(msg, "event_id", id)
	}
}

func (s *LogSink) Syslog(format string, args ...any) {
	s.logger.Debug(fmt.Sprintf(format, args...))
}
