// Package logbridge forwards mongod output and download progress into the
// application logger.
package logbridge

import "github.com/kdeps/embedmongo/pkg/logging"

// Level selects the severity a stream is forwarded at.
type Level int

const (
	Trace Level = iota
	Debug
	Info
	Warn
	Error
)

var forwarders = [...]func(*logging.Logger, string){
	Trace: func(l *logging.Logger, msg string) { l.Trace(msg) },
	Debug: func(l *logging.Logger, msg string) { l.Debug(msg) },
	Info:  func(l *logging.Logger, msg string) { l.Info(msg) },
	Warn:  func(l *logging.Logger, msg string) { l.Warn(msg) },
	Error: func(l *logging.Logger, msg string) { l.Error(msg) },
}

var names = [...]string{Trace: "trace", Debug: "debug", Info: "info", Warn: "warn", Error: "error"}

// Log writes msg to logger at lv. Out-of-range levels log at info.
func (lv Level) Log(logger *logging.Logger, msg string) {
	if lv < Trace || lv > Error {
		lv = Info
	}
	forwarders[lv](logger, msg)
}

func (lv Level) String() string {
	if lv < Trace || lv > Error {
		return "unknown"
	}
	return names[lv]
}
