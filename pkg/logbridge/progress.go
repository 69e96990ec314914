package logbridge

import (
	"fmt"

	"github.com/kdeps/embedmongo/pkg/logging"
)

// ProgressListener receives download and extraction progress.
type ProgressListener interface {
	Start(label string)
	Progress(label string, percent int)
	Info(label, message string)
	Done(label string)
}

type logProgressListener struct {
	logger *logging.Logger
}

// NewProgressListener logs every progress event at debug.
func NewProgressListener(logger *logging.Logger) ProgressListener {
	return &logProgressListener{logger: logger}
}

func (p *logProgressListener) Start(label string) {
	Debug.Log(p.logger, fmt.Sprintf("%s starting...", label))
}

func (p *logProgressListener) Progress(label string, percent int) {
	Debug.Log(p.logger, fmt.Sprintf("%s %d%%", label, percent))
}

func (p *logProgressListener) Info(label, message string) {
	Debug.Log(p.logger, fmt.Sprintf("%s %s", label, message))
}

func (p *logProgressListener) Done(label string) {
	Debug.Log(p.logger, fmt.Sprintf("%s finished", label))
}

// NopProgressListener discards every event.
type NopProgressListener struct{}

func (NopProgressListener) Start(string)         {}
func (NopProgressListener) Progress(string, int) {}
func (NopProgressListener) Info(string, string)  {}
func (NopProgressListener) Done(string)          {}
