package logbridge

import (
	"bytes"
	"strings"
	"sync"

	"github.com/kdeps/embedmongo/pkg/logging"
)

// StreamProcessor consumes process output.
type StreamProcessor interface {
	Process(block string)
	OnProcessed()
}

type logStreamProcessor struct {
	logger *logging.Logger
	level  Level
}

// NewStreamProcessor returns a StreamProcessor logging every block at level.
func NewStreamProcessor(logger *logging.Logger, level Level) StreamProcessor {
	return &logStreamProcessor{logger: logger, level: level}
}

func (p *logStreamProcessor) Process(block string) {
	p.level.Log(p.logger, strings.TrimRight(block, "\r\n"))
}

func (p *logStreamProcessor) OnProcessed() {}

// ProcessOutput routes the three streams of a managed process.
type ProcessOutput struct {
	// Output receives the raw stdout of the process.
	Output StreamProcessor
	// Error receives stderr.
	Error StreamProcessor
	// Commands receives lifecycle lines such as the command being run.
	Commands StreamProcessor
}

// NewProcessOutput forwards stdout at trace, stderr at warn and commands at info.
func NewProcessOutput(logger *logging.Logger) ProcessOutput {
	return ProcessOutput{
		Output:   NewStreamProcessor(logger, Trace),
		Error:    NewStreamProcessor(logger, Warn),
		Commands: NewStreamProcessor(logger, Info),
	}
}

// LineWriter is an io.Writer that hands each complete line to a StreamProcessor.
// Close flushes a trailing partial line and signals OnProcessed.
type LineWriter struct {
	mu   sync.Mutex
	proc StreamProcessor
	buf  bytes.Buffer
}

// NewLineWriter wraps proc.
func NewLineWriter(proc StreamProcessor) *LineWriter {
	return &LineWriter{proc: proc}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		i := bytes.IndexByte(w.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := string(w.buf.Next(i + 1))
		w.proc.Process(line)
	}
	return len(p), nil
}

func (w *LineWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf.Len() > 0 {
		w.proc.Process(w.buf.String())
		w.buf.Reset()
	}
	w.proc.OnProcessed()
	return nil
}
