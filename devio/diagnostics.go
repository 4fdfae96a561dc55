package devio

import (
	"fmt"
	"log"
	"os"
)

// Sink is the structured diagnostic record emitter (C8). It wraps a
// *log.Logger the way the teacher wraps one throughout nbd/connection.go,
// with severity-prefixed lines instead of devio.c's raw syslog/printf
// calls.
type Sink struct {
	logger *log.Logger
}

// NewSink builds a Sink around logger. Pass a logger whose output and flag
// set has already been chosen by the caller (see newLogger in main.go,
// which picks the flags via go-isatty).
func NewSink(logger *log.Logger) *Sink {
	return &Sink{logger: logger}
}

// Info logs an informational record.
func (s *Sink) Info(format string, args ...any) {
	s.logger.Printf("[INFO] "+format, args...)
}

// Warn logs a recoverable-condition record.
func (s *Sink) Warn(format string, args ...any) {
	s.logger.Printf("[WARN] "+format, args...)
}

// Error logs an error record.
func (s *Sink) Error(format string, args ...any) {
	s.logger.Printf("[ERROR] "+format, args...)
}

// Errno logs an error record with the platform error description appended,
// the Go equivalent of devio.c's "%m" template marker - Go's error values
// already carry a formatted platform description via %v, so no separate
// FormatMessage-style lookup is needed.
func (s *Sink) Errno(format string, err error, args ...any) {
	msg := fmt.Sprintf(format, args...)
	s.logger.Printf("[ERROR] %s: %v", msg, err)
}

// FatalExitCode is the distinct process exit status used when the last
// resort handler catches an unrecovered panic, mirroring devio.c's
// ExceptionFilter terminating with a distinctive status instead of the
// default runtime crash dump.
const FatalExitCode = 70

// InstallFatalHandler returns a deferred function that should be the first
// defer in main(): it recovers a panic, logs it through sink, and exits
// with FatalExitCode. Go has no SEH/vectored-exception-handler equivalent
// of devio.c's SetUnhandledExceptionFilter, so this catches at the top of
// the call stack instead of at the fault site; the fault's value and the
// call stack position are logged as the closest available analogue of
// devio.c's fault-code-and-address report.
func InstallFatalHandler(sink *Sink) func() {
	return func() {
		if r := recover(); r != nil {
			sink.Error("fatal: unhandled panic: %v", r)
			os.Exit(FatalExitCode)
		}
	}
}
