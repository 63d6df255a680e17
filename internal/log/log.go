// Package log provides the package-level Logger used by every other
// internal package, backed by tinylog.
package log

import (
	"fmt"
	"os"

	"github.com/realcp1018/tinylog"
)

// Logger is the process-wide logging facade. Every internal package calls
// log.Logger.Info/Warn/Error/Fatal with a printf-style format string.
var Logger = newLogger()

type logger struct {
	l *tinylog.TinyLogger
}

func newLogger() *logger {
	return &logger{l: tinylog.NewStreamLogger(tinylog.INFO)}
}

func (lg *logger) Debug(format string, args ...any) {
	if lg.l == nil {
		return
	}
	lg.l.Debug(format, args...)
}

func (lg *logger) Info(format string, args ...any) {
	if lg.l == nil {
		fmt.Printf(format+"\n", args...)
		return
	}
	lg.l.Info(format, args...)
}

func (lg *logger) Warn(format string, args ...any) {
	if lg.l == nil {
		fmt.Printf(format+"\n", args...)
		return
	}
	lg.l.Warn(format, args...)
}

func (lg *logger) Error(format string, args ...any) {
	if lg.l == nil {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
		return
	}
	lg.l.Error(format, args...)
}

// Fatal logs at error level and exits the process, used for unrecoverable
// configuration errors.
func (lg *logger) Fatal(format string, args ...any) {
	if lg.l != nil {
		lg.l.Error(format, args...)
	} else {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
	os.Exit(1)
}
