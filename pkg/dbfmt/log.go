package dbfmt

import (
	"io"
	"log"
	"os"
)

// Logger is a thin wrapper around the standard logger, kept centralized so
// call sites read the way the teacher's fmt.Fprintf(os.Stderr, ...) calls
// did, without scattering *log.Logger construction across packages.
type Logger struct {
	l *log.Logger
}

func NewLogger(prefix string) *Logger {
	return &Logger{l: log.New(os.Stderr, prefix+" ", log.LstdFlags)}
}

func NewLoggerTo(w io.Writer, prefix string) *Logger {
	return &Logger{l: log.New(w, prefix+" ", log.LstdFlags)}
}

func (lg *Logger) Infof(format string, args ...interface{})  { lg.l.Printf("INFO "+format, args...) }
func (lg *Logger) Warnf(format string, args ...interface{})  { lg.l.Printf("WARN "+format, args...) }
func (lg *Logger) Errorf(format string, args ...interface{}) { lg.l.Printf("ERROR "+format, args...) }

var std = NewLogger("[aodsql]")

func Infof(format string, args ...interface{})  { std.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { std.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { std.Errorf(format, args...) }
