package log

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

type Level uint8

const (
	ErrorLevel Level = iota
	WarnLevel
	DebugLevel
)

var (
	level             = WarnLevel
	out   stringWriter = os.Stderr
)

type stringWriter interface {
	WriteString(s string) (n int, err error)
}

// SetLevel for the global logger.
func SetLevel(l Level) {
	level = l
}

// SetOutput for the global logger, used by tests.
func SetOutput(w stringWriter) {
	out = w
}

// Warnf prints the message to stderr, with a yellow WARN prefix.
func Warnf(format string, args ...interface{}) {
	if level < WarnLevel {
		return
	}
	_, _ = out.WriteString(color.YellowString("WARN "))
	_, _ = out.WriteString(fmt.Sprintf(format, args...))
	_, _ = out.WriteString("\n")
}

// Debugf prints the message to stderr, with no prefix.
func Debugf(format string, args ...interface{}) {
	if level < DebugLevel {
		return
	}
	_, _ = out.WriteString(fmt.Sprintf(format, args...))
	_, _ = out.WriteString("\n")
}

// Errorf prints the message to stderr, with a red ERROR prefix.
func Errorf(format string, args ...interface{}) {
	_, _ = out.WriteString(color.RedString("ERROR "))
	_, _ = out.WriteString(fmt.Sprintf(format, args...))
	_, _ = out.WriteString("\n")
}
