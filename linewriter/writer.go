/*
Package linewriter implements a Writer which keeps overwriting the last line
of a terminal, for progress indicators and status updates.

A line is replaced by returning the cursor to the start of the line with a
carriage return and, unless disabled, painting spaces over the previous text
first. No other escape sequences are used.
*/
package linewriter

import (
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/hashicorp/go-multierror"
)

// DefaultLineEnd is written by Close when the last line is not terminated.
const DefaultLineEnd = "\n"

type flusher interface {
	Flush() error
}

// Writer overwrites the last line written to out. The out writer is borrowed,
// Close never closes it.
//
// A Writer is not safe for concurrent use.
type Writer struct {
	out      io.Writer
	lineEnd  string
	lastLine string
}

// New returns a new Writer which terminates the last line with DefaultLineEnd.
// A nil out writes to os.Stdout.
func New(out io.Writer) *Writer {
	return NewWithLineEnd(out, DefaultLineEnd)
}

// NewWithLineEnd returns a new Writer which terminates the last line with
// lineEnd on Close.
func NewWithLineEnd(out io.Writer, lineEnd string) *Writer {
	if out == nil {
		out = os.Stdout
	}
	return &Writer{out: out, lineEnd: lineEnd}
}

// LastLine returns the text most recently sent to out, including the leading
// carriage return if one was added.
func (w *Writer) LastLine() string {
	return w.lastLine
}

// Write replaces the current line with p.
func (w *Writer) Write(p []byte) (int, error) {
	if err := w.Overwrite(string(p), true); err != nil {
		return 0, err
	}
	return len(p), nil
}

// WriteString replaces the current line with s.
func (w *Writer) WriteString(s string) (int, error) {
	if err := w.Overwrite(s, true); err != nil {
		return 0, err
	}
	return len(s), nil
}

// Overwrite writes text over the current line and flushes out. When
// clearBeforeWrite is true the current line is blanked first.
func (w *Writer) Overwrite(text string, clearBeforeWrite bool) error {
	if clearBeforeWrite {
		if err := w.ClearLine(); err != nil {
			return err
		}
	}
	if w.lastLine != "" {
		text = "\r" + text
	}
	w.lastLine = text

	if _, err := io.WriteString(w.out, text); err != nil {
		return err
	}
	if f, ok := w.out.(flusher); ok {
		return f.Flush()
	}
	return nil
}

// ClearLine paints spaces over the last line. It does nothing if nothing
// was written yet.
//
// The spaces become the last line, so calling ClearLine again clears the
// line of spaces once more.
func (w *Writer) ClearLine() error {
	if w.lastLine == "" {
		return nil
	}
	n := utf8.RuneCountInString(w.lastLine)
	return w.Overwrite(strings.Repeat(" ", n), false)
}

// Close terminates the last line with the line end, unless nothing was
// written or the last line already ends with it. An empty line end never
// terminates a line, so Close returns the cursor to the start of the line.
func (w *Writer) Close() error {
	if w.lastLine == "" {
		return nil
	}
	if w.lineEnd != "" && strings.HasSuffix(w.lastLine, w.lineEnd) {
		return nil
	}
	return w.Overwrite(w.lineEnd, false)
}

// With calls fn with w and closes w when fn returns or panics. Errors from fn
// and Close are both returned.
func With(w *Writer, fn func(w *Writer) error) (err error) {
	defer func() {
		if closeErr := w.Close(); closeErr != nil {
			if err == nil {
				err = closeErr
				return
			}
			err = multierror.Append(err, closeErr)
		}
	}()
	return fn(w)
}
