package linewriter

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

// fakeSink records every write separately and counts flushes.
type fakeSink struct {
	writes   []string
	flushes  int
	writeErr error
	flushErr error
}

func (s *fakeSink) Write(p []byte) (int, error) {
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	s.writes = append(s.writes, string(p))
	return len(p), nil
}

func (s *fakeSink) Flush() error {
	s.flushes++
	return s.flushErr
}

func TestWriter_FirstWriteHasNoCarriageReturn(t *testing.T) {
	sink := &fakeSink{}
	w := New(sink)

	n, err := w.WriteString("hello")
	assert.NilError(t, err)
	assert.Equal(t, n, 5)
	assert.DeepEqual(t, sink.writes, []string{"hello"})
	assert.Equal(t, sink.flushes, 1)
	assert.Equal(t, w.LastLine(), "hello")
}

func TestWriter_ProgressScenario(t *testing.T) {
	sink := &fakeSink{}
	err := With(New(sink), func(w *Writer) error {
		if _, err := w.WriteString("10%"); err != nil {
			return err
		}
		if err := w.Overwrite("20%", true); err != nil {
			return err
		}
		assert.Equal(t, w.LastLine(), "\r20%")
		return nil
	})
	assert.NilError(t, err)

	expected := []string{"10%", "\r   ", "\r20%", "\r\n"}
	if diff := cmp.Diff(expected, sink.writes); diff != "" {
		t.Fatalf("unexpected writes (-want +got):\n%s", diff)
	}
	assert.Equal(t, sink.flushes, len(expected))
}

func TestWriter_LastLineMatchesLastPayload(t *testing.T) {
	sink := &fakeSink{}
	w := New(sink)
	for _, text := range []string{"a", "bbb", "cc", "dddd"} {
		assert.NilError(t, w.Overwrite(text, true))
		assert.Equal(t, w.LastLine(), sink.writes[len(sink.writes)-1])
	}
}

func TestWriter_OverwriteWithoutClear(t *testing.T) {
	sink := &fakeSink{}
	w := New(sink)
	assert.NilError(t, w.Overwrite("long text", false))
	assert.NilError(t, w.Overwrite("short", false))
	assert.DeepEqual(t, sink.writes, []string{"long text", "\rshort"})
}

func TestWriter_WriteEmptyString(t *testing.T) {
	sink := &fakeSink{}
	w := New(sink)

	assert.NilError(t, w.Overwrite("", false))
	assert.DeepEqual(t, sink.writes, []string{""})
	assert.Equal(t, sink.flushes, 1)
	assert.Equal(t, w.LastLine(), "")

	assert.NilError(t, w.Overwrite("x", false))
	assert.NilError(t, w.Overwrite("", false))
	assert.DeepEqual(t, sink.writes, []string{"", "x", "\r"})
	assert.Equal(t, w.LastLine(), "\r")
}

func TestWriter_Write(t *testing.T) {
	sink := &fakeSink{}
	w := New(sink)
	_, err := w.Write([]byte("ab"))
	assert.NilError(t, err)
	n, err := w.Write([]byte("c"))
	assert.NilError(t, err)
	assert.Equal(t, n, 1)
	assert.DeepEqual(t, sink.writes, []string{"ab", "\r  ", "\rc"})
}

func TestClearLine(t *testing.T) {
	t.Run("nothing written", func(t *testing.T) {
		sink := &fakeSink{}
		w := New(sink)
		assert.NilError(t, w.ClearLine())
		assert.Equal(t, len(sink.writes), 0)
		assert.Equal(t, sink.flushes, 0)
	})

	t.Run("after first write", func(t *testing.T) {
		sink := &fakeSink{}
		w := New(sink)
		assert.NilError(t, w.Overwrite("text", false))
		assert.NilError(t, w.ClearLine())
		assert.DeepEqual(t, sink.writes, []string{"text", "\r    "})
		assert.Equal(t, w.LastLine(), "\r    ")
	})

	// The line of spaces is itself the last line, so each call clears it
	// again and the line grows by the carriage return.
	t.Run("repeated calls keep clearing", func(t *testing.T) {
		sink := &fakeSink{}
		w := New(sink)
		assert.NilError(t, w.Overwrite("ab", false))
		assert.NilError(t, w.ClearLine())
		assert.NilError(t, w.ClearLine())
		assert.DeepEqual(t, sink.writes, []string{"ab", "\r  ", "\r   "})
	})

	t.Run("counts characters not bytes", func(t *testing.T) {
		sink := &fakeSink{}
		w := New(sink)
		assert.NilError(t, w.Overwrite("héllo", false))
		assert.NilError(t, w.ClearLine())
		assert.Equal(t, sink.writes[1], "\r"+strings.Repeat(" ", 5))
	})
}

func TestClose(t *testing.T) {
	t.Run("nothing written", func(t *testing.T) {
		sink := &fakeSink{}
		assert.NilError(t, New(sink).Close())
		assert.Equal(t, len(sink.writes), 0)
		assert.Equal(t, sink.flushes, 0)
	})

	t.Run("unterminated line", func(t *testing.T) {
		sink := &fakeSink{}
		w := New(sink)
		assert.NilError(t, w.Overwrite("hello", true))
		assert.NilError(t, w.Close())
		assert.DeepEqual(t, sink.writes, []string{"hello", "\r\n"})
	})

	t.Run("already terminated", func(t *testing.T) {
		sink := &fakeSink{}
		w := New(sink)
		assert.NilError(t, w.Overwrite("done\n", false))
		assert.NilError(t, w.Close())
		assert.DeepEqual(t, sink.writes, []string{"done\n"})
	})

	t.Run("second close is a no-op", func(t *testing.T) {
		sink := &fakeSink{}
		w := New(sink)
		assert.NilError(t, w.Overwrite("x", false))
		assert.NilError(t, w.Close())
		assert.NilError(t, w.Close())
		assert.DeepEqual(t, sink.writes, []string{"x", "\r\n"})
	})

	t.Run("custom line end", func(t *testing.T) {
		sink := &fakeSink{}
		w := NewWithLineEnd(sink, "\r\n")
		assert.NilError(t, w.Overwrite("x", false))
		assert.NilError(t, w.Close())
		assert.DeepEqual(t, sink.writes, []string{"x", "\r\r\n"})
		assert.NilError(t, w.Close())
		assert.Equal(t, len(sink.writes), 2)
	})

	t.Run("empty line end returns to line start", func(t *testing.T) {
		sink := &fakeSink{}
		w := NewWithLineEnd(sink, "")
		assert.NilError(t, w.Overwrite("x", false))
		assert.NilError(t, w.Close())
		assert.DeepEqual(t, sink.writes, []string{"x", "\r"})
		assert.Equal(t, w.LastLine(), "\r")
	})

	t.Run("empty line end with nothing written", func(t *testing.T) {
		sink := &fakeSink{}
		assert.NilError(t, NewWithLineEnd(sink, "").Close())
		assert.Equal(t, len(sink.writes), 0)
	})

	t.Run("write after close resumes overwriting", func(t *testing.T) {
		sink := &fakeSink{}
		w := New(sink)
		assert.NilError(t, w.Overwrite("x", false))
		assert.NilError(t, w.Close())
		assert.NilError(t, w.Overwrite("y", false))
		assert.DeepEqual(t, sink.writes, []string{"x", "\r\n", "\ry"})
	})
}

func TestWriter_SinkWithoutFlush(t *testing.T) {
	buf := new(bytes.Buffer)
	w := New(buf)
	assert.NilError(t, w.Overwrite("abc", true))
	assert.NilError(t, w.Overwrite("d", true))
	assert.NilError(t, w.Close())
	assert.Equal(t, buf.String(), "abc\r   \rd\r\n")
}

func TestWriter_BufferedSinkIsFlushed(t *testing.T) {
	buf := new(bytes.Buffer)
	w := New(bufio.NewWriter(buf))
	assert.NilError(t, w.Overwrite("progress", true))
	assert.Equal(t, buf.String(), "progress")
}

func TestWriter_PropagatesSinkErrors(t *testing.T) {
	errWrite := errors.New("write failed")
	errFlush := errors.New("flush failed")

	t.Run("write", func(t *testing.T) {
		w := New(&fakeSink{writeErr: errWrite})
		n, err := w.WriteString("x")
		assert.Equal(t, err, errWrite)
		assert.Equal(t, n, 0)
	})

	t.Run("flush", func(t *testing.T) {
		w := New(&fakeSink{flushErr: errFlush})
		assert.Equal(t, w.Overwrite("x", false), errFlush)
	})

	t.Run("clear before write", func(t *testing.T) {
		sink := &fakeSink{}
		w := New(sink)
		assert.NilError(t, w.Overwrite("x", false))
		sink.writeErr = errWrite
		assert.Equal(t, w.Overwrite("y", true), errWrite)
	})
}

func TestWith(t *testing.T) {
	t.Run("closes after error", func(t *testing.T) {
		sink := &fakeSink{}
		errFn := errors.New("failed halfway")
		err := With(New(sink), func(w *Writer) error {
			_, _ = w.WriteString("step 1")
			return errFn
		})
		assert.Equal(t, err, errFn)
		assert.DeepEqual(t, sink.writes, []string{"step 1", "\r\n"})
	})

	t.Run("closes after panic", func(t *testing.T) {
		sink := &fakeSink{}
		func() {
			defer func() {
				assert.Equal(t, recover(), "boom")
			}()
			_ = With(New(sink), func(w *Writer) error {
				_, _ = w.WriteString("step 1")
				panic("boom")
			})
		}()
		assert.DeepEqual(t, sink.writes, []string{"step 1", "\r\n"})
	})

	t.Run("close error", func(t *testing.T) {
		sink := &fakeSink{}
		errClose := errors.New("sink gone")
		err := With(New(sink), func(w *Writer) error {
			_, _ = w.WriteString("x")
			sink.writeErr = errClose
			return nil
		})
		assert.Equal(t, err, errClose)
	})

	t.Run("both errors are reported", func(t *testing.T) {
		sink := &fakeSink{}
		errFn := errors.New("failed halfway")
		errClose := errors.New("sink gone")
		err := With(New(sink), func(w *Writer) error {
			_, _ = w.WriteString("x")
			sink.writeErr = errClose
			return errFn
		})
		assert.Assert(t, errors.Is(err, errFn))
		assert.Assert(t, errors.Is(err, errClose))
		assert.Assert(t, is.Contains(err.Error(), "failed halfway"))
		assert.Assert(t, is.Contains(err.Error(), "sink gone"))
	})
}
