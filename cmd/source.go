package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/howardjohn/lastline/internal/log"
)

// source reads lines and calls emit with each one, until the input ends or
// ctx is cancelled.
type source func(ctx context.Context, emit func(line string) error) error

func newSource(opts *options) source {
	switch {
	case opts.follow != "":
		return followSource(opts.follow)
	case len(opts.args) > 0:
		return commandSource(opts.args)
	default:
		return readerSource(opts.stdin)
	}
}

const maxLineSize = 1024 * 1024

func scanLines(ctx context.Context, in io.Reader, emit func(line string) error) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(scanner.Text()); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// readerSource emits the lines read from in. A read blocked on an idle
// reader, such as a terminal, is abandoned when ctx is cancelled.
func readerSource(in io.Reader) source {
	return func(ctx context.Context, emit func(line string) error) error {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		lines := make(chan string)
		scanErr := make(chan error, 1)
		go func() {
			scanErr <- scanLines(ctx, in, func(line string) error {
				select {
				case lines <- line:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			})
		}()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case line := <-lines:
				if err := emit(line); err != nil {
					return err
				}
			case err := <-scanErr:
				return err
			}
		}
	}
}

var errOutputClosed = errors.New("output closed")

// commandSource runs args as a command and emits the lines of its combined
// stdout and stderr. The error from the command is returned so that its exit
// code can be used by main.
func commandSource(args []string) source {
	return func(ctx context.Context, emit func(line string) error) error {
		cmd := exec.CommandContext(ctx, args[0], args[1:]...)
		cmd.Cancel = func() error {
			return terminate(cmd.Process)
		}
		cmd.WaitDelay = 5 * time.Second

		pr, pw := io.Pipe()
		cmd.Stdout = pw
		cmd.Stderr = pw

		log.Debugf("exec: %s", args)
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("failed to run %s: %w", args[0], err)
		}
		waitErr := make(chan error, 1)
		go func() {
			err := cmd.Wait()
			_ = pw.Close()
			waitErr <- err
		}()

		scanErr := scanLines(ctx, pr, emit)
		// unblock the command if lines are no longer being read
		_ = pr.CloseWithError(errOutputClosed)
		err := <-waitErr

		switch {
		case scanErr != nil && !isContextErr(scanErr):
			return scanErr
		case err != nil:
			return err
		default:
			return scanErr
		}
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// followSource emits the last line of path, followed by every line appended
// to path. It returns when path is removed or renamed.
func followSource(path string) source {
	return func(ctx context.Context, emit func(line string) error) error {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("failed to create file watcher: %w", err)
		}
		defer watcher.Close()

		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}

		t := &tailer{path: path, emit: emit}
		if err := t.readInitial(); err != nil {
			return err
		}
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				log.Debugf("follow: %v", event)
				switch {
				case event.Has(fsnotify.Write):
					if err := t.readNew(); err != nil {
						return err
					}
				case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
					return t.flushPartial()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				return fmt.Errorf("failed to watch %s: %w", path, err)
			}
		}
	}
}

// tailer reads the lines appended to a file.
type tailer struct {
	path    string
	offset  int64
	partial string
	emit    func(line string) error
}

// readInitial emits the last non-empty complete line of the file and moves
// the offset to the end of the file.
func (t *tailer) readInitial() error {
	content, err := os.ReadFile(t.path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", t.path, err)
	}
	t.offset = int64(len(content))

	lines := strings.Split(string(content), "\n")
	t.partial = lines[len(lines)-1]
	for i := len(lines) - 2; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			return t.emit(lines[i])
		}
	}
	return nil
}

// readNew emits every line completed since the last read. A file which
// shrank is read again from the start.
func (t *tailer) readNew() error {
	f, err := os.Open(t.path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", t.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", t.path, err)
	}
	if info.Size() < t.offset {
		log.Debugf("follow: %s was truncated", t.path)
		t.offset = 0
		t.partial = ""
	}
	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return fmt.Errorf("failed to read %s: %w", t.path, err)
	}
	buf, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", t.path, err)
	}
	t.offset += int64(len(buf))

	lines := strings.Split(t.partial+string(buf), "\n")
	t.partial = lines[len(lines)-1]
	for _, line := range lines[:len(lines)-1] {
		if err := t.emit(line); err != nil {
			return err
		}
	}
	return nil
}

// flushPartial emits the text after the last newline, if there is any.
func (t *tailer) flushPartial() error {
	if t.partial == "" {
		return nil
	}
	line := t.partial
	t.partial = ""
	return t.emit(line)
}
