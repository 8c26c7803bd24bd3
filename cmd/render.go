package cmd

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"golang.org/x/sync/errgroup"

	"github.com/howardjohn/lastline/internal/log"
)

// printer draws a line of text. It is implemented by linewriter.Writer.
type printer interface {
	Overwrite(text string, clearBeforeWrite bool) error
}

// plainPrinter prints every line on its own line, for output which is not a
// terminal.
type plainPrinter struct {
	out *bufio.Writer
}

func (p *plainPrinter) Overwrite(text string, _ bool) error {
	_, _ = p.out.WriteString(text)
	_ = p.out.WriteByte('\n')
	return p.out.Flush()
}

func (p *plainPrinter) Close() error {
	return p.out.Flush()
}

type renderer struct {
	out      printer
	interval time.Duration
	elapsed  bool
	frames   []string
	noClear  bool
	now      func() time.Time

	mu     sync.Mutex
	start  time.Time
	latest string
	last   string
	lines  int
	tick   int
}

type summary struct {
	lastLine string
	lines    int
}

func newRenderer(opts *options) *renderer {
	r := &renderer{
		interval: opts.interval,
		elapsed:  opts.elapsed,
		noClear:  opts.noClear,
		now:      time.Now,
	}
	if opts.spinner != -1 {
		r.frames = spinner.CharSets[opts.spinner]
	}
	return r
}

// run reads lines from src until it ends, and draws them to r.out.
func (r *renderer) run(ctx context.Context, src source) error {
	r.start = r.now()
	if r.interval <= 0 {
		return src(ctx, func(line string) error {
			r.update(line)
			return r.write()
		})
	}

	g, ctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	g.Go(func() error {
		defer close(done)
		return src(ctx, func(line string) error {
			r.update(line)
			return nil
		})
	})
	g.Go(func() error {
		return r.runWriter(done)
	})
	return g.Wait()
}

func (r *renderer) runWriter(done <-chan struct{}) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-done:
			return r.write()
		case <-t.C:
			if err := r.write(); err != nil {
				return err
			}
		}
	}
}

func (r *renderer) update(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latest = sanitizeLine(line)
	r.lines++
}

func (r *renderer) write() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	text := r.prefix() + r.latest
	r.tick++
	if text == r.last {
		return nil
	}
	r.last = text
	if err := r.out.Overwrite(text, !r.noClear); err != nil {
		log.Debugf("failed to draw line: %v", err)
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *renderer) prefix() string {
	var b strings.Builder
	if r.elapsed {
		fmt.Fprintf(&b, "%7s ", fmtElapsed(r.now().Sub(r.start)))
	}
	if len(r.frames) > 0 {
		b.WriteString(r.frames[r.tick%len(r.frames)])
		b.WriteString(" ")
	}
	return b.String()
}

func (r *renderer) summary() summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return summary{lastLine: r.latest, lines: r.lines}
}

// sanitizeLine removes carriage returns from line. Only the text after the
// last carriage return is kept, since that is what a terminal would show.
func sanitizeLine(line string) string {
	line = strings.TrimRight(line, "\r")
	if i := strings.LastIndexByte(line, '\r'); i >= 0 {
		return line[i+1:]
	}
	return line
}

// fmtElapsed formats elapsed in at most 7 characters, dropping precision as
// the duration grows.
func fmtElapsed(elapsed time.Duration) string {
	const maxWidth = 7
	switch {
	case elapsed <= 0:
		return "0s"
	case elapsed >= 100*time.Hour:
		return ">99h"
	}

	steps := []time.Duration{
		time.Millisecond,
		10 * time.Millisecond,
		100 * time.Millisecond,
		time.Second,
		time.Minute,
	}
	for _, trunc := range steps {
		if s := elapsed.Truncate(trunc).String(); len(s) <= maxWidth {
			return s
		}
	}
	return elapsed.Truncate(time.Hour).String()
}
