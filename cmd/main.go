package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/dnephin/pflag"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/term"

	"github.com/howardjohn/lastline/internal/log"
	"github.com/howardjohn/lastline/linewriter"
)

var version = "dev"

// Run the lastline command with the command line arguments in args.
func Run(name string, args []string) error {
	flags, opts := setupFlags(name)
	switch err := flags.Parse(args); {
	case err == pflag.ErrHelp:
		return nil
	case err != nil:
		usage(os.Stderr, name, flags)
		return err
	}
	opts.args = flags.Args()
	setupLogging(opts)

	if opts.version {
		fmt.Fprintf(opts.stdout, "lastline version %s\n", version)
		return nil
	}
	if err := opts.Validate(); err != nil {
		return err
	}
	return run(opts)
}

func setupFlags(name string) (*pflag.FlagSet, *options) {
	opts := &options{
		stdin:          os.Stdin,
		stdout:         os.Stdout,
		stderr:         os.Stderr,
		isTerminal:     func() bool { return term.IsTerminal(int(os.Stdout.Fd())) },
		postRunHookCmd: &commandValue{},
	}
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.SetInterspersed(false)
	flags.Usage = func() {
		usage(os.Stdout, name, flags)
	}

	flags.StringVar(&opts.rawLineEnd, "line-end",
		lookEnvWithDefault("LASTLINE_LINE_END", `\n`),
		"written after the last line when output ends, escape sequences are interpreted")
	flags.DurationVar(&opts.interval, "interval",
		durationFromEnv("LASTLINE_INTERVAL", 100*time.Millisecond),
		"minimum time between redraws, 0 redraws on every line")
	flags.BoolVar(&opts.elapsed, "elapsed", false,
		"prefix the line with the time elapsed since start")
	flags.IntVar(&opts.spinner, "spinner", -1,
		"prefix the line with a spinner from this character set")
	flags.BoolVar(&opts.noClear, "no-clear", false,
		"do not paint spaces over the previous line before drawing")
	flags.StringVar(&opts.follow, "follow", "",
		"show lines appended to this file instead of stdin")
	flags.BoolVar(&opts.plain, "plain", false,
		"print every line on its own line, the default when stdout is not a terminal")
	flags.BoolVar(&opts.force, "force", false,
		"overwrite the line even when stdout is not a terminal")

	if err := opts.postRunHookCmd.Set(lookEnvWithDefault("LASTLINE_POST_RUN_COMMAND", "")); err != nil {
		log.Warnf("invalid LASTLINE_POST_RUN_COMMAND: %v", err)
	}
	flags.Var(opts.postRunHookCmd, "post-run-command",
		"command to run after the output is finished")

	flags.BoolVar(&opts.debug, "debug", os.Getenv("LASTLINE_DEBUG") != "",
		"enabled debug logging")
	flags.BoolVar(&opts.version, "version", false,
		"show version and exit")
	return flags, opts
}

func usage(out io.Writer, name string, flags *pflag.FlagSet) {
	fmt.Fprintf(out, `Usage:
    %[1]s [flags] [--] [command [args...]]

Show a stream of lines as a single line which is overwritten in place. Lines
are read from stdin, from the combined output of command, or from a file
with --follow.

Flags:
`, name)
	flags.SetOutput(out)
	flags.PrintDefaults()
	fmt.Fprint(out, `
Spinner character sets are listed at
https://github.com/briandowns/spinner#available-character-sets
`)
}

func lookEnvWithDefault(key, defValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defValue
}

func durationFromEnv(key string, defValue time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Warnf("invalid %s: %v", key, err)
		return defValue
	}
	return d
}

type options struct {
	rawLineEnd     string
	lineEnd        string
	interval       time.Duration
	elapsed        bool
	spinner        int
	noClear        bool
	follow         string
	plain          bool
	force          bool
	postRunHookCmd *commandValue
	debug          bool
	version        bool
	args           []string

	stdin      io.Reader
	stdout     io.Writer
	stderr     io.Writer
	isTerminal func() bool
}

func (o *options) Validate() error {
	lineEnd, err := strconv.Unquote(`"` + o.rawLineEnd + `"`)
	if err != nil {
		return fmt.Errorf("invalid value for --line-end %q: %w", o.rawLineEnd, err)
	}
	o.lineEnd = lineEnd

	if o.spinner != -1 {
		if _, ok := spinner.CharSets[o.spinner]; !ok {
			return fmt.Errorf("unknown spinner character set %d", o.spinner)
		}
	}
	if o.interval < 0 {
		return fmt.Errorf("--interval must not be negative")
	}
	if o.follow != "" && len(o.args) > 0 {
		return fmt.Errorf("--follow can not be used with a command")
	}
	if o.plain && o.force {
		return fmt.Errorf("--plain can not be used with --force")
	}
	return nil
}

func (o *options) overwrite() bool {
	if o.plain {
		return false
	}
	return o.force || o.isTerminal()
}

func setupLogging(opts *options) {
	if opts.debug {
		log.SetLevel(log.DebugLevel)
	}
}

func run(opts *options) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	// restore the default handler so that a second signal kills the process
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	out := bufio.NewWriter(opts.stdout)
	r := newRenderer(opts)
	src := newSource(opts)

	var err error
	if opts.overwrite() {
		w := linewriter.NewWithLineEnd(out, opts.lineEnd)
		err = linewriter.With(w, func(w *linewriter.Writer) error {
			r.out = w
			return r.run(ctx, src)
		})
	} else {
		p := &plainPrinter{out: out}
		r.out = p
		err = r.run(ctx, src)
		if closeErr := p.Close(); closeErr != nil {
			err = multierror.Append(err, closeErr)
		}
	}
	if stoppedBySignal(ctx, err) {
		log.Debugf("stopped by signal: %v", err)
		err = nil
	}

	if hookErr := postRunHook(opts, r.summary(), err); hookErr != nil {
		err = multierror.Append(err, fmt.Errorf("post run command failed: %w", hookErr))
	}
	return err
}

// stoppedBySignal returns true when err is the result of ctx being cancelled
// by a signal. A command source reports the exit of the terminated command
// instead of the context error.
func stoppedBySignal(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() == nil {
		return false
	}
	var exitErr *exec.ExitError
	return errors.Is(err, context.Canceled) || errors.As(err, &exitErr)
}
