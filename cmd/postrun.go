package cmd

import (
	"errors"
	"os"
	"os/exec"
	"strconv"

	"github.com/google/shlex"

	"github.com/howardjohn/lastline/internal/log"
)

// commandValue is a flag.Value for a command split into arguments using shell
// quoting rules.
type commandValue struct {
	original string
	command  []string
}

func (c *commandValue) String() string {
	return c.original
}

func (c *commandValue) Set(raw string) error {
	var err error
	c.command, err = shlex.Split(raw)
	c.original = raw
	return err
}

func (c *commandValue) Type() string {
	return "command"
}

func (c *commandValue) Value() []string {
	if c == nil {
		return nil
	}
	return c.command
}

func postRunHook(opts *options, s summary, runErr error) error {
	command := opts.postRunHookCmd.Value()
	if len(command) == 0 {
		return nil
	}
	log.Debugf("exec: %s", command)

	cmd := exec.Command(command[0], command[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = opts.stdout
	cmd.Stderr = opts.stderr
	cmd.Env = append(os.Environ(),
		"LASTLINE_LAST_LINE="+s.lastLine,
		"LASTLINE_LINES="+strconv.Itoa(s.lines),
		"LASTLINE_EXIT_CODE="+strconv.Itoa(exitCode(runErr)))
	return cmd.Run()
}

// exitCode returns the exit code of the command in err, 1 for any other
// error, or 0 when err is nil.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
		return exitErr.ExitCode()
	}
	return 1
}
