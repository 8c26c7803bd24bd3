package main

import (
	"errors"
	"os"
	"os/exec"

	"github.com/howardjohn/lastline/cmd"
	"github.com/howardjohn/lastline/internal/log"
)

func main() {
	err := cmd.Run(os.Args[0], os.Args[1:])
	if err == nil {
		return
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code <= 0 {
			code = 1
		}
		os.Exit(code)
	}
	log.Errorf("%v", err)
	os.Exit(3)
}
