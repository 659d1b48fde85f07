package main

import (
	"fmt"
	"io"
)

// terminal shows navigation and notifications on the command line
type terminal struct {
	out io.Writer
}

func (t *terminal) Navigate(location string) {
	fmt.Fprintf(t.out, "-> %s\n", location)
}

func (t *terminal) Success(message string) {
	fmt.Fprintf(t.out, "ok: %s\n", message)
}

func (t *terminal) Error(message string) {
	fmt.Fprintf(t.out, "failed: %s\n", message)
}

func (t *terminal) sessionExpired(location string) {
	fmt.Fprintf(t.out, "Session expired, log in again (%s)\n", location)
}
