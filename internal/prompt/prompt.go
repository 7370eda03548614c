// Package prompt asks the operator to pick one entry from a numbered
// list. Input that is not a number in range is ignored and the prompt
// waits for the next line; there is no retry limit.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrNoInput is returned when the input ends before a valid choice.
var ErrNoInput = errors.New("prompt: input closed before a valid choice")

// Chooser reads choices from in and writes the list to out.
type Chooser struct {
	in  *bufio.Scanner
	out io.Writer
}

// New returns a Chooser. The same Chooser should be reused for every
// question so buffered input is not lost between prompts.
func New(in io.Reader, out io.Writer) *Chooser {
	return &Chooser{in: bufio.NewScanner(in), out: out}
}

// Choose prints title and options numbered from 1, then reads lines until
// one holds a number in [1, len(options)]. It returns the zero-based
// index of the chosen option.
func (c *Chooser) Choose(title string, options []string) (int, error) {
	if len(options) == 0 {
		return 0, errors.New("prompt: nothing to choose from")
	}
	fmt.Fprintln(c.out, title)
	for i, opt := range options {
		fmt.Fprintf(c.out, "%d: %s\n", i+1, opt)
	}
	for c.in.Scan() {
		n, err := strconv.Atoi(strings.TrimSpace(c.in.Text()))
		if err != nil || n < 1 || n > len(options) {
			continue
		}
		fmt.Fprintf(c.out, "%s selected.\n", options[n-1])
		return n - 1, nil
	}
	if err := c.in.Err(); err != nil {
		return 0, fmt.Errorf("prompt: %w", err)
	}
	return 0, ErrNoInput
}
