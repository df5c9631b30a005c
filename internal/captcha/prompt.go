package captcha

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
)

// Prompter blocks until a human signals that a manually escalated challenge
// has been dealt with.
type Prompter interface {
	WaitForContinue(ctx context.Context) error
}

// StdinPrompter waits for a newline on an input stream. It is the attended
// mode prompter used when the browser runs with a visible window.
type StdinPrompter struct {
	In  io.Reader
	Out io.Writer
}

// NewStdinPrompter returns a prompter reading from stdin.
func NewStdinPrompter() *StdinPrompter {
	return &StdinPrompter{In: os.Stdin, Out: os.Stderr}
}

// WaitForContinue prints instructions and blocks until a line is read or the
// context is cancelled.
func (p *StdinPrompter) WaitForContinue(ctx context.Context) error {
	fmt.Fprintln(p.Out, "Complete the verification in the browser window, then press Enter to continue...")

	done := make(chan error, 1)
	go func() {
		reader := bufio.NewReader(p.In)
		_, err := reader.ReadString('\n')
		done <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil && err != io.EOF {
			return err
		}
		return nil
	}
}
