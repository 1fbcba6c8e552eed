package shared

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/trezcool/ulearn/core/lms"
)

// Prompt reads operator input: plain lines from `in`, secrets through ReadSecret.
type Prompt struct {
	in         *bufio.Reader
	out        io.Writer
	readSecret func() ([]byte, error)
}

func NewPrompt(in io.Reader, out io.Writer, readSecret func() ([]byte, error)) *Prompt {
	return &Prompt{in: bufio.NewReader(in), out: out, readSecret: readSecret}
}

func (p *Prompt) Out() io.Writer { return p.out }

func (p *Prompt) Printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(p.out, format, args...)
}

// Line prints `prompt` and returns one trimmed line. io.EOF is returned once input is exhausted.
func (p *Prompt) Line(prompt string) (string, error) {
	p.Printf("%s", prompt)
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Secret prints `prompt` and reads hidden input.
func (p *Prompt) Secret(prompt string) (string, error) {
	p.Printf("%s", prompt)
	secret, err := p.readSecret()
	p.Printf("\n")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(secret)), nil
}

// Confirm asks a yes/no question.
func (p *Prompt) Confirm(question string) bool {
	answer, err := p.Line(question + " (y/n): ")
	if err != nil {
		return false
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true
	}
	return false
}

// PromptCode asks the operator for the sign code of `c`.
func (p *Prompt) PromptCode(_ context.Context, c lms.Course) (string, error) {
	return p.Line(fmt.Sprintf("Sign code for %s: ", c.Name))
}
