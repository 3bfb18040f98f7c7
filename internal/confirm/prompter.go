package confirm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
)

// StaticPrompter answers every prompt with the same decision. A relay running
// without a terminal uses StaticPrompter{Decision: Cancel}.
type StaticPrompter struct {
	Decision Decision
}

func (sp StaticPrompter) Prompt(ctx context.Context, req Request) (Decision, error) {
	return sp.Decision, nil
}

// TerminalPrompter asks on an interactive terminal. Prompts are shown one at
// a time. An answer only counts for the prompt that was on screen when it was
// typed; lines read before a prompt was shown are discarded.
type TerminalPrompter struct {
	out io.Writer

	mu        sync.Mutex
	startOnce sync.Once
	in        io.Reader
	lines     chan promptLine
	shown     atomic.Uint64
}

// promptLine is a line of input stamped with the prompt it answers
type promptLine struct {
	text   string
	prompt uint64
}

func NewTerminalPrompter(in io.Reader, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{in: in, out: out, lines: make(chan promptLine, 16)}
}

func (tp *TerminalPrompter) readLines() {
	scanner := bufio.NewScanner(tp.in)
	for scanner.Scan() {
		tp.lines <- promptLine{text: scanner.Text(), prompt: tp.shown.Load()}
	}
	close(tp.lines)
}

func (tp *TerminalPrompter) Prompt(ctx context.Context, req Request) (Decision, error) {
	tp.startOnce.Do(func() { go tp.readLines() })

	tp.mu.Lock()
	defer tp.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Cancel, err
	}

	current := tp.shown.Add(1)

	fmt.Fprintln(tp.out)
	fmt.Fprintln(tp.out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Fprintf(tp.out, "Confirmation required: %s\n", req.Method)
	fmt.Fprintf(tp.out, "Account:  %s\n", req.Account)
	fmt.Fprintf(tp.out, "Session:  %s\n", req.Topic)
	fmt.Fprintf(tp.out, "Summary:  %s\n", req.Summary)
	if len(req.Details) > 0 {
		if details, err := json.MarshalIndent(req.Details, "          ", "  "); err == nil {
			fmt.Fprintf(tp.out, "Details:  %s\n", details)
		}
	}
	if req.SimulationError != "" {
		fmt.Fprintf(tp.out, "WARNING:  simulation failed: %s\n", req.SimulationError)
	}
	fmt.Fprintln(tp.out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Fprint(tp.out, "Approve? (yes/no): ")

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(tp.out, "\nConfirmation expired.")
			return Cancel, ctx.Err()
		case line, ok := <-tp.lines:
			if !ok {
				return Cancel, io.EOF
			}
			// Typed before this prompt was shown
			if line.prompt != current {
				continue
			}
			return parseAnswer(line.text), nil
		}
	}
}

func parseAnswer(line string) Decision {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return Approve
	default:
		return Cancel
	}
}
