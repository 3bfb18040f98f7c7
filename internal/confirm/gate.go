// Package confirm implements the explicit user approval step that precedes
// every irreversible action taken by the relay.
package confirm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Trustflow-Network-Labs/signing-relay/internal/utils"
)

var (
	// ErrGateBusy is returned when a ticket is already open for the same key.
	ErrGateBusy = errors.New("a confirmation is already pending for this session")
	// ErrGateClosed is returned after Close.
	ErrGateClosed = errors.New("confirmation gate is closed")
)

// Decision is the terminal outcome of a ticket.
type Decision int

const (
	Cancel Decision = iota
	Approve
)

func (d Decision) String() string {
	if d == Approve {
		return "approve"
	}
	return "cancel"
}

// Request describes the pending action shown to the user.
type Request struct {
	TicketID        string         `json:"ticket_id"`
	Topic           string         `json:"topic"`
	RequestID       int64          `json:"request_id"`
	Method          string         `json:"method"`
	Account         string         `json:"account"`
	Summary         string         `json:"summary"`
	Details         map[string]any `json:"details,omitempty"`
	SimulationError string         `json:"simulation_error,omitempty"`
	OpenedAt        time.Time      `json:"opened_at"`
}

// Prompter asks the user for a decision. Returning an error counts as Cancel.
type Prompter interface {
	Prompt(ctx context.Context, req Request) (Decision, error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, req Request) (Decision, error)

func (f PrompterFunc) Prompt(ctx context.Context, req Request) (Decision, error) {
	return f(ctx, req)
}

// Gate hands out single-shot tickets, at most one open ticket per key.
// Every ticket reaches a decision: an explicit one, Cancel on timeout, or
// Cancel when the caller's context ends.
type Gate struct {
	mu       sync.Mutex
	open     map[string]*Ticket
	byID     map[string]*Ticket
	closed   bool
	prompter Prompter
	timeout  time.Duration
	logger   *utils.LogsManager

	// OnDecision, when set, observes every delivered decision.
	OnDecision func(req Request, d Decision)
}

// NewGate creates a gate. A nil prompter leaves tickets to be resolved through
// Resolve; timeout <= 0 disables the bounded wait (the context still applies).
func NewGate(prompter Prompter, timeout time.Duration, logger *utils.LogsManager) *Gate {
	return &Gate{
		open:     make(map[string]*Ticket),
		byID:     make(map[string]*Ticket),
		prompter: prompter,
		timeout:  timeout,
		logger:   logger,
	}
}

// Request opens a ticket for key and blocks until it is resolved.
func (g *Gate) Request(ctx context.Context, key string, req Request) (Decision, error) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return Cancel, ErrGateClosed
	}
	if _, busy := g.open[key]; busy {
		g.mu.Unlock()
		return Cancel, ErrGateBusy
	}
	req.TicketID = uuid.New().String()
	req.OpenedAt = time.Now()
	ticket := newTicket(req)
	g.open[key] = ticket
	g.byID[req.TicketID] = ticket
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		delete(g.open, key)
		delete(g.byID, req.TicketID)
		g.mu.Unlock()
	}()

	g.logger.Info(fmt.Sprintf("Confirmation %s opened for %s (topic %s, request %d)", req.TicketID, req.Method, req.Topic, req.RequestID), "confirm")

	promptCtx, cancelPrompt := context.WithCancel(ctx)
	defer cancelPrompt()
	if g.prompter != nil {
		go func() {
			d, err := g.prompter.Prompt(promptCtx, req)
			if err != nil {
				if promptCtx.Err() == nil {
					g.logger.Warn(fmt.Sprintf("Confirmation %s prompt failed: %v", req.TicketID, err), "confirm")
				}
				d = Cancel
			}
			ticket.Resolve(d)
		}()
	}

	decision := ticket.Wait(ctx, g.timeout)

	g.logger.Info(fmt.Sprintf("Confirmation %s resolved: %s", req.TicketID, decision), "confirm")
	if g.OnDecision != nil {
		g.OnDecision(req, decision)
	}
	return decision, nil
}

// Resolve delivers a decision to an open ticket. It returns false when the
// ticket is unknown or already resolved.
func (g *Gate) Resolve(ticketID string, d Decision) bool {
	g.mu.Lock()
	ticket, ok := g.byID[ticketID]
	g.mu.Unlock()
	if !ok {
		return false
	}
	return ticket.Resolve(d)
}

// Pending lists the open tickets, oldest first.
func (g *Gate) Pending() []Request {
	g.mu.Lock()
	defer g.mu.Unlock()

	pending := make([]Request, 0, len(g.byID))
	for _, t := range g.byID {
		pending = append(pending, t.req)
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].OpenedAt.Before(pending[j].OpenedAt)
	})
	return pending
}

// Close cancels every open ticket and refuses new ones.
func (g *Gate) Close() {
	g.mu.Lock()
	g.closed = true
	tickets := make([]*Ticket, 0, len(g.byID))
	for _, t := range g.byID {
		tickets = append(tickets, t)
	}
	g.mu.Unlock()

	for _, t := range tickets {
		t.Resolve(Cancel)
	}
}
