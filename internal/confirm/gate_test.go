package confirm

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Trustflow-Network-Labs/signing-relay/internal/utils"
)

func testLogger() *utils.LogsManager {
	return utils.NewLogsManagerWithWriter(utils.NewStaticConfig(nil), io.Discard)
}

func waitPending(t *testing.T, g *Gate, n int) []Request {
	t.Helper()
	var pending []Request
	require.Eventually(t, func() bool {
		pending = g.Pending()
		return len(pending) == n
	}, time.Second, 5*time.Millisecond)
	return pending
}

func TestGateApprovedByPrompter(t *testing.T) {
	g := NewGate(StaticPrompter{Decision: Approve}, time.Second, testLogger())

	d, err := g.Request(context.Background(), "topic", Request{Method: "relay_sendTransaction"})
	require.NoError(t, err)
	assert.Equal(t, Approve, d)
	assert.Empty(t, g.Pending())
}

func TestGateTimeoutCancels(t *testing.T) {
	g := NewGate(nil, 20*time.Millisecond, testLogger())

	start := time.Now()
	d, err := g.Request(context.Background(), "topic", Request{})
	require.NoError(t, err)
	assert.Equal(t, Cancel, d)
	assert.Less(t, time.Since(start), time.Second)
}

func TestGateContextCancels(t *testing.T) {
	g := NewGate(nil, 0, testLogger())
	ctx, cancel := context.WithCancel(context.Background())

	result := make(chan Decision, 1)
	go func() {
		d, _ := g.Request(ctx, "topic", Request{})
		result <- d
	}()

	waitPending(t, g, 1)
	cancel()

	select {
	case d := <-result:
		assert.Equal(t, Cancel, d)
	case <-time.After(time.Second):
		t.Fatal("gate did not resolve after context cancellation")
	}
}

func TestGateRejectsSecondTicketForSameKey(t *testing.T) {
	g := NewGate(nil, 0, testLogger())

	result := make(chan Decision, 1)
	go func() {
		d, _ := g.Request(context.Background(), "topic", Request{})
		result <- d
	}()
	pending := waitPending(t, g, 1)

	_, err := g.Request(context.Background(), "topic", Request{})
	assert.ErrorIs(t, err, ErrGateBusy)

	require.True(t, g.Resolve(pending[0].TicketID, Approve))
	assert.Equal(t, Approve, <-result)
}

func TestGateDistinctKeysDoNotBlock(t *testing.T) {
	g := NewGate(nil, 0, testLogger())

	results := make(chan Decision, 2)
	for _, key := range []string{"topic-a", "topic-b"} {
		go func(k string) {
			d, _ := g.Request(context.Background(), k, Request{Topic: k})
			results <- d
		}(key)
	}

	pending := waitPending(t, g, 2)
	for _, p := range pending {
		require.True(t, g.Resolve(p.TicketID, Approve))
	}
	assert.Equal(t, Approve, <-results)
	assert.Equal(t, Approve, <-results)
}

func TestTicketResolvesOnce(t *testing.T) {
	ticket := newTicket(Request{})

	assert.True(t, ticket.Resolve(Cancel))
	assert.False(t, ticket.Resolve(Approve))
	assert.Equal(t, Cancel, ticket.Wait(context.Background(), 0))
}

func TestGateResolveUnknownTicket(t *testing.T) {
	g := NewGate(nil, 0, testLogger())
	assert.False(t, g.Resolve("missing", Approve))
}

func TestGateCloseCancelsOpenTickets(t *testing.T) {
	g := NewGate(nil, 0, testLogger())

	result := make(chan Decision, 1)
	go func() {
		d, _ := g.Request(context.Background(), "topic", Request{})
		result <- d
	}()
	waitPending(t, g, 1)

	g.Close()
	assert.Equal(t, Cancel, <-result)

	_, err := g.Request(context.Background(), "other", Request{})
	assert.ErrorIs(t, err, ErrGateClosed)
}

func TestGateObservesDecisions(t *testing.T) {
	g := NewGate(StaticPrompter{Decision: Cancel}, time.Second, testLogger())
	var seen []Decision
	g.OnDecision = func(req Request, d Decision) { seen = append(seen, d) }

	_, err := g.Request(context.Background(), "topic", Request{})
	require.NoError(t, err)
	assert.Equal(t, []Decision{Cancel}, seen)
}

// syncBuffer is a bytes.Buffer safe to read while a prompt writes to it
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type promptResult struct {
	decision Decision
	err      error
}

// promptAndAnswer shows the n-th prompt and types line once it is on screen.
func promptAndAnswer(t *testing.T, tp *TerminalPrompter, out *syncBuffer, in io.Writer, n int, req Request, line string) (Decision, error) {
	t.Helper()
	result := make(chan promptResult, 1)
	go func() {
		d, err := tp.Prompt(context.Background(), req)
		result <- promptResult{d, err}
	}()

	require.Eventually(t, func() bool {
		return strings.Count(out.String(), "Approve? (yes/no)") == n
	}, time.Second, 5*time.Millisecond)

	_, err := io.WriteString(in, line)
	require.NoError(t, err)

	r := <-result
	return r.decision, r.err
}

func TestTerminalPrompterAnswers(t *testing.T) {
	pr, pw := io.Pipe()
	out := &syncBuffer{}
	tp := NewTerminalPrompter(pr, out)

	d, err := promptAndAnswer(t, tp, out, pw, 1, Request{Method: "relay_sendTransaction", Summary: "1 call"}, "yes\n")
	require.NoError(t, err)
	assert.Equal(t, Approve, d)

	d, err = promptAndAnswer(t, tp, out, pw, 2, Request{Method: "relay_sendTransaction"}, "nope\n")
	require.NoError(t, err)
	assert.Equal(t, Cancel, d)

	assert.Contains(t, out.String(), "Confirmation required: relay_sendTransaction")

	require.NoError(t, pw.Close())
	_, err = tp.Prompt(context.Background(), Request{})
	assert.ErrorIs(t, err, io.EOF)
}

func TestTerminalPrompterDropsLateAnswer(t *testing.T) {
	pr, pw := io.Pipe()
	out := &syncBuffer{}
	tp := NewTerminalPrompter(pr, out)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	d, err := tp.Prompt(ctx, Request{Method: "relay_sendTransaction", Summary: "first"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, Cancel, d)

	// Answer to the expired prompt arrives while nothing is on screen
	_, err = io.WriteString(pw, "yes\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(tp.lines) == 1 }, time.Second, 5*time.Millisecond)

	d, err = promptAndAnswer(t, tp, out, pw, 2, Request{Method: "relay_sendTransaction", Summary: "second"}, "no\n")
	require.NoError(t, err)
	assert.Equal(t, Cancel, d)
}
