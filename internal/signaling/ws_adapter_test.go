package signaling

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Trustflow-Network-Labs/signing-relay/internal/crypto"
	"github.com/Trustflow-Network-Labs/signing-relay/internal/utils"
)

// fakeRelay answers commands and lets tests push events to the client.
type fakeRelay struct {
	t          *testing.T
	server     *httptest.Server
	publicKey  ed25519.PublicKey
	connects   atomic.Int32
	mu         sync.Mutex
	conn       *websocket.Conn
	received   []envelope
	results    map[string]any
	failures   map[string]string
	connected  chan struct{}
	commandHit chan envelope
}

func newFakeRelay(t *testing.T, publicKey ed25519.PublicKey) *fakeRelay {
	r := &fakeRelay{
		t:          t,
		publicKey:  publicKey,
		results:    map[string]any{},
		failures:   map[string]string{},
		connected:  make(chan struct{}),
		commandHit: make(chan envelope, 16),
	}

	upgrader := websocket.Upgrader{}
	r.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !r.validToken(req.URL.Query().Get("auth")) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		r.mu.Lock()
		r.conn = conn
		r.mu.Unlock()
		if r.connects.Add(1) == 1 {
			close(r.connected)
		}
		r.serve(conn)
	}))
	t.Cleanup(r.server.Close)
	return r
}

func (r *fakeRelay) url() string {
	return "ws" + strings.TrimPrefix(r.server.URL, "http")
}

func (r *fakeRelay) validToken(raw string) bool {
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		return r.publicKey, nil
	}, jwt.WithValidMethods([]string{"EdDSA"}))
	if err != nil || !token.Valid {
		return false
	}
	issuer, err := token.Claims.GetIssuer()
	return err == nil && strings.HasPrefix(issuer, "did:key:z")
}

func (r *fakeRelay) serve(conn *websocket.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			continue
		}

		r.mu.Lock()
		r.received = append(r.received, env)
		result := r.results[env.Type]
		failure := r.failures[env.Type]
		r.mu.Unlock()

		reply := envelope{ID: env.ID, Type: typeResult, Error: failure}
		if result != nil {
			reply.Payload, _ = json.Marshal(result)
		}
		r.write(reply)
		r.commandHit <- env
	}
}

func (r *fakeRelay) write(env envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.conn.WriteJSON(env)
}

func (r *fakeRelay) setResult(kind string, result any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[kind] = result
}

func (r *fakeRelay) setFailure(kind string, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[kind] = message
}

func (r *fakeRelay) push(kind EventKind, topic string, payload any) {
	raw, err := json.Marshal(payload)
	require.NoError(r.t, err)
	r.write(envelope{ID: "evt", Type: string(kind), Topic: topic, Payload: raw})
}

func newTestAdapter(t *testing.T) (*WSAdapter, *fakeRelay) {
	keyPair, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	relay := newFakeRelay(t, keyPair.PublicKey)
	logger := utils.NewLogsManagerWithWriter(utils.NewStaticConfig(nil), io.Discard)
	adapter := NewWSAdapter(WSConfig{
		URL:            relay.url(),
		ProjectID:      "test-project",
		KeyPair:        keyPair,
		RequestTimeout: 2 * time.Second,
	}, logger)
	t.Cleanup(func() { adapter.Close() })
	return adapter, relay
}

func TestInitIsSharedByConcurrentCallers(t *testing.T) {
	adapter, relay := newTestAdapter(t)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = adapter.Init(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), relay.connects.Load())
}

func TestInitFailureIsShared(t *testing.T) {
	keyPair, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	other, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	relay := newFakeRelay(t, other.PublicKey)

	adapter := NewWSAdapter(WSConfig{URL: relay.url(), KeyPair: keyPair, RequestTimeout: time.Second},
		utils.NewLogsManagerWithWriter(utils.NewStaticConfig(nil), io.Discard))
	defer adapter.Close()

	first := adapter.Init(context.Background())
	second := adapter.Init(context.Background())
	assert.ErrorIs(t, first, ErrNotConnected)
	assert.Equal(t, first, second)

	_, err = adapter.ListPairings(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)

	_, open := <-adapter.Events()
	assert.False(t, open)
}

func TestApproveAndAcknowledge(t *testing.T) {
	adapter, relay := newTestAdapter(t)
	relay.setResult(cmdApprove, map[string]string{"topic": "session-topic"})
	relay.setResult(cmdAcknowledge, SessionInfo{Expiry: 1700000500})

	namespaces := map[string]Namespace{"eip155": {Methods: []string{"relay_requestAccounts"}, Events: []string{}}}
	approval, err := adapter.Approve(context.Background(), 42, namespaces, "irn")
	require.NoError(t, err)
	assert.Equal(t, "session-topic", approval.Topic)

	approveCmd := <-relay.commandHit
	assert.Equal(t, cmdApprove, approveCmd.Type)
	var payload struct {
		ProposalID    int64                `json:"proposalId"`
		Namespaces    map[string]Namespace `json:"namespaces"`
		RelayProtocol string               `json:"relayProtocol"`
	}
	require.NoError(t, json.Unmarshal(approveCmd.Payload, &payload))
	assert.Equal(t, int64(42), payload.ProposalID)
	assert.Equal(t, namespaces, payload.Namespaces)
	assert.Equal(t, "irn", payload.RelayProtocol)

	session, err := approval.Acknowledge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "session-topic", session.Topic)
	assert.Equal(t, int64(1700000500), session.Expiry)

	ackCmd := <-relay.commandHit
	assert.Equal(t, cmdAcknowledge, ackCmd.Type)
	assert.Equal(t, "session-topic", ackCmd.Topic)
}

func TestRelayErrorsSurface(t *testing.T) {
	adapter, relay := newTestAdapter(t)
	relay.setFailure(cmdReject, "proposal not found")

	err := adapter.Reject(context.Background(), 7, RejectReason{Code: 5000, Message: "rejected"})
	assert.ErrorIs(t, err, ErrRelayRejected)
	assert.Contains(t, err.Error(), "proposal not found")
}

func TestPairValidatesURIBeforeSending(t *testing.T) {
	adapter, relay := newTestAdapter(t)

	_, err := adapter.Pair(context.Background(), "wc:nothex@2?relay-protocol=irn&symKey="+testSymKey)
	assert.ErrorIs(t, err, ErrInvalidURI)

	_, err = adapter.Pair(context.Background(), testURI("ab", "1"))
	assert.ErrorIs(t, err, ErrPairingExpired)

	info, err := adapter.Pair(context.Background(), testURI("abcd", ""))
	require.NoError(t, err)
	assert.Equal(t, "abcd", info.Topic)

	cmd := <-relay.commandHit
	assert.Equal(t, cmdPair, cmd.Type)
	assert.Len(t, relay.commandHit, 0)
}

func TestRequestEventsAndRespond(t *testing.T) {
	adapter, relay := newTestAdapter(t)
	require.NoError(t, adapter.Init(context.Background()))
	<-relay.connected

	relay.push(EventRequest, "topic-a", map[string]any{
		"id":    99,
		"topic": "topic-a",
		"params": map[string]any{
			"request": map[string]any{
				"method": "relay_requestAccounts",
				"params": []any{map[string]string{"from": "0xabc"}},
			},
		},
	})

	select {
	case ev := <-adapter.Events():
		require.Equal(t, EventRequest, ev.Kind)
		require.NotNil(t, ev.Request)
		assert.Equal(t, int64(99), ev.Request.ID)
		assert.Equal(t, "topic-a", ev.Topic)
		assert.Equal(t, "relay_requestAccounts", ev.Request.Params.Request.Method)
		assert.JSONEq(t, `[{"from":"0xabc"}]`, string(ev.Request.Params.Request.Params))
	case <-time.After(2 * time.Second):
		t.Fatal("request event not delivered")
	}

	require.NoError(t, adapter.Respond(context.Background(), "topic-a", ResultResponse(99, []string{"0xabc"})))
	cmd := <-relay.commandHit
	assert.Equal(t, cmdRespond, cmd.Type)
	assert.JSONEq(t, `{"id":99,"jsonrpc":"2.0","result":["0xabc"]}`, string(cmd.Payload))

	relay.push(EventDelete, "topic-a", map[string]string{})
	ev := <-adapter.Events()
	assert.Equal(t, EventDelete, ev.Kind)
	assert.Equal(t, "topic-a", ev.Topic)
}

func TestCloseEndsEventStream(t *testing.T) {
	adapter, _ := newTestAdapter(t)
	require.NoError(t, adapter.Init(context.Background()))
	require.NoError(t, adapter.Close())

	for range adapter.Events() {
	}

	err := adapter.DisconnectPairing(context.Background(), "topic")
	assert.Error(t, err)
}

func TestCloseBeforeInit(t *testing.T) {
	adapter, _ := newTestAdapter(t)
	require.NoError(t, adapter.Close())

	assert.ErrorIs(t, adapter.Init(context.Background()), ErrAdapterClosed)
	_, open := <-adapter.Events()
	assert.False(t, open)
}
