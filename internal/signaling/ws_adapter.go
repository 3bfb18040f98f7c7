package signaling

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Trustflow-Network-Labs/signing-relay/internal/crypto"
	"github.com/Trustflow-Network-Labs/signing-relay/internal/utils"
)

const (
	// Time allowed to write a message to the relay
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the relay
	pongWait = 60 * time.Second

	// Send pings to the relay with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 1024 * 1024

	eventBuffer = 64
)

// Command and reply types sent over the socket. Event types reuse EventKind.
const (
	cmdPair        = "pair"
	cmdPairings    = "pairings"
	cmdDisconnect  = "disconnect"
	cmdApprove     = "approve"
	cmdAcknowledge = "acknowledge"
	cmdReject      = "reject"
	cmdRespond     = "respond"
	typeResult     = "result"
)

// envelope is the frame exchanged with the signaling relay. Replies to a
// command carry the command id and type "result".
type envelope struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Topic   string          `json:"topic,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type WSConfig struct {
	URL            string
	ProjectID      string
	KeyPair        *crypto.KeyPair
	TokenTTL       time.Duration
	InitTimeout    time.Duration
	RequestTimeout time.Duration
	Metadata       Metadata
	Dialer         *websocket.Dialer
}

// WSConfigFromConfig reads the signaling_* keys.
func WSConfigFromConfig(cm *utils.ConfigManager, keyPair *crypto.KeyPair) WSConfig {
	return WSConfig{
		URL:            cm.GetConfigWithDefault("signaling_url", "wss://relay.walletconnect.com"),
		ProjectID:      cm.GetConfigWithDefault("signaling_project_id", ""),
		KeyPair:        keyPair,
		TokenTTL:       cm.GetConfigDuration("signaling_token_ttl", 24*time.Hour),
		InitTimeout:    cm.GetConfigDuration("signaling_init_timeout", 15*time.Second),
		RequestTimeout: cm.GetConfigDuration("signaling_request_timeout", 30*time.Second),
		Metadata: Metadata{
			Name:        cm.GetConfigWithDefault("signaling_name", utils.AppName),
			Description: cm.GetConfigWithDefault("signaling_description", "Session-authorized signing relay"),
			URL:         cm.GetConfigWithDefault("signaling_metadata_url", ""),
		},
	}
}

// WSAdapter talks to a signaling relay over a single websocket.
type WSAdapter struct {
	cfg    WSConfig
	logger *utils.LogsManager

	ctx    context.Context
	cancel context.CancelFunc
	init   *initOnce

	conn    *websocket.Conn
	send    chan []byte
	events  chan Event
	pumps   sync.WaitGroup
	pending map[string]chan envelope
	mu      sync.Mutex
}

var _ Adapter = (*WSAdapter)(nil)

func NewWSAdapter(cfg WSConfig, logger *utils.LogsManager) *WSAdapter {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = cfg.RequestTimeout
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &WSAdapter{
		cfg:     cfg,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		init:    newInitOnce(),
		send:    make(chan []byte, 256),
		events:  make(chan Event, eventBuffer),
		pending: make(map[string]chan envelope),
	}
}

// Init connects to the relay. Concurrent and repeated calls share the
// outcome of the first connection attempt.
func (a *WSAdapter) Init(ctx context.Context) error {
	return a.init.wait(ctx, a.connect)
}

func (a *WSAdapter) connect() error {
	target, err := a.dialURL()
	if err != nil {
		close(a.events)
		return err
	}

	dialCtx, cancel := context.WithTimeout(a.ctx, a.cfg.InitTimeout)
	defer cancel()

	conn, _, err := a.cfg.Dialer.DialContext(dialCtx, target, nil)
	if err != nil {
		close(a.events)
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}

	a.conn = conn
	a.pumps.Add(2)
	go a.writePump()
	go a.readPump()

	a.logger.Info(fmt.Sprintf("Connected to signaling relay %s", a.cfg.URL), "signaling")
	return nil
}

func (a *WSAdapter) dialURL() (string, error) {
	if a.cfg.KeyPair == nil {
		return "", fmt.Errorf("signaling client identity is not set")
	}

	u, err := url.Parse(a.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("invalid signaling url %q: %v", a.cfg.URL, err)
	}

	token, err := a.authToken(u.String())
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("auth", token)
	if a.cfg.ProjectID != "" {
		q.Set("projectId", a.cfg.ProjectID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// authToken signs a short lived EdDSA token naming the client by its did:key.
func (a *WSAdapter) authToken(audience string) (string, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate token nonce: %v", err)
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    a.cfg.KeyPair.ClientID(),
		Subject:   hex.EncodeToString(nonce),
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.cfg.TokenTTL)),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(a.cfg.KeyPair.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign relay token: %v", err)
	}
	return token, nil
}

func (a *WSAdapter) Events() <-chan Event {
	return a.events
}

func (a *WSAdapter) Pair(ctx context.Context, uri string) (*PairingInfo, error) {
	parsed, err := ParsePairingURI(uri)
	if err != nil {
		return nil, err
	}
	if parsed.Expired(time.Now()) {
		return nil, ErrPairingExpired
	}

	var info PairingInfo
	if err := a.call(ctx, cmdPair, parsed.Topic, map[string]string{"uri": parsed.String()}, &info); err != nil {
		return nil, err
	}
	if info.Topic == "" {
		info.Topic = parsed.Topic
	}
	return &info, nil
}

func (a *WSAdapter) ListPairings(ctx context.Context) ([]PairingInfo, error) {
	var pairings []PairingInfo
	if err := a.call(ctx, cmdPairings, "", nil, &pairings); err != nil {
		return nil, err
	}
	return pairings, nil
}

func (a *WSAdapter) DisconnectPairing(ctx context.Context, topic string) error {
	return a.call(ctx, cmdDisconnect, topic, nil, nil)
}

func (a *WSAdapter) Approve(ctx context.Context, proposalID int64, namespaces map[string]Namespace, relayProtocol string) (*Approval, error) {
	payload := map[string]any{
		"proposalId":    proposalID,
		"namespaces":    namespaces,
		"relayProtocol": relayProtocol,
		"metadata":      a.cfg.Metadata,
	}

	var approved struct {
		Topic string `json:"topic"`
	}
	if err := a.call(ctx, cmdApprove, "", payload, &approved); err != nil {
		return nil, err
	}
	if approved.Topic == "" {
		return nil, fmt.Errorf("%w: approval returned no session topic", ErrRelayRejected)
	}

	topic := approved.Topic
	return NewApproval(topic, func(ctx context.Context) (SessionInfo, error) {
		var session SessionInfo
		if err := a.call(ctx, cmdAcknowledge, topic, nil, &session); err != nil {
			return SessionInfo{}, err
		}
		if session.Topic == "" {
			session.Topic = topic
		}
		return session, nil
	}), nil
}

func (a *WSAdapter) Reject(ctx context.Context, proposalID int64, reason RejectReason) error {
	return a.call(ctx, cmdReject, "", map[string]any{
		"proposalId": proposalID,
		"reason":     reason,
	}, nil)
}

func (a *WSAdapter) Respond(ctx context.Context, topic string, resp Response) error {
	return a.call(ctx, cmdRespond, topic, resp, nil)
}

// call sends one command and waits for its result frame.
func (a *WSAdapter) call(ctx context.Context, kind string, topic string, payload any, out any) error {
	if err := a.Init(ctx); err != nil {
		return err
	}

	env := envelope{ID: uuid.NewString(), Type: kind, Topic: topic}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode %s payload: %v", kind, err)
		}
		env.Payload = raw
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode %s frame: %v", kind, err)
	}

	reply := make(chan envelope, 1)
	a.mu.Lock()
	if a.pending == nil {
		a.mu.Unlock()
		return ErrAdapterClosed
	}
	a.pending[env.ID] = reply
	a.mu.Unlock()
	defer a.forget(env.ID)

	select {
	case a.send <- frame:
	case <-ctx.Done():
		return ctx.Err()
	case <-a.ctx.Done():
		return ErrAdapterClosed
	}

	timer := time.NewTimer(a.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case res, ok := <-reply:
		if !ok {
			return ErrNotConnected
		}
		if res.Error != "" {
			return fmt.Errorf("%w: %s: %s", ErrRelayRejected, kind, res.Error)
		}
		if out != nil && len(res.Payload) > 0 {
			if err := json.Unmarshal(res.Payload, out); err != nil {
				return fmt.Errorf("invalid %s result: %v", kind, err)
			}
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: %s", ErrRequestTimeout, kind)
	case <-ctx.Done():
		return ctx.Err()
	case <-a.ctx.Done():
		return ErrAdapterClosed
	}
}

func (a *WSAdapter) forget(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pending != nil {
		delete(a.pending, id)
	}
}

// failPending wakes every waiting call after the connection is gone.
func (a *WSAdapter) failPending() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, ch := range a.pending {
		close(ch)
		delete(a.pending, id)
	}
	a.pending = nil
}

func (a *WSAdapter) readPump() {
	defer func() {
		a.failPending()
		close(a.events)
		a.conn.Close()
		a.pumps.Done()
	}()

	a.conn.SetReadLimit(maxMessageSize)
	a.conn.SetReadDeadline(time.Now().Add(pongWait))
	a.conn.SetPongHandler(func(string) error {
		a.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := a.conn.ReadMessage()
		if err != nil {
			if a.ctx.Err() == nil {
				a.logger.Warn(fmt.Sprintf("Signaling relay connection lost: %v", err), "signaling")
			}
			return
		}

		var env envelope
		if err := json.Unmarshal(message, &env); err != nil {
			a.logger.Warn(fmt.Sprintf("Dropping malformed signaling frame: %v", err), "signaling")
			continue
		}

		if env.Type == typeResult {
			a.deliverResult(env)
			continue
		}

		event, err := decodeEvent(env)
		if err != nil {
			a.logger.Warn(fmt.Sprintf("Dropping %s event: %v", env.Type, err), "signaling")
			continue
		}

		select {
		case a.events <- event:
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *WSAdapter) deliverResult(env envelope) {
	a.mu.Lock()
	ch, ok := a.pending[env.ID]
	a.mu.Unlock()
	if !ok {
		a.logger.Debug(fmt.Sprintf("Result for unknown command %s", env.ID), "signaling")
		return
	}
	select {
	case ch <- env:
	default:
	}
}

func decodeEvent(env envelope) (Event, error) {
	event := Event{Kind: EventKind(env.Type), Topic: env.Topic, Raw: env.Payload}

	switch event.Kind {
	case EventProposal:
		var p Proposal
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return Event{}, err
		}
		event.Proposal = &p
	case EventRequest:
		var r Request
		if err := json.Unmarshal(env.Payload, &r); err != nil {
			return Event{}, err
		}
		if r.Topic == "" {
			r.Topic = env.Topic
		}
		event.Topic = r.Topic
		event.Request = &r
	case EventSession, EventPing, EventDelete, EventAuthenticate:
	default:
		return Event{}, fmt.Errorf("unknown event type %q", env.Type)
	}

	return event, nil
}

func (a *WSAdapter) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		a.conn.Close()
		a.pumps.Done()
	}()

	for {
		select {
		case frame := <-a.send:
			a.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := a.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				a.logger.Warn(fmt.Sprintf("Failed to write signaling frame: %v", err), "signaling")
				return
			}

		case <-ticker.C:
			a.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := a.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-a.ctx.Done():
			a.conn.SetWriteDeadline(time.Now().Add(writeWait))
			a.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Close disconnects from the relay. The event channel is closed once the
// reader has stopped.
func (a *WSAdapter) Close() error {
	a.cancel()
	if a.init.settle(ErrAdapterClosed) {
		close(a.events)
		return nil
	}
	<-a.init.done
	a.pumps.Wait()
	return nil
}
