package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

var (
	ErrAdapterClosed  = errors.New("signaling adapter closed")
	ErrNotConnected   = errors.New("signaling channel not connected")
	ErrRelayRejected  = errors.New("signaling relay rejected the command")
	ErrRequestTimeout = errors.New("signaling relay did not answer in time")
	ErrInvalidURI     = errors.New("invalid pairing uri")
	ErrPairingExpired = errors.New("pairing uri expired")
	ErrNoAcknowledge  = errors.New("approval has no acknowledgement path")
)

// Adapter is the narrow surface the relay uses to talk to the pairing channel.
// Every method awaits Init before doing anything else.
type Adapter interface {
	Init(ctx context.Context) error
	Pair(ctx context.Context, uri string) (*PairingInfo, error)
	ListPairings(ctx context.Context) ([]PairingInfo, error)
	DisconnectPairing(ctx context.Context, topic string) error
	Events() <-chan Event
	Approve(ctx context.Context, proposalID int64, namespaces map[string]Namespace, relayProtocol string) (*Approval, error)
	Reject(ctx context.Context, proposalID int64, reason RejectReason) error
	Respond(ctx context.Context, topic string, resp Response) error
	Close() error
}

type EventKind string

const (
	EventProposal     EventKind = "proposal"
	EventRequest      EventKind = "request"
	EventSession      EventKind = "event"
	EventPing         EventKind = "ping"
	EventDelete       EventKind = "delete"
	EventAuthenticate EventKind = "authenticate"
)

// Event is one inbound notification. Exactly one of Proposal and Request is
// set for proposal and request events; other kinds carry their payload in Raw.
type Event struct {
	Kind     EventKind
	Topic    string
	Proposal *Proposal
	Request  *Request
	Raw      json.RawMessage
}

type Metadata struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	URL         string   `json:"url,omitempty"`
	Icons       []string `json:"icons,omitempty"`
}

type Namespace struct {
	Chains   []string `json:"chains,omitempty"`
	Methods  []string `json:"methods"`
	Events   []string `json:"events"`
	Accounts []string `json:"accounts,omitempty"`
}

type Proposal struct {
	ID                 int64                `json:"id"`
	PairingTopic       string               `json:"pairingTopic"`
	Expiry             int64                `json:"expiryTimestamp,omitempty"`
	Proposer           Metadata             `json:"proposer"`
	RequiredNamespaces map[string]Namespace `json:"requiredNamespaces,omitempty"`
	OptionalNamespaces map[string]Namespace `json:"optionalNamespaces,omitempty"`
}

// Request is {id, topic, params: {request: {method, params}}}
type Request struct {
	ID     int64         `json:"id"`
	Topic  string        `json:"topic"`
	Params RequestParams `json:"params"`
}

type RequestParams struct {
	Request RPCRequest `json:"request"`
	ChainID string     `json:"chainId,omitempty"`
}

type RPCRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 response. Exactly one of Result and Error is set.
type Response struct {
	ID      int64          `json:"id"`
	JSONRPC string         `json:"jsonrpc"`
	Result  any            `json:"result,omitempty"`
	Error   *ResponseError `json:"error,omitempty"`
}

type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func ResultResponse(id int64, result any) Response {
	return Response{ID: id, JSONRPC: "2.0", Result: result}
}

func ErrorResponse(id int64, code int, message string) Response {
	return Response{ID: id, JSONRPC: "2.0", Error: &ResponseError{Code: code, Message: message}}
}

type RejectReason struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type SessionInfo struct {
	Topic        string               `json:"topic"`
	PairingTopic string               `json:"pairingTopic,omitempty"`
	Expiry       int64                `json:"expiry"`
	Namespaces   map[string]Namespace `json:"namespaces,omitempty"`
	Peer         Metadata             `json:"peer"`
}

type PairingInfo struct {
	Topic  string    `json:"topic"`
	Expiry int64     `json:"expiry"`
	Active bool      `json:"active"`
	Peer   *Metadata `json:"peerMetadata,omitempty"`
}

// Approval is the result of approving a proposal. The session is not
// established until Acknowledge succeeds.
type Approval struct {
	Topic       string
	acknowledge func(ctx context.Context) (SessionInfo, error)
}

// NewApproval builds an Approval whose acknowledgement is ack.
func NewApproval(topic string, ack func(ctx context.Context) (SessionInfo, error)) *Approval {
	return &Approval{Topic: topic, acknowledge: ack}
}

func (a *Approval) Acknowledge(ctx context.Context) (SessionInfo, error) {
	if a.acknowledge == nil {
		return SessionInfo{}, ErrNoAcknowledge
	}
	return a.acknowledge(ctx)
}

// initOnce runs an initialization at most once and hands every caller the same
// outcome. Waiting callers can give up through their own context.
type initOnce struct {
	once sync.Once
	done chan struct{}
	err  error
}

func newInitOnce() *initOnce {
	return &initOnce{done: make(chan struct{})}
}

func (o *initOnce) wait(ctx context.Context, start func() error) error {
	o.once.Do(func() {
		go func() {
			o.err = start()
			close(o.done)
		}()
	})

	select {
	case <-o.done:
		return o.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// settle marks the initialization finished with err if it never started.
func (o *initOnce) settle(err error) bool {
	settled := false
	o.once.Do(func() {
		o.err = err
		close(o.done)
		settled = true
	})
	return settled
}
