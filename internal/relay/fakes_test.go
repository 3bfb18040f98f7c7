package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Trustflow-Network-Labs/signing-relay/internal/session"
	"github.com/Trustflow-Network-Labs/signing-relay/internal/signaling"
	"github.com/Trustflow-Network-Labs/signing-relay/internal/wallet"
)

type sentResponse struct {
	Topic    string
	Response signaling.Response
}

type fakeAdapter struct {
	mu           sync.Mutex
	events       chan signaling.Event
	responses    []sentResponse
	responded    chan sentResponse
	respondErr   error
	approveErr   error
	ackErr       error
	ackInfo      signaling.SessionInfo
	sessionTopic string
	approved     map[int64]map[string]signaling.Namespace
	rejected     []int64
	disconnected []string
	closed       bool
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		events:       make(chan signaling.Event, 16),
		responded:    make(chan sentResponse, 64),
		sessionTopic: "session-topic",
		approved:     map[int64]map[string]signaling.Namespace{},
	}
}

func (a *fakeAdapter) Init(ctx context.Context) error { return nil }

func (a *fakeAdapter) Pair(ctx context.Context, uri string) (*signaling.PairingInfo, error) {
	p, err := signaling.ParsePairingURI(uri)
	if err != nil {
		return nil, err
	}
	return &signaling.PairingInfo{Topic: p.Topic, Active: true}, nil
}

func (a *fakeAdapter) ListPairings(ctx context.Context) ([]signaling.PairingInfo, error) {
	return []signaling.PairingInfo{{Topic: "pairing-topic", Active: true}}, nil
}

func (a *fakeAdapter) DisconnectPairing(ctx context.Context, topic string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.disconnected = append(a.disconnected, topic)
	return nil
}

func (a *fakeAdapter) Events() <-chan signaling.Event { return a.events }

func (a *fakeAdapter) Approve(ctx context.Context, proposalID int64, namespaces map[string]signaling.Namespace, relayProtocol string) (*signaling.Approval, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.approveErr != nil {
		return nil, a.approveErr
	}
	a.approved[proposalID] = namespaces
	topic := a.sessionTopic
	return signaling.NewApproval(topic, func(ctx context.Context) (signaling.SessionInfo, error) {
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.ackErr != nil {
			return signaling.SessionInfo{}, a.ackErr
		}
		info := a.ackInfo
		info.Topic = topic
		return info, nil
	}), nil
}

func (a *fakeAdapter) Reject(ctx context.Context, proposalID int64, reason signaling.RejectReason) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rejected = append(a.rejected, proposalID)
	return nil
}

func (a *fakeAdapter) Respond(ctx context.Context, topic string, resp signaling.Response) error {
	a.mu.Lock()
	err := a.respondErr
	if err == nil {
		a.responses = append(a.responses, sentResponse{Topic: topic, Response: resp})
	}
	a.mu.Unlock()
	if err != nil {
		return err
	}
	a.responded <- sentResponse{Topic: topic, Response: resp}
	return nil
}

func (a *fakeAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.closed {
		a.closed = true
		close(a.events)
	}
	return nil
}

func (a *fakeAdapter) sent() []sentResponse {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]sentResponse(nil), a.responses...)
}

// fakeWallet records every pipeline step it is asked to perform
type fakeWallet struct {
	mu          sync.Mutex
	address     string
	key         []byte
	simulateErr error
	proveErr    error
	sendErr     error
	panicOnCall bool
	requests    [][]wallet.Call
	noteIDs     []int64
	sent        []string
	notes       []*wallet.ExtendedNote
	witnesses   []*wallet.Witness
}

func newFakeWallet(address string, seed byte) *fakeWallet {
	key := make([]byte, 32)
	for i := range key {
		key[i] = seed
	}
	return &fakeWallet{address: address, key: key}
}

func (w *fakeWallet) Address() string { return w.address }

func (w *fakeWallet) CompleteAddress() wallet.CompleteAddress {
	return wallet.CompleteAddress{Address: w.address}
}

func (w *fakeWallet) CreateAuthorizationWitness(ctx context.Context, digest []byte) (*wallet.Witness, error) {
	return &wallet.Witness{ID: "witness-1", Digest: fmt.Sprintf("0x%x", digest), Signature: "0xsig", Signer: w.address}, nil
}

func (w *fakeWallet) AddAuthorizationWitness(ctx context.Context, witness *wallet.Witness) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.witnesses = append(w.witnesses, witness)
	return nil
}

func (w *fakeWallet) CreateTransactionRequest(ctx context.Context, calls []wallet.Call) (*wallet.TxRequest, error) {
	if w.panicOnCall {
		panic("pipeline exploded")
	}
	if len(calls) == 0 {
		return nil, wallet.ErrEmptyCalls
	}
	w.mu.Lock()
	w.requests = append(w.requests, calls)
	w.mu.Unlock()
	return &wallet.TxRequest{
		From:    common.HexToAddress(w.address),
		To:      common.HexToAddress(calls[0].To),
		Calls:   calls,
		Batched: len(calls) > 1,
	}, nil
}

func (w *fakeWallet) Simulate(ctx context.Context, req *wallet.TxRequest, includePublic bool) (*wallet.SimulationResult, error) {
	if w.simulateErr != nil {
		return nil, w.simulateErr
	}
	return &wallet.SimulationResult{GasEstimate: 21000}, nil
}

func (w *fakeWallet) Prove(ctx context.Context, req *wallet.TxRequest, includePublic bool) (*wallet.ProvenTx, error) {
	if w.proveErr != nil {
		return nil, w.proveErr
	}
	return &wallet.ProvenTx{NoteID: req.NoteID}, nil
}

func (w *fakeWallet) Send(ctx context.Context, tx *wallet.ProvenTx) (*wallet.PendingTx, error) {
	if w.sendErr != nil {
		return nil, w.sendErr
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	hash := fmt.Sprintf("0x%064x", len(w.sent)+1)
	w.sent = append(w.sent, hash)
	w.noteIDs = append(w.noteIDs, tx.NoteID)
	return &wallet.PendingTx{Hash: hash}, nil
}

func (w *fakeWallet) AddNote(ctx context.Context, note *wallet.ExtendedNote) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	note.ID = int64(len(w.notes) + 1)
	w.notes = append(w.notes, note)
	return nil
}

func (w *fakeWallet) sentCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.sent)
}

type fakeResolver struct {
	current    *fakeWallet
	wallets    map[string]*fakeWallet
	mu         sync.Mutex
	keyLookups int
}

func newFakeResolver(wallets ...*fakeWallet) *fakeResolver {
	r := &fakeResolver{wallets: map[string]*fakeWallet{}}
	for _, w := range wallets {
		r.wallets[w.address] = w
	}
	if len(wallets) > 0 {
		r.current = wallets[0]
	}
	return r
}

func (r *fakeResolver) CurrentWallet(ctx context.Context) (wallet.Wallet, error) {
	if r.current == nil {
		return nil, wallet.ErrNoCurrentWallet
	}
	return r.current, nil
}

func (r *fakeResolver) WalletFor(ctx context.Context, identity string) (wallet.Wallet, error) {
	w, ok := r.wallets[identity]
	if !ok {
		return nil, fmt.Errorf("%w: %s", wallet.ErrUnknownAccount, identity)
	}
	return w, nil
}

func (r *fakeResolver) PrivateKeyFor(ctx context.Context, identity string) ([]byte, error) {
	r.mu.Lock()
	r.keyLookups++
	r.mu.Unlock()
	w, ok := r.wallets[identity]
	if !ok {
		return nil, fmt.Errorf("%w: %s", wallet.ErrUnknownAccount, identity)
	}
	return append([]byte(nil), w.key...), nil
}

type failingBackend struct {
	records []session.Record
	failErr error
}

func (fb *failingBackend) Load() ([]session.Record, error) { return fb.records, nil }

func (fb *failingBackend) Save(records []session.Record) error {
	if fb.failErr != nil {
		return fb.failErr
	}
	fb.records = records
	return nil
}

var errDiskFull = errors.New("disk full")
