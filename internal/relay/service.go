// Package relay binds paired applications to local accounts and serves their
// signing requests.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Trustflow-Network-Labs/signing-relay/internal/confirm"
	"github.com/Trustflow-Network-Labs/signing-relay/internal/session"
	"github.com/Trustflow-Network-Labs/signing-relay/internal/signaling"
	"github.com/Trustflow-Network-Labs/signing-relay/internal/utils"
	"github.com/Trustflow-Network-Labs/signing-relay/internal/wallet"
	"github.com/Trustflow-Network-Labs/signing-relay/internal/workers"
)

// ErrChannelClosed is returned by Run when the signaling event stream ends
var ErrChannelClosed = errors.New("signaling event stream closed")

const (
	respondTimeout = 15 * time.Second

	// rejectUserRejected is the signaling reason code for a declined proposal
	rejectUserRejected = 5000
)

// AccountResolver maps account identities to wallets and key material
type AccountResolver interface {
	CurrentWallet(ctx context.Context) (wallet.Wallet, error)
	WalletFor(ctx context.Context, identity string) (wallet.Wallet, error)
	PrivateKeyFor(ctx context.Context, identity string) ([]byte, error)
}

type Options struct {
	Network            string
	RelayProtocol      string
	SessionTTL         time.Duration
	ConfirmAuthWitness bool
	Workers            int
	RedeemMethod       string
	Events             []string

	// Now is the clock used for expiry checks
	Now func() time.Time
}

func OptionsFromConfig(cm *utils.ConfigManager) Options {
	return Options{
		Network:            cm.GetConfigWithDefault("network", "eip155:84532"),
		RelayProtocol:      cm.GetConfigWithDefault("signaling_relay_protocol", "irn"),
		SessionTTL:         cm.GetConfigDuration("session_ttl", 7*24*time.Hour),
		ConfirmAuthWitness: cm.GetConfigBool("confirm_auth_witness", false),
		Workers:            cm.GetConfigInt("relay_workers", 8, 1, 256),
		RedeemMethod:       cm.GetConfigWithDefault("redeem_method", "redeemShield(address,uint256,bytes32)"),
	}
}

// Service routes signaling events. Requests on one topic are handled one at a
// time and in arrival order; distinct topics proceed concurrently.
type Service struct {
	adapter  signaling.Adapter
	store    *session.Store
	accounts AccountResolver
	gate     *confirm.Gate
	opts     Options
	logger   *utils.LogsManager
	metrics  *Metrics

	lanes  *workers.LanePool
	ctx    context.Context
	cancel context.CancelFunc
}

func NewService(adapter signaling.Adapter, store *session.Store, accounts AccountResolver, gate *confirm.Gate, opts Options, logger *utils.LogsManager, metrics *Metrics) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 7 * 24 * time.Hour
	}
	if opts.RelayProtocol == "" {
		opts.RelayProtocol = "irn"
	}
	if opts.RedeemMethod == "" {
		opts.RedeemMethod = "redeemShield(address,uint256,bytes32)"
	}
	if len(opts.Events) == 0 {
		opts.Events = []string{"accountsChanged", "chainChanged"}
	}

	if metrics != nil && gate.OnDecision == nil {
		gate.OnDecision = func(_ confirm.Request, d confirm.Decision) {
			metrics.ObserveConfirmation(d.String())
		}
	}
	metrics.SetSessions(store.Len())

	ctx, cancel := context.WithCancel(context.Background())
	lanes := workers.NewLanePool(ctx, opts.Workers, logger)
	lanes.Start()

	return &Service{
		adapter:  adapter,
		store:    store,
		accounts: accounts,
		gate:     gate,
		opts:     opts,
		logger:   logger,
		metrics:  metrics,
		lanes:    lanes,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Run initializes the adapter and consumes its events until ctx ends or the
// stream closes.
func (s *Service) Run(ctx context.Context) error {
	if err := s.adapter.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize signaling: %w", err)
	}
	s.logger.Info(fmt.Sprintf("Relay is serving signaling events on %d lanes", s.lanes.GetActiveWorkers()), "relay")

	events := s.adapter.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return ErrChannelClosed
			}
			s.route(ev)
		}
	}
}

func (s *Service) route(ev signaling.Event) {
	switch ev.Kind {
	case signaling.EventProposal:
		if ev.Proposal == nil {
			return
		}
		proposal := ev.Proposal
		err := s.lanes.Submit("proposal:"+proposal.PairingTopic, func(ctx context.Context) {
			s.HandleProposal(ctx, proposal)
		})
		if err != nil {
			s.logger.Warn(fmt.Sprintf("Dropping proposal %d: %v", proposal.ID, err), "relay")
		}

	case signaling.EventRequest:
		if ev.Request == nil {
			return
		}
		req := ev.Request
		err := s.lanes.Submit(req.Topic, func(ctx context.Context) {
			s.HandleRequest(ctx, req)
		})
		if err != nil {
			s.respond(req, signaling.ErrorResponse(req.ID, CodeInternal, ErrRelayClosed.Error()), "rejected")
		}

	case signaling.EventDelete:
		topic := ev.Topic
		err := s.lanes.Submit(topic, func(ctx context.Context) {
			s.HandleDelete(ctx, topic)
		})
		if err != nil {
			s.HandleDelete(context.Background(), topic)
		}

	case signaling.EventPing:
		s.logger.Debug(fmt.Sprintf("Ping on topic %s", ev.Topic), "relay")

	case signaling.EventSession:
		s.logger.Debug(fmt.Sprintf("Session event on topic %s: %s", ev.Topic, string(ev.Raw)), "relay")

	case signaling.EventAuthenticate:
		s.logger.Warn(fmt.Sprintf("Ignoring authenticate request on topic %s: not supported", ev.Topic), "relay")

	default:
		s.logger.Debug(fmt.Sprintf("Ignoring %s event", ev.Kind), "relay")
	}
}

// HandleProposal approves a pairing proposal for the current wallet. The
// session exists only once the acknowledgement succeeded and the record is
// stored; any earlier failure rejects the proposal instead.
func (s *Service) HandleProposal(ctx context.Context, p *signaling.Proposal) error {
	w, err := s.accounts.CurrentWallet(ctx)
	if err != nil {
		return s.rejectProposal(ctx, p, fmt.Errorf("no account available: %w", err))
	}
	account := w.Address()

	approval, err := s.adapter.Approve(ctx, p.ID, s.namespaces(account), s.opts.RelayProtocol)
	if err != nil {
		return s.rejectProposal(ctx, p, fmt.Errorf("approve failed: %w", err))
	}

	info, err := approval.Acknowledge(ctx)
	if err != nil {
		return s.rejectProposal(ctx, p, fmt.Errorf("session was not acknowledged: %w", err))
	}

	topic := approval.Topic
	if info.Topic != "" {
		topic = info.Topic
	}
	expiry := s.sessionExpiry(info, p)

	if err := s.store.Put(account, topic, expiry); err != nil {
		s.logger.Error(fmt.Sprintf("Failed to store session %s for %s, disconnecting: %v", topic, account, err), "relay")
		if derr := s.adapter.DisconnectPairing(ctx, topic); derr != nil {
			s.logger.Warn(fmt.Sprintf("Failed to disconnect unstored session %s: %v", topic, derr), "relay")
		}
		return fmt.Errorf("failed to store session: %w", err)
	}
	s.metrics.SetSessions(s.store.Len())

	s.logger.Info(fmt.Sprintf("Session %s approved for %s (%s), expires %s",
		topic, account, p.Proposer.Name, time.Unix(expiry, 0).UTC().Format(time.RFC3339)), "relay")
	return nil
}

func (s *Service) rejectProposal(ctx context.Context, p *signaling.Proposal, cause error) error {
	s.logger.Warn(fmt.Sprintf("Rejecting proposal %d from %s: %v", p.ID, p.Proposer.Name, cause), "relay")

	reason := signaling.RejectReason{Code: rejectUserRejected, Message: "Proposal rejected"}
	if err := s.adapter.Reject(ctx, p.ID, reason); err != nil {
		s.logger.Warn(fmt.Sprintf("Failed to reject proposal %d: %v", p.ID, err), "relay")
	}
	return cause
}

func (s *Service) namespaces(account string) map[string]signaling.Namespace {
	return map[string]signaling.Namespace{
		"eip155": {
			Chains:   []string{s.opts.Network},
			Methods:  append([]string(nil), Methods...),
			Events:   append([]string(nil), s.opts.Events...),
			Accounts: []string{s.opts.Network + ":" + account},
		},
	}
}

// sessionExpiry prefers the acknowledged expiry, then the proposal's, then
// the configured session lifetime.
func (s *Service) sessionExpiry(info signaling.SessionInfo, p *signaling.Proposal) int64 {
	if info.Expiry > 0 {
		return info.Expiry
	}
	if p.Expiry > 0 {
		return p.Expiry
	}
	return s.opts.Now().Add(s.opts.SessionTTL).Unix()
}

// HandleDelete drops the records backed by topic
func (s *Service) HandleDelete(ctx context.Context, topic string) {
	n, err := s.store.DeleteByTopic(topic)
	if err != nil {
		s.logger.Error(fmt.Sprintf("Failed to delete sessions of topic %s: %v", topic, err), "relay")
		return
	}
	if n > 0 {
		s.metrics.SetSessions(s.store.Len())
		s.logger.Info(fmt.Sprintf("Session %s deleted by peer", topic), "relay")
	}
}

// HandleRequest serves one request and sends exactly one response for it.
func (s *Service) HandleRequest(ctx context.Context, req *signaling.Request) {
	resp, outcome := s.dispatch(ctx, req)
	s.respond(req, resp, outcome)
}

func (s *Service) respond(req *signaling.Request, resp signaling.Response, outcome string) {
	ctx, cancel := context.WithTimeout(context.Background(), respondTimeout)
	defer cancel()

	method := req.Params.Request.Method
	if err := s.adapter.Respond(ctx, req.Topic, resp); err != nil {
		s.logger.Error(fmt.Sprintf("%v: request %d (%s) on %s: %v", ErrChannelError, req.ID, method, req.Topic, err), "relay")
		outcome = "channel_error"
	}
	s.metrics.ObserveRequest(method, outcome)
}

// dispatch never panics and always yields a response
func (s *Service) dispatch(ctx context.Context, req *signaling.Request) (resp signaling.Response, outcome string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(fmt.Sprintf("Request %d (%s) panicked: %v", req.ID, req.Params.Request.Method, r), "relay")
			resp = signaling.ErrorResponse(req.ID, CodeInternal, "internal error")
			outcome = string(KindInternal)
		}
	}()

	result, err := s.serve(ctx, req)
	if err != nil {
		rpcErr := ToRPCError(err)
		s.logger.LogFields("warn", fmt.Sprintf("Request %d failed: %v", req.ID, err), "relay", log.Fields{
			"request_id": req.ID,
			"method":     req.Params.Request.Method,
			"topic":      req.Topic,
			"kind":       string(rpcErr.Kind),
		})
		return signaling.ErrorResponse(req.ID, rpcErr.Code, rpcErr.Message), string(rpcErr.Kind)
	}
	return signaling.ResultResponse(req.ID, result), "ok"
}

// serve authorizes the request before any handler runs
func (s *Service) serve(ctx context.Context, req *signaling.Request) (any, error) {
	method := req.Params.Request.Method
	raw := req.Params.Request.Params

	account, err := RequestAccount(raw)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(account, req.Topic); err != nil {
		return nil, err
	}

	params, err := DecodeParams(method, raw)
	if err != nil {
		return nil, err
	}

	call := requestContext{ID: req.ID, Topic: req.Topic}
	switch p := params.(type) {
	case *ListAccountsParams:
		return s.listAccounts(ctx, p)
	case *SecretHashParams:
		return s.shieldSecretHash(ctx, p)
	case *AuthWitnessParams:
		return s.createAuthWitness(ctx, call, p)
	case *SendTransactionParams:
		return s.sendTransaction(ctx, call, p)
	case *RedeemShieldParams:
		return s.redeemShield(ctx, p)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}
}

// authorize requires a live record for account bound to topic. An expired
// record is deleted.
func (s *Service) authorize(account, topic string) error {
	rec, ok := s.store.Get(account)
	if !ok {
		return fmt.Errorf("%w: no session for %s", ErrUnauthorized, account)
	}
	if rec.Topic != topic {
		return fmt.Errorf("%w: %s is not paired on this topic", ErrUnauthorized, account)
	}
	if rec.Expired(s.opts.Now()) {
		if err := s.store.Delete(account); err != nil {
			s.logger.Error(fmt.Sprintf("Failed to delete expired session of %s: %v", account, err), "relay")
		} else {
			s.metrics.SetSessions(s.store.Len())
		}
		return ErrSessionExpired
	}
	return nil
}

func (s *Service) Pair(ctx context.Context, uri string) (*signaling.PairingInfo, error) {
	return s.adapter.Pair(ctx, uri)
}

// Disconnect removes the records of topic and closes the pairing. Records
// go first so a channel failure never leaves the topic authorized.
func (s *Service) Disconnect(ctx context.Context, topic string) error {
	n, err := s.store.DeleteByTopic(topic)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n > 0 {
		s.metrics.SetSessions(s.store.Len())
	}

	if err := s.adapter.DisconnectPairing(ctx, topic); err != nil {
		return fmt.Errorf("failed to disconnect pairing %s: %w", topic, err)
	}
	s.logger.Info(fmt.Sprintf("Disconnected %s", topic), "relay")
	return nil
}

func (s *Service) Sessions() []session.Record {
	return s.store.ListAll()
}

func (s *Service) Pairings(ctx context.Context) ([]signaling.PairingInfo, error) {
	return s.adapter.ListPairings(ctx)
}

// PendingConfirmations lists the open confirmation tickets
func (s *Service) PendingConfirmations() []confirm.Request {
	return s.gate.Pending()
}

// Close cancels open confirmations, drains queued work and closes the
// adapter. Every queued request still receives a response.
func (s *Service) Close() error {
	s.gate.Close()
	s.lanes.Stop()
	s.cancel()
	return s.adapter.Close()
}
