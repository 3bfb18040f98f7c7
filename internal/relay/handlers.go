package relay

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/Trustflow-Network-Labs/signing-relay/internal/confirm"
	"github.com/Trustflow-Network-Labs/signing-relay/internal/wallet"
)

// requestContext identifies the request a handler serves
type requestContext struct {
	ID    int64
	Topic string
}

func (s *Service) listAccounts(ctx context.Context, p *ListAccountsParams) ([]string, error) {
	w, err := s.accounts.CurrentWallet(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownAccount, err)
	}
	return []string{w.Address()}, nil
}

// deriveSecret re-derives the shield secret of account
func (s *Service) deriveSecret(ctx context.Context, account string) ([]byte, error) {
	key, err := s.accounts.PrivateKeyFor(ctx, account)
	if err != nil {
		return nil, err
	}
	defer func() {
		for i := range key {
			key[i] = 0
		}
	}()

	return wallet.DeriveShieldSecret(key, wallet.ShieldSecretNonce)
}

func (s *Service) shieldSecretHash(ctx context.Context, p *SecretHashParams) (string, error) {
	secret, err := s.deriveSecret(ctx, p.From)
	if err != nil {
		return "", err
	}
	return wallet.ShieldSecretHash(secret), nil
}

func (s *Service) createAuthWitness(ctx context.Context, call requestContext, p *AuthWitnessParams) (*wallet.Witness, error) {
	w, err := s.accounts.WalletFor(ctx, p.From)
	if err != nil {
		return nil, err
	}

	digest, err := hexutil.Decode(p.Message)
	if err != nil {
		return nil, fmt.Errorf("%w: message: %v", ErrInvalidParams, err)
	}

	if s.opts.ConfirmAuthWitness {
		err := s.confirm(ctx, confirm.Request{
			Topic:     call.Topic,
			RequestID: call.ID,
			Method:    MethodCreateAuthWitness,
			Account:   p.From,
			Summary:   fmt.Sprintf("Authorize digest %s", p.Message),
			Details:   map[string]any{"digest": p.Message},
		})
		if err != nil {
			return nil, err
		}
	}

	witness, err := w.CreateAuthorizationWitness(ctx, digest)
	if err != nil {
		return nil, fmt.Errorf("failed to create witness: %w", err)
	}
	if err := w.AddAuthorizationWitness(ctx, witness); err != nil {
		return nil, fmt.Errorf("failed to register witness: %w", err)
	}
	return witness, nil
}

func (s *Service) sendTransaction(ctx context.Context, call requestContext, p *SendTransactionParams) (string, error) {
	w, err := s.accounts.WalletFor(ctx, p.From)
	if err != nil {
		return "", err
	}

	txReq, err := w.CreateTransactionRequest(ctx, p.Calls)
	if err != nil {
		return "", err
	}

	details := map[string]any{
		"to":      txReq.To.Hex(),
		"calls":   callNames(p.Calls),
		"batched": txReq.Batched,
	}
	req := confirm.Request{
		Topic:     call.Topic,
		RequestID: call.ID,
		Method:    MethodSendTransaction,
		Account:   p.From,
		Summary:   fmt.Sprintf("Send %d call(s) to %s", len(txReq.Calls), txReq.To.Hex()),
		Details:   details,
	}

	// Simulation is advisory. Its failure is shown to the user instead of
	// aborting the request.
	sim, err := w.Simulate(ctx, txReq, true)
	if err != nil {
		req.SimulationError = err.Error()
	} else {
		details["gasEstimate"] = sim.GasEstimate
		if len(sim.StaticResults) > 0 {
			details["staticResults"] = sim.StaticResults
		}
	}

	if err := s.confirm(ctx, req); err != nil {
		return "", err
	}

	proven, err := w.Prove(ctx, txReq, true)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}
	pending, err := w.Send(ctx, proven)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}

	s.logger.Info(fmt.Sprintf("Transaction %s sent for %s (topic %s)", pending.Hash, p.From, call.Topic), "relay")
	return pending.Hash, nil
}

// redeemShield checks the claimed secret hash against the locally derived
// secret before anything is registered or sent.
func (s *Service) redeemShield(ctx context.Context, p *RedeemShieldParams) (string, error) {
	secret, err := s.deriveSecret(ctx, p.From)
	if err != nil {
		return "", err
	}
	secretHash := wallet.ShieldSecretHash(secret)
	if !strings.EqualFold(secretHash, p.SecretHash) {
		return "", ErrSecretMismatch
	}

	w, err := s.accounts.WalletFor(ctx, p.From)
	if err != nil {
		return "", err
	}

	note := &wallet.ExtendedNote{
		Owner:      p.From,
		Token:      p.Token,
		Amount:     p.Amount,
		SecretHash: secretHash,
		TxHash:     p.TxHash,
	}
	if err := w.AddNote(ctx, note); err != nil {
		return "", fmt.Errorf("failed to register note: %w", err)
	}

	txReq, err := w.CreateTransactionRequest(ctx, []wallet.Call{{
		Name:     "redeemShield",
		To:       p.Token,
		Selector: s.opts.RedeemMethod,
		Type:     wallet.CallPublic,
		Args:     []string{p.From, p.Amount, hexutil.Encode(secret)},
	}})
	if err != nil {
		return "", err
	}
	txReq.NoteID = note.ID

	proven, err := w.Prove(ctx, txReq, true)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}
	pending, err := w.Send(ctx, proven)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}

	s.logger.Info(fmt.Sprintf("Note %d redeemed by %s in %s", note.ID, p.From, pending.Hash), "relay")
	return pending.Hash, nil
}

// confirm blocks on the gate for the request's topic. Anything but an
// explicit approval is a rejection.
func (s *Service) confirm(ctx context.Context, req confirm.Request) error {
	decision, err := s.gate.Request(ctx, req.Topic, req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUserRejected, err)
	}
	if decision != confirm.Approve {
		return ErrUserRejected
	}
	return nil
}

func callNames(calls []wallet.Call) []string {
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.Name
	}
	return names
}
