package wallet

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Call types
const (
	CallPrivate = "private"
	CallPublic  = "public"
)

// Call describes one contract call of a send-transaction request. Args are
// positional field values: 0x-prefixed hex or base-10 integers.
type Call struct {
	Name        string   `json:"name"`
	To          string   `json:"to"`
	Selector    string   `json:"selector"`
	Type        string   `json:"type"`
	IsStatic    bool     `json:"isStatic"`
	Args        []string `json:"args"`
	ReturnTypes []string `json:"returnTypes"`
}

// CompleteAddress is an address together with the public key it derives from
type CompleteAddress struct {
	Address   string `json:"address"`
	PublicKey string `json:"publicKey"`
}

// Witness is a signature by the account over a digest
type Witness struct {
	ID        string `json:"id"`
	Digest    string `json:"digest"`
	Signature string `json:"signature"`
	Signer    string `json:"signer"`
}

// ExtendedNote is a shielded note the account can redeem with its secret
type ExtendedNote struct {
	ID         int64  `json:"id,omitempty"`
	Owner      string `json:"owner"`
	Token      string `json:"token"`
	Amount     string `json:"amount"`
	SecretHash string `json:"secretHash"`
	TxHash     string `json:"txHash"`
}

// TxRequest is a call list turned into a single submission
type TxRequest struct {
	From  common.Address
	To    common.Address
	Data  []byte
	Value *big.Int

	// Calls are the submitted calls, in order. Static calls are only simulated.
	Calls       []Call
	StaticCalls []Call
	Batched     bool

	// NoteID marks the submission as the redemption of a registered note
	NoteID int64
}

// HasPublicCalls reports whether any submitted call is public
func (r *TxRequest) HasPublicCalls() bool {
	for _, c := range r.Calls {
		if c.Type == CallPublic {
			return true
		}
	}
	return false
}

// SimulationResult is the predicted effect of a TxRequest
type SimulationResult struct {
	GasEstimate   uint64   `json:"gasEstimate"`
	StaticResults []string `json:"staticResults,omitempty"`
}

// ProvenTx is a signed, ready to broadcast transaction
type ProvenTx struct {
	Tx     *types.Transaction
	NoteID int64
}

// Hash returns the transaction identifier
func (p *ProvenTx) Hash() string {
	return p.Tx.Hash().Hex()
}

// PendingTx is a broadcast transaction
type PendingTx struct {
	Hash string `json:"hash"`
}

// Wallet is the signing and submission capability of one local account
type Wallet interface {
	Address() string
	CompleteAddress() CompleteAddress
	CreateAuthorizationWitness(ctx context.Context, digest []byte) (*Witness, error)
	AddAuthorizationWitness(ctx context.Context, w *Witness) error
	CreateTransactionRequest(ctx context.Context, calls []Call) (*TxRequest, error)
	Simulate(ctx context.Context, req *TxRequest, includePublic bool) (*SimulationResult, error)
	Prove(ctx context.Context, req *TxRequest, includePublic bool) (*ProvenTx, error)
	Send(ctx context.Context, tx *ProvenTx) (*PendingTx, error)
	AddNote(ctx context.Context, note *ExtendedNote) error
}
