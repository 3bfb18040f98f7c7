package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Trustflow-Network-Labs/signing-relay/internal/database"
	"github.com/Trustflow-Network-Labs/signing-relay/internal/utils"
)

// ChainClient is the part of ethclient.Client the wallet submits through
type ChainClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// WitnessStore records issued witnesses
type WitnessStore interface {
	SaveWitness(w *database.AuthWitness) error
}

// NoteStore records notes and their redemption
type NoteStore interface {
	AddNote(n *database.ShieldedNote) error
	MarkRedeemed(id int64, redeemTxHash string) error
}

// EVMConfig carries the chain settings shared by every EVMWallet
type EVMConfig struct {
	ChainID       *big.Int
	Client        ChainClient
	BatchExecutor common.Address
	Witnesses     WitnessStore
	Notes         NoteStore
	Logger        *utils.LogsManager
}

// EVMWallet implements Wallet for an unlocked secp256k1 key
type EVMWallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
	cfg     EVMConfig
}

// NewEVMWallet wraps an unlocked private key
func NewEVMWallet(privateKey []byte, cfg EVMConfig) (*EVMWallet, error) {
	key, err := crypto.ToECDSA(privateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid ECDSA private key: %v", err)
	}
	return &EVMWallet{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		cfg:     cfg,
	}, nil
}

func (w *EVMWallet) Address() string {
	return w.address.Hex()
}

func (w *EVMWallet) CompleteAddress() CompleteAddress {
	return CompleteAddress{
		Address:   w.address.Hex(),
		PublicKey: hexutil.Encode(crypto.FromECDSAPub(&w.key.PublicKey)),
	}
}

// CreateAuthorizationWitness signs digest as an EIP-191 personal message, so a
// witness never verifies as a transaction signature. Digests that are not 32
// bytes are hashed with Keccak-256 first.
func (w *EVMWallet) CreateAuthorizationWitness(ctx context.Context, digest []byte) (*Witness, error) {
	if len(digest) == 0 {
		return nil, fmt.Errorf("empty digest")
	}

	hash := digest
	if len(hash) != 32 {
		hash = crypto.Keccak256(digest)
	}

	signature, err := crypto.Sign(accounts.TextHash(hash), w.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign digest: %v", err)
	}

	return &Witness{
		ID:        utils.HashBytes(w.address.Bytes(), digest, signature),
		Digest:    hexutil.Encode(digest),
		Signature: hexutil.Encode(signature),
		Signer:    w.address.Hex(),
	}, nil
}

func (w *EVMWallet) AddAuthorizationWitness(ctx context.Context, witness *Witness) error {
	if w.cfg.Witnesses == nil {
		return fmt.Errorf("no witness store configured")
	}
	return w.cfg.Witnesses.SaveWitness(&database.AuthWitness{
		ID:        witness.ID,
		Account:   w.address.Hex(),
		Digest:    witness.Digest,
		Signature: witness.Signature,
	})
}

// CreateTransactionRequest turns calls into a single submission. One call is
// sent to its target directly; several are wrapped into an aggregate call on
// the batch executor. Static calls are kept for simulation only.
func (w *EVMWallet) CreateTransactionRequest(ctx context.Context, calls []Call) (*TxRequest, error) {
	req := &TxRequest{From: w.address, Value: big.NewInt(0)}

	var targets []common.Address
	var calldata [][]byte
	for i, c := range calls {
		if err := ValidateCall(c); err != nil {
			return nil, fmt.Errorf("call %d (%s): %w", i, c.Name, err)
		}
		data, err := EncodeCall(c)
		if err != nil {
			return nil, fmt.Errorf("call %d (%s): %w", i, c.Name, err)
		}
		if c.IsStatic {
			req.StaticCalls = append(req.StaticCalls, c)
			continue
		}
		req.Calls = append(req.Calls, c)
		targets = append(targets, common.HexToAddress(c.To))
		calldata = append(calldata, data)
	}

	switch len(req.Calls) {
	case 0:
		return nil, ErrEmptyCalls
	case 1:
		req.To = targets[0]
		req.Data = calldata[0]
	default:
		if w.cfg.BatchExecutor == (common.Address{}) {
			return nil, ErrBatchExecutorMissing
		}
		data, err := EncodeAggregate(targets, calldata)
		if err != nil {
			return nil, err
		}
		req.To = w.cfg.BatchExecutor
		req.Data = data
		req.Batched = true
	}

	return req, nil
}

func (w *EVMWallet) callMsg(req *TxRequest) ethereum.CallMsg {
	to := req.To
	return ethereum.CallMsg{
		From:  req.From,
		To:    &to,
		Data:  req.Data,
		Value: req.Value,
	}
}

// Simulate estimates gas for the submission and evaluates static calls
func (w *EVMWallet) Simulate(ctx context.Context, req *TxRequest, includePublic bool) (*SimulationResult, error) {
	if w.cfg.Client == nil {
		return nil, ErrChainClientUnavailable
	}
	if !includePublic && req.HasPublicCalls() {
		return nil, ErrPublicCallsExcluded
	}

	gas, err := w.cfg.Client.EstimateGas(ctx, w.callMsg(req))
	if err != nil {
		return nil, fmt.Errorf("simulation failed: %w", err)
	}

	result := &SimulationResult{GasEstimate: gas}
	for _, c := range req.StaticCalls {
		data, err := EncodeCall(c)
		if err != nil {
			return nil, err
		}
		to := common.HexToAddress(c.To)
		out, err := w.cfg.Client.CallContract(ctx, ethereum.CallMsg{From: req.From, To: &to, Data: data}, nil)
		if err != nil {
			return nil, fmt.Errorf("static call %s failed: %w", c.Name, err)
		}
		result.StaticResults = append(result.StaticResults, hexutil.Encode(out))
	}

	return result, nil
}

// Prove builds and signs an EIP-1559 transaction for req
func (w *EVMWallet) Prove(ctx context.Context, req *TxRequest, includePublic bool) (*ProvenTx, error) {
	if w.cfg.Client == nil {
		return nil, ErrChainClientUnavailable
	}
	if !includePublic && req.HasPublicCalls() {
		return nil, ErrPublicCallsExcluded
	}

	nonce, err := w.cfg.Client.PendingNonceAt(ctx, w.address)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	tipCap, err := w.cfg.Client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas tip: %w", err)
	}

	head, err := w.cfg.Client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest header: %w", err)
	}
	baseFee := head.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(0)
	}
	feeCap := new(big.Int).Add(tipCap, new(big.Int).Mul(baseFee, big.NewInt(2)))

	gas, err := w.cfg.Client.EstimateGas(ctx, w.callMsg(req))
	if err != nil {
		return nil, fmt.Errorf("failed to estimate gas: %w", err)
	}

	to := req.To
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   w.cfg.ChainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     req.Value,
		Data:      req.Data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(w.cfg.ChainID), w.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	return &ProvenTx{Tx: signed, NoteID: req.NoteID}, nil
}

// Send broadcasts tx. A redeemed note is marked once the broadcast succeeded.
func (w *EVMWallet) Send(ctx context.Context, tx *ProvenTx) (*PendingTx, error) {
	if w.cfg.Client == nil {
		return nil, ErrChainClientUnavailable
	}

	if err := w.cfg.Client.SendTransaction(ctx, tx.Tx); err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}

	hash := tx.Hash()
	if tx.NoteID != 0 && w.cfg.Notes != nil {
		if err := w.cfg.Notes.MarkRedeemed(tx.NoteID, hash); err != nil && w.cfg.Logger != nil {
			w.cfg.Logger.Warn(fmt.Sprintf("Failed to mark note %d redeemed by %s: %v", tx.NoteID, hash, err), "wallet")
		}
	}

	return &PendingTx{Hash: hash}, nil
}

func (w *EVMWallet) AddNote(ctx context.Context, note *ExtendedNote) error {
	if w.cfg.Notes == nil {
		return fmt.Errorf("no note store configured")
	}

	row := &database.ShieldedNote{
		Account:    w.address.Hex(),
		Owner:      note.Owner,
		Token:      note.Token,
		Amount:     note.Amount,
		SecretHash: note.SecretHash,
		TxHash:     note.TxHash,
	}
	if err := w.cfg.Notes.AddNote(row); err != nil {
		return err
	}
	note.ID = row.ID
	return nil
}
