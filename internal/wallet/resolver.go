package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Trustflow-Network-Labs/signing-relay/internal/utils"
)

// Resolver maps account identities to unlocked wallets. Identities compare
// as exact strings.
type Resolver struct {
	manager     *Manager
	passphrases *PassphraseSource
	network     string
	evm         EVMConfig
	config      *utils.ConfigManager
	logger      *utils.LogsManager

	mu        sync.Mutex
	unlocked  map[string]*unlockedWallet // walletID -> unlocked key
	noPrompts bool
}

type unlockedWallet struct {
	wallet     *EVMWallet
	privateKey []byte
}

// NewResolver serves the wallets of manager on network
func NewResolver(manager *Manager, passphrases *PassphraseSource, network string, evm EVMConfig, config *utils.ConfigManager, logger *utils.LogsManager) (*Resolver, error) {
	chainID, err := ChainID(network)
	if err != nil {
		return nil, err
	}
	evm.ChainID = chainID
	if evm.Logger == nil {
		evm.Logger = logger
	}

	return &Resolver{
		manager:     manager,
		passphrases: passphrases,
		network:     network,
		evm:         evm,
		config:      config,
		logger:      logger,
		unlocked:    make(map[string]*unlockedWallet),
	}, nil
}

// Network returns the CAIP-2 network the resolver serves
func (r *Resolver) Network() string {
	return r.network
}

// CurrentWallet returns default_wallet_id when set, else the oldest wallet on
// the network.
func (r *Resolver) CurrentWallet(ctx context.Context) (Wallet, error) {
	if id := r.config.GetConfigWithDefault("default_wallet_id", ""); id != "" {
		info, err := r.manager.GetWalletInfo(id)
		if err != nil {
			return nil, fmt.Errorf("%w: default wallet %s: %v", ErrNoCurrentWallet, id, err)
		}
		if info.Network != r.network {
			return nil, fmt.Errorf("%w: default wallet %s is on %s, not %s", ErrNoCurrentWallet, id, info.Network, r.network)
		}
		u, err := r.unlock(info)
		if err != nil {
			return nil, err
		}
		return u.wallet, nil
	}

	for _, info := range r.manager.ListWallets() {
		if info.Network != r.network {
			continue
		}
		u, err := r.unlock(info)
		if err != nil {
			return nil, err
		}
		return u.wallet, nil
	}

	return nil, ErrNoCurrentWallet
}

// WalletFor returns the wallet of identity or ErrUnknownAccount
func (r *Resolver) WalletFor(ctx context.Context, identity string) (Wallet, error) {
	u, err := r.resolve(identity)
	if err != nil {
		return nil, err
	}
	return u.wallet, nil
}

// PrivateKeyFor returns a copy of the private key of identity
func (r *Resolver) PrivateKeyFor(ctx context.Context, identity string) ([]byte, error) {
	u, err := r.resolve(identity)
	if err != nil {
		return nil, err
	}
	key := make([]byte, len(u.privateKey))
	copy(key, u.privateKey)
	return key, nil
}

func (r *Resolver) resolve(identity string) (*unlockedWallet, error) {
	info, err := r.manager.FindWalletByAddress(identity)
	if err != nil || info.Network != r.network {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, identity)
	}
	return r.unlock(info)
}

func (r *Resolver) unlock(info *StoredWallet) (*unlockedWallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.unlocked[info.ID]; ok {
		return u, nil
	}

	passphrase, err := r.passphrases.Passphrase(info.ID, !r.noPrompts)
	if err != nil {
		return nil, err
	}

	stored, err := r.manager.GetWallet(info.ID, passphrase)
	if err != nil {
		if errors.Is(err, ErrInvalidPassphrase) {
			return nil, fmt.Errorf("%w: wallet %s", ErrWalletLocked, info.ID)
		}
		return nil, err
	}

	evmWallet, err := NewEVMWallet(stored.PrivateKey, r.evm)
	if err != nil {
		return nil, err
	}

	u := &unlockedWallet{wallet: evmWallet, privateKey: stored.PrivateKey}
	r.unlocked[info.ID] = u
	r.logger.Info(fmt.Sprintf("Wallet %s (%s) unlocked", info.ID, info.Address), "wallet")
	return u, nil
}

// UnlockAccounts unlocks the local wallets behind identities and returns the
// failures by identity. Identities without a local wallet are skipped.
func (r *Resolver) UnlockAccounts(ctx context.Context, identities []string) map[string]error {
	failed := make(map[string]error)
	for _, identity := range identities {
		info, err := r.manager.FindWalletByAddress(identity)
		if err != nil || info.Network != r.network {
			continue
		}
		if _, err := r.unlock(info); err != nil {
			failed[identity] = err
		}
	}
	return failed
}

// StopPrompting limits later unlocks to the config and the keyring. Wallets
// still locked then fail with ErrWalletLocked.
func (r *Resolver) StopPrompting() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.noPrompts = true
}

// Lock forgets every unlocked key
func (r *Resolver) Lock() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, u := range r.unlocked {
		for i := range u.privateKey {
			u.privateKey[i] = 0
		}
		delete(r.unlocked, id)
	}
}
