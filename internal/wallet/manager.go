package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/scrypt"

	"github.com/Trustflow-Network-Labs/signing-relay/internal/utils"
)

// Manager stores encrypted account keys, one file per wallet
type Manager struct {
	walletsDir string
	wallets    map[string]*StoredWallet // walletID -> metadata
	mu         sync.RWMutex
	config     *utils.ConfigManager
	logger     *utils.LogsManager
}

// StoredWallet is a wallet entry. PrivateKey is only set on wallets returned
// by CreateWallet, ImportWallet and GetWallet.
type StoredWallet struct {
	ID         string `json:"id" yaml:"id"`
	Network    string `json:"network" yaml:"network"` // "eip155:8453" (Base), "eip155:84532" (Base Sepolia), etc.
	Address    string `json:"address" yaml:"address"`
	PrivateKey []byte `json:"-" yaml:"-"`
	CreatedAt  int64  `json:"created_at" yaml:"created_at"`
}

// walletFile represents the encrypted wallet file format
type walletFile struct {
	ID           string `json:"id"`
	Network      string `json:"network"`
	Address      string `json:"address"`
	EncryptedKey string `json:"encrypted_key"` // Hex-encoded encrypted private key
	Salt         string `json:"salt"`          // Hex-encoded salt for key derivation
	Nonce        string `json:"nonce"`         // Hex-encoded nonce for AES-GCM
	CreatedAt    int64  `json:"created_at"`
}

// NewManager opens the wallets directory (wallets_dir, or <data>/wallets)
func NewManager(config *utils.ConfigManager, logger *utils.LogsManager) (*Manager, error) {
	walletsDir := config.GetConfigWithDefault("wallets_dir", "")
	if walletsDir == "" {
		walletsDir = filepath.Join(utils.GetAppPaths("").DataDir, "wallets")
	}

	if err := os.MkdirAll(walletsDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create wallets directory: %v", err)
	}

	wm := &Manager{
		walletsDir: walletsDir,
		wallets:    make(map[string]*StoredWallet),
		config:     config,
		logger:     logger,
	}

	if err := wm.loadWallets(); err != nil {
		return nil, fmt.Errorf("failed to load existing wallets: %v", err)
	}

	return wm, nil
}

// CreateWallet creates a new wallet for the specified network
func (wm *Manager) CreateWallet(network string, passphrase string) (*StoredWallet, error) {
	if !isValidNetwork(network) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidNetwork, network)
	}

	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %v", err)
	}

	return wm.addWallet(crypto.FromECDSA(privateKey), network, passphrase)
}

// ImportWallet imports an existing wallet from a hex private key
func (wm *Manager) ImportWallet(privateKeyHex string, network string, passphrase string) (*StoredWallet, error) {
	if !isValidNetwork(network) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidNetwork, network)
	}

	privateKeyBytes, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key hex: %v", err)
	}

	return wm.addWallet(privateKeyBytes, network, passphrase)
}

func (wm *Manager) addWallet(privateKeyBytes []byte, network string, passphrase string) (*StoredWallet, error) {
	privateKey, err := crypto.ToECDSA(privateKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("invalid ECDSA private key: %v", err)
	}

	address := crypto.PubkeyToAddress(privateKey.PublicKey).Hex()
	now := time.Now()

	wallet := &StoredWallet{
		// first 8 hex chars of the address + timestamp
		ID:         fmt.Sprintf("%s-%d", strings.ToLower(address[2:10]), now.UnixNano()),
		Network:    network,
		Address:    address,
		PrivateKey: privateKeyBytes,
		CreatedAt:  now.Unix(),
	}

	wm.mu.Lock()
	defer wm.mu.Unlock()

	for _, existing := range wm.wallets {
		if existing.Address == address && existing.Network == network {
			return nil, fmt.Errorf("wallet for %s on %s already exists (%s)", address, network, existing.ID)
		}
	}

	if err := wm.saveWallet(wallet, passphrase); err != nil {
		return nil, fmt.Errorf("failed to save wallet: %v", err)
	}

	wm.wallets[wallet.ID] = wallet.metadata()
	wm.logger.Info(fmt.Sprintf("Wallet %s (%s) added on %s", wallet.ID, address, network), "wallet")
	return wallet, nil
}

func (w *StoredWallet) metadata() *StoredWallet {
	return &StoredWallet{
		ID:        w.ID,
		Network:   w.Network,
		Address:   w.Address,
		CreatedAt: w.CreatedAt,
	}
}

// ListWallets returns all wallets without private keys, oldest first
func (wm *Manager) ListWallets() []*StoredWallet {
	wm.mu.RLock()
	defer wm.mu.RUnlock()

	wallets := make([]*StoredWallet, 0, len(wm.wallets))
	for _, wallet := range wm.wallets {
		wallets = append(wallets, wallet.metadata())
	}
	sort.Slice(wallets, func(i, j int) bool {
		if wallets[i].CreatedAt != wallets[j].CreatedAt {
			return wallets[i].CreatedAt < wallets[j].CreatedAt
		}
		return wallets[i].ID < wallets[j].ID
	})
	return wallets
}

// FindWalletByAddress finds a wallet by exact address string
func (wm *Manager) FindWalletByAddress(address string) (*StoredWallet, error) {
	wm.mu.RLock()
	defer wm.mu.RUnlock()

	for _, wallet := range wm.wallets {
		if wallet.Address == address {
			return wallet.metadata(), nil
		}
	}
	return nil, ErrWalletNotFound
}

// GetWalletInfo returns a wallet's metadata without requiring a passphrase
func (wm *Manager) GetWalletInfo(walletID string) (*StoredWallet, error) {
	wm.mu.RLock()
	defer wm.mu.RUnlock()

	wallet, exists := wm.wallets[walletID]
	if !exists {
		return nil, ErrWalletNotFound
	}
	return wallet.metadata(), nil
}

// GetWallet retrieves and decrypts a wallet by ID
func (wm *Manager) GetWallet(walletID string, passphrase string) (*StoredWallet, error) {
	wm.mu.RLock()
	defer wm.mu.RUnlock()

	if _, exists := wm.wallets[walletID]; !exists {
		return nil, ErrWalletNotFound
	}

	walletPath := filepath.Join(wm.walletsDir, walletID+".json")
	return wm.loadAndDecryptWallet(walletPath, passphrase)
}

// DeleteWallet removes a wallet from storage after passphrase verification
func (wm *Manager) DeleteWallet(walletID string, passphrase string) error {
	wm.mu.Lock()
	defer wm.mu.Unlock()

	if _, exists := wm.wallets[walletID]; !exists {
		return ErrWalletNotFound
	}

	walletPath := filepath.Join(wm.walletsDir, walletID+".json")
	if _, err := wm.loadAndDecryptWallet(walletPath, passphrase); err != nil {
		return err
	}

	if err := os.Remove(walletPath); err != nil {
		return fmt.Errorf("failed to delete wallet file: %v", err)
	}

	delete(wm.wallets, walletID)
	return nil
}

// saveWallet encrypts the private key with a scrypt-derived AES-256-GCM key
func (wm *Manager) saveWallet(wallet *StoredWallet, passphrase string) error {
	salt := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("failed to generate salt: %v", err)
	}

	encryptionKey, err := scrypt.Key([]byte(passphrase), salt, 32768, 8, 1, 32)
	if err != nil {
		return fmt.Errorf("failed to derive encryption key: %v", err)
	}

	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return fmt.Errorf("failed to create cipher: %v", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("failed to create GCM: %v", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %v", err)
	}

	// Address is bound as additional data so a file cannot be relabelled
	encryptedKey := gcm.Seal(nil, nonce, wallet.PrivateKey, []byte(wallet.Address))

	wf := &walletFile{
		ID:           wallet.ID,
		Network:      wallet.Network,
		Address:      wallet.Address,
		EncryptedKey: hex.EncodeToString(encryptedKey),
		Salt:         hex.EncodeToString(salt),
		Nonce:        hex.EncodeToString(nonce),
		CreatedAt:    wallet.CreatedAt,
	}

	data, err := json.MarshalIndent(wf, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal wallet: %v", err)
	}

	walletPath := filepath.Join(wm.walletsDir, wallet.ID+".json")
	if err := os.WriteFile(walletPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write wallet file: %v", err)
	}

	return nil
}

// loadAndDecryptWallet loads and decrypts a wallet from disk
func (wm *Manager) loadAndDecryptWallet(walletPath string, passphrase string) (*StoredWallet, error) {
	data, err := os.ReadFile(walletPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read wallet file: %v", err)
	}

	var wf walletFile
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal wallet: %v", err)
	}

	encryptedKey, err := hex.DecodeString(wf.EncryptedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encrypted key: %v", err)
	}

	salt, err := hex.DecodeString(wf.Salt)
	if err != nil {
		return nil, fmt.Errorf("failed to decode salt: %v", err)
	}

	nonce, err := hex.DecodeString(wf.Nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to decode nonce: %v", err)
	}

	decryptionKey, err := scrypt.Key([]byte(passphrase), salt, 32768, 8, 1, 32)
	if err != nil {
		return nil, fmt.Errorf("failed to derive decryption key: %v", err)
	}

	block, err := aes.NewCipher(decryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %v", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %v", err)
	}

	privateKey, err := gcm.Open(nil, nonce, encryptedKey, []byte(wf.Address))
	if err != nil {
		return nil, ErrInvalidPassphrase
	}

	return &StoredWallet{
		ID:         wf.ID,
		Network:    wf.Network,
		Address:    wf.Address,
		PrivateKey: privateKey,
		CreatedAt:  wf.CreatedAt,
	}, nil
}

// loadWallets loads all wallet metadata (without private keys) from disk
func (wm *Manager) loadWallets() error {
	files, err := os.ReadDir(wm.walletsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read wallets directory: %v", err)
	}

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}

		walletPath := filepath.Join(wm.walletsDir, file.Name())
		data, err := os.ReadFile(walletPath)
		if err != nil {
			wm.logger.Warn(fmt.Sprintf("Skipping unreadable wallet file %s: %v", file.Name(), err), "wallet")
			continue
		}

		var wf walletFile
		if err := json.Unmarshal(data, &wf); err != nil {
			wm.logger.Warn(fmt.Sprintf("Skipping invalid wallet file %s: %v", file.Name(), err), "wallet")
			continue
		}

		wm.wallets[wf.ID] = &StoredWallet{
			ID:        wf.ID,
			Network:   wf.Network,
			Address:   wf.Address,
			CreatedAt: wf.CreatedAt,
		}
	}

	return nil
}

// ChainID returns the numeric chain id of an eip155 network
func ChainID(network string) (*big.Int, error) {
	if !isValidNetwork(network) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidNetwork, network)
	}
	id, _ := new(big.Int).SetString(strings.TrimPrefix(network, "eip155:"), 10)
	return id, nil
}

// isValidNetwork checks for an eip155:<chain_id> network
func isValidNetwork(network string) bool {
	parts := strings.Split(network, ":")
	if len(parts) != 2 || parts[0] != "eip155" {
		return false
	}
	id, ok := new(big.Int).SetString(parts[1], 10)
	return ok && id.Sign() > 0
}
