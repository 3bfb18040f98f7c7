package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/term"

	"github.com/Trustflow-Network-Labs/signing-relay/internal/confirm"
	"github.com/Trustflow-Network-Labs/signing-relay/internal/crypto/keystore"
	"github.com/Trustflow-Network-Labs/signing-relay/internal/database"
	"github.com/Trustflow-Network-Labs/signing-relay/internal/relay"
	"github.com/Trustflow-Network-Labs/signing-relay/internal/session"
	"github.com/Trustflow-Network-Labs/signing-relay/internal/signaling"
	"github.com/Trustflow-Network-Labs/signing-relay/internal/utils"
	"github.com/Trustflow-Network-Labs/signing-relay/internal/wallet"
)

// relayStack is everything a running relay owns
type relayStack struct {
	db       *database.SQLiteManager
	store    *session.Store
	chain    *ethclient.Client
	resolver *wallet.Resolver
	adapter  *signaling.WSAdapter
	gate     *confirm.Gate
	registry *prometheus.Registry
	service  *relay.Service
}

// openDatabase opens the relay database
func openDatabase() (*database.SQLiteManager, error) {
	db, err := database.NewSQLiteManager(config, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}
	return db, nil
}

// openSessionStore loads the session table from the backend named by
// session_store.
func openSessionStore(db *database.SQLiteManager) (*session.Store, error) {
	switch backend := config.GetConfigWithDefault("session_store", "file"); backend {
	case "file":
		paths := utils.GetAppPaths("")
		file := paths.GetDataPath(config.GetConfigWithDefault("sessions_file", "sessions.json"))
		return session.NewStore(session.NewFileBackend(file), logger), nil
	case "sqlite":
		return session.NewStore(db.Sessions, logger), nil
	default:
		return nil, fmt.Errorf("unknown session_store %q, use file or sqlite", backend)
	}
}

// openAdapter unlocks the relay client identity and builds the signaling adapter
func openAdapter() (*signaling.WSAdapter, error) {
	paths := utils.GetAppPaths("")
	keyPair, err := keystore.InitOrLoadKeystore(paths.DataDir, passphraseFile, config, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to unlock relay identity: %w", err)
	}
	return signaling.NewWSAdapter(signaling.WSConfigFromConfig(config, keyPair), logger), nil
}

func newPrompter() confirm.Prompter {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		return confirm.NewTerminalPrompter(os.Stdin, os.Stdout)
	}
	logger.Warn("stdin is not a terminal, every confirmation will be cancelled", "cli")
	return confirm.StaticPrompter{Decision: confirm.Cancel}
}

// buildRelayStack wires the relay service from config. Nothing is started.
func buildRelayStack(ctx context.Context) (*relayStack, error) {
	rs := &relayStack{registry: prometheus.NewRegistry()}

	var err error
	if rs.db, err = openDatabase(); err != nil {
		return nil, err
	}
	if rs.store, err = openSessionStore(rs.db); err != nil {
		rs.Close()
		return nil, err
	}

	rpcURL := config.GetConfigWithDefault("rpc_url", "https://sepolia.base.org")
	if rs.chain, err = ethclient.DialContext(ctx, rpcURL); err != nil {
		rs.Close()
		return nil, fmt.Errorf("failed to dial %s: %v", rpcURL, err)
	}

	manager, err := wallet.NewManager(config, logger)
	if err != nil {
		rs.Close()
		return nil, err
	}

	var executor common.Address
	if addr := config.GetConfigWithDefault("batch_executor_address", ""); addr != "" {
		if !common.IsHexAddress(addr) {
			rs.Close()
			return nil, fmt.Errorf("invalid batch_executor_address %q", addr)
		}
		executor = common.HexToAddress(addr)
	}

	opts := relay.OptionsFromConfig(config)
	rs.resolver, err = wallet.NewResolver(manager, wallet.NewPassphraseSource(config, logger), opts.Network, wallet.EVMConfig{
		Client:        rs.chain,
		BatchExecutor: executor,
		Witnesses:     rs.db.Witnesses,
		Notes:         rs.db.Notes,
		Logger:        logger,
	}, config, logger)
	if err != nil {
		rs.Close()
		return nil, err
	}

	if rs.adapter, err = openAdapter(); err != nil {
		rs.Close()
		return nil, err
	}

	rs.gate = confirm.NewGate(newPrompter(), config.GetConfigDuration("confirmation_timeout", 2*time.Minute), logger)
	rs.service = relay.NewService(rs.adapter, rs.store, rs.resolver, rs.gate, opts, logger, relay.NewMetrics(rs.registry))
	return rs, nil
}

// Close releases everything in reverse construction order
func (rs *relayStack) Close() {
	if rs.service != nil {
		if err := rs.service.Close(); err != nil {
			logger.Warn(fmt.Sprintf("Error closing relay service: %v", err), "cli")
		}
	} else if rs.adapter != nil {
		rs.adapter.Close()
	}
	if rs.resolver != nil {
		rs.resolver.Lock()
	}
	if rs.chain != nil {
		rs.chain.Close()
	}
	if rs.db != nil {
		if err := rs.db.Close(); err != nil {
			logger.Warn(fmt.Sprintf("Error closing database: %v", err), "cli")
		}
	}
}
