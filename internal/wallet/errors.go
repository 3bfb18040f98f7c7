package wallet

import "errors"

var (
	// Wallet storage errors
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrWalletLocked      = errors.New("wallet is locked")
	ErrInvalidPassphrase = errors.New("invalid wallet passphrase")
	ErrInvalidNetwork    = errors.New("unsupported network")

	// Resolver errors
	ErrUnknownAccount  = errors.New("account is not held by this relay")
	ErrNoCurrentWallet = errors.New("no wallet available")

	// Transaction pipeline errors
	ErrEmptyCalls             = errors.New("call list has nothing to send")
	ErrInvalidCall            = errors.New("invalid call descriptor")
	ErrBatchExecutorMissing   = errors.New("batch_executor_address is not configured")
	ErrPublicCallsExcluded    = errors.New("request contains public calls but public execution was excluded")
	ErrChainClientUnavailable = errors.New("chain client is not configured")
)
