package relay

import (
	"errors"
	"fmt"

	"github.com/Trustflow-Network-Labs/signing-relay/internal/confirm"
	"github.com/Trustflow-Network-Labs/signing-relay/internal/wallet"
)

var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrSessionExpired    = fmt.Errorf("%w: session expired", ErrUnauthorized)
	ErrUnknownAccount    = errors.New("unknown account")
	ErrUnsupportedMethod = errors.New("unsupported method")
	ErrInvalidParams     = errors.New("invalid params")
	ErrSecretMismatch    = errors.New("secret hash does not match")
	ErrUserRejected      = errors.New("user rejected the request")
	ErrSubmissionFailed  = errors.New("transaction submission failed")
	ErrChannelError      = errors.New("signaling channel failed to deliver the response")
	ErrRelayClosed       = errors.New("relay is shutting down")
)

// Kind classifies an error for the protocol response
type Kind string

const (
	KindUnauthorized      Kind = "unauthorized"
	KindUnknownAccount    Kind = "unknown_account"
	KindUnsupportedMethod Kind = "unsupported_method"
	KindInvalidParams     Kind = "invalid_params"
	KindSecretMismatch    Kind = "secret_mismatch"
	KindUserRejected      Kind = "user_rejected"
	KindSubmissionFailed  Kind = "submission_failed"
	KindInternal          Kind = "internal"
)

// EIP-1193 provider codes and JSON-RPC codes
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupportedMethod = 4200
	CodeInvalidParams     = -32602
	CodeInternal          = -32603
)

var codeMap = map[Kind]int{
	KindUnauthorized:      CodeUnauthorized,
	KindUnknownAccount:    CodeUnauthorized,
	KindUnsupportedMethod: CodeUnsupportedMethod,
	KindInvalidParams:     CodeInvalidParams,
	KindSecretMismatch:    CodeInvalidParams,
	KindUserRejected:      CodeUserRejected,
	KindSubmissionFailed:  CodeInternal,
	KindInternal:          CodeInternal,
}

// classification is checked in order; the first match wins
var classification = []struct {
	target error
	kind   Kind
}{
	{ErrUnauthorized, KindUnauthorized},
	{ErrUnknownAccount, KindUnknownAccount},
	{wallet.ErrUnknownAccount, KindUnknownAccount},
	{ErrUnsupportedMethod, KindUnsupportedMethod},
	{ErrSecretMismatch, KindSecretMismatch},
	{ErrUserRejected, KindUserRejected},
	{confirm.ErrGateClosed, KindUserRejected},
	{ErrRelayClosed, KindUserRejected},
	{ErrSubmissionFailed, KindSubmissionFailed},
	{ErrInvalidParams, KindInvalidParams},
	{wallet.ErrInvalidCall, KindInvalidParams},
	{wallet.ErrEmptyCalls, KindInvalidParams},
}

// RPCError is the error member of a JSON-RPC response
type RPCError struct {
	Code    int
	Kind    Kind
	Message string
}

func (e *RPCError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Code)
}

// Code returns the protocol code of kind, CodeInternal when unknown
func Code(kind Kind) int {
	if code, ok := codeMap[kind]; ok {
		return code
	}
	return CodeInternal
}

// ToRPCError maps any error raised while handling a request to its
// protocol form.
func ToRPCError(err error) *RPCError {
	if err == nil {
		return nil
	}

	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}

	kind := KindInternal
	for _, c := range classification {
		if errors.Is(err, c.target) {
			kind = c.kind
			break
		}
	}

	return &RPCError{Code: Code(kind), Kind: kind, Message: err.Error()}
}
