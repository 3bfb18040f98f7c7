package relay

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Trustflow-Network-Labs/signing-relay/internal/wallet"
)

// Wire method names
const (
	MethodRequestAccounts     = "relay_requestAccounts"
	MethodGetShieldSecretHash = "relay_getShieldSecretHash"
	MethodCreateAuthWitness   = "relay_createAuthWitness"
	MethodSendTransaction     = "relay_sendTransaction"
	MethodRedeemShield        = "relay_redeemShield"
)

// Methods is the fixed method set advertised to paired applications
var Methods = []string{
	MethodRequestAccounts,
	MethodGetShieldSecretHash,
	MethodCreateAuthWitness,
	MethodSendTransaction,
	MethodRedeemShield,
}

// Params is the decoded first parameter of a request. The set of variants is
// closed: one per method.
type Params interface {
	Method() string
	Account() string
	isParams()
}

type ListAccountsParams struct {
	From string `json:"from"`
}

type SecretHashParams struct {
	From string `json:"from"`
}

type AuthWitnessParams struct {
	From    string `json:"from"`
	Message string `json:"message"`
}

type SendTransactionParams struct {
	From  string        `json:"from"`
	Calls []wallet.Call `json:"calls"`
}

type RedeemShieldParams struct {
	From       string `json:"from"`
	Amount     string `json:"amount"`
	SecretHash string `json:"secretHash"`
	Token      string `json:"token"`
	TxHash     string `json:"txHash"`
}

func (p *ListAccountsParams) Method() string    { return MethodRequestAccounts }
func (p *SecretHashParams) Method() string      { return MethodGetShieldSecretHash }
func (p *AuthWitnessParams) Method() string     { return MethodCreateAuthWitness }
func (p *SendTransactionParams) Method() string { return MethodSendTransaction }
func (p *RedeemShieldParams) Method() string    { return MethodRedeemShield }

func (p *ListAccountsParams) Account() string    { return p.From }
func (p *SecretHashParams) Account() string      { return p.From }
func (p *AuthWitnessParams) Account() string     { return p.From }
func (p *SendTransactionParams) Account() string { return p.From }
func (p *RedeemShieldParams) Account() string    { return p.From }

func (*ListAccountsParams) isParams()    {}
func (*SecretHashParams) isParams()      {}
func (*AuthWitnessParams) isParams()     {}
func (*SendTransactionParams) isParams() {}
func (*RedeemShieldParams) isParams()    {}

// firstParam returns the first element of the params array
func firstParam(raw json.RawMessage) (json.RawMessage, error) {
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("%w: params must be an array", ErrInvalidParams)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: params array is empty", ErrInvalidParams)
	}
	return list[0], nil
}

// RequestAccount extracts the from field of the first parameter. A request
// that names no account is unauthorized.
func RequestAccount(raw json.RawMessage) (string, error) {
	first, err := firstParam(raw)
	if err != nil {
		return "", fmt.Errorf("%w: no account named: %v", ErrUnauthorized, err)
	}

	var named struct {
		From string `json:"from"`
	}
	if err := json.Unmarshal(first, &named); err != nil || strings.TrimSpace(named.From) == "" {
		return "", fmt.Errorf("%w: no account named", ErrUnauthorized)
	}
	return named.From, nil
}

// DecodeParams validates the first parameter of method into its variant
func DecodeParams(method string, raw json.RawMessage) (Params, error) {
	var p Params
	switch method {
	case MethodRequestAccounts:
		p = &ListAccountsParams{}
	case MethodGetShieldSecretHash:
		p = &SecretHashParams{}
	case MethodCreateAuthWitness:
		p = &AuthWitnessParams{}
	case MethodSendTransaction:
		p = &SendTransactionParams{}
	case MethodRedeemShield:
		p = &RedeemShieldParams{}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}

	first, err := firstParam(raw)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(first, p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if p.Account() == "" {
		return nil, fmt.Errorf("%w: no account named", ErrUnauthorized)
	}
	if err := validate(p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return p, nil
}

func validate(p Params) error {
	switch v := p.(type) {
	case *AuthWitnessParams:
		if _, err := decodeHex(v.Message); err != nil {
			return fmt.Errorf("message: %v", err)
		}
	case *SendTransactionParams:
		if len(v.Calls) == 0 {
			return fmt.Errorf("calls must not be empty")
		}
		for i, c := range v.Calls {
			if err := wallet.ValidateCall(c); err != nil {
				return fmt.Errorf("call %d: %v", i, err)
			}
		}
	case *RedeemShieldParams:
		if !common.IsHexAddress(v.Token) {
			return fmt.Errorf("token %q is not an address", v.Token)
		}
		if _, err := wallet.EncodeWord(v.Amount); err != nil {
			return fmt.Errorf("amount: %v", err)
		}
		if b, err := decodeHex(v.SecretHash); err != nil || len(b) != 32 {
			return fmt.Errorf("secretHash must be 32 bytes of 0x hex")
		}
		if b, err := decodeHex(v.TxHash); err != nil || len(b) != 32 {
			return fmt.Errorf("txHash must be 32 bytes of 0x hex")
		}
	}
	return nil
}

func decodeHex(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return nil, fmt.Errorf("%q is not 0x-prefixed hex", s)
	}
	b, err := hex.DecodeString(s[2:])
	if err != nil || len(b) == 0 {
		return nil, fmt.Errorf("%q is not hex", s)
	}
	return b, nil
}
