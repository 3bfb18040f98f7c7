package wallet

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// AggregateSignature is the batch entry point called on batch_executor_address
const AggregateSignature = "aggregate((address,bytes)[])"

var aggregateArgs abi.Arguments

func init() {
	callsType, err := abi.NewType("tuple[]", "", []abi.ArgumentMarshaling{
		{Name: "target", Type: "address"},
		{Name: "callData", Type: "bytes"},
	})
	if err != nil {
		panic(err)
	}
	aggregateArgs = abi.Arguments{{Type: callsType}}
}

type aggregateCall struct {
	Target   common.Address
	CallData []byte
}

// ParseSelector accepts a 4-byte hex selector ("0xa9059cbb") or a function
// signature ("transfer(address,uint256)").
func ParseSelector(selector string) ([]byte, error) {
	selector = strings.TrimSpace(selector)
	if strings.HasPrefix(selector, "0x") || strings.HasPrefix(selector, "0X") {
		b, err := hex.DecodeString(selector[2:])
		if err != nil || len(b) != 4 {
			return nil, fmt.Errorf("%w: selector %q is not 4 bytes of hex", ErrInvalidCall, selector)
		}
		return b, nil
	}
	if strings.Contains(selector, "(") && strings.HasSuffix(selector, ")") {
		return crypto.Keccak256([]byte(selector))[:4], nil
	}
	return nil, fmt.Errorf("%w: unrecognized selector %q", ErrInvalidCall, selector)
}

// EncodeWord encodes a field value as a 32-byte big-endian word
func EncodeWord(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("%w: empty argument", ErrInvalidCall)
	}

	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		digits := value[2:]
		if len(digits)%2 == 1 {
			digits = "0" + digits
		}
		b, err := hex.DecodeString(digits)
		if err != nil {
			return nil, fmt.Errorf("%w: argument %q is not hex", ErrInvalidCall, value)
		}
		if len(b) > 32 {
			return nil, fmt.Errorf("%w: argument %q exceeds 32 bytes", ErrInvalidCall, value)
		}
		return common.LeftPadBytes(b, 32), nil
	}

	n, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("%w: argument %q is neither hex nor decimal", ErrInvalidCall, value)
	}
	if n.Sign() < 0 || n.BitLen() > 256 {
		return nil, fmt.Errorf("%w: argument %q out of range", ErrInvalidCall, value)
	}
	return n.FillBytes(make([]byte, 32)), nil
}

// EncodeCall returns the calldata of c: selector followed by one word per arg
func EncodeCall(c Call) ([]byte, error) {
	selector, err := ParseSelector(c.Selector)
	if err != nil {
		return nil, err
	}

	data := make([]byte, 0, 4+32*len(c.Args))
	data = append(data, selector...)
	for _, arg := range c.Args {
		word, err := EncodeWord(arg)
		if err != nil {
			return nil, err
		}
		data = append(data, word...)
	}
	return data, nil
}

// ValidateCall checks the descriptor fields that do not depend on encoding
func ValidateCall(c Call) error {
	if !common.IsHexAddress(c.To) {
		return fmt.Errorf("%w: %q is not an address", ErrInvalidCall, c.To)
	}
	switch c.Type {
	case CallPrivate, CallPublic:
	default:
		return fmt.Errorf("%w: call type %q", ErrInvalidCall, c.Type)
	}
	return nil
}

// EncodeAggregate wraps several calls into one aggregate call
func EncodeAggregate(targets []common.Address, calldata [][]byte) ([]byte, error) {
	if len(targets) != len(calldata) {
		return nil, fmt.Errorf("%w: %d targets for %d calls", ErrInvalidCall, len(targets), len(calldata))
	}

	calls := make([]aggregateCall, len(targets))
	for i := range targets {
		calls[i] = aggregateCall{Target: targets[i], CallData: calldata[i]}
	}

	packed, err := aggregateArgs.Pack(calls)
	if err != nil {
		return nil, fmt.Errorf("failed to pack aggregate call: %v", err)
	}

	selector := crypto.Keccak256([]byte(AggregateSignature))[:4]
	return append(selector, packed...), nil
}
