package wallet

import (
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/hkdf"
)

// ShieldSecretNonce is the fixed derivation input of the shield secret
var ShieldSecretNonce = []byte("signing-relay/shield-secret/v1")

// DeriveShieldSecret derives the 32-byte shield secret of a private key.
// The same key and nonce always give the same secret.
func DeriveShieldSecret(privateKey []byte, nonce []byte) ([]byte, error) {
	if len(privateKey) == 0 {
		return nil, fmt.Errorf("empty private key")
	}

	reader := hkdf.New(sha256.New, privateKey, nil, nonce)
	secret := make([]byte, 32)
	if _, err := io.ReadFull(reader, secret); err != nil {
		return nil, fmt.Errorf("failed to derive shield secret: %v", err)
	}
	return secret, nil
}

// ShieldSecretHash is the public commitment to a shield secret
func ShieldSecretHash(secret []byte) string {
	return hexutil.Encode(crypto.Keccak256(secret))
}
