package crypto

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// ed25519Multicodec prefixes an ed25519 public key in a did:key identifier
var ed25519Multicodec = []byte{0xed, 0x01}

const didKeyPrefix = "did:key:z"

// KeyPair is the Ed25519 identity the relay client authenticates with
type KeyPair struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// GenerateKeypair generates a new Ed25519 keypair
func GenerateKeypair() (*KeyPair, error) {
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate Ed25519 keypair: %v", err)
	}

	return &KeyPair{
		PublicKey:  publicKey,
		PrivateKey: privateKey,
	}, nil
}

// EncodeDIDKey encodes a public key as did:key:z<base58btc(multicodec || key)>
func EncodeDIDKey(publicKey ed25519.PublicKey) string {
	payload := append(append([]byte{}, ed25519Multicodec...), publicKey...)
	return didKeyPrefix + base58.Encode(payload)
}

// DecodeDIDKey reverses EncodeDIDKey
func DecodeDIDKey(did string) (ed25519.PublicKey, error) {
	if !strings.HasPrefix(did, didKeyPrefix) {
		return nil, fmt.Errorf("not an ed25519 did:key: %q", did)
	}

	payload, err := base58.Decode(strings.TrimPrefix(did, didKeyPrefix))
	if err != nil {
		return nil, fmt.Errorf("invalid did:key encoding: %v", err)
	}

	if len(payload) != len(ed25519Multicodec)+ed25519.PublicKeySize || !bytes.HasPrefix(payload, ed25519Multicodec) {
		return nil, fmt.Errorf("did:key is not an ed25519 public key")
	}

	return ed25519.PublicKey(payload[len(ed25519Multicodec):]), nil
}

// ClientID returns the did:key identifier of this keypair
func (kp *KeyPair) ClientID() string {
	return EncodeDIDKey(kp.PublicKey)
}

// Sign signs a message with the private key (Ed25519 signature)
func (kp *KeyPair) Sign(message []byte) []byte {
	return ed25519.Sign(kp.PrivateKey, message)
}

// Verify verifies a signature against a message using the public key
func (kp *KeyPair) Verify(message, signature []byte) bool {
	return ed25519.Verify(kp.PublicKey, message, signature)
}
