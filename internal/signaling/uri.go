package signaling

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const pairingVersion = 2

// PairingURI is a parsed wc:<topic>@2?relay-protocol=irn&symKey=<hex>&expiryTimestamp=<s>
type PairingURI struct {
	Topic           string
	Version         int
	RelayProtocol   string
	SymKey          []byte
	ExpiryTimestamp int64
}

func ParsePairingURI(raw string) (*PairingURI, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}
	if u.Scheme != "wc" {
		return nil, fmt.Errorf("%w: scheme %q", ErrInvalidURI, u.Scheme)
	}

	topic, version, ok := strings.Cut(u.Opaque, "@")
	if !ok || topic == "" {
		return nil, fmt.Errorf("%w: missing topic", ErrInvalidURI)
	}
	if _, err := hex.DecodeString(topic); err != nil {
		return nil, fmt.Errorf("%w: topic is not hex", ErrInvalidURI)
	}
	v, err := strconv.Atoi(version)
	if err != nil || v != pairingVersion {
		return nil, fmt.Errorf("%w: unsupported version %q", ErrInvalidURI, version)
	}

	query := u.Query()
	protocol := query.Get("relay-protocol")
	if protocol == "" {
		return nil, fmt.Errorf("%w: missing relay-protocol", ErrInvalidURI)
	}

	symKey, err := hex.DecodeString(query.Get("symKey"))
	if err != nil || len(symKey) != 32 {
		return nil, fmt.Errorf("%w: symKey must be 32 hex encoded bytes", ErrInvalidURI)
	}

	var expiry int64
	if s := query.Get("expiryTimestamp"); s != "" {
		if expiry, err = strconv.ParseInt(s, 10, 64); err != nil {
			return nil, fmt.Errorf("%w: expiryTimestamp %q", ErrInvalidURI, s)
		}
	}

	return &PairingURI{
		Topic:           topic,
		Version:         v,
		RelayProtocol:   protocol,
		SymKey:          symKey,
		ExpiryTimestamp: expiry,
	}, nil
}

// Expired reports whether the uri carries an expiry at or before now.
func (p *PairingURI) Expired(now time.Time) bool {
	return p.ExpiryTimestamp != 0 && now.Unix() >= p.ExpiryTimestamp
}

func (p *PairingURI) String() string {
	q := url.Values{}
	q.Set("relay-protocol", p.RelayProtocol)
	q.Set("symKey", hex.EncodeToString(p.SymKey))
	if p.ExpiryTimestamp != 0 {
		q.Set("expiryTimestamp", strconv.FormatInt(p.ExpiryTimestamp, 10))
	}
	return fmt.Sprintf("wc:%s@%d?%s", p.Topic, p.Version, q.Encode())
}
