package crypto

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// Keypair holds a Solana ed25519 keypair.
type Keypair struct {
	priv ed25519.PrivateKey
}

// KeypairFromBase58 parses a base58-encoded 64-byte secret key, the format
// exported by Solana wallets (seed followed by public key).
func KeypairFromBase58(secret string) (*Keypair, error) {
	raw, err := base58.Decode(secret)
	if err != nil {
		return nil, fmt.Errorf("crypto: decode solana secret key: %w", err)
	}
	switch len(raw) {
	case ed25519.PrivateKeySize:
		return &Keypair{priv: ed25519.PrivateKey(raw)}, nil
	case ed25519.SeedSize:
		return &Keypair{priv: ed25519.NewKeyFromSeed(raw)}, nil
	default:
		return nil, fmt.Errorf("crypto: solana secret key must be %d or %d bytes, got %d",
			ed25519.PrivateKeySize, ed25519.SeedSize, len(raw))
	}
}

// NewKeypair generates a fresh Solana keypair.
func NewKeypair() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: generate solana keypair: %w", err)
	}
	return &Keypair{priv: priv}, nil
}

// PublicKey returns the base58-encoded public key (the wallet address).
func (kp *Keypair) PublicKey() string {
	return base58.Encode(kp.priv.Public().(ed25519.PublicKey))
}

// SecretBase58 returns the base58-encoded 64-byte secret key.
func (kp *Keypair) SecretBase58() string {
	return base58.Encode(kp.priv)
}

// SignTransaction signs a base64-encoded serialized Solana transaction in
// place and returns the signed transaction, base64-encoded.
//
// The wire layout is a compact-u16 signature count, the signature slots, and
// then the message bytes. The message is what gets signed; the first slot
// belongs to the fee payer, which is the wallet here.
func (kp *Keypair) SignTransaction(txBase64 string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(txBase64)
	if err != nil {
		return "", fmt.Errorf("crypto: decode transaction: %w", err)
	}

	numSigs, offset, err := decodeCompactU16(raw)
	if err != nil {
		return "", fmt.Errorf("crypto: parse signature count: %w", err)
	}
	if numSigs == 0 {
		return "", errors.New("crypto: transaction has no signature slots")
	}

	msgStart := offset + numSigs*ed25519.SignatureSize
	if msgStart > len(raw) {
		return "", errors.New("crypto: transaction shorter than its signature table")
	}

	sig := ed25519.Sign(kp.priv, raw[msgStart:])
	copy(raw[offset:offset+ed25519.SignatureSize], sig)

	return base64.StdEncoding.EncodeToString(raw), nil
}

// decodeCompactU16 reads a Solana compact-u16 length prefix, returning the
// value and the number of bytes consumed.
func decodeCompactU16(buf []byte) (int, int, error) {
	var value, shift int
	for i := 0; i < 3; i++ {
		if i >= len(buf) {
			return 0, 0, errors.New("truncated compact-u16")
		}
		b := int(buf[i])
		value |= (b & 0x7f) << shift
		if b&0x80 == 0 {
			return value, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, errors.New("compact-u16 too long")
}
