package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Identity is the ledger's own signing identity. Its address is the
// principal the engine keeps a standing decrypt grant for on every
// ciphertext it creates; clients use the same scheme to sign requests.
type Identity struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewIdentity creates an Identity from a hex-encoded secp256k1 private key.
func NewIdentity(privateKeyHex string) (*Identity, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/identity: invalid private key: %w", err)
	}
	return &Identity{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}, nil
}

// Address returns the address derived from the identity's private key.
func (id *Identity) Address() common.Address {
	return id.address
}

// SignRequest signs the canonical request digest for the given timestamp,
// method, path, and body. The returned string is a hex-encoded signature
// with recovery byte (65 bytes total), so the server can recover the signing
// principal without a key registry.
func (id *Identity) SignRequest(timestamp, method, path string, body []byte) (string, error) {
	digest := RequestDigest(timestamp, method, path, body)

	sig, err := ethcrypto.Sign(digest, id.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/identity: signing request: %w", err)
	}

	// go-ethereum returns v in {0,1}; the wire form carries v in {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + hex.EncodeToString(sig), nil
}
