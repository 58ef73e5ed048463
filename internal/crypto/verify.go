package crypto

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// requestPrefix domain-separates request signatures from anything else the
// same key might ever sign.
const requestPrefix = "\x19VeilMarket Signed Request:\n"

// RequestDigest computes the 32-byte digest both signing and recovery hash:
//
//	keccak256(prefix || timestamp || "\n" || method || "\n" || path || "\n" || hex(keccak256(body)))
//
// Hashing the body keeps the signed message small for arbitrarily large
// payloads; the timestamp binds the signature to a freshness window enforced
// by the caller.
func RequestDigest(timestamp, method, path string, body []byte) []byte {
	bodyHash := ethcrypto.Keccak256(body)
	msg := fmt.Sprintf("%s%s\n%s\n%s\n%s",
		requestPrefix, timestamp, method, path, hex.EncodeToString(bodyHash))
	return ethcrypto.Keccak256([]byte(msg))
}

// RecoverSigner returns the address whose key produced sigHex over the
// canonical request digest. A signature over different request material
// recovers a different address, so callers compare the result against the
// claimed principal.
func RecoverSigner(timestamp, method, path string, body []byte, sigHex string) (common.Address, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/verify: invalid signature hex: %w", err)
	}
	if len(raw) != 65 {
		return common.Address{}, fmt.Errorf("crypto/verify: expected 65-byte signature, got %d bytes", len(raw))
	}

	// Normalise v back to {0,1} for recovery.
	sig := make([]byte, 65)
	copy(sig, raw)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	digest := RequestDigest(timestamp, method, path, body)
	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/verify: recovering public key: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}
