package domain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Principal is an authenticated caller identity in the host environment,
// represented as an EVM-style address. The ledger records principals and
// forwards them to the capability backend; it attaches no authority to them
// beyond identity.
type Principal common.Address

// ParsePrincipal parses a 0x-prefixed hex address.
func ParsePrincipal(s string) (Principal, error) {
	if !common.IsHexAddress(s) {
		return Principal{}, fmt.Errorf("%w: principal %q is not a hex address", ErrInvalidArgument, s)
	}
	return Principal(common.HexToAddress(s)), nil
}

// String returns the EIP-55 checksummed form.
func (p Principal) String() string {
	return common.Address(p).Hex()
}

// IsZero reports whether the principal is unset.
func (p Principal) IsZero() bool {
	return p == Principal{}
}

// MarshalText implements encoding.TextMarshaler so principals serialize as
// hex strings in JSON.
func (p Principal) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Principal) UnmarshalText(text []byte) error {
	parsed, err := ParsePrincipal(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
