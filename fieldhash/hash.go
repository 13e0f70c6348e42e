// Package fieldhash maps withdrawal inputs into the BN254 scalar field.
//
// Tree nodes, commitments and nullifier hashes use MiMC so the withdrawal circuit can
// recompute them. Account identifiers never enter the circuit as preimages and are
// hashed with Poseidon's byte sponge, the same function the wallet uses.
package fieldhash

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/iden3/go-iden3-crypto/poseidon"
)

func Modulus() *big.Int {
	return fr.Modulus()
}

func Reduce(x *big.Int) *big.Int {
	var e fr.Element
	e.SetBigInt(x)
	return e.BigInt(new(big.Int))
}

func InField(x *big.Int) bool {
	return x != nil && x.Sign() >= 0 && x.Cmp(fr.Modulus()) < 0
}

// Hash is the MiMC sponge over the given elements, each reduced modulo r first.
func Hash(inputs ...*big.Int) *big.Int {
	h := mimc.NewMiMC()
	for _, in := range inputs {
		var e fr.Element
		e.SetBigInt(in)
		b := e.Bytes()
		// canonical 32-byte blocks are always accepted
		_, _ = h.Write(b[:])
	}
	return new(big.Int).SetBytes(h.Sum(nil))
}

func HashLeftRight(left, right *big.Int) *big.Int {
	return Hash(left, right)
}

// NullifierHash is what a withdrawal reveals for a deposit's nullifier preimage.
func NullifierHash(nullifier *big.Int) *big.Int {
	return Hash(nullifier)
}

// Commitment binds a deposit's secret and nullifier to the depositor's account hash.
func Commitment(secret, nullifier, accountHash *big.Int) *big.Int {
	return Hash(Hash(secret, nullifier), accountHash)
}

func AccountHash(account string) (*big.Int, error) {
	if account == "" {
		return nil, fmt.Errorf("empty account identifier")
	}
	h, err := poseidon.HashBytes([]byte(account))
	if err != nil {
		return nil, fmt.Errorf("hashing account %s: %w", account, err)
	}
	return h, nil
}

// ParseUint accepts decimal digits or 0x-prefixed hex digits. Signs, digit separators and
// other base prefixes are rejected.
func ParseUint(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	digits, base := s, 10
	if rest, ok := strings.CutPrefix(strings.ToLower(s), "0x"); ok {
		digits, base = rest, 16
	}
	if digits == "" {
		return nil, fmt.Errorf("invalid number: %q", s)
	}
	if digits[0] == '+' || digits[0] == '-' {
		return nil, fmt.Errorf("signed number: %s", s)
	}
	v, ok := new(big.Int).SetString(digits, base)
	if !ok {
		return nil, fmt.Errorf("invalid number: %s", s)
	}
	return v, nil
}

// ParseField is ParseUint restricted to [0, r).
func ParseField(s string) (*big.Int, error) {
	v, err := ParseUint(s)
	if err != nil {
		return nil, fmt.Errorf("invalid field element: %w", err)
	}
	if !InField(v) {
		return nil, fmt.Errorf("field element out of range: %s", strings.TrimSpace(s))
	}
	return v, nil
}

func ToHex(i *big.Int) string {
	return fmt.Sprintf("0x%064x", i)
}
