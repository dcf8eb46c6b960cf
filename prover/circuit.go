// Package prover generates zero-knowledge solvency proofs: a keeper
// can show their committed funds cover the tax owed without revealing
// the balance itself.
package prover

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	frmimc "github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
	"github.com/holiman/uint256"

	"github.com/keepsake-xyz/keepsake/commitment"
)

// fundsBits bounds Funds and Owed in-circuit. Prices are capped at
// 2^128; a witness outside this range is simply unprovable.
const fundsBits = 160

// SolvencyCircuit proves knowledge of Funds and Salt such that
// MiMC(Funds, Salt) equals the public Commitment and Funds >= Owed.
type SolvencyCircuit struct {
	Commitment frontend.Variable `gnark:",public"`
	Owed       frontend.Variable `gnark:",public"`

	Funds frontend.Variable
	Salt  frontend.Variable
}

// Define implements frontend.Circuit.
func (c *SolvencyCircuit) Define(api frontend.API) error {
	h, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	h.Write(c.Funds, c.Salt)
	api.AssertIsEqual(h.Sum(), c.Commitment)

	// Range checks make the subtraction meaningful over the field.
	api.ToBinary(c.Funds, fundsBits)
	api.ToBinary(c.Owed, fundsBits)
	api.ToBinary(api.Sub(c.Funds, c.Owed), fundsBits)
	return nil
}

// NewSalt draws a random blinding value below the BN254 scalar field.
func NewSalt() (*big.Int, error) {
	salt, err := rand.Int(rand.Reader, ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("prover: draw salt: %w", err)
	}
	return salt, nil
}

// FundsCommitment computes MiMC(funds, salt) outside the circuit,
// matching the in-circuit hash bit for bit.
func FundsCommitment(funds *uint256.Int, salt *big.Int) commitment.Hash {
	hasher := frmimc.NewMiMC()

	block := funds.Bytes32()
	hasher.Write(block[:])

	var saltBlock [32]byte
	salt.FillBytes(saltBlock[:])
	hasher.Write(saltBlock[:])

	var h commitment.Hash
	copy(h[:], hasher.Sum(nil))
	return h
}

// solvencyAssignment builds a full witness.
func solvencyAssignment(funds, owed *uint256.Int, salt *big.Int) *SolvencyCircuit {
	com := FundsCommitment(funds, salt)
	return &SolvencyCircuit{
		Commitment: new(big.Int).SetBytes(com[:]),
		Owed:       owed.ToBig(),
		Funds:      funds.ToBig(),
		Salt:       new(big.Int).Set(salt),
	}
}
