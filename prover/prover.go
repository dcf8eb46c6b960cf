package prover

import (
	"bytes"
	"fmt"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/holiman/uint256"

	"github.com/keepsake-xyz/keepsake/commitment"
)

// Prover compiles the solvency circuit once and generates Groth16
// proofs from it. Safe for concurrent use.
type Prover struct {
	mu    sync.Mutex
	curve ecc.ID
	cs    constraint.ConstraintSystem
	pk    groth16.ProvingKey
	vk    groth16.VerifyingKey
}

// Proof is a serialized solvency proof plus its public inputs.
type Proof struct {
	// ProofBytes is the gnark-encoded Groth16 proof.
	ProofBytes []byte `json:"proof"`
	// Commitment is the public funds commitment the proof opens.
	Commitment commitment.Hash `json:"commitment"`
	// Owed is the public tax debt the committed funds cover.
	Owed string `json:"owed"`
	// Constraints is the size of the compiled circuit.
	Constraints int `json:"constraints"`
}

// New compiles the solvency circuit and runs the Groth16 setup. This
// is expensive; hold on to the returned Prover.
func New() (*Prover, error) {
	curve := ecc.BN254
	cs, err := frontend.Compile(curve.ScalarField(), r1cs.NewBuilder, &SolvencyCircuit{})
	if err != nil {
		return nil, fmt.Errorf("prover: compile: %w", err)
	}
	pk, vk, err := groth16.Setup(cs)
	if err != nil {
		return nil, fmt.Errorf("prover: setup: %w", err)
	}
	return &Prover{curve: curve, cs: cs, pk: pk, vk: vk}, nil
}

// Constraints returns the compiled circuit's constraint count.
func (p *Prover) Constraints() int {
	return p.cs.GetNbConstraints()
}

// ProveSolvency proves that funds >= owed where FundsCommitment(funds,
// salt) is the public commitment. Funds stay private.
func (p *Prover) ProveSolvency(funds, owed *uint256.Int, salt *big.Int) (*Proof, error) {
	assignment := solvencyAssignment(funds, owed, salt)

	witness, err := frontend.NewWitness(assignment, p.curve.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("prover: witness: %w", err)
	}

	p.mu.Lock()
	proof, err := groth16.Prove(p.cs, p.pk, witness)
	p.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("prover: prove: %w", err)
	}

	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("prover: encode proof: %w", err)
	}
	return &Proof{
		ProofBytes:  buf.Bytes(),
		Commitment:  FundsCommitment(funds, salt),
		Owed:        owed.String(),
		Constraints: p.cs.GetNbConstraints(),
	}, nil
}

// VerifySolvency checks a proof against its public inputs.
func (p *Prover) VerifySolvency(pr *Proof) error {
	owed, err := uint256.FromDecimal(pr.Owed)
	if err != nil {
		return fmt.Errorf("prover: bad owed value %q: %w", pr.Owed, err)
	}

	proof := groth16.NewProof(p.curve)
	if _, err := proof.ReadFrom(bytes.NewReader(pr.ProofBytes)); err != nil {
		return fmt.Errorf("prover: decode proof: %w", err)
	}

	public := &SolvencyCircuit{
		Commitment: new(big.Int).SetBytes(pr.Commitment[:]),
		Owed:       owed.ToBig(),
	}
	witness, err := frontend.NewWitness(public, p.curve.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("prover: public witness: %w", err)
	}
	if err := groth16.Verify(proof, p.vk, witness); err != nil {
		return fmt.Errorf("prover: verify: %w", err)
	}
	return nil
}
