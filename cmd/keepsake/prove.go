package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/holiman/uint256"

	"github.com/keepsake-xyz/keepsake/prover"
)

func prove(args []string) error {
	fs := flag.NewFlagSet("prove", flag.ExitOnError)
	funds := fs.String("funds", "", "Private funds balance (decimal)")
	owed := fs.String("owed", "", "Public tax owed (decimal)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: keepsake prove --funds <amount> --owed <amount>

Generate and verify a zero-knowledge solvency proof: the committed
funds cover the owed amount without the funds being revealed.
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *funds == "" || *owed == "" {
		fs.Usage()
		return fmt.Errorf("--funds and --owed are required")
	}

	fundsAmount, err := uint256.FromDecimal(*funds)
	if err != nil {
		return fmt.Errorf("funds: %w", err)
	}
	owedAmount, err := uint256.FromDecimal(*owed)
	if err != nil {
		return fmt.Errorf("owed: %w", err)
	}

	fmt.Println("Compiling circuit and running setup...")
	start := time.Now()
	p, err := prover.New()
	if err != nil {
		return err
	}
	fmt.Printf("Circuit ready: %d constraints (%s)\n", p.Constraints(), time.Since(start).Round(time.Millisecond))

	salt, err := prover.NewSalt()
	if err != nil {
		return err
	}

	start = time.Now()
	proof, err := p.ProveSolvency(fundsAmount, owedAmount, salt)
	if err != nil {
		return fmt.Errorf("prove: %w", err)
	}
	fmt.Printf("Proof generated in %s\n", time.Since(start).Round(time.Millisecond))
	fmt.Printf("  commitment: %s\n", proof.Commitment.Hex())
	fmt.Printf("  owed:       %s\n", proof.Owed)
	fmt.Printf("  proof size: %d bytes\n", len(proof.ProofBytes))

	if err := p.VerifySolvency(proof); err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	fmt.Println("Proof verified")
	return nil
}
