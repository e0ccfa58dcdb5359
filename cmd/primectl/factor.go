package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/captals/primechain/internal/factorproof"
)

var factorCmd = &cobra.Command{
	Use:   "factor",
	Short: "Generate Groth16 factorization keys and certificates",
}

// ── factor setup ─────────────────────────────────────────────────────────────

var factorKeyDir string

var factorSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Run a Groth16 setup and write factor.pk and factor.vk",
	Long: `setup compiles the factorization circuit and writes a fresh proving
key and verifying key. Whoever holds the setup randomness can forge proofs,
so production keys must come from a trusted ceremony; this command is for
development and private deployments.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := os.MkdirAll(factorKeyDir, 0o755); err != nil {
			return fmt.Errorf("create key dir: %w", err)
		}
		prover, vk, err := factorproof.Setup()
		if err != nil {
			return err
		}
		pkPath := filepath.Join(factorKeyDir, "factor.pk")
		vkPath := filepath.Join(factorKeyDir, "factor.vk")
		if err := prover.SaveKeys(pkPath, vkPath, vk); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ wrote %s and %s\n", pkPath, vkPath)
		return nil
	},
}

// ── factor prove ─────────────────────────────────────────────────────────────

var (
	proveP   string
	proveQ   string
	proveOut string
)

var factorProveCmd = &cobra.Command{
	Use:   "prove --p <int> --q <int>",
	Short: "Prove a factorization and print the certificate JSON",
	Long: `prove builds a certificate for the composite p·q. Factors accept
decimal or 0x-prefixed hex. Each factor must fit in 126 bits.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := parseFactor("p", proveP)
		if err != nil {
			return err
		}
		q, err := parseFactor("q", proveQ)
		if err != nil {
			return err
		}
		prover, err := factorproof.LoadProver(filepath.Join(factorKeyDir, "factor.pk"))
		if err != nil {
			return fmt.Errorf("load proving key: %w", err)
		}
		cert, err := prover.Certificate(p, q)
		if err != nil {
			return err
		}

		data, err := json.MarshalIndent(cert, "", "  ")
		if err != nil {
			return err
		}
		if proveOut == "" {
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}
		if err := os.WriteFile(proveOut, append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("write certificate: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ certificate written to %s\n", proveOut)
		return nil
	},
}

func init() {
	factorCmd.PersistentFlags().StringVar(&factorKeyDir, "keys", "keys", "directory holding factor.pk and factor.vk")

	factorProveCmd.Flags().StringVar(&proveP, "p", "", "first factor")
	factorProveCmd.Flags().StringVar(&proveQ, "q", "", "second factor")
	factorProveCmd.Flags().StringVar(&proveOut, "out", "", "write the certificate to this file instead of stdout")
	_ = factorProveCmd.MarkFlagRequired("p")
	_ = factorProveCmd.MarkFlagRequired("q")

	factorCmd.AddCommand(factorSetupCmd)
	factorCmd.AddCommand(factorProveCmd)
}

// parseFactor parses a decimal or 0x-prefixed integer greater than one.
func parseFactor(name, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, fmt.Errorf("--%s: %q is not an integer", name, s)
	}
	if v.Cmp(big.NewInt(1)) <= 0 {
		return nil, fmt.Errorf("--%s must be greater than 1", name)
	}
	if v.BitLen() > factorproof.FactorBits {
		return nil, fmt.Errorf("--%s exceeds %d bits", name, factorproof.FactorBits)
	}
	return v, nil
}
