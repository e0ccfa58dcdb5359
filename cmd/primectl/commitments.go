package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/captals/primechain/internal/recordfile"
	"github.com/captals/primechain/pkg/hashing"
	"github.com/captals/primechain/pkg/idmerkle"
)

// ── root ─────────────────────────────────────────────────────────────────────

var rootRootCmd = &cobra.Command{
	Use:   "root <records.yaml>",
	Short: "Compute the identity root of a record file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := recordfile.Load(args[0])
		if err != nil {
			return err
		}
		root, err := idmerkle.BuildRoot(f.Records)
		if err != nil {
			return fmt.Errorf("build root: %w", err)
		}

		out := cmd.OutOrStdout()
		if format == "json" {
			return printJSON(out, map[string]any{
				"root":    root,
				"records": len(f.Records),
			})
		}
		fmt.Fprintln(out, root)
		return nil
	},
}

// ── proof ────────────────────────────────────────────────────────────────────

var proofCmd = &cobra.Command{
	Use:   "proof <records.yaml> <index>",
	Short: "Build the inclusion proof for one record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := recordfile.Load(args[0])
		if err != nil {
			return err
		}
		index, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("index %q: %w", args[1], err)
		}
		proof, err := idmerkle.BuildProof(f.Records, index)
		if err != nil {
			return fmt.Errorf("build proof: %w", err)
		}
		root, err := idmerkle.BuildRoot(f.Records)
		if err != nil {
			return fmt.Errorf("build root: %w", err)
		}
		leaf := f.Records[index].Leaf()

		out := cmd.OutOrStdout()
		if format == "json" {
			return printJSON(out, map[string]any{
				"root":  root,
				"leaf":  leaf,
				"proof": proof,
			})
		}
		fmt.Fprintf(out, "Root:  %s\n", root)
		fmt.Fprintf(out, "Leaf:  %s\n", leaf)
		fmt.Fprintf(out, "Proof: %s\n", strings.Join(proof.Hex(), ","))
		return nil
	},
}

// ── verify ───────────────────────────────────────────────────────────────────

var (
	verifyRoot  string
	verifyLeaf  string
	verifyProof string
)

var verifyCmd = &cobra.Command{
	Use:   "verify --root <hash> --leaf <hash> --proof <h1,h2,...>",
	Short: "Check an inclusion proof against a root",
	Long: `verify recomputes the root from a leaf and its sibling hashes.

The proof is a comma-separated list of hex hashes, leaf level first, as
printed by "primectl proof". An empty --proof is valid only for a
single-record tree where the leaf is the root. The command exits non-zero
when the proof does not verify.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var siblings []string
		if verifyProof != "" {
			for _, h := range strings.Split(verifyProof, ",") {
				siblings = append(siblings, strings.TrimSpace(h))
			}
		}
		valid := idmerkle.VerifyProofHex(siblings, verifyRoot, verifyLeaf)

		out := cmd.OutOrStdout()
		if format == "json" {
			if err := printJSON(out, map[string]bool{"valid": valid}); err != nil {
				return err
			}
		} else if valid {
			fmt.Fprintln(out, "✓ proof is valid")
		}
		if !valid {
			return fmt.Errorf("proof does not link leaf %s to root %s", verifyLeaf, verifyRoot)
		}
		return nil
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifyRoot, "root", "", "expected identity root (hex)")
	verifyCmd.Flags().StringVar(&verifyLeaf, "leaf", "", "leaf hash (hex)")
	verifyCmd.Flags().StringVar(&verifyProof, "proof", "", "comma-separated sibling hashes (hex)")
	_ = verifyCmd.MarkFlagRequired("root")
	_ = verifyCmd.MarkFlagRequired("leaf")
}

// parseHashFlag parses a required hash flag value.
func parseHashFlag(name, value string) (hashing.Hash, error) {
	h, err := hashing.ParseHash(value)
	if err != nil {
		return hashing.Zero, fmt.Errorf("--%s: %w", name, err)
	}
	return h, nil
}
