package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/captals/primechain/internal/chain"
	"github.com/captals/primechain/internal/rpc"
	"github.com/captals/primechain/pkg/client"
	"github.com/captals/primechain/pkg/hashing"
)

// ledgerAPI is the subset of ledger calls the CLI makes. Both the HTTP and
// the gRPC clients satisfy it through small adapters.
type ledgerAPI interface {
	Head(ctx context.Context) (hashing.Hash, error)
	GetBlock(ctx context.Context, index uint64) (*chain.Block, error)
	Append(ctx context.Context, prev, identityRoot, stateRoot hashing.Hash, cert *chain.Certificate) (uint64, error)
}

type httpLedger struct{ c *client.Client }

func (h httpLedger) Head(ctx context.Context) (hashing.Hash, error) { return h.c.Head(ctx) }

func (h httpLedger) GetBlock(ctx context.Context, index uint64) (*chain.Block, error) {
	return h.c.GetBlock(ctx, index)
}

func (h httpLedger) Append(ctx context.Context, prev, identityRoot, stateRoot hashing.Hash, cert *chain.Certificate) (uint64, error) {
	return h.c.AppendBlock(ctx, client.AppendRequest{
		PrevHash:     prev,
		IdentityRoot: identityRoot,
		StateRoot:    stateRoot,
		Certificate:  cert,
	})
}

// dialLedger returns a ledger client for the configured transport and a
// func that releases it.
func dialLedger() (ledgerAPI, func(), error) {
	if grpcAddr != "" {
		conn, err := grpc.NewClient(grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, nil, fmt.Errorf("dial %s: %w", grpcAddr, err)
		}
		return rpc.NewClient(conn, token), func() { conn.Close() }, nil
	}

	var opts []client.Option
	if token != "" {
		opts = append(opts, client.WithBearerToken(token))
	}
	c, err := client.New(serverURL, opts...)
	if err != nil {
		return nil, nil, err
	}
	return httpLedger{c}, func() {}, nil
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 30*time.Second)
}

// ── head ─────────────────────────────────────────────────────────────────────

var headCmd = &cobra.Command{
	Use:   "head",
	Short: "Print the ledger head hash",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		l, closeFn, err := dialLedger()
		if err != nil {
			return err
		}
		defer closeFn()

		ctx, cancel := commandContext(cmd)
		defer cancel()
		head, err := l.Head(ctx)
		if err != nil {
			return fmt.Errorf("head: %w", err)
		}
		if format == "json" {
			return printJSON(cmd.OutOrStdout(), map[string]hashing.Hash{"head": head})
		}
		fmt.Fprintln(cmd.OutOrStdout(), head)
		return nil
	},
}

// ── block ────────────────────────────────────────────────────────────────────

var blockCmd = &cobra.Command{
	Use:   "block <index>",
	Short: "Show one block",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("index %q: %w", args[0], err)
		}
		l, closeFn, err := dialLedger()
		if err != nil {
			return err
		}
		defer closeFn()

		ctx, cancel := commandContext(cmd)
		defer cancel()
		b, err := l.GetBlock(ctx, index)
		if err != nil {
			return fmt.Errorf("get block %d: %w", index, err)
		}

		out := cmd.OutOrStdout()
		if format == "json" {
			return printJSON(out, b)
		}
		fmt.Fprintf(out, "Index:         %d\n", b.Index)
		fmt.Fprintf(out, "Hash:          %s\n", b.Hash)
		fmt.Fprintf(out, "Previous:      %s\n", b.PrevHash)
		fmt.Fprintf(out, "Timestamp:     %s\n", b.Timestamp.Format(time.RFC3339Nano))
		fmt.Fprintf(out, "Identity root: %s\n", b.IdentityRoot)
		fmt.Fprintf(out, "State root:    %s\n", b.StateRoot)
		fmt.Fprintf(out, "Cert digest:   %s\n", b.CertDigest)
		fmt.Fprintf(out, "Composite:     %s\n", b.Certificate.Composite)
		return nil
	},
}

// ── append ───────────────────────────────────────────────────────────────────

var (
	appendPrev      string
	appendIDRoot    string
	appendStateRoot string
	appendCertFile  string
)

var appendCmd = &cobra.Command{
	Use:   "append --identity-root <hash> --cert <cert.json>",
	Short: "Append a block to the ledger",
	Long: `append submits an identity root and factorization certificate.

The certificate file is the JSON printed by "primectl factor prove". When
--prev is omitted the current head is fetched first; a concurrent append can
still win the race, in which case the command fails and should be re-run.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		idRoot, err := parseHashFlag("identity-root", appendIDRoot)
		if err != nil {
			return err
		}
		var stRoot hashing.Hash
		if appendStateRoot != "" {
			if stRoot, err = parseHashFlag("state-root", appendStateRoot); err != nil {
				return err
			}
		}
		cert, err := readCertificate(appendCertFile)
		if err != nil {
			return err
		}

		l, closeFn, err := dialLedger()
		if err != nil {
			return err
		}
		defer closeFn()

		ctx, cancel := commandContext(cmd)
		defer cancel()

		var prev hashing.Hash
		if appendPrev != "" {
			if prev, err = parseHashFlag("prev", appendPrev); err != nil {
				return err
			}
		} else if prev, err = l.Head(ctx); err != nil {
			return fmt.Errorf("fetch head: %w", err)
		}

		index, err := l.Append(ctx, prev, idRoot, stRoot, cert)
		if err != nil {
			return fmt.Errorf("append: %w", err)
		}
		if format == "json" {
			return printJSON(cmd.OutOrStdout(), map[string]uint64{"index": index})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ block %d appended\n", index)
		return nil
	},
}

func init() {
	appendCmd.Flags().StringVar(&appendPrev, "prev", "", "claimed head hash (default: fetch current head)")
	appendCmd.Flags().StringVar(&appendIDRoot, "identity-root", "", "identity root (hex)")
	appendCmd.Flags().StringVar(&appendStateRoot, "state-root", "", "state root (hex, default zero)")
	appendCmd.Flags().StringVar(&appendCertFile, "cert", "", "certificate JSON file")
	_ = appendCmd.MarkFlagRequired("identity-root")
	_ = appendCmd.MarkFlagRequired("cert")
}

func readCertificate(path string) (*chain.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read certificate: %w", err)
	}
	var cert chain.Certificate
	if err := json.Unmarshal(data, &cert); err != nil {
		return nil, fmt.Errorf("parse certificate %s: %w", path, err)
	}
	return &cert, nil
}
