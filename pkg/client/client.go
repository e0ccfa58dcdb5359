package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/captals/primechain/pkg/hashing"
	"github.com/captals/primechain/pkg/idmerkle"
	"github.com/captals/primechain/pkg/ledgerwire"
)

var (
	// ErrConflict matches a 409: the claimed previous hash is not the head.
	ErrConflict = errors.New("chain head moved")

	// ErrRejected matches a 422: the certificate failed admission.
	ErrRejected = errors.New("certificate rejected")

	// ErrNotFound matches a 404.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized matches a 401 or 403.
	ErrUnauthorized = errors.New("unauthorized")
)

// Certificate and Block are the ledger's wire types from pkg/ledgerwire.
type (
	Certificate = ledgerwire.Certificate
	Block       = ledgerwire.Block
)

// APIError is returned for every non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chaind returned %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps the status code to one of the package sentinels.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusConflict:
		return ErrConflict
	case http.StatusUnprocessableEntity:
		return ErrRejected
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	}
	return nil
}

// Overview is the body of GET /api/v1/chain.
type Overview struct {
	Length uint64       `json:"length"`
	Head   hashing.Hash `json:"head"`
}

// VerifyResult is the body of GET /api/v1/chain/verify.
type VerifyResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// AppendRequest is the body of POST /api/v1/chain/blocks.
type AppendRequest struct {
	PrevHash     hashing.Hash `json:"prev_hash"`
	IdentityRoot hashing.Hash `json:"identity_root"`
	StateRoot    hashing.Hash `json:"state_root"`
	Certificate  *Certificate `json:"certificate"`
}

// RootResult is the body of POST /api/v1/commitments/root.
type RootResult struct {
	Root   hashing.Hash   `json:"root"`
	Leaves []hashing.Hash `json:"leaves"`
}

// ProofResult is the body of POST /api/v1/commitments/proof.
type ProofResult struct {
	Root  hashing.Hash   `json:"root"`
	Leaf  hashing.Hash   `json:"leaf"`
	Proof idmerkle.Proof `json:"proof"`
}

// Client talks to one chaind instance.
type Client struct {
	base        string
	httpClient  *http.Client
	bearerToken string
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client, overriding any TLS options.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithBearerToken attaches a submitter token to every request.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.bearerToken = token
		return nil
	}
}

// WithCACert trusts the PEM-encoded CA for HTTPS connections to chaind.
func WithCACert(caPEM []byte) Option {
	return func(c *Client) error {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return fmt.Errorf("failed to parse CA certificate PEM")
		}
		c.httpClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12},
			},
			Timeout: 30 * time.Second,
		}
		return nil
	}
}

// New creates a Client for the chaind instance at base, e.g.
// "http://localhost:8080".
func New(base string, opts ...Option) (*Client, error) {
	c := &Client{
		base:       base,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(base string, opts ...Option) *Client {
	c, err := New(base, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Overview returns the chain length and head hash.
func (c *Client) Overview(ctx context.Context) (*Overview, error) {
	var out Overview
	if err := c.call(ctx, http.MethodGet, "/api/v1/chain", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Head returns the current head hash.
func (c *Client) Head(ctx context.Context) (hashing.Hash, error) {
	ov, err := c.Overview(ctx)
	if err != nil {
		return hashing.Zero, err
	}
	return ov.Head, nil
}

// Verify asks the server to walk the full chain.
func (c *Client) Verify(ctx context.Context) (*VerifyResult, error) {
	var out VerifyResult
	if err := c.call(ctx, http.MethodGet, "/api/v1/chain/verify", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetBlock fetches the block at index.
func (c *Client) GetBlock(ctx context.Context, index uint64) (*Block, error) {
	var out Block
	path := "/api/v1/chain/blocks/" + strconv.FormatUint(index, 10)
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AppendBlock submits one block and returns its index.
func (c *Client) AppendBlock(ctx context.Context, req AppendRequest) (uint64, error) {
	var out struct {
		Index uint64 `json:"index"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/v1/chain/blocks", req, &out); err != nil {
		return 0, err
	}
	return out.Index, nil
}

// AppendOnHead fetches the head and appends on top of it, refetching and
// resubmitting up to retries more times when another append wins the race.
// Certificate rejections are returned immediately.
func (c *Client) AppendOnHead(ctx context.Context, identityRoot, stateRoot hashing.Hash, cert *Certificate, retries int) (uint64, error) {
	for attempt := 0; ; attempt++ {
		head, err := c.Head(ctx)
		if err != nil {
			return 0, err
		}
		idx, err := c.AppendBlock(ctx, AppendRequest{
			PrevHash:     head,
			IdentityRoot: identityRoot,
			StateRoot:    stateRoot,
			Certificate:  cert,
		})
		if err == nil || !errors.Is(err, ErrConflict) || attempt >= retries {
			return idx, err
		}
	}
}

// BuildRoot asks the server for the commitment root over records.
func (c *Client) BuildRoot(ctx context.Context, records []idmerkle.Record) (*RootResult, error) {
	var out RootResult
	if err := c.call(ctx, http.MethodPost, "/api/v1/commitments/root", map[string]any{"records": records}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BuildProof asks the server for the inclusion proof of records[index].
func (c *Client) BuildProof(ctx context.Context, records []idmerkle.Record, index int) (*ProofResult, error) {
	var out ProofResult
	body := map[string]any{"records": records, "index": index}
	if err := c.call(ctx, http.MethodPost, "/api/v1/commitments/proof", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyProof asks the server to check an inclusion proof.
func (c *Client) VerifyProof(ctx context.Context, proof idmerkle.Proof, root, leaf hashing.Hash) (bool, error) {
	var out struct {
		Valid bool `json:"valid"`
	}
	body := map[string]any{"proof": proof, "root": root, "leaf": leaf}
	if err := c.call(ctx, http.MethodPost, "/api/v1/commitments/verify", body, &out); err != nil {
		return false, err
	}
	return out.Valid, nil
}

// call sends a JSON request and decodes a JSON response into out.
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	respBody, err := c.do(req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		msg := string(body)
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	return body, nil
}
