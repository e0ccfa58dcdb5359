package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/captals/primechain/internal/api/handler"
	"github.com/captals/primechain/internal/auth"
	"github.com/captals/primechain/internal/chain"
	"github.com/captals/primechain/internal/health"
	"github.com/captals/primechain/pkg/hashing"
)

func setupChainRouter(t *testing.T, tokens *auth.TokenIssuer) (*gin.Engine, *chain.MemoryLedger) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ledger := chain.New()
	router := handler.NewRouter(context.Background(), handler.RouterConfig{
		Ledger: ledger,
		Tokens: tokens,
		Logger: zap.NewNop(),
	})
	return router, ledger
}

func do(t *testing.T, router http.Handler, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func certJSON() map[string]string {
	return map[string]string{
		"composite": "0x0ca1",
		"factor_p":  "0x3d",
		"factor_q":  "0x35",
		"proof":     "0xdeadbeef",
	}
}

func appendBody(prev hashing.Hash) map[string]any {
	return map[string]any{
		"prev_hash":     prev,
		"identity_root": hashing.Keccak256([]byte("ids")),
		"state_root":    hashing.Keccak256([]byte("state")),
		"certificate":   certJSON(),
	}
}

func TestChainOverview_empty(t *testing.T) {
	router, _ := setupChainRouter(t, nil)

	w := do(t, router, http.MethodGet, "/api/v1/chain", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Length uint64       `json:"length"`
		Head   hashing.Hash `json:"head"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Length != 0 || !resp.Head.IsZero() {
		t.Errorf("expected empty chain, got %+v", resp)
	}
}

func TestAppendBlock_201(t *testing.T) {
	router, ledger := setupChainRouter(t, nil)

	w := do(t, router, http.MethodPost, "/api/v1/chain/blocks", appendBody(hashing.Zero))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["index"] != float64(0) {
		t.Errorf("index: got %v", resp["index"])
	}

	b, err := ledger.Get(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if b.IdentityRoot != hashing.Keccak256([]byte("ids")) {
		t.Errorf("identity root not stored")
	}
	if !bytes.Equal(b.Certificate.Proof, []byte{0xde, 0xad, 0xbe, 0xef}) {
		t.Errorf("proof: got %x", []byte(b.Certificate.Proof))
	}

	w = do(t, router, http.MethodPost, "/api/v1/chain/blocks", appendBody(b.Hash))
	if w.Code != http.StatusCreated {
		t.Fatalf("second append: expected 201, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAppendBlock_409_staleHead(t *testing.T) {
	router, _ := setupChainRouter(t, nil)
	do(t, router, http.MethodPost, "/api/v1/chain/blocks", appendBody(hashing.Zero))

	w := do(t, router, http.MethodPost, "/api/v1/chain/blocks", appendBody(hashing.Zero))
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAppendBlock_422_rejectedCertificate(t *testing.T) {
	router, ledger := setupChainRouter(t, nil)

	body := appendBody(hashing.Zero)
	cert := certJSON()
	cert["proof"] = "0x"
	body["certificate"] = cert

	w := do(t, router, http.MethodPost, "/api/v1/chain/blocks", body)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", w.Code, w.Body.String())
	}
	if n, _ := ledger.Len(context.Background()); n != 0 {
		t.Errorf("ledger length changed to %d", n)
	}
}

func TestAppendBlock_400(t *testing.T) {
	router, _ := setupChainRouter(t, nil)

	cases := map[string]any{
		"missing prev hash": map[string]any{
			"identity_root": hashing.Zero,
			"certificate":   certJSON(),
		},
		"missing certificate": map[string]any{
			"prev_hash":     hashing.Zero,
			"identity_root": hashing.Zero,
		},
		"short hash": map[string]any{
			"prev_hash":     "0x1234",
			"identity_root": hashing.Zero,
			"certificate":   certJSON(),
		},
		"bad hex in certificate": map[string]any{
			"prev_hash":     hashing.Zero,
			"identity_root": hashing.Zero,
			"certificate":   map[string]string{"composite": "zz"},
		},
		"misspelled state root": map[string]any{
			"prev_hash":     hashing.Zero,
			"identity_root": hashing.Zero,
			"state_rot":     hashing.Keccak256([]byte("state")),
			"certificate":   certJSON(),
		},
		"unknown certificate field": map[string]any{
			"prev_hash":     hashing.Zero,
			"identity_root": hashing.Zero,
			"certificate": map[string]string{
				"composite": "0x0ca1", "factor_p": "0x3d", "factor_q": "0x35", "proof": "0x01", "factor_r": "0x02",
			},
		},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, "/api/v1/chain/blocks", body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestAppendBlock_requiresToken(t *testing.T) {
	tokens := auth.NewTokenIssuer([]byte("secret-for-tests"), "chaind", time.Hour)
	router, _ := setupChainRouter(t, tokens)

	w := do(t, router, http.MethodPost, "/api/v1/chain/blocks", appendBody(hashing.Zero))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	token, _ := tokens.Issue("submitter-1", []string{auth.ScopeAppend})
	w = do(t, router, http.MethodPost, "/api/v1/chain/blocks", appendBody(hashing.Zero), "Authorization", "Bearer "+token)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	// Reads stay public.
	if w := do(t, router, http.MethodGet, "/api/v1/chain/blocks/0", nil); w.Code != http.StatusOK {
		t.Errorf("GET block: expected 200, got %d", w.Code)
	}
}

func TestGetBlock(t *testing.T) {
	router, _ := setupChainRouter(t, nil)
	do(t, router, http.MethodPost, "/api/v1/chain/blocks", appendBody(hashing.Zero))

	w := do(t, router, http.MethodGet, "/api/v1/chain/blocks/0", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var b chain.Block
	if err := json.Unmarshal(w.Body.Bytes(), &b); err != nil {
		t.Fatal(err)
	}
	if b.Index != 0 || !b.PrevHash.IsZero() {
		t.Errorf("unexpected genesis %+v", b)
	}
	if b.CertDigest != b.Certificate.Digest() {
		t.Error("digest does not match decoded certificate")
	}

	if w := do(t, router, http.MethodGet, "/api/v1/chain/blocks/1", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/api/v1/chain/blocks/abc", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/api/v1/chain/blocks/-1", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for negative index, got %d", w.Code)
	}
}

func TestChainVerify(t *testing.T) {
	router, _ := setupChainRouter(t, nil)
	do(t, router, http.MethodPost, "/api/v1/chain/blocks", appendBody(hashing.Zero))

	w := do(t, router, http.MethodGet, "/api/v1/chain/verify", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["valid"] != true {
		t.Errorf("expected valid=true, got %v", resp)
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	router, _ := setupChainRouter(t, nil)

	if w := do(t, router, http.MethodGet, "/healthz", nil); w.Code != http.StatusOK {
		t.Errorf("healthz: got %d", w.Code)
	}
	w := do(t, router, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("metrics: got %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("primechain_requests_total")) {
		t.Error("metrics output missing request counter")
	}
}

type verifierFunc func(ctx context.Context) error

func (f verifierFunc) Verify(ctx context.Context) error { return f(ctx) }

func TestHealthz_reportsIntegrity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var failing bool
	checker := health.New(verifierFunc(func(context.Context) error {
		if failing {
			return chain.ErrCorruptChain
		}
		return nil
	}), health.Config{}, zap.NewNop())
	checker.SetMetricsRecord(handler.RecordIntegrityCheck)

	router := handler.NewRouter(context.Background(), handler.RouterConfig{
		Ledger: chain.New(),
		Health: checker,
		Logger: zap.NewNop(),
	})

	checker.Check(context.Background())
	if w := do(t, router, http.MethodGet, "/healthz", nil); w.Code != http.StatusOK {
		t.Fatalf("healthy ledger: got %d", w.Code)
	}

	failing = true
	checker.Check(context.Background())
	w := do(t, router, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("corrupt ledger: got %d, want 503", w.Code)
	}
	var resp struct {
		Status    string        `json:"status"`
		Integrity health.Status `json:"integrity"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "degraded" || resp.Integrity.FailCount != 1 || resp.Integrity.LastError == "" {
		t.Errorf("unexpected body %s", w.Body.String())
	}

	m := do(t, router, http.MethodGet, "/metrics", nil)
	if !bytes.Contains(m.Body.Bytes(), []byte(`primechain_integrity_checks_total{result="fail"}`)) {
		t.Error("metrics output missing failed integrity check")
	}
}

func TestRateLimiter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	router := gin.New()
	router.Use(handler.RateLimiter(ctx, 1, 2))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, do(t, router, http.MethodGet, "/", nil).Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("unexpected status sequence %v", codes)
	}
}

func TestAppendBlock_perSubmitterLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tokens := auth.NewTokenIssuer([]byte("secret-for-tests"), "chaind", time.Hour)
	ledger := chain.New()
	router := handler.NewRouter(ctx, handler.RouterConfig{
		Ledger:     ledger,
		Tokens:     tokens,
		SubmitRate: 0.01,
		Logger:     zap.NewNop(),
	})
	alice, _ := tokens.Issue("alice", []string{auth.ScopeAppend})
	bob, _ := tokens.Issue("bob", []string{auth.ScopeAppend})

	appendAs := func(token string) *httptest.ResponseRecorder {
		head, _ := ledger.HeadHash(context.Background())
		return do(t, router, http.MethodPost, "/api/v1/chain/blocks", appendBody(head), "Authorization", "Bearer "+token)
	}

	if w := appendAs(alice); w.Code != http.StatusCreated {
		t.Fatalf("alice first append: got %d: %s", w.Code, w.Body.String())
	}
	w := appendAs(alice)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("alice second append: got %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") != "100" {
		t.Errorf("Retry-After = %q, want 100", w.Header().Get("Retry-After"))
	}
	if w := appendAs(bob); w.Code != http.StatusCreated {
		t.Errorf("bob is limited separately: got %d: %s", w.Code, w.Body.String())
	}

	// Reads are not subject to the submission limit.
	if w := do(t, router, http.MethodGet, "/api/v1/chain", nil); w.Code != http.StatusOK {
		t.Errorf("GET chain: got %d", w.Code)
	}
	if n, _ := ledger.Len(context.Background()); n != 2 {
		t.Errorf("expected 2 blocks, got %d", n)
	}

	m := do(t, router, http.MethodGet, "/metrics", nil)
	if !bytes.Contains(m.Body.Bytes(), []byte(`primechain_append_rejections_total{reason="rate_limited"}`)) {
		t.Error("metrics output missing rate-limited rejection")
	}
}
