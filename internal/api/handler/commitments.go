package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/captals/primechain/pkg/hashing"
	"github.com/captals/primechain/pkg/idmerkle"
)

// DefaultMaxRecords bounds the records accepted in one commitment request.
const DefaultMaxRecords = 1 << 16

// CommitmentHandler builds and checks identity Merkle commitments. It holds no
// state; the ledger is not involved.
type CommitmentHandler struct {
	maxRecords int
	logger     *zap.Logger
}

// NewCommitmentHandler creates a CommitmentHandler. maxRecords <= 0 selects
// DefaultMaxRecords.
func NewCommitmentHandler(maxRecords int, logger *zap.Logger) *CommitmentHandler {
	if maxRecords <= 0 {
		maxRecords = DefaultMaxRecords
	}
	return &CommitmentHandler{maxRecords: maxRecords, logger: logger}
}

// Register mounts the commitment routes on the given router group.
func (h *CommitmentHandler) Register(rg *gin.RouterGroup) {
	cm := rg.Group("/commitments")
	{
		cm.POST("/root", h.Root)
		cm.POST("/proof", h.Proof)
		cm.POST("/verify", h.Verify)
	}
}

// RootRequest is the body of POST /commitments/root.
type RootRequest struct {
	Records []idmerkle.Record `json:"records" binding:"required"`
}

// RootResponse is returned by POST /commitments/root.
type RootResponse struct {
	Root   hashing.Hash   `json:"root"`
	Leaves []hashing.Hash `json:"leaves"`
}

// ProofRequest is the body of POST /commitments/proof.
type ProofRequest struct {
	Records []idmerkle.Record `json:"records" binding:"required"`
	Index   *int              `json:"index"   binding:"required"`
}

// ProofResponse is returned by POST /commitments/proof.
type ProofResponse struct {
	Root  hashing.Hash   `json:"root"`
	Leaf  hashing.Hash   `json:"leaf"`
	Proof idmerkle.Proof `json:"proof"`
}

// VerifyRequest is the body of POST /commitments/verify. Values are hex
// strings so that malformed input yields valid=false rather than a 400.
type VerifyRequest struct {
	Proof []string `json:"proof"`
	Root  string   `json:"root"`
	Leaf  string   `json:"leaf"`
}

// Root handles POST /commitments/root.
func (h *CommitmentHandler) Root(c *gin.Context) {
	var req RootRequest
	if err := bindStrictJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.checkSize(req.Records); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	leaves := idmerkle.Leaves(req.Records)
	root, err := idmerkle.RootFromLeaves(leaves)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, RootResponse{Root: root, Leaves: leaves})
}

// Proof handles POST /commitments/proof.
func (h *CommitmentHandler) Proof(c *gin.Context) {
	var req ProofRequest
	if err := bindStrictJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.checkSize(req.Records); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	leaves := idmerkle.Leaves(req.Records)
	proof, err := idmerkle.ProofFromLeaves(leaves, *req.Index)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	root, _ := idmerkle.RootFromLeaves(leaves)

	c.JSON(http.StatusOK, ProofResponse{Root: root, Leaf: leaves[*req.Index], Proof: proof})
}

// Verify handles POST /commitments/verify.
func (h *CommitmentHandler) Verify(c *gin.Context) {
	var req VerifyRequest
	if err := bindStrictJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": idmerkle.VerifyProofHex(req.Proof, req.Root, req.Leaf)})
}

func (h *CommitmentHandler) checkSize(records []idmerkle.Record) error {
	if len(records) > h.maxRecords {
		return fmt.Errorf("%d records exceeds the limit of %d", len(records), h.maxRecords)
	}
	return nil
}
