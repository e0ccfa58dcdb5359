package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/captals/primechain/internal/auth"
	"github.com/captals/primechain/internal/chain"
	"github.com/captals/primechain/pkg/hashing"
)

// ChainHandler exposes the block ledger over HTTP.
type ChainHandler struct {
	ledger      chain.Ledger
	tokens      *auth.TokenIssuer
	submitLimit gin.HandlerFunc
	logger      *zap.Logger
}

// NewChainHandler creates a new ChainHandler. When tokens is nil, block
// submission requires no authentication.
func NewChainHandler(ledger chain.Ledger, tokens *auth.TokenIssuer, logger *zap.Logger) *ChainHandler {
	return &ChainHandler{ledger: ledger, tokens: tokens, logger: logger}
}

// LimitSubmissions installs mw between the token check and AppendBlock.
// Call it before Register.
func (h *ChainHandler) LimitSubmissions(mw gin.HandlerFunc) {
	h.submitLimit = mw
}

// Register mounts the chain routes on the given router group.
func (h *ChainHandler) Register(rg *gin.RouterGroup) {
	ch := rg.Group("/chain")
	{
		ch.GET("", h.Overview)
		ch.GET("/verify", h.Verify)
		ch.GET("/blocks/:idx", h.GetBlock)
		submit := []gin.HandlerFunc{auth.RequireScope(h.tokens, auth.ScopeAppend)}
		if h.submitLimit != nil {
			submit = append(submit, h.submitLimit)
		}
		ch.POST("/blocks", append(submit, h.AppendBlock)...)
	}
}

// AppendRequest is the body of POST /chain/blocks.
type AppendRequest struct {
	PrevHash     *hashing.Hash      `json:"prev_hash"     binding:"required"`
	IdentityRoot *hashing.Hash      `json:"identity_root" binding:"required"`
	StateRoot    hashing.Hash       `json:"state_root"`
	Certificate  *chain.Certificate `json:"certificate"   binding:"required"`
}

// Overview handles GET /chain and returns the chain length and head hash.
func (h *ChainHandler) Overview(c *gin.Context) {
	ctx := c.Request.Context()

	length, err := h.ledger.Len(ctx)
	if err != nil {
		h.logger.Error("ledger Len", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query ledger"})
		return
	}

	head, err := h.ledger.HeadHash(ctx)
	if err != nil {
		h.logger.Error("ledger HeadHash", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query ledger head"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"length": length,
		"head":   head,
	})
}

// Verify handles GET /chain/verify and walks the full chain.
func (h *ChainHandler) Verify(c *gin.Context) {
	if err := h.ledger.Verify(c.Request.Context()); err != nil {
		h.logger.Warn("chain integrity check failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{
			"valid": false,
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

// GetBlock handles GET /chain/blocks/:idx.
func (h *ChainHandler) GetBlock(c *gin.Context) {
	idx, err := strconv.ParseUint(c.Param("idx"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "idx must be a non-negative integer"})
		return
	}

	block, err := h.ledger.Get(c.Request.Context(), idx)
	if errors.Is(err, chain.ErrIndexOutOfRange) {
		c.JSON(http.StatusNotFound, gin.H{"error": "block not found"})
		return
	}
	if err != nil {
		h.logger.Error("ledger Get", zap.Uint64("index", idx), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read block"})
		return
	}
	c.JSON(http.StatusOK, block)
}

// AppendBlock handles POST /chain/blocks.
func (h *ChainHandler) AppendBlock(c *gin.Context) {
	var req AppendRequest
	if err := bindStrictJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	idx, err := h.ledger.Append(c.Request.Context(), *req.PrevHash, *req.IdentityRoot, req.StateRoot, req.Certificate)
	if err != nil {
		status := appendStatus(err)
		RecordAppendRejected(rejectReason(err))
		if status == http.StatusInternalServerError {
			h.logger.Error("ledger Append", zap.Error(err))
			c.JSON(status, gin.H{"error": "failed to append block"})
			return
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	fields := []zap.Field{zap.Uint64("index", idx)}
	if claims := auth.ClaimsFromCtx(c); claims != nil {
		fields = append(fields, zap.String("submitter", claims.Subject))
	}
	h.logger.Info("block appended", fields...)

	c.JSON(http.StatusCreated, gin.H{"index": idx})
}

// appendStatus maps an Append error to an HTTP status.
func appendStatus(err error) int {
	switch {
	case errors.Is(err, chain.ErrChainLinkage):
		return http.StatusConflict
	case errors.Is(err, chain.ErrCertificateRejected):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, chain.ErrChainLinkage):
		return "linkage"
	case errors.Is(err, chain.ErrCertificateRejected):
		return "certificate"
	default:
		return "internal"
	}
}
