// Package httpapi exposes the Verifier and Settlement Engine over the fixed
// endpoint contract of spec §6: POST/GET /verify, POST /settle, GET
// /supported. Grounded on
// 0gfoundation-0g-sandbox-billing/internal/proxy/handler.go's Handler +
// Register(*gin.RouterGroup) shape — a thin gin layer that decodes the
// wire envelope and delegates everything else to the internal components.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	x402f "github.com/x402labs/facilitator"
	"github.com/x402labs/facilitator/internal/audit"
	"github.com/x402labs/facilitator/internal/registry"
	"github.com/x402labs/facilitator/internal/settlement"
	"github.com/x402labs/facilitator/internal/verifier"
)

// scheme is the only payment scheme this facilitator accepts (spec §3): an
// EIP-3009 authorization settled through a router's settleAndExecute.
const scheme = "exact"

// Handler wires the Verifier and Settlement Engine onto a gin.RouterGroup.
type Handler struct {
	registry *registry.Registry
	verifier *verifier.Verifier
	engine   *settlement.Engine
	sink     audit.Sink
	log      *zap.Logger

	verifyTimeout time.Duration
	settleTimeout time.Duration
}

// New builds a Handler. sink and log may be nil; a nil sink is replaced with
// audit.MultiSink{} (a no-op fan-out) and a nil log with zap.NewNop(),
// matching internal/settlement.New's defaulting convention. timeouts bounds
// the Verify/Settle calls below, per timeouts.go's own doc comment; a zero
// TimeoutConfig falls back to x402f.DefaultTimeouts.
func New(reg *registry.Registry, v *verifier.Verifier, engine *settlement.Engine, sink audit.Sink, log *zap.Logger, timeouts x402f.TimeoutConfig) *Handler {
	if sink == nil {
		sink = audit.MultiSink{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if timeouts.VerifyTimeout <= 0 {
		timeouts.VerifyTimeout = x402f.DefaultTimeouts.VerifyTimeout
	}
	if timeouts.SettleTimeout <= 0 {
		timeouts.SettleTimeout = x402f.DefaultTimeouts.SettleTimeout
	}
	return &Handler{
		registry:      reg,
		verifier:      v,
		engine:        engine,
		sink:          sink,
		log:           log,
		verifyTimeout: timeouts.VerifyTimeout,
		settleTimeout: timeouts.SettleTimeout,
	}
}

// Register mounts every endpoint from spec §6 onto rg.
func (h *Handler) Register(rg gin.IRouter) {
	rg.GET("/verify", h.handleVerifyDescriptor)
	rg.POST("/verify", h.handleVerify)
	rg.POST("/settle", h.handleSettle)
	rg.GET("/supported", h.handleSupported)
}

// verifyRequest is the shared request envelope for /verify and /settle
// (spec §6: "POST /settle identical request shape").
type verifyRequest struct {
	PaymentPayload      x402f.PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements x402f.PaymentRequirements `json:"paymentRequirements"`
}

// handleVerifyDescriptor answers GET /verify with a static description of
// the endpoint, the convention resource servers poll to discover the
// request shape without an out-of-band schema.
func (h *Handler) handleVerifyDescriptor(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"description": "POST a paymentPayload and paymentRequirements to verify an x402 payment authorization.",
		"request": gin.H{
			"paymentPayload":      "x402f.PaymentPayload",
			"paymentRequirements": "x402f.PaymentRequirements",
		},
	})
}

func (h *Handler) handleVerify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": x402f.ErrMalformedRequest.Error()})
		return
	}

	requestID := uuid.New().String()
	start := time.Now()
	h.sink.Record(audit.PaymentEvent{
		Type:      audit.EventVerifyAttempt,
		Timestamp: start,
		RequestID: requestID,
		Network:   req.PaymentPayload.Network,
		Scheme:    req.PaymentPayload.Scheme,
	})

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.verifyTimeout)
	defer cancel()

	result, err := h.verifier.Verify(ctx, req.PaymentPayload, req.PaymentRequirements)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, x402f.ErrUnsupportedNetwork) {
			status = http.StatusBadRequest
		}
		h.log.Error("verify failed", zap.String("request_id", requestID), zap.Error(err))
		h.sink.Record(audit.PaymentEvent{
			Type:      audit.EventVerifyFailure,
			Timestamp: time.Now(),
			RequestID: requestID,
			Network:   req.PaymentPayload.Network,
			Duration:  time.Since(start),
		})
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}

	eventType := audit.EventVerifySuccess
	if !result.Valid {
		eventType = audit.EventVerifyFailure
	}
	h.sink.Record(audit.PaymentEvent{
		Type:      eventType,
		Timestamp: time.Now(),
		RequestID: requestID,
		Network:   req.PaymentPayload.Network,
		Payer:     result.Payer,
		Reason:    string(result.Reason),
		Duration:  time.Since(start),
	})

	resp := x402f.VerifyResponse{IsValid: result.Valid, Payer: result.Payer}
	if !result.Valid {
		resp.InvalidReason = string(result.Reason)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) handleSettle(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": x402f.ErrMalformedRequest.Error()})
		return
	}

	requestID := uuid.New().String()
	start := time.Now()
	h.sink.Record(audit.PaymentEvent{
		Type:      audit.EventSettleAttempt,
		Timestamp: start,
		RequestID: requestID,
		Network:   req.PaymentPayload.Network,
		Scheme:    req.PaymentPayload.Scheme,
	})

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.settleTimeout)
	defer cancel()

	resp, err := h.engine.Settle(ctx, req.PaymentPayload, req.PaymentRequirements)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, x402f.ErrUnsupportedNetwork) {
			status = http.StatusBadRequest
		}
		h.log.Error("settle failed", zap.String("request_id", requestID), zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) handleSupported(c *gin.Context) {
	kinds := make([]x402f.SupportedKind, 0, len(h.registry.GetSupportedNetworks()))
	for _, name := range h.registry.GetSupportedNetworks() {
		cfg, err := h.registry.Get(name)
		if err != nil {
			continue
		}
		extra := map[string]interface{}{
			"asset":        cfg.DefaultAsset.Address,
			"feeAsset":     cfg.DefaultAsset.Symbol,
			"supportedAssets": cfg.SupportedAssets,
		}
		if len(cfg.Routers) > 0 {
			extra["routers"] = cfg.Routers
		}
		if len(cfg.Hooks) > 0 {
			extra["hooks"] = cfg.Hooks
		}
		kinds = append(kinds, x402f.SupportedKind{
			X402Version: 1,
			Scheme:      scheme,
			Network:     cfg.Network,
			Extra:       extra,
		})
	}
	c.JSON(http.StatusOK, x402f.SupportedResponse{Kinds: kinds})
}
