package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/aipdfly/internal/billing"
	"github.com/lalith-99/aipdfly/internal/identity"
	"github.com/lalith-99/aipdfly/internal/observ"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

type IdentityApplier interface {
	Apply(ctx context.Context, ev identity.Event) (identity.Outcome, error)
}

type PaymentApplier interface {
	Apply(ctx context.Context, ev billing.Event) (billing.Outcome, error)
}

// WebhookHandler receives provider callbacks. Every request is verified
// before any of its fields are read.
type WebhookHandler struct {
	identityVerifier identity.Verifier
	identity         IdentityApplier
	paymentVerifier  billing.Verifier
	payment          PaymentApplier
	dedupe           billing.Deduper
	metrics          *observ.Metrics
	logger           *zap.Logger
}

func NewWebhookHandler(
	identityVerifier identity.Verifier,
	identityApplier IdentityApplier,
	paymentVerifier billing.Verifier,
	paymentApplier PaymentApplier,
	dedupe billing.Deduper,
	metrics *observ.Metrics,
	logger *zap.Logger,
) *WebhookHandler {
	if dedupe == nil {
		dedupe = billing.NopDeduper{}
	}
	return &WebhookHandler{
		identityVerifier: identityVerifier,
		identity:         identityApplier,
		paymentVerifier:  paymentVerifier,
		payment:          paymentApplier,
		dedupe:           dedupe,
		metrics:          metrics,
		logger:           logger,
	}
}

// Identity handles POST /v1/webhooks/identity
func (h *WebhookHandler) Identity(c *gin.Context) {
	const source = "identity"

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	if err := h.identityVerifier.Verify(payload, c.Request.Header); err != nil {
		h.metrics.Webhook(source, "unknown", observ.OutcomeRejected)
		h.logger.Warn("identity webhook rejected", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	ev, err := identity.Decode(payload)
	if err != nil {
		h.metrics.Webhook(source, "unknown", observ.OutcomeRejected)
		h.logger.Warn("identity webhook missing data", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing data"})
		return
	}

	out, err := h.identity.Apply(c.Request.Context(), ev)
	if err != nil {
		h.metrics.Webhook(source, ev.Type(), observ.OutcomeFailed)
		h.logger.Error("failed to apply identity event", zap.String("event_type", ev.Type()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to apply event"})
		return
	}

	h.metrics.Webhook(source, ev.Type(), string(out))
	h.logger.Info("identity event applied", zap.String("event_type", ev.Type()), zap.String("outcome", string(out)))
	c.JSON(http.StatusOK, gin.H{"status": out})
}

// Payment handles POST /v1/webhooks/payment
func (h *WebhookHandler) Payment(c *gin.Context) {
	const source = "payment"
	ctx := c.Request.Context()

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	raw, err := h.paymentVerifier.Construct(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		h.metrics.Webhook(source, "unknown", observ.OutcomeRejected)
		h.logger.Warn("payment webhook rejected", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}
	eventType := string(raw.Type)
	log := h.logger.With(zap.String("event_id", raw.ID), zap.String("event_type", eventType))

	seen, err := h.dedupe.Seen(ctx, raw.ID)
	if err != nil {
		log.Warn("webhook dedupe unavailable", zap.Error(err))
	}
	if seen {
		h.metrics.Webhook(source, eventType, observ.OutcomeDuplicate)
		c.JSON(http.StatusOK, gin.H{"status": billing.OutcomeDuplicate})
		return
	}

	ev, err := billing.Decode(raw)
	if err != nil {
		h.metrics.Webhook(source, eventType, observ.OutcomeRejected)
		log.Warn("malformed payment event", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event"})
		return
	}

	out, err := h.payment.Apply(ctx, ev)
	switch {
	case errors.Is(err, billing.ErrMissingUserID):
		// Retrying cannot fix a session created without the user link.
		h.metrics.Webhook(source, eventType, string(out))
		log.Warn("checkout session without user id dropped")
		c.JSON(http.StatusOK, gin.H{"status": out})
		return
	case err != nil:
		h.metrics.Webhook(source, eventType, observ.OutcomeFailed)
		log.Error("failed to apply payment event", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to apply event"})
		return
	}

	if err := h.dedupe.Mark(ctx, raw.ID); err != nil {
		log.Warn("failed to record processed event", zap.Error(err))
	}
	h.metrics.Webhook(source, eventType, string(out))
	log.Info("payment event applied", zap.String("outcome", string(out)))
	c.JSON(http.StatusOK, gin.H{"status": out})
}
