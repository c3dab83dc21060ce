package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/lalith-99/aipdfly/internal/models"
	"github.com/lalith-99/aipdfly/internal/notify"
	"github.com/lalith-99/aipdfly/internal/repository"
	"go.uber.org/zap"
)

// Outcome is what applying a payment event did. Duplicate is reported by the
// webhook handler when the deduper has seen the event id.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeNoop      Outcome = "noop"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDropped   Outcome = "dropped"
	OutcomeDuplicate Outcome = "duplicate"
)

// Reconciler applies payment events to user_subscriptions. Provider reads
// run under timeout; failures surface to the caller so the provider retries
// delivery.
type Reconciler struct {
	subs      repository.SubscriptionRepository
	provider  Provider
	publisher notify.Publisher
	timeout   time.Duration
	logger    *zap.Logger
}

func NewReconciler(
	subs repository.SubscriptionRepository,
	provider Provider,
	publisher notify.Publisher,
	timeout time.Duration,
	logger *zap.Logger,
) *Reconciler {
	return &Reconciler{
		subs:      subs,
		provider:  provider,
		publisher: publisher,
		timeout:   timeout,
		logger:    logger,
	}
}

// Apply dispatches ev to its handler. A returned error means the event was not
// recorded and should be redelivered.
func (r *Reconciler) Apply(ctx context.Context, ev Event) (Outcome, error) {
	switch e := ev.(type) {
	case CheckoutCompleted:
		return r.checkoutCompleted(ctx, e)
	case SubscriptionUpdated:
		return r.subscriptionUpdated(ctx, e)
	case CustomerUpdated:
		return r.customerUpdated(ctx, e)
	case Unhandled:
		r.logger.Debug("payment event not handled", zap.String("event_type", e.Kind))
		return OutcomeIgnored, nil
	default:
		return OutcomeIgnored, nil
	}
}

func (r *Reconciler) checkoutCompleted(ctx context.Context, e CheckoutCompleted) (Outcome, error) {
	if e.UserID == "" {
		return OutcomeDropped, ErrMissingUserID
	}
	if e.SubscriptionID == "" {
		r.logger.Info("checkout without subscription", zap.String("session_id", e.SessionID))
		return OutcomeIgnored, nil
	}

	d, err := r.details(ctx, e.SubscriptionID)
	if err != nil {
		return "", err
	}

	customerID := d.CustomerID
	if customerID == "" {
		customerID = e.CustomerID
	}
	sub := models.Subscription{
		UserID:            e.UserID,
		CustomerID:        customerID,
		SubscriptionID:    &d.SubscriptionID,
		PriceID:           nonEmpty(d.PriceID),
		CurrentPeriodEnd:  d.PeriodEnd,
		Status:            nonEmpty(d.Status),
		Product:           nonEmpty(d.ProductName),
		InvoiceURL:        nonEmpty(d.InvoiceURL),
		InvoicePDF:        nonEmpty(d.InvoicePDF),
		Amount:            d.UnitAmount,
		PaymentStatus:     nonEmpty(e.PaymentStatus),
		CheckoutStatus:    nonEmpty(e.Status),
		ProviderCreatedAt: d.Created,
		CardLast4:         nonEmpty(d.CardLast4),
		CardBrand:         nonEmpty(d.CardBrand),
		BillingAddress:    formatted(d.BillingAddress),
	}

	saved, err := r.subs.Create(ctx, sub)
	if err != nil {
		return "", fmt.Errorf("record checkout: %w", err)
	}
	r.publish(e.UserID, saved)
	return OutcomeApplied, nil
}

func (r *Reconciler) subscriptionUpdated(ctx context.Context, e SubscriptionUpdated) (Outcome, error) {
	d, err := r.details(ctx, e.SubscriptionID)
	if err != nil {
		return "", err
	}

	n, err := r.subs.UpdateBySubscriptionID(ctx, e.SubscriptionID, models.SubscriptionUpdate{
		Status:         d.Status,
		Amount:         d.UnitAmount,
		CardLast4:      nonEmpty(d.CardLast4),
		CardBrand:      nonEmpty(d.CardBrand),
		BillingAddress: formatted(d.BillingAddress),
		PeriodEnd:      d.PeriodEnd,
	})
	if err != nil {
		return "", fmt.Errorf("update subscription: %w", err)
	}
	if n == 0 {
		// The checkout has not been recorded yet; its own event will carry
		// the full state.
		r.logger.Debug("subscription update before checkout", zap.String("subscription_id", e.SubscriptionID))
		return OutcomeNoop, nil
	}

	if d.UserID != "" {
		saved, err := r.subs.GetByUserID(ctx, d.UserID)
		if err == nil && saved != nil {
			r.publish(d.UserID, saved)
		}
	}
	return OutcomeApplied, nil
}

func (r *Reconciler) customerUpdated(ctx context.Context, e CustomerUpdated) (Outcome, error) {
	addr := formatted(e.Address)
	if addr == nil {
		return OutcomeIgnored, nil
	}
	n, err := r.subs.UpdateBillingAddressByCustomerID(ctx, e.CustomerID, *addr)
	if err != nil {
		return "", fmt.Errorf("update billing address: %w", err)
	}
	if n == 0 {
		return OutcomeNoop, nil
	}
	return OutcomeApplied, nil
}

func (r *Reconciler) details(ctx context.Context, subscriptionID string) (*SubscriptionDetails, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	d, err := r.provider.SubscriptionDetails(ctx, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("fetch subscription details: %w", err)
	}
	return d, nil
}

func (r *Reconciler) publish(userID string, sub *models.Subscription) {
	if r.publisher == nil || sub == nil {
		return
	}
	r.publisher.Publish(userID, notify.Event{
		Type: notify.EventSubscriptionSynced,
		Data: map[string]any{"isPro": sub.IsPro(time.Now()), "status": sub.Status},
	})
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func formatted(a *Address) *string {
	if a == nil {
		return nil
	}
	return nonEmpty(a.Format())
}
