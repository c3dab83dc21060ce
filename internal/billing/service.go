package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/lalith-99/aipdfly/internal/models"
	"github.com/lalith-99/aipdfly/internal/repository"
)

// Service answers user-facing billing requests.
type Service struct {
	subs     repository.SubscriptionRepository
	provider Provider
	priceID  string
	baseURL  string
	timeout  time.Duration
	now      func() time.Time
}

func NewService(subs repository.SubscriptionRepository, provider Provider, priceID, baseURL string, timeout time.Duration) *Service {
	return &Service{
		subs:     subs,
		provider: provider,
		priceID:  priceID,
		baseURL:  baseURL,
		timeout:  timeout,
		now:      time.Now,
	}
}

// Checkout returns where to send the user: the billing portal when they
// already have a customer record, a new subscription checkout otherwise.
func (s *Service) Checkout(ctx context.Context, userID, email string) (string, error) {
	sub, err := s.subs.GetByUserID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("load subscription: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	returnURL := s.baseURL + "/billing"
	if sub != nil && sub.CustomerID != "" {
		return s.provider.PortalURL(ctx, sub.CustomerID, returnURL)
	}
	return s.provider.CheckoutURL(ctx, CheckoutRequest{
		UserID:     userID,
		Email:      email,
		PriceID:    s.priceID,
		SuccessURL: returnURL + "?checkout=success",
		CancelURL:  returnURL + "?checkout=cancelled",
	})
}

type Status struct {
	IsPro        bool                 `json:"isPro"`
	Subscription *models.Subscription `json:"subscription"`
}

func (s *Service) Status(ctx context.Context, userID string) (*Status, error) {
	sub, err := s.subs.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load subscription: %w", err)
	}
	return &Status{IsPro: sub.IsPro(s.now()), Subscription: sub}, nil
}
