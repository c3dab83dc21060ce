package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// SubscriptionDetails is everything the store mirrors about one
// subscription, gathered from the provider at reconcile time.
type SubscriptionDetails struct {
	SubscriptionID string
	CustomerID     string
	UserID         string
	Status         string
	PriceID        string
	ProductName    string
	UnitAmount     *int64
	PeriodEnd      *time.Time
	Created        *time.Time
	InvoiceURL     string
	InvoicePDF     string
	BillingAddress *Address
	CardBrand      string
	CardLast4      string
}

// Provider is the outbound surface of the payment provider.
type Provider interface {
	SubscriptionDetails(ctx context.Context, subscriptionID string) (*SubscriptionDetails, error)
	CheckoutURL(ctx context.Context, req CheckoutRequest) (string, error)
	PortalURL(ctx context.Context, customerID, returnURL string) (string, error)
}

type CheckoutRequest struct {
	UserID     string
	Email      string
	PriceID    string
	SuccessURL string
	CancelURL  string
}

// StripeProvider implements Provider on the Stripe API.
type StripeProvider struct {
	api *client.API
}

// NewStripeProvider builds a client for apiKey. A non-nil backends overrides
// the HTTP backends, which tests use to point at a local server.
func NewStripeProvider(apiKey string, backends *stripe.Backends) *StripeProvider {
	return &StripeProvider{api: client.New(apiKey, backends)}
}

func (p *StripeProvider) SubscriptionDetails(ctx context.Context, subscriptionID string) (*SubscriptionDetails, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	params.AddExpand("latest_invoice")
	params.AddExpand("items.data.price.product")

	sub, err := p.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("get subscription %s: %w", subscriptionID, err)
	}

	d := &SubscriptionDetails{
		SubscriptionID: sub.ID,
		Status:         string(sub.Status),
		UserID:         sub.Metadata[MetadataUserID],
		Created:        unix(sub.Created),
	}
	if sub.Customer != nil {
		d.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		d.PeriodEnd = unix(item.CurrentPeriodEnd)
		if item.Price != nil {
			d.PriceID = item.Price.ID
			amount := item.Price.UnitAmount
			d.UnitAmount = &amount
			if item.Price.Product != nil {
				d.ProductName = item.Price.Product.Name
			}
		}
	}
	if inv := sub.LatestInvoice; inv != nil {
		d.InvoiceURL = inv.HostedInvoiceURL
		d.InvoicePDF = inv.InvoicePDF
		if a := inv.CustomerAddress; a != nil {
			d.BillingAddress = &Address{
				Line1:      a.Line1,
				Line2:      a.Line2,
				City:       a.City,
				State:      a.State,
				PostalCode: a.PostalCode,
				Country:    a.Country,
			}
		}
	}

	if d.CustomerID != "" {
		brand, last4, err := p.firstCard(ctx, d.CustomerID)
		if err != nil {
			return nil, err
		}
		d.CardBrand, d.CardLast4 = brand, last4
	}
	return d, nil
}

func (p *StripeProvider) firstCard(ctx context.Context, customerID string) (brand, last4 string, err error) {
	params := &stripe.PaymentMethodListParams{
		Customer: stripe.String(customerID),
		Type:     stripe.String(string(stripe.PaymentMethodTypeCard)),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(3)

	it := p.api.PaymentMethods.List(params)
	for it.Next() {
		if card := it.PaymentMethod().Card; card != nil {
			return string(card.Brand), card.Last4, nil
		}
	}
	if err := it.Err(); err != nil {
		return "", "", fmt.Errorf("list payment methods: %w", err)
	}
	return "", "", nil
}

func (p *StripeProvider) CheckoutURL(ctx context.Context, req CheckoutRequest) (string, error) {
	if req.PriceID == "" {
		return "", errors.New("checkout: no price configured")
	}
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(req.PriceID), Quantity: stripe.Int64(1)},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{MetadataUserID: req.UserID},
		},
	}
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}
	params.Context = ctx
	params.AddMetadata(MetadataUserID, req.UserID)

	s, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return s.URL, nil
}

func (p *StripeProvider) PortalURL(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	s, err := p.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("create billing portal session: %w", err)
	}
	return s.URL, nil
}

func unix(sec int64) *time.Time {
	if sec == 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
