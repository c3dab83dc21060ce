// Package billing mirrors payment-provider subscription state into the local
// store and starts checkout or billing-portal sessions for users.
package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

var (
	ErrMissingSignature = errors.New("missing payment webhook signature")
	ErrInvalidSignature = errors.New("invalid payment webhook signature")
	ErrMalformedEvent   = errors.New("malformed payment event")
	ErrMissingUserID    = errors.New("checkout session has no userId metadata")
)

// MetadataUserID is the metadata key that links provider objects to a user.
const MetadataUserID = "userId"

// Verifier authenticates a raw webhook body and parses the provider event.
type Verifier interface {
	Construct(payload []byte, signature string) (stripe.Event, error)
}

type StripeVerifier struct {
	secret string
}

func NewStripeVerifier(secret string) *StripeVerifier {
	return &StripeVerifier{secret: secret}
}

func (v *StripeVerifier) Construct(payload []byte, signature string) (stripe.Event, error) {
	if signature == "" {
		return stripe.Event{}, ErrMissingSignature
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	return event, nil
}

// Event is a decoded payment webhook. The concrete type is one of
// CheckoutCompleted, SubscriptionUpdated, CustomerUpdated or Unhandled.
type Event interface {
	Type() string
	isEvent()
}

type CheckoutCompleted struct {
	SessionID      string
	UserID         string
	SubscriptionID string
	CustomerID     string
	PaymentStatus  string
	Status         string
}

type SubscriptionUpdated struct {
	SubscriptionID string
}

type CustomerUpdated struct {
	CustomerID string
	Address    *Address
}

type Unhandled struct {
	Kind string
}

func (CheckoutCompleted) Type() string {
	return string(stripe.EventTypeCheckoutSessionCompleted)
}
func (SubscriptionUpdated) Type() string {
	return string(stripe.EventTypeCustomerSubscriptionUpdated)
}
func (CustomerUpdated) Type() string { return string(stripe.EventTypeCustomerUpdated) }
func (e Unhandled) Type() string { return e.Kind }

func (CheckoutCompleted) isEvent() {}
func (SubscriptionUpdated) isEvent() {}
func (CustomerUpdated) isEvent() {}
func (Unhandled) isEvent() {}

// Address is a postal address as the provider reports it.
type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Format joins the non-empty parts with ", ".
func (a Address) Format() string {
	parts := make([]string, 0, 6)
	for _, p := range []string{a.Line1, a.Line2, a.City, a.State, a.PostalCode, a.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// The provider expands ids into objects depending on request options, so
// references are decoded from either form.
type ref string

func (r *ref) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*r = ref(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*r = ref(obj.ID)
	return nil
}

type checkoutSession struct {
	ID            string            `json:"id"`
	Customer      ref               `json:"customer"`
	Subscription  ref               `json:"subscription"`
	PaymentStatus string            `json:"payment_status"`
	Status        string            `json:"status"`
	Metadata      map[string]string `json:"metadata"`
}

type subscriptionObject struct {
	ID string `json:"id"`
}

type customerObject struct {
	ID      string   `json:"id"`
	Address *Address `json:"address"`
}

// Decode maps a verified provider event onto the handled set.
func Decode(ev stripe.Event) (Event, error) {
	if ev.Data == nil {
		return nil, fmt.Errorf("%w: no data", ErrMalformedEvent)
	}

	switch ev.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var s checkoutSession
		if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
		}
		return CheckoutCompleted{
			SessionID:      s.ID,
			UserID:         s.Metadata[MetadataUserID],
			SubscriptionID: string(s.Subscription),
			CustomerID:     string(s.Customer),
			PaymentStatus:  s.PaymentStatus,
			Status:         s.Status,
		}, nil

	case stripe.EventTypeCustomerSubscriptionUpdated:
		var s subscriptionObject
		if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
		}
		if s.ID == "" {
			return nil, fmt.Errorf("%w: subscription id", ErrMalformedEvent)
		}
		return SubscriptionUpdated{SubscriptionID: s.ID}, nil

	case stripe.EventTypeCustomerUpdated:
		var c customerObject
		if err := json.Unmarshal(ev.Data.Raw, &c); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
		}
		if c.ID == "" {
			return nil, fmt.Errorf("%w: customer id", ErrMalformedEvent)
		}
		return CustomerUpdated{CustomerID: c.ID, Address: c.Address}, nil

	default:
		return Unhandled{Kind: string(ev.Type)}, nil
	}
}
