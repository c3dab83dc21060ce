package models

import (
	"time"
)

// Role is the access level synced from the identity provider's public metadata.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
)

// ParseRole maps an arbitrary claim to a known role. Anything unrecognised
// (including an empty claim) becomes RoleCustomer.
func ParseRole(s string) Role {
	if Role(s) == RoleAdmin {
		return RoleAdmin
	}
	return RoleCustomer
}

// MessageRole is who authored a chat message.
type MessageRole string

const (
	MessageRoleSystem MessageRole = "system"
	MessageRoleUser   MessageRole = "user"
)

// User mirrors the users table. ID is assigned by the identity provider and is
// never generated locally.
type User struct {
	ID           string     `json:"userId"`
	Username     string     `json:"username"`
	EmailAddress string     `json:"emailAddress"`
	FirstName    string     `json:"firstName"`
	LastName     string     `json:"lastName"`
	ImageURL     string     `json:"imageUrl"`
	PhoneNumber  string     `json:"phoneNumber"`
	Role         Role       `json:"role"`
	LastSignInAt *time.Time `json:"lastSignInAt"`
	CreatedAt    *time.Time `json:"createdAt"`
	UpdatedAt    *time.Time `json:"updatedAt"`
}

// UserProfile is the writable part of a user row, as carried by identity events.
type UserProfile struct {
	ID           string
	Username     string
	EmailAddress string
	FirstName    string
	LastName     string
	ImageURL     string
	PhoneNumber  string
	LastSignInAt *time.Time
	CreatedAt    *time.Time
	UpdatedAt    *time.Time
}

// Chat is one uploaded PDF and the conversation about it. FileKey points at the
// blob in object storage; PDFURL is the URL recorded at upload time.
type Chat struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"userId"`
	PDFName   string    `json:"pdfName"`
	PDFURL    string    `json:"pdfUrl"`
	FileKey   string    `json:"fileKey"`
	CreatedAt time.Time `json:"createdAt"`
}

// Message is append-only.
type Message struct {
	ID        int64       `json:"id"`
	ChatID    int64       `json:"chatId"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Subscription mirrors user_subscriptions. At most one per user.
type Subscription struct {
	ID                int64      `json:"id"`
	UserID            string     `json:"userId"`
	CustomerID        string     `json:"stripeCustomerId"`
	SubscriptionID    *string    `json:"stripeSubscriptionId"`
	PriceID           *string    `json:"stripePriceId"`
	CurrentPeriodEnd  *time.Time `json:"stripeCurrentPeriodEnd"`
	Status            *string    `json:"stripeSubscriptionStatus"`
	Product           *string    `json:"stripeProduct"`
	InvoiceURL        *string    `json:"stripeInvoiceUrl"`
	InvoicePDF        *string    `json:"stripeInvoicePdf"`
	Amount            *int64     `json:"stripeAmount"`
	PaymentStatus     *string    `json:"stripePaymentStatus"`
	CheckoutStatus    *string    `json:"stripeCheckoutStatus"`
	ProviderCreatedAt *time.Time `json:"stripeCreatedAt"`
	CardLast4         *string    `json:"stripeCardLast4Digits"`
	CardBrand         *string    `json:"stripeCardBrand"`
	BillingAddress    *string    `json:"stripeBillingAddress"`
}

// proGracePeriod keeps a user pro for a day past the period end, covering the
// gap before the renewal webhook lands.
const proGracePeriod = 24 * time.Hour

// IsPro reports whether the subscription grants paid features at now.
func (s *Subscription) IsPro(now time.Time) bool {
	if s == nil || s.CurrentPeriodEnd == nil || s.Status == nil {
		return false
	}
	switch *s.Status {
	case "active", "trialing":
	default:
		return false
	}
	return s.CurrentPeriodEnd.Add(proGracePeriod).After(now)
}

// SubscriptionUpdate carries the fields refreshed on a subscription.updated event.
type SubscriptionUpdate struct {
	Status         string
	PaymentStatus  *string
	CheckoutStatus *string
	Amount         *int64
	CardLast4      *string
	CardBrand      *string
	BillingAddress *string
	PeriodEnd      *time.Time
}

// UserSubscription is a subscription joined with its owner.
type UserSubscription struct {
	User         User         `json:"users"`
	Subscription Subscription `json:"user_subscriptions"`
}

// Share is a public link to a chat. PasswordHash is nil for an unprotected link
// and is never serialised.
type Share struct {
	ID           int64     `json:"id"`
	ChatID       int64     `json:"chatId"`
	UserID       string    `json:"userId"`
	ShareKey     string    `json:"shareKey"`
	PasswordHash *string   `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Protected reports whether viewers must present a password.
func (s Share) Protected() bool {
	return s.PasswordHash != nil
}

// SharedChat is a share row joined with the chat it exposes.
type SharedChat struct {
	Share Share `json:"shares"`
	Chat  Chat  `json:"chats"`
}
