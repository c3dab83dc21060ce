package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/aipdfly/internal/models"
)

type SubscriptionStore struct {
	pool *pgxpool.Pool
}

func NewSubscriptionStore(pool *pgxpool.Pool) *SubscriptionStore {
	return &SubscriptionStore{pool: pool}
}

const subscriptionColumns = `s.id, s.user_id, s.stripe_customer_id, s.stripe_subscription_id,
	s.stripe_price_id, s.stripe_current_period_ended_at, s.stripe_subscription_status,
	s.stripe_product, s.stripe_invoice_url, s.stripe_invoice_pdf, s.stripe_amount,
	s.stripe_payment_status, s.stripe_checkout_status, s.stripe_created_at,
	s.stripe_card_last_4_digits, s.stripe_card_brand, s.stripe_billing_address`

func subscriptionDest(sub *models.Subscription) []any {
	return []any{
		&sub.ID,
		&sub.UserID,
		&sub.CustomerID,
		&sub.SubscriptionID,
		&sub.PriceID,
		&sub.CurrentPeriodEnd,
		&sub.Status,
		&sub.Product,
		&sub.InvoiceURL,
		&sub.InvoicePDF,
		&sub.Amount,
		&sub.PaymentStatus,
		&sub.CheckoutStatus,
		&sub.ProviderCreatedAt,
		&sub.CardLast4,
		&sub.CardBrand,
		&sub.BillingAddress,
	}
}

// Create upserts on user_id: a redelivered checkout.session.completed
// rewrites the same row instead of tripping the unique constraint.
func (s *SubscriptionStore) Create(ctx context.Context, in models.Subscription) (*models.Subscription, error) {
	query := `
		INSERT INTO user_subscriptions AS s (user_id, stripe_customer_id, stripe_subscription_id,
			stripe_price_id, stripe_current_period_ended_at, stripe_subscription_status,
			stripe_product, stripe_invoice_url, stripe_invoice_pdf, stripe_amount,
			stripe_payment_status, stripe_checkout_status, stripe_created_at,
			stripe_card_last_4_digits, stripe_card_brand, stripe_billing_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (user_id) DO UPDATE SET
			stripe_customer_id             = EXCLUDED.stripe_customer_id,
			stripe_subscription_id         = EXCLUDED.stripe_subscription_id,
			stripe_price_id                = EXCLUDED.stripe_price_id,
			stripe_current_period_ended_at = EXCLUDED.stripe_current_period_ended_at,
			stripe_subscription_status     = EXCLUDED.stripe_subscription_status,
			stripe_product                 = EXCLUDED.stripe_product,
			stripe_invoice_url             = EXCLUDED.stripe_invoice_url,
			stripe_invoice_pdf             = EXCLUDED.stripe_invoice_pdf,
			stripe_amount                  = EXCLUDED.stripe_amount,
			stripe_payment_status          = EXCLUDED.stripe_payment_status,
			stripe_checkout_status         = EXCLUDED.stripe_checkout_status,
			stripe_created_at              = EXCLUDED.stripe_created_at,
			stripe_card_last_4_digits      = EXCLUDED.stripe_card_last_4_digits,
			stripe_card_brand              = EXCLUDED.stripe_card_brand,
			stripe_billing_address         = EXCLUDED.stripe_billing_address
		RETURNING ` + subscriptionColumns

	var out models.Subscription
	err := s.pool.QueryRow(ctx, query,
		in.UserID, in.CustomerID, in.SubscriptionID,
		in.PriceID, in.CurrentPeriodEnd, in.Status,
		in.Product, in.InvoiceURL, in.InvoicePDF, in.Amount,
		in.PaymentStatus, in.CheckoutStatus, in.ProviderCreatedAt,
		in.CardLast4, in.CardBrand, in.BillingAddress,
	).Scan(subscriptionDest(&out)...)
	if err != nil {
		return nil, wrapErr("insert subscription", err)
	}
	return &out, nil
}

// UpdateBySubscriptionID keeps the stored value for any nil field.
func (s *SubscriptionStore) UpdateBySubscriptionID(ctx context.Context, subscriptionID string, u models.SubscriptionUpdate) (int64, error) {
	query := `
		UPDATE user_subscriptions SET
			stripe_subscription_status     = $2,
			stripe_payment_status          = COALESCE($3, stripe_payment_status),
			stripe_checkout_status         = COALESCE($4, stripe_checkout_status),
			stripe_amount                  = COALESCE($5, stripe_amount),
			stripe_card_last_4_digits      = COALESCE($6, stripe_card_last_4_digits),
			stripe_card_brand              = COALESCE($7, stripe_card_brand),
			stripe_billing_address         = COALESCE($8, stripe_billing_address),
			stripe_current_period_ended_at = COALESCE($9, stripe_current_period_ended_at)
		WHERE stripe_subscription_id = $1`

	tag, err := s.pool.Exec(ctx, query,
		subscriptionID, u.Status, u.PaymentStatus, u.CheckoutStatus, u.Amount,
		u.CardLast4, u.CardBrand, u.BillingAddress, u.PeriodEnd,
	)
	if err != nil {
		return 0, wrapErr("update subscription", err)
	}
	return tag.RowsAffected(), nil
}

func (s *SubscriptionStore) UpdateBillingAddressByCustomerID(ctx context.Context, customerID, address string) (int64, error) {
	query := `
		UPDATE user_subscriptions SET stripe_billing_address = $2
		WHERE stripe_customer_id = $1`

	tag, err := s.pool.Exec(ctx, query, customerID, address)
	if err != nil {
		return 0, wrapErr("update billing address", err)
	}
	return tag.RowsAffected(), nil
}

func (s *SubscriptionStore) GetByUserID(ctx context.Context, userID string) (*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM user_subscriptions s WHERE s.user_id = $1`

	var out models.Subscription
	err := s.pool.QueryRow(ctx, query, userID).Scan(subscriptionDest(&out)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return &out, nil
}

func (s *SubscriptionStore) ListWithUsers(ctx context.Context) ([]models.UserSubscription, error) {
	query := `
		SELECT u.user_id, u.username, u.email_address, u.first_name, u.last_name, u.image_url,
			u.phone_number, u.role::text, u.last_sign_in_at, u.created_at, u.updated_at,
			` + subscriptionColumns + `
		FROM user_subscriptions s
		JOIN users u ON u.user_id = s.user_id
		ORDER BY u.created_at DESC NULLS LAST`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	out := make([]models.UserSubscription, 0)
	for rows.Next() {
		var us models.UserSubscription
		dest := []any{
			&us.User.ID,
			&us.User.Username,
			&us.User.EmailAddress,
			&us.User.FirstName,
			&us.User.LastName,
			&us.User.ImageURL,
			&us.User.PhoneNumber,
			&us.User.Role,
			&us.User.LastSignInAt,
			&us.User.CreatedAt,
			&us.User.UpdatedAt,
		}
		dest = append(dest, subscriptionDest(&us.Subscription)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, us)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return out, nil
}
