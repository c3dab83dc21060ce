package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/lalith-99/aipdfly/internal/billing"
	"github.com/lalith-99/aipdfly/internal/models"
	"github.com/lalith-99/aipdfly/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const userCreated = `{
	"type": "user.created",
	"data": {
		"id": "u_1",
		"first_name": "Ada",
		"email_addresses": [{"email_address": "ada@example.com"}],
		"created_at": 1700000000000,
		"updated_at": 1700000000000,
		"public_metadata": {}
	}
}`

func TestIdentityWebhook(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	client := s.hub.Register("u_1")
	defer s.hub.Unregister(client.ID)

	w := s.identityWebhook(userCreated, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"status":"applied"}`, w.Body.String())

	u, err := s.db.Users().GetByID(ctx, "u_1")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "ada@example.com", u.EmailAddress)
	assert.Equal(t, models.RoleCustomer, u.Role)

	select {
	case ev := <-client.Events():
		assert.Equal(t, notify.EventUserSynced, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("no user.synced event")
	}

	w = s.identityWebhook(`{"type":"user.updated","data":{"id":"u_1","first_name":"Ada","public_metadata":{"role":"admin"}}}`, true)
	require.Equal(t, http.StatusOK, w.Code)
	u, err = s.db.Users().GetByID(ctx, "u_1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, u.Role)

	w = s.identityWebhook(`{"type":"user.updated","data":{"id":"ghost","public_metadata":{}}}`, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"noop"}`, w.Body.String())

	w = s.identityWebhook(`{"type":"session.created","data":{"id":"sess_1"}}`, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ignored"}`, w.Body.String())

	w = s.identityWebhook(`{"type":"user.deleted","data":{"id":"u_1","deleted":true}}`, true)
	require.Equal(t, http.StatusOK, w.Code)
	u, err = s.db.Users().GetByID(ctx, "u_1")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestIdentityWebhook_Rejects(t *testing.T) {
	s := newTestServer(t)

	w := s.identityWebhook(userCreated, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.identityWebhook(`{"type":"user.created","data":{}}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	users, err := s.db.Users().List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, users)
}

func subscriptionDetails(userID string) *billing.SubscriptionDetails {
	amount := int64(999)
	end := time.Now().Add(30 * 24 * time.Hour).UTC().Truncate(time.Second)
	return &billing.SubscriptionDetails{
		SubscriptionID: "sub_1",
		CustomerID:     "cus_1",
		UserID:         userID,
		Status:         "active",
		PriceID:        "price_1",
		ProductName:    "Pro",
		UnitAmount:     &amount,
		PeriodEnd:      &end,
		CardBrand:      "visa",
		CardLast4:      "4242",
	}
}

const checkoutCompleted = `{
	"id": "evt_1",
	"object": "event",
	"type": "checkout.session.completed",
	"data": {"object": {
		"id": "cs_1",
		"object": "checkout.session",
		"customer": "cus_1",
		"subscription": "sub_1",
		"payment_status": "paid",
		"status": "complete",
		"metadata": {"userId": "u_1"}
	}}
}`

func TestPaymentWebhook_Checkout(t *testing.T) {
	s := newTestServer(t)
	s.seedChat("u_1")
	s.provider.details["sub_1"] = subscriptionDetails("u_1")

	w := s.paymentWebhook(checkoutCompleted, paymentSecret)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"status":"applied"}`, w.Body.String())

	w = s.paymentWebhook(checkoutCompleted, paymentSecret)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"duplicate"}`, w.Body.String())
	assert.Equal(t, 1, s.provider.fetches)

	w = s.do(http.MethodGet, "/v1/billing/status", s.token("u_1", models.RoleCustomer), nil)
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[billing.Status](t, w)
	assert.True(t, st.IsPro)
	require.NotNil(t, st.Subscription)
	assert.Equal(t, "cus_1", st.Subscription.CustomerID)
	assert.Equal(t, "4242", *st.Subscription.CardLast4)
}

func TestPaymentWebhook_SubscriptionUpdated(t *testing.T) {
	s := newTestServer(t)
	s.seedChat("u_1")
	s.provider.details["sub_1"] = subscriptionDetails("u_1")
	updated := `{"id":"evt_2","object":"event","type":"customer.subscription.updated","data":{"object":{"id":"sub_1","object":"subscription"}}}`

	w := s.paymentWebhook(updated, paymentSecret)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"noop"}`, w.Body.String())

	w = s.paymentWebhook(checkoutCompleted, paymentSecret)
	require.Equal(t, http.StatusOK, w.Code)

	s.provider.details["sub_1"].Status = "canceled"
	updated = `{"id":"evt_3","object":"event","type":"customer.subscription.updated","data":{"object":{"id":"sub_1","object":"subscription"}}}`
	w = s.paymentWebhook(updated, paymentSecret)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"applied"}`, w.Body.String())

	sub, err := s.db.Subscriptions().GetByUserID(context.Background(), "u_1")
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, "canceled", *sub.Status)
	assert.False(t, sub.IsPro(time.Now()))
}

func TestPaymentWebhook_Rejects(t *testing.T) {
	s := newTestServer(t)

	w := s.paymentWebhook(checkoutCompleted, "whsec_someone_else")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	noUser := `{"id":"evt_9","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_9","customer":"cus_9","subscription":"sub_9","metadata":{}}}}`
	w = s.paymentWebhook(noUser, paymentSecret)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"dropped"}`, w.Body.String())
	assert.Zero(t, s.provider.fetches)

	w = s.paymentWebhook(`{"id":"evt_10","object":"event","type":"invoice.paid","data":{"object":{"id":"in_1"}}}`, paymentSecret)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ignored"}`, w.Body.String())
}
