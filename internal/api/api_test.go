package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/lalith-99/aipdfly/internal/auth"
	"github.com/lalith-99/aipdfly/internal/billing"
	"github.com/lalith-99/aipdfly/internal/identity"
	"github.com/lalith-99/aipdfly/internal/models"
	"github.com/lalith-99/aipdfly/internal/notify"
	"github.com/lalith-99/aipdfly/internal/observ"
	"github.com/lalith-99/aipdfly/internal/repository/memory"
	"github.com/lalith-99/aipdfly/internal/share"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	svix "github.com/svix/svix-webhooks/go"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	jwtSecret      = "api-test-secret"
	identitySecret = "whsec_MfKQ9r8GKYqrTwjUPD8ILPZIo2LaLaSw"
	paymentSecret  = "whsec_payment_test"
	baseURL        = "https://aipdfly.test"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeProvider struct {
	details   map[string]*billing.SubscriptionDetails
	fetches   int
	portalFor string
}

func (f *fakeProvider) SubscriptionDetails(_ context.Context, id string) (*billing.SubscriptionDetails, error) {
	f.fetches++
	return f.details[id], nil
}

func (f *fakeProvider) CheckoutURL(_ context.Context, req billing.CheckoutRequest) (string, error) {
	return "https://checkout.test/" + req.UserID, nil
}

func (f *fakeProvider) PortalURL(_ context.Context, customerID, _ string) (string, error) {
	f.portalFor = customerID
	return "https://portal.test/" + customerID, nil
}

type fakeDirectory struct {
	roles     map[string]models.Role
	accounts  map[string]models.UserProfile
	deleted   []string
	deleteErr error
}

func (f *fakeDirectory) CreateUser(_ context.Context, nu identity.NewUser) (*models.UserProfile, error) {
	if err := f.checkTaken("", nu.Username, nu.Email, nu.PhoneNumber); err != nil {
		return nil, err
	}
	p := models.UserProfile{
		ID:           "user_" + strconv.Itoa(len(f.accounts)+1),
		Username:     nu.Username,
		FirstName:    nu.FirstName,
		LastName:     nu.LastName,
		EmailAddress: nu.Email,
		PhoneNumber:  nu.PhoneNumber,
	}
	f.accounts[p.ID] = p
	f.roles[p.ID] = nu.Role
	return &p, nil
}

func (f *fakeDirectory) UpdateUser(_ context.Context, userID string, ch identity.UserChanges) (*models.UserProfile, error) {
	p, ok := f.accounts[userID]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	differs := func(next, cur string) string {
		if next == cur {
			return ""
		}
		return next
	}
	if err := f.checkTaken(userID, differs(ch.Username, p.Username), differs(ch.Email, p.EmailAddress), differs(ch.PhoneNumber, p.PhoneNumber)); err != nil {
		return nil, err
	}

	before := p
	for _, field := range []struct {
		dst *string
		v   string
	}{
		{&p.Username, ch.Username},
		{&p.FirstName, ch.FirstName},
		{&p.LastName, ch.LastName},
		{&p.EmailAddress, ch.Email},
		{&p.PhoneNumber, ch.PhoneNumber},
	} {
		if field.v != "" {
			*field.dst = field.v
		}
	}
	if p == before && ch.Password == "" {
		return nil, nil
	}
	f.accounts[userID] = p
	return &p, nil
}

func (f *fakeDirectory) checkTaken(self, username, email, phone string) error {
	taken := make(map[string]string)
	for id, a := range f.accounts {
		if id == self {
			continue
		}
		if username != "" && a.Username == username {
			taken["username"] = username + " is already used."
		}
		if email != "" && a.EmailAddress == email {
			taken["email"] = email + " is already used."
		}
		if phone != "" && a.PhoneNumber == phone {
			taken["phoneNumber"] = phone + " is already used."
		}
	}
	if len(taken) > 0 {
		return &identity.TakenError{Fields: taken}
	}
	return nil
}

func (f *fakeDirectory) SetRole(_ context.Context, userID string, role models.Role) error {
	f.roles[userID] = role
	return nil
}

func (f *fakeDirectory) DeleteUser(_ context.Context, userID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, userID)
	return nil
}

type fakeObjects struct {
	deleted []string
}

func (f *fakeObjects) PDFURL(_ context.Context, key string) (string, error) {
	return "https://signed.test/" + key, nil
}

func (f *fakeObjects) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

type testServer struct {
	t         *testing.T
	router    *gin.Engine
	db        *memory.DB
	provider  *fakeProvider
	directory *fakeDirectory
	objects   *fakeObjects
	hub       *notify.Hub
	redis     *miniredis.Miniredis
}

func newTestServer(t *testing.T, opts ...func(*RouteConfig, *redis.Client)) *testServer {
	t.Helper()
	logger := zap.NewNop()
	db := memory.New()
	hub := notify.NewHub(logger)
	metrics := observ.NewMetrics(prometheus.NewRegistry())
	provider := &fakeProvider{details: make(map[string]*billing.SubscriptionDetails)}
	directory := &fakeDirectory{
		roles:    make(map[string]models.Role),
		accounts: make(map[string]models.UserProfile),
	}
	objects := &fakeObjects{}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	idVerifier, err := identity.NewSvixVerifier(identitySecret)
	require.NoError(t, err)

	hasher := share.BcryptHasher{Cost: bcrypt.MinCost}
	h := Handlers{
		Chats: NewChatHandler(db.Chats(), db.Messages(), objects, logger),
		Shares: NewShareHandler(db.Chats(), db.Shares(),
			share.NewManager(db.Shares(), hasher, baseURL),
			share.NewGate(db.Shares(), db.Messages(), hasher),
			objects, metrics, logger),
		Webhooks: NewWebhookHandler(
			idVerifier, identity.NewReconciler(db.Users(), hub, logger),
			billing.NewStripeVerifier(paymentSecret),
			billing.NewReconciler(db.Subscriptions(), provider, hub, time.Second, logger),
			billing.NewRedisDeduper(rdb, time.Hour), metrics, logger),
		Admin:   NewAdminHandler(db.Users(), db.Chats(), db.Subscriptions(), directory, objects, logger),
		Billing: NewBillingHandler(billing.NewService(db.Subscriptions(), provider, "price_1", baseURL, time.Second), logger),
		Events:  NewEventsHandler(hub, []string{baseURL}, logger),
	}

	cfg := RouteConfig{JWTSecret: jwtSecret}
	for _, opt := range opts {
		opt(&cfg, rdb)
	}
	r := gin.New()
	require.NoError(t, Register(r, h, cfg, logger))

	return &testServer{
		t: t, router: r, db: db, provider: provider, directory: directory,
		objects: objects, hub: hub, redis: mr,
	}
}

func (s *testServer) token(userID string, role models.Role) string {
	s.t.Helper()
	tok, err := auth.GenerateToken(userID, role, userID+"@example.com", jwtSecret, time.Hour)
	require.NoError(s.t, err)
	return tok
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) identityWebhook(payload string, signed bool) *httptest.ResponseRecorder {
	s.t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/identity", bytes.NewBufferString(payload))
	if signed {
		wh, err := svix.NewWebhook(identitySecret)
		require.NoError(s.t, err)
		now := time.Now()
		msgID := "msg_" + strconv.FormatInt(now.UnixNano(), 10)
		sig, err := wh.Sign(msgID, now, []byte(payload))
		require.NoError(s.t, err)
		req.Header.Set("svix-id", msgID)
		req.Header.Set("svix-timestamp", strconv.FormatInt(now.Unix(), 10))
		req.Header.Set("svix-signature", sig)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) paymentWebhook(payload string, secret string) *httptest.ResponseRecorder {
	s.t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: time.Now(),
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/payment", bytes.NewReader(signed.Payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) seedChat(userID string) *models.Chat {
	s.t.Helper()
	ctx := context.Background()
	_, err := s.db.Users().Upsert(ctx, models.UserProfile{ID: userID})
	require.NoError(s.t, err)
	chat, err := s.db.Chats().Create(ctx, userID, "paper.pdf", "https://raw.test/paper.pdf", "uploads/"+userID+"/paper.pdf")
	require.NoError(s.t, err)
	_, err = s.db.Messages().Create(ctx, chat.ID, models.MessageRoleUser, "summarise")
	require.NoError(s.t, err)
	return chat
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}
