package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/lalith-99/aipdfly/internal/models"
	"github.com/lalith-99/aipdfly/internal/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type linkBody struct {
	Link  string       `json:"link"`
	Share models.Share `json:"share"`
}

type contentBody struct {
	Protected bool             `json:"protected"`
	Chat      models.Chat      `json:"chat"`
	Messages  []models.Message `json:"messages"`
	PDFURL    string           `json:"pdfUrl"`
}

func TestShareLifecycle(t *testing.T) {
	s := newTestServer(t)
	chat := s.seedChat("u_1")
	owner := s.token("u_1", models.RoleCustomer)
	body := map[string]any{"chatId": chat.ID}

	w := s.do(http.MethodPost, "/v1/shares", owner, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	link := decode[linkBody](t, w)
	assert.Equal(t, baseURL+"/share/"+link.Share.ShareKey, link.Link)
	key := link.Share.ShareKey

	w = s.do(http.MethodPost, "/v1/shares", owner, body)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodGet, "/v1/chats/"+strconv.FormatInt(chat.ID, 10)+"/share", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	current := decode[[]map[string]any](t, w)
	require.Len(t, current, 1)
	assert.Equal(t, "public", current[0]["state"])
	assert.Equal(t, link.Link, current[0]["link"])
	assert.NotContains(t, w.Body.String(), "password")

	w = s.do(http.MethodGet, "/v1/public/shares/"+key, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	content := decode[contentBody](t, w)
	assert.False(t, content.Protected)
	assert.Equal(t, chat.ID, content.Chat.ID)
	assert.Len(t, content.Messages, 1)
	assert.Equal(t, "https://signed.test/"+chat.FileKey, content.PDFURL)

	w = s.do(http.MethodPut, "/v1/shares", owner, map[string]any{"chatId": chat.ID, "password": "hunter2"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[[]map[string]any](t, w)
	require.Len(t, updated, 1)
	assert.Equal(t, "protected", updated[0]["state"])
	assert.Equal(t, true, updated[0]["protected"])

	w = s.do(http.MethodGet, "/v1/public/shares/"+key, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "messages")
	assert.Contains(t, w.Body.String(), `"protected":true`)

	w = s.do(http.MethodPost, "/v1/public/shares/"+key+"/unlock", "", map[string]string{"password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/v1/public/shares/"+key+"/unlock", "", map[string]string{"password": "hunter2"})
	require.Equal(t, http.StatusOK, w.Code)
	content = decode[contentBody](t, w)
	assert.True(t, content.Protected)
	assert.Len(t, content.Messages, 1)

	w = s.do(http.MethodPut, "/v1/shares", owner, map[string]any{"chatId": chat.ID, "password": nil})
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(http.MethodGet, "/v1/public/shares/"+key, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"messages"`)

	w = s.do(http.MethodDelete, "/v1/shares", owner, body)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/v1/public/shares/"+key, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodPut, "/v1/shares", owner, map[string]any{"chatId": chat.ID, "password": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodPost, "/v1/shares", owner, body)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestShare_RequiresOwnership(t *testing.T) {
	s := newTestServer(t)
	chat := s.seedChat("u_1")
	body := map[string]any{"chatId": chat.ID}

	w := s.do(http.MethodPost, "/v1/shares", "", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/v1/shares", s.token("u_2", models.RoleCustomer), body)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodPost, "/v1/shares", s.token("admin_1", models.RoleAdmin), body)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestShare_Validation(t *testing.T) {
	s := newTestServer(t)
	chat := s.seedChat("u_1")
	owner := s.token("u_1", models.RoleCustomer)

	w := s.do(http.MethodPost, "/v1/shares", owner, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPut, "/v1/shares", owner, map[string]any{
		"chatId":   chat.ID,
		"password": strings.Repeat("p", 73),
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/v1/chats/abc/share", owner, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestShare_MultibytePasswordOverLimit(t *testing.T) {
	s := newTestServer(t)
	chat := s.seedChat("u_1")
	owner := s.token("u_1", models.RoleCustomer)

	w := s.do(http.MethodPost, "/v1/shares", owner, map[string]any{"chatId": chat.ID})
	require.Equal(t, http.StatusCreated, w.Code)

	// Passes the 72-character binding, but is 80 bytes.
	w = s.do(http.MethodPut, "/v1/shares", owner, map[string]any{
		"chatId":   chat.ID,
		"password": strings.Repeat("é", 40),
	})
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/v1/chats/"+strconv.FormatInt(chat.ID, 10)+"/share", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "public", decode[[]map[string]any](t, w)[0]["state"])
}

func TestShare_UnlockIsRateLimited(t *testing.T) {
	s := newTestServer(t, func(cfg *RouteConfig, rdb *redis.Client) {
		l, err := ratelimit.NewFixedWindow(rdb, "test:unlock", 2, time.Hour)
		require.NoError(t, err)
		cfg.UnlockLimiter = l
	})
	chat := s.seedChat("u_1")
	owner := s.token("u_1", models.RoleCustomer)

	w := s.do(http.MethodPost, "/v1/shares", owner, map[string]any{"chatId": chat.ID})
	require.Equal(t, http.StatusCreated, w.Code)
	key := decode[linkBody](t, w).Share.ShareKey
	w = s.do(http.MethodPut, "/v1/shares", owner, map[string]any{"chatId": chat.ID, "password": "hunter2"})
	require.Equal(t, http.StatusOK, w.Code)

	for i := 0; i < 2; i++ {
		w = s.do(http.MethodPost, "/v1/public/shares/"+key+"/unlock", "", map[string]string{"password": "wrong"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}
	w = s.do(http.MethodPost, "/v1/public/shares/"+key+"/unlock", "", map[string]string{"password": "hunter2"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// A different share has its own budget.
	w = s.do(http.MethodPost, "/v1/public/shares/other/unlock", "", map[string]string{"password": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// unlockVia posts a wrong password for key with the given X-Forwarded-For.
// httptest requests always come from 192.0.2.1.
func (s *testServer) unlockVia(key, forwardedFor string) int {
	s.t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/public/shares/"+key+"/unlock",
		bytes.NewBufferString(`{"password":"wrong"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", forwardedFor)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w.Code
}

func protectedShare(t *testing.T, s *testServer) string {
	t.Helper()
	chat := s.seedChat("u_1")
	owner := s.token("u_1", models.RoleCustomer)
	w := s.do(http.MethodPost, "/v1/shares", owner, map[string]any{"chatId": chat.ID})
	require.Equal(t, http.StatusCreated, w.Code)
	key := decode[linkBody](t, w).Share.ShareKey
	w = s.do(http.MethodPut, "/v1/shares", owner, map[string]any{"chatId": chat.ID, "password": "hunter2"})
	require.Equal(t, http.StatusOK, w.Code)
	return key
}

func TestShare_UnlockIgnoresSpoofedForwardedFor(t *testing.T) {
	s := newTestServer(t, func(cfg *RouteConfig, rdb *redis.Client) {
		l, err := ratelimit.NewFixedWindow(rdb, "test:unlock", 2, time.Hour)
		require.NoError(t, err)
		cfg.UnlockLimiter = l
	})
	key := protectedShare(t, s)

	assert.Equal(t, http.StatusUnauthorized, s.unlockVia(key, "203.0.113.1"))
	assert.Equal(t, http.StatusUnauthorized, s.unlockVia(key, "203.0.113.2"))
	// A fresh header does not buy a fresh budget.
	assert.Equal(t, http.StatusTooManyRequests, s.unlockVia(key, "203.0.113.3"))
}

func TestShare_UnlockHonorsTrustedProxy(t *testing.T) {
	s := newTestServer(t, func(cfg *RouteConfig, rdb *redis.Client) {
		l, err := ratelimit.NewFixedWindow(rdb, "test:unlock", 1, time.Hour)
		require.NoError(t, err)
		cfg.UnlockLimiter = l
		cfg.TrustedProxies = []string{"192.0.2.0/24"}
	})
	key := protectedShare(t, s)

	assert.Equal(t, http.StatusUnauthorized, s.unlockVia(key, "203.0.113.1"))
	assert.Equal(t, http.StatusTooManyRequests, s.unlockVia(key, "203.0.113.1"))
	assert.Equal(t, http.StatusUnauthorized, s.unlockVia(key, "203.0.113.2"))
}

func TestShare_UnlockFailsClosedWithoutRedis(t *testing.T) {
	s := newTestServer(t, func(cfg *RouteConfig, rdb *redis.Client) {
		cfg.UnlockLimiter = failingLimiter{}
	})
	w := s.do(http.MethodPost, "/v1/public/shares/any/unlock", "", map[string]string{"password": "x"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestAdminListShares(t *testing.T) {
	s := newTestServer(t)
	c1 := s.seedChat("u_1")
	c2 := s.seedChat("u_2")
	for _, c := range []*models.Chat{c1, c2} {
		w := s.do(http.MethodPost, "/v1/shares", s.token(c.UserID, models.RoleCustomer), map[string]any{"chatId": c.ID})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	admin := s.token("admin_1", models.RoleAdmin)
	w := s.do(http.MethodGet, "/v1/admin/shares", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.SharedChat](t, w), 2)

	w = s.do(http.MethodGet, "/v1/admin/shares?userId=u_2", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	rows := decode[[]models.SharedChat](t, w)
	require.Len(t, rows, 1)
	assert.Equal(t, c2.ID, rows[0].Chat.ID)

	w = s.do(http.MethodGet, "/v1/admin/shares", s.token("u_1", models.RoleCustomer), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

type failingLimiter struct{}

func (failingLimiter) Allow(_ context.Context, _ string) (bool, error) {
	return false, errors.New("redis down")
}
