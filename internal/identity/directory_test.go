package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/clerk/clerk-sdk-go/v2"
	"github.com/lalith-99/aipdfly/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClerk serves the slice of the Clerk backend API the directory uses.
type fakeClerk struct {
	mu      sync.Mutex
	taken   map[string]string // query key -> value held by another account
	email   string
	created map[string]any
	patched map[string]any
	added   map[string]any
}

func (f *fakeClerk) user(id string) map[string]any {
	return map[string]any{
		"id":                       id,
		"username":                 "ada",
		"first_name":               "Ada",
		"last_name":                nil,
		"primary_email_address_id": "idn_primary",
		"email_addresses": []map[string]any{
			{"id": "idn_old", "email_address": "old@example.com"},
			{"id": "idn_primary", "email_address": f.email},
		},
		"phone_numbers": []map[string]any{},
		"created_at":    1700000000000,
		"updated_at":    1700000000000,
	}
}

func (f *fakeClerk) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		require.NoError(t, json.NewEncoder(w).Encode(v))
	}
	decodeBody := func(r *http.Request) map[string]any {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		return body
	}

	mux.HandleFunc("GET /v1/users/count", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		n := 0
		for key, v := range f.taken {
			if r.URL.Query().Get(key) == v {
				n++
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"object": "total_count", "total_count": n})
	})
	mux.HandleFunc("POST /v1/users", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.created = decodeBody(r)
		emails := f.created["email_address"].([]any)
		writeJSON(w, http.StatusOK, map[string]any{
			"id":              "user_new",
			"username":        f.created["username"],
			"first_name":      f.created["first_name"],
			"email_addresses": []map[string]any{{"id": "idn_1", "email_address": emails[0]}},
			"created_at":      1700000000000,
			"updated_at":      1700000000000,
		})
	})
	mux.HandleFunc("GET /v1/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if r.PathValue("id") != "u_1" {
			writeJSON(w, http.StatusNotFound, map[string]any{
				"errors": []map[string]any{{"code": "resource_not_found", "message": "not found"}},
			})
			return
		}
		writeJSON(w, http.StatusOK, f.user("u_1"))
	})
	mux.HandleFunc("PATCH /v1/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.patched = decodeBody(r)
		writeJSON(w, http.StatusOK, f.user(r.PathValue("id")))
	})
	mux.HandleFunc("POST /v1/email_addresses", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.added = decodeBody(r)
		f.email = f.added["email_address"].(string)
		writeJSON(w, http.StatusOK, map[string]any{"id": "idn_primary", "email_address": f.email})
	})
	return mux
}

func newTestDirectory(t *testing.T, f *fakeClerk) *ClerkDirectory {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	return newClerkDirectory(&clerk.ClientConfig{BackendConfig: clerk.BackendConfig{
		HTTPClient: srv.Client(),
		URL:        clerk.String(srv.URL + "/v1"),
		Key:        clerk.String("sk_test_directory"),
	}})
}

func TestClerkDirectory_CreateUser(t *testing.T) {
	f := &fakeClerk{}
	d := newTestDirectory(t, f)

	p, err := d.CreateUser(context.Background(), NewUser{
		Username:  "ada",
		FirstName: "Ada",
		Email:     "ada@example.com",
		Password:  "correct-horse",
		Role:      models.RoleAdmin,
	})
	require.NoError(t, err)
	assert.Equal(t, "user_new", p.ID)
	assert.Equal(t, "ada@example.com", p.EmailAddress)
	assert.Equal(t, DefaultLastName, p.LastName)
	assert.Equal(t, DefaultPhoneNumber, p.PhoneNumber)
	require.NotNil(t, p.CreatedAt)

	assert.Equal(t, map[string]any{"role": "admin"}, f.created["public_metadata"])
	assert.NotContains(t, f.created, "phone_number")
}

func TestClerkDirectory_CreateUserTaken(t *testing.T) {
	f := &fakeClerk{taken: map[string]string{
		"username":      "ada",
		"email_address": "ada@example.com",
	}}
	d := newTestDirectory(t, f)

	_, err := d.CreateUser(context.Background(), NewUser{
		Username:    "ada",
		Email:       "ada@example.com",
		PhoneNumber: "+6591234567",
		Password:    "correct-horse",
	})
	var taken *TakenError
	require.ErrorAs(t, err, &taken)
	assert.Equal(t, map[string]string{
		"username": "ada is already used.",
		"email":    "ada@example.com is already used.",
	}, taken.Fields)
	assert.Nil(t, f.created, "nothing is created on a clash")
}

func TestClerkDirectory_UpdateUser(t *testing.T) {
	f := &fakeClerk{email: "ada@example.com"}
	d := newTestDirectory(t, f)
	ctx := context.Background()

	// Current values and the old secondary email are not changes.
	p, err := d.UpdateUser(ctx, "u_1", UserChanges{Username: "ada", FirstName: "Ada", Email: "old@example.com"})
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Nil(t, f.patched)

	p, err = d.UpdateUser(ctx, "u_1", UserChanges{LastName: "Lovelace", Email: "augusta@example.com"})
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "augusta@example.com", p.EmailAddress)
	assert.Equal(t, map[string]any{"last_name": "Lovelace"}, f.patched)
	assert.Equal(t, true, f.added["primary"])
	assert.Equal(t, "u_1", f.added["user_id"])

	_, err = d.UpdateUser(ctx, "ghost", UserChanges{FirstName: "X"})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestClerkDirectory_UpdateUserTaken(t *testing.T) {
	f := &fakeClerk{email: "ada@example.com", taken: map[string]string{"username": "grace"}}
	d := newTestDirectory(t, f)

	_, err := d.UpdateUser(context.Background(), "u_1", UserChanges{Username: "grace", FirstName: "Grace"})
	var taken *TakenError
	require.ErrorAs(t, err, &taken)
	assert.Equal(t, "grace is already used.", taken.Fields["username"])
	assert.Nil(t, f.patched)
}
