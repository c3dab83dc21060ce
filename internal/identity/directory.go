package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/clerk/clerk-sdk-go/v2"
	"github.com/clerk/clerk-sdk-go/v2/emailaddress"
	"github.com/clerk/clerk-sdk-go/v2/phonenumber"
	"github.com/clerk/clerk-sdk-go/v2/user"
	"github.com/lalith-99/aipdfly/internal/models"
)

// ErrUserNotFound is returned when the provider has no account for an id.
var ErrUserNotFound = errors.New("provider user not found")

// Directory is the provider-side user store that admin actions write back to.
type Directory interface {
	CreateUser(ctx context.Context, u NewUser) (*models.UserProfile, error)
	// UpdateUser returns nil, nil when ch matches the account already.
	UpdateUser(ctx context.Context, userID string, ch UserChanges) (*models.UserProfile, error)
	SetRole(ctx context.Context, userID string, role models.Role) error
	DeleteUser(ctx context.Context, userID string) error
}

// NewUser is an account created from the admin dashboard.
type NewUser struct {
	Username    string
	FirstName   string
	LastName    string
	Email       string
	Password    string
	PhoneNumber string
	Role        models.Role
}

// UserChanges holds an admin edit. Empty fields are left as they are.
type UserChanges struct {
	Username    string
	FirstName   string
	LastName    string
	Email       string
	Password    string
	PhoneNumber string
}

// TakenError reports identifiers another account already holds, keyed by
// request field (username, email, phoneNumber).
type TakenError struct {
	Fields map[string]string
}

func (e *TakenError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return "already in use: " + strings.Join(names, ", ")
}

// ClerkDirectory writes admin changes to Clerk through the backend API.
type ClerkDirectory struct {
	users  *user.Client
	emails *emailaddress.Client
	phones *phonenumber.Client
}

// NewClerkDirectory authenticates with a Clerk secret key.
func NewClerkDirectory(apiKey string) *ClerkDirectory {
	return newClerkDirectory(&clerk.ClientConfig{
		BackendConfig: clerk.BackendConfig{Key: clerk.String(apiKey)},
	})
}

func newClerkDirectory(cfg *clerk.ClientConfig) *ClerkDirectory {
	return &ClerkDirectory{
		users:  user.NewClient(cfg),
		emails: emailaddress.NewClient(cfg),
		phones: phonenumber.NewClient(cfg),
	}
}

// CreateUser rejects identifiers another account holds, then creates the
// account with its role in public metadata.
func (d *ClerkDirectory) CreateUser(ctx context.Context, nu NewUser) (*models.UserProfile, error) {
	if err := d.checkTaken(ctx, nu.Username, nu.Email, nu.PhoneNumber); err != nil {
		return nil, err
	}

	meta, err := roleMetadata(nu.Role)
	if err != nil {
		return nil, err
	}
	params := &user.CreateParams{
		Username:       optional(nu.Username),
		FirstName:      optional(nu.FirstName),
		LastName:       optional(nu.LastName),
		Password:       optional(nu.Password),
		PublicMetadata: meta,
	}
	if nu.Email != "" {
		params.EmailAddresses = &[]string{nu.Email}
	}
	if nu.PhoneNumber != "" {
		params.PhoneNumbers = &[]string{nu.PhoneNumber}
	}

	u, err := d.users.Create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create provider user: %w", err)
	}
	p := profileOf(u)
	return &p, nil
}

// UpdateUser applies the fields of ch that differ from the account. A new
// email or phone number is added as verified and made primary.
func (d *ClerkDirectory) UpdateUser(ctx context.Context, userID string, ch UserChanges) (*models.UserProfile, error) {
	current, err := d.users.Get(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get provider user: %w", err)
	}

	var username, email, phone string
	if ch.Username != "" && ch.Username != deref(current.Username) {
		username = ch.Username
	}
	if ch.Email != "" && !hasEmail(current, ch.Email) {
		email = ch.Email
	}
	if ch.PhoneNumber != "" && !hasPhone(current, ch.PhoneNumber) {
		phone = ch.PhoneNumber
	}
	if err := d.checkTaken(ctx, username, email, phone); err != nil {
		return nil, err
	}

	params := &user.UpdateParams{Username: optional(username), Password: optional(ch.Password)}
	if ch.FirstName != "" && ch.FirstName != deref(current.FirstName) {
		params.FirstName = &ch.FirstName
	}
	if ch.LastName != "" && ch.LastName != deref(current.LastName) {
		params.LastName = &ch.LastName
	}
	changed := params.Username != nil || params.Password != nil || params.FirstName != nil || params.LastName != nil
	if !changed && email == "" && phone == "" {
		return nil, nil
	}

	if changed {
		if _, err := d.users.Update(ctx, userID, params); err != nil {
			return nil, fmt.Errorf("update provider user: %w", err)
		}
	}
	if email != "" {
		if _, err := d.emails.Create(ctx, &emailaddress.CreateParams{
			UserID:       &userID,
			EmailAddress: &email,
			Verified:     clerk.Bool(true),
			Primary:      clerk.Bool(true),
		}); err != nil {
			return nil, fmt.Errorf("add provider email: %w", err)
		}
	}
	if phone != "" {
		if _, err := d.phones.Create(ctx, &phonenumber.CreateParams{
			UserID:      &userID,
			PhoneNumber: &phone,
			Verified:    clerk.Bool(true),
			Primary:     clerk.Bool(true),
		}); err != nil {
			return nil, fmt.Errorf("add provider phone number: %w", err)
		}
	}

	updated, err := d.users.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get provider user: %w", err)
	}
	p := profileOf(updated)
	return &p, nil
}

// SetRole writes the role into the user's public metadata. The provider then
// emits user.updated, which brings the local row in line.
func (d *ClerkDirectory) SetRole(ctx context.Context, userID string, role models.Role) error {
	meta, err := roleMetadata(role)
	if err != nil {
		return err
	}
	if _, err := d.users.UpdateMetadata(ctx, userID, &user.UpdateMetadataParams{PublicMetadata: meta}); err != nil {
		return fmt.Errorf("update provider metadata: %w", err)
	}
	return nil
}

// DeleteUser removes the provider account. Its user.deleted webhook runs the
// same cascade as an admin delete.
func (d *ClerkDirectory) DeleteUser(ctx context.Context, userID string) error {
	if _, err := d.users.Delete(ctx, userID); err != nil {
		return fmt.Errorf("delete provider user: %w", err)
	}
	return nil
}

// checkTaken counts provider accounts holding each non-empty identifier.
func (d *ClerkDirectory) checkTaken(ctx context.Context, username, email, phone string) error {
	checks := []struct {
		field  string
		value  string
		params *user.ListParams
	}{
		{"username", username, &user.ListParams{Usernames: []string{username}}},
		{"email", email, &user.ListParams{EmailAddresses: []string{email}}},
		{"phoneNumber", phone, &user.ListParams{PhoneNumbers: []string{phone}}},
	}

	taken := make(map[string]string)
	for _, c := range checks {
		if c.value == "" {
			continue
		}
		n, err := d.users.Count(ctx, c.params)
		if err != nil {
			return fmt.Errorf("check provider %s: %w", c.field, err)
		}
		if n.TotalCount > 0 {
			taken[c.field] = c.value + " is already used."
		}
	}
	if len(taken) > 0 {
		return &TakenError{Fields: taken}
	}
	return nil
}

func roleMetadata(role models.Role) (*json.RawMessage, error) {
	if role == "" {
		role = models.RoleCustomer
	}
	raw, err := json.Marshal(map[string]string{"role": string(role)})
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	meta := json.RawMessage(raw)
	return &meta, nil
}

// profileOf maps an account the way webhook payloads are mapped, preferring
// the primary email and phone number.
func profileOf(u *clerk.User) models.UserProfile {
	d := userData{
		ID:           u.ID,
		Username:     u.Username,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		ImageURL:     deref(u.ImageURL),
		LastSignInAt: u.LastSignInAt,
		CreatedAt:    &u.CreatedAt,
		UpdatedAt:    &u.UpdatedAt,
	}
	p := d.profile()
	for _, e := range u.EmailAddresses {
		if p.EmailAddress == DefaultEmail || (u.PrimaryEmailAddressID != nil && e.ID == *u.PrimaryEmailAddressID) {
			p.EmailAddress = e.EmailAddress
		}
	}
	for _, ph := range u.PhoneNumbers {
		if p.PhoneNumber == DefaultPhoneNumber || (u.PrimaryPhoneNumberID != nil && ph.ID == *u.PrimaryPhoneNumberID) {
			p.PhoneNumber = ph.PhoneNumber
		}
	}
	return p
}

func hasEmail(u *clerk.User, email string) bool {
	for _, e := range u.EmailAddresses {
		if e.EmailAddress == email {
			return true
		}
	}
	return false
}

func hasPhone(u *clerk.User, phone string) bool {
	for _, p := range u.PhoneNumbers {
		if p.PhoneNumber == phone {
			return true
		}
	}
	return false
}

func isNotFound(err error) bool {
	var apiErr *clerk.APIErrorResponse
	return errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusNotFound
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
