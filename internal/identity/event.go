package identity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lalith-99/aipdfly/internal/models"
)

// Placeholders stored when the provider omits a display field.
const (
	DefaultUsername    = "default_username"
	DefaultEmail       = "default_email"
	DefaultFirstName   = "default_first_name"
	DefaultLastName    = "default_last_name"
	DefaultImageURL    = "default_image_url"
	DefaultPhoneNumber = "default_phone_number"
)

const (
	TypeUserCreated = "user.created"
	TypeUserUpdated = "user.updated"
	TypeUserDeleted = "user.deleted"
)

// Event is one decoded identity webhook. The concrete type is one of
// UserCreated, UserUpdated, UserDeleted or Unhandled.
type Event interface {
	Type() string
	isEvent()
}

type UserCreated struct {
	Profile models.UserProfile
}

type UserUpdated struct {
	Profile models.UserProfile
	Role    models.Role
}

type UserDeleted struct {
	UserID string
}

type Unhandled struct {
	Kind string
}

func (UserCreated) Type() string { return TypeUserCreated }
func (UserUpdated) Type() string { return TypeUserUpdated }
func (UserDeleted) Type() string { return TypeUserDeleted }
func (e Unhandled) Type() string { return e.Kind }
func (UserCreated) isEvent() {}
func (UserUpdated) isEvent() {}
func (UserDeleted) isEvent() {}
func (Unhandled) isEvent() {}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type userData struct {
	ID             string  `json:"id"`
	Username       *string `json:"username"`
	FirstName      *string `json:"first_name"`
	LastName       *string `json:"last_name"`
	ImageURL       string  `json:"image_url"`
	EmailAddresses []struct {
		EmailAddress string `json:"email_address"`
	} `json:"email_addresses"`
	PhoneNumbers []struct {
		PhoneNumber string `json:"phone_number"`
	} `json:"phone_numbers"`
	LastSignInAt   *int64 `json:"last_sign_in_at"`
	CreatedAt      *int64 `json:"created_at"`
	UpdatedAt      *int64 `json:"updated_at"`
	PublicMetadata struct {
		Role string `json:"role"`
	} `json:"public_metadata"`
}

// Decode parses a verified payload. Event kinds outside the handled set
// decode to Unhandled without error.
func Decode(payload []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMissingData, err)
	}

	switch env.Type {
	case TypeUserCreated, TypeUserUpdated:
		var d userData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMissingData, err)
		}
		if d.ID == "" {
			return nil, fmt.Errorf("%w: user id", ErrMissingData)
		}
		if env.Type == TypeUserCreated {
			return UserCreated{Profile: d.profile()}, nil
		}
		return UserUpdated{Profile: d.profile(), Role: models.ParseRole(d.PublicMetadata.Role)}, nil

	case TypeUserDeleted:
		var d struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMissingData, err)
		}
		if d.ID == "" {
			return nil, fmt.Errorf("%w: user id", ErrMissingData)
		}
		return UserDeleted{UserID: d.ID}, nil

	default:
		return Unhandled{Kind: env.Type}, nil
	}
}

func (d userData) profile() models.UserProfile {
	p := models.UserProfile{
		ID:           d.ID,
		Username:     orDefault(d.Username, DefaultUsername),
		FirstName:    orDefault(d.FirstName, DefaultFirstName),
		LastName:     orDefault(d.LastName, DefaultLastName),
		ImageURL:     orDefault(&d.ImageURL, DefaultImageURL),
		EmailAddress: DefaultEmail,
		PhoneNumber:  DefaultPhoneNumber,
		LastSignInAt: millis(d.LastSignInAt),
		CreatedAt:    millis(d.CreatedAt),
		UpdatedAt:    millis(d.UpdatedAt),
	}
	if len(d.EmailAddresses) > 0 && d.EmailAddresses[0].EmailAddress != "" {
		p.EmailAddress = d.EmailAddresses[0].EmailAddress
	}
	if len(d.PhoneNumbers) > 0 && d.PhoneNumbers[0].PhoneNumber != "" {
		p.PhoneNumber = d.PhoneNumbers[0].PhoneNumber
	}
	return p
}

func orDefault(v *string, def string) string {
	if v == nil || *v == "" {
		return def
	}
	return *v
}

// millis converts the provider's epoch-millisecond timestamps. Zero is
// treated as absent.
func millis(v *int64) *time.Time {
	if v == nil || *v == 0 {
		return nil
	}
	t := time.UnixMilli(*v).UTC()
	return &t
}
