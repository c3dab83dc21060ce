// Package identity keeps the local users table in step with the identity
// provider through its signed webhooks, and pushes admin changes back.
package identity

import (
	"errors"
	"fmt"
	"net/http"

	svix "github.com/svix/svix-webhooks/go"
)

var (
	ErrMissingHeaders   = errors.New("missing webhook signature headers")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMissingData      = errors.New("webhook payload missing required data")
)

var signatureHeaders = []string{"svix-id", "svix-timestamp", "svix-signature"}

// Verifier authenticates a raw webhook body against its delivery headers.
type Verifier interface {
	Verify(payload []byte, h http.Header) error
}

// SvixVerifier checks svix-id, svix-timestamp and svix-signature headers.
type SvixVerifier struct {
	wh *svix.Webhook
}

// NewSvixVerifier takes the endpoint secret in its whsec_ form.
func NewSvixVerifier(secret string) (*SvixVerifier, error) {
	wh, err := svix.NewWebhook(secret)
	if err != nil {
		return nil, fmt.Errorf("init webhook verifier: %w", err)
	}
	return &SvixVerifier{wh: wh}, nil
}

func (v *SvixVerifier) Verify(payload []byte, h http.Header) error {
	for _, name := range signatureHeaders {
		if h.Get(name) == "" {
			return ErrMissingHeaders
		}
	}
	if err := v.wh.Verify(payload, h); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	return nil
}
