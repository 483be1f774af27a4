package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/idtoken"
)

// ErrInvalidAssertion is returned when an identity token cannot be trusted.
var ErrInvalidAssertion = errors.New("invalid identity assertion")

// Assertion is the identity a provider vouches for.
type Assertion struct {
	Subject     string
	Email       string
	DisplayName string
	Phone       string
}

// Verifier checks a provider-issued token and returns the asserted identity.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (Assertion, error)
}

// PayloadValidator validates a raw ID token for an audience.
type PayloadValidator func(ctx context.Context, token, audience string) (*idtoken.Payload, error)

// GoogleVerifier verifies Google-issued ID tokens.
type GoogleVerifier struct {
	clientID string
	validate PayloadValidator
}

// NewGoogleVerifier constructs a verifier for tokens minted for clientID.
func NewGoogleVerifier(ctx context.Context, clientID string) (*GoogleVerifier, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return nil, errors.New("google client id is required")
	}
	validator, err := idtoken.NewValidator(ctx)
	if err != nil {
		return nil, fmt.Errorf("create google token validator: %w", err)
	}
	return NewGoogleVerifierWithValidator(clientID, validator.Validate), nil
}

// NewGoogleVerifierWithValidator constructs a verifier around a custom validation func.
func NewGoogleVerifierWithValidator(clientID string, validate PayloadValidator) *GoogleVerifier {
	return &GoogleVerifier{clientID: clientID, validate: validate}
}

// Verify validates rawToken and extracts the identity claims.
func (g *GoogleVerifier) Verify(ctx context.Context, rawToken string) (Assertion, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return Assertion{}, fmt.Errorf("%w: empty token", ErrInvalidAssertion)
	}

	payload, err := g.validate(ctx, rawToken, g.clientID)
	if err != nil {
		return Assertion{}, fmt.Errorf("%w: %v", ErrInvalidAssertion, err)
	}

	assertion := Assertion{
		Subject:     payload.Subject,
		Email:       claimString(payload.Claims, "email"),
		DisplayName: claimString(payload.Claims, "name"),
		Phone:       claimString(payload.Claims, "phone_number"),
	}
	if assertion.Subject == "" {
		assertion.Subject = claimString(payload.Claims, "sub")
	}
	if assertion.Subject == "" {
		return Assertion{}, fmt.Errorf("%w: missing subject", ErrInvalidAssertion)
	}
	if assertion.Email == "" {
		return Assertion{}, fmt.Errorf("%w: missing email", ErrInvalidAssertion)
	}
	if verified, ok := payload.Claims["email_verified"].(bool); ok && !verified {
		return Assertion{}, fmt.Errorf("%w: email not verified", ErrInvalidAssertion)
	}
	return assertion, nil
}

func claimString(claims map[string]any, key string) string {
	value, _ := claims[key].(string)
	return strings.TrimSpace(value)
}
