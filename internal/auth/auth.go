// Package auth verifies caller identity assertions. Production uses Firebase
// ID tokens carried in the Authorization header's Bearer slot.
package auth

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
)

// Verifier checks an identity assertion and returns the caller's uid.
type Verifier interface {
	Verify(ctx context.Context, idToken string) (uid string, err error)
}

// FirebaseVerifier validates Firebase ID tokens.
type FirebaseVerifier struct {
	client *firebaseauth.Client
}

// NewFirebaseVerifier creates a verifier from an initialized Firebase app.
func NewFirebaseVerifier(ctx context.Context, app *firebase.App) (*FirebaseVerifier, error) {
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth client: %w", err)
	}
	return &FirebaseVerifier{client: client}, nil
}

// Verify validates the token signature and expiry and returns the uid.
// The token itself is never logged.
func (v *FirebaseVerifier) Verify(ctx context.Context, idToken string) (string, error) {
	if idToken == "" {
		return "", fmt.Errorf("missing identity token")
	}
	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return "", fmt.Errorf("verify identity token: %w", err)
	}
	return token.UID, nil
}

// Static is a fixed-uid verifier for the admin CLI and tests. It never
// guards network-facing surfaces.
type Static string

func (s Static) Verify(ctx context.Context, idToken string) (string, error) {
	return string(s), nil
}
