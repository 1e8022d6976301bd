package identity

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// roleClaim is the custom claim set on Firebase users at onboarding.
const roleClaim = "role"

// FirebaseVerifier validates Firebase ID tokens
type FirebaseVerifier struct {
	client *auth.Client
}

// NewFirebaseVerifier initialises the Admin SDK. credentialsFile may be empty to
// use application default credentials.
func NewFirebaseVerifier(ctx context.Context, projectID, credentialsFile string) (*FirebaseVerifier, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialising firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialising firebase auth: %w", err)
	}
	return &FirebaseVerifier{client: client}, nil
}

// Verify implements Verifier
func (v *FirebaseVerifier) Verify(ctx context.Context, idToken string) (*Principal, error) {
	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return principalFromClaims(token.UID, token.Claims)
}

func principalFromClaims(uid string, claims map[string]interface{}) (*Principal, error) {
	raw, _ := claims[roleClaim].(string)
	role, err := parseRole(raw)
	if err != nil {
		return nil, err
	}
	email, _ := claims["email"].(string)
	return &Principal{UserID: uid, Role: role, Email: email}, nil
}
