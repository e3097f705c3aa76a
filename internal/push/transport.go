package push

import (
	"context"
	"errors"

	"github.com/nhle/carfeed/internal/auth"
)

// ErrUnauthorized is returned by Subscribe when the join handshake rejects
// the credentials.
var ErrUnauthorized = errors.New("push subscription unauthorized")

// Credentials scope a subscription to one user.
type Credentials struct {
	UserID string
	Token  string
}

// Subscription is one live push stream. Messages is closed when the stream
// ends, whether by Close or by the transport dropping it.
type Subscription interface {
	Messages() <-chan Envelope
	Close() error
}

// Transport opens push subscriptions.
type Transport interface {
	Subscribe(ctx context.Context, creds Credentials) (Subscription, error)
}

// Publisher delivers envelopes to the subscribers of env.UserID.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// Authenticator performs the join handshake for a subscription.
type Authenticator func(creds Credentials) error

// JWTAuthenticator accepts credentials whose bearer token was issued to the
// subscribing user.
func JWTAuthenticator(secret string) Authenticator {
	return func(creds Credentials) error {
		if creds.UserID == "" {
			return ErrUnauthorized
		}
		if err := auth.VerifyUser(secret, creds.Token, creds.UserID); err != nil {
			return errors.Join(ErrUnauthorized, err)
		}
		return nil
	}
}

// allowAll is the handshake used when no Authenticator is configured.
func allowAll(creds Credentials) error {
	if creds.UserID == "" {
		return ErrUnauthorized
	}
	return nil
}
