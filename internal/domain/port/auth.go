package port

import "context"

// AuthGateway resolves a user id to the owner's email address.
type AuthGateway interface {
	UserEmail(ctx context.Context, userID string) (string, error)
}
