package port

import (
	"context"

	"rolerag/internal/domain"
)

// Authenticator checks credentials and resolves the principal's role.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (domain.Principal, error)
}
