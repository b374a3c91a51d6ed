package auth

import (
	"context"
	"strings"
)

type emailKey struct{}

// WithEmail returns a context carrying the authenticated email. The email is
// trusted as resolved by the authentication provider.
func WithEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, emailKey{}, NormalizeEmail(email))
}

// EmailFromContext returns the authenticated email, if any.
func EmailFromContext(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(emailKey{}).(string)
	return email, ok && email != ""
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
