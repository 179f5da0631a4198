package auth

// TokenParser verifies bearer tokens. Middleware depends on this so handlers
// can be tested without signing real tokens.
type TokenParser interface {
	Parse(tokenString string) (*Claims, error)
}

var _ TokenParser = (*TokenService)(nil)
