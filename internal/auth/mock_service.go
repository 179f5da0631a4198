package auth

import (
	"sync"
)

// MockTokenParser is a TokenParser for tests. Tokens map directly to claims.
type MockTokenParser struct {
	mu     sync.Mutex
	tokens map[string]*Claims
	Calls  []string
}

// NewMockTokenParser creates a mock with no known tokens
func NewMockTokenParser() *MockTokenParser {
	return &MockTokenParser{tokens: make(map[string]*Claims)}
}

// Add registers token as belonging to userID with role
func (m *MockTokenParser) Add(token, userID, role string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token] = &Claims{UserID: userID, Role: role}
}

func (m *MockTokenParser) Parse(tokenString string) (*Claims, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, tokenString)
	if c, ok := m.tokens[tokenString]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, ErrInvalidToken
}
