package permission

import (
	"context"
	"sync"
)

// StaticSource holds permission grants in memory. Used in tests and in
// deployments without a Postgres-backed principal directory.
type StaticSource struct {
	mu     sync.RWMutex
	grants map[string][]string
}

// NewStaticSource creates an empty in-memory permission source.
func NewStaticSource() *StaticSource {
	return &StaticSource{grants: make(map[string][]string)}
}

// Grant adds permissions to a principal.
func (s *StaticSource) Grant(principalID string, perms ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[principalID] = append(s.grants[principalID], perms...)
}

// Revoke removes all grants for a principal.
func (s *StaticSource) Revoke(principalID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grants, principalID)
}

// GetPermissions returns the principal's granted permissions. Unknown
// principals hold no permissions.
func (s *StaticSource) GetPermissions(_ context.Context, principalID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	held := s.grants[principalID]
	out := make([]string, len(held))
	copy(out, held)
	return out, nil
}
