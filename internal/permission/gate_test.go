package permission

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"warden/internal/platform/config"
)

type GateSuite struct {
	suite.Suite
	ctx    context.Context
	source *StaticSource
}

func (s *GateSuite) SetupTest() {
	s.ctx = context.Background()
	s.source = NewStaticSource()
}

func TestGateSuite(t *testing.T) {
	suite.Run(t, new(GateSuite))
}

func (s *GateSuite) newGate(opts ...Option) *Gate {
	gate, err := New(s.source, config.Permission{CacheTTL: time.Minute}, opts...)
	s.Require().NoError(err)
	return gate
}

func (s *GateSuite) TestConstructor() {
	s.Run("nil source returns error", func() {
		_, err := New(nil, config.Permission{})
		s.Require().Error(err)
	})
}

func (s *GateSuite) TestCheck() {
	s.Run("empty requirement always passes", func() {
		gate := s.newGate()
		s.True(gate.Check(s.ctx, "alice", nil))
		s.True(gate.Check(s.ctx, "", nil))
	})

	s.Run("anonymous principal holds nothing", func() {
		gate := s.newGate()
		s.False(gate.Check(s.ctx, "", []string{"content.publish"}))
	})

	s.Run("allows when all permissions are held", func() {
		s.source.Grant("alice", "content.publish", "content.update")
		gate := s.newGate()

		s.True(gate.Check(s.ctx, "alice", []string{"content.publish"}))
		s.True(gate.Check(s.ctx, "alice", []string{"content.publish", "content.update"}))
	})

	s.Run("denies when any permission is missing", func() {
		s.source.Grant("bob", "content.update")
		gate := s.newGate()

		s.False(gate.Check(s.ctx, "bob", []string{"content.publish"}))
		s.False(gate.Check(s.ctx, "bob", []string{"content.update", "content.publish"}))
	})

	s.Run("unknown principal is denied", func() {
		gate := s.newGate()
		s.False(gate.Check(s.ctx, "stranger", []string{"content.publish"}))
	})
}

type countingSource struct {
	inner Source
	calls atomic.Int64
}

func (c *countingSource) GetPermissions(ctx context.Context, principalID string) ([]string, error) {
	c.calls.Add(1)
	return c.inner.GetPermissions(ctx, principalID)
}

func (s *GateSuite) TestDecisionCache() {
	s.Run("repeated checks hit the cache", func() {
		s.source.Grant("alice", "content.publish")
		counting := &countingSource{inner: s.source}
		gate, err := New(counting, config.Permission{CacheTTL: time.Minute},
			WithCache(NewMemoryDecisionCache()),
		)
		s.Require().NoError(err)

		for i := 0; i < 5; i++ {
			s.True(gate.Check(s.ctx, "alice", []string{"content.publish"}))
		}
		s.Equal(int64(1), counting.calls.Load())
	})

	s.Run("permission order shares one cache entry", func() {
		s.source.Grant("alice", "a", "b")
		counting := &countingSource{inner: s.source}
		gate, err := New(counting, config.Permission{CacheTTL: time.Minute},
			WithCache(NewMemoryDecisionCache()),
		)
		s.Require().NoError(err)

		s.True(gate.Check(s.ctx, "alice", []string{"a", "b"}))
		s.True(gate.Check(s.ctx, "alice", []string{"b", "a"}))
		s.Equal(int64(1), counting.calls.Load())
	})

	s.Run("denials are cached too", func() {
		counting := &countingSource{inner: s.source}
		gate, err := New(counting, config.Permission{CacheTTL: time.Minute},
			WithCache(NewMemoryDecisionCache()),
		)
		s.Require().NoError(err)

		s.False(gate.Check(s.ctx, "mallory", []string{"content.publish"}))
		s.False(gate.Check(s.ctx, "mallory", []string{"content.publish"}))
		s.Equal(int64(1), counting.calls.Load())
	})
}

type unreachableSource struct{}

func (unreachableSource) GetPermissions(context.Context, string) ([]string, error) {
	return nil, errors.New("directory unreachable")
}

func (s *GateSuite) TestFailClosed() {
	s.Run("source outage denies", func() {
		gate, err := New(unreachableSource{}, config.Permission{CacheTTL: time.Minute})
		s.Require().NoError(err)

		s.False(gate.Check(s.ctx, "alice", []string{"content.publish"}))
	})

	s.Run("source outage with empty requirement still passes", func() {
		gate, err := New(unreachableSource{}, config.Permission{CacheTTL: time.Minute})
		s.Require().NoError(err)

		s.True(gate.Check(s.ctx, "alice", nil))
	})
}
