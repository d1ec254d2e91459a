package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"warden/internal/platform/config"
)

type CoordinatorSuite struct {
	suite.Suite
	ctx     context.Context
	backend *MemoryBackend
	coord   *Coordinator
}

func (s *CoordinatorSuite) SetupTest() {
	s.ctx = context.Background()
	s.backend = NewMemoryBackend()

	coord, err := New(s.backend, config.Cache{TTL: time.Minute, OpTimeout: 100 * time.Millisecond})
	s.Require().NoError(err)
	s.coord = coord
}

func TestCoordinatorSuite(t *testing.T) {
	suite.Run(t, new(CoordinatorSuite))
}

func (s *CoordinatorSuite) TestConstructor() {
	s.Run("nil backend returns error", func() {
		_, err := New(nil, config.Cache{})
		s.Require().Error(err)
	})
}

func (s *CoordinatorSuite) TestReadWrite() {
	s.Run("set then get round-trips", func() {
		s.coord.Set(s.ctx, "k1", []byte("v1"), EntityTag("item", "a1"))

		value, ok := s.coord.Get(s.ctx, "k1")
		s.Require().True(ok)
		s.Equal([]byte("v1"), value)
	})

	s.Run("missing key is a miss", func() {
		_, ok := s.coord.Get(s.ctx, "absent")
		s.False(ok)
	})
}

func (s *CoordinatorSuite) TestTagInvalidation() {
	s.Run("entity tag drops only the tagged keys", func() {
		s.coord.Set(s.ctx, "item-a1", []byte("a"), EntityTag("item", "a1"), KindTag("item"))
		s.coord.Set(s.ctx, "item-b2", []byte("b"), EntityTag("item", "b2"), KindTag("item"))

		s.coord.InvalidateTags(s.ctx, EntityTag("item", "a1"))

		_, ok := s.coord.Get(s.ctx, "item-a1")
		s.False(ok)
		_, ok = s.coord.Get(s.ctx, "item-b2")
		s.True(ok)
	})

	s.Run("kind tag drops every entry of the kind", func() {
		s.coord.Set(s.ctx, "item-a1", []byte("a"), EntityTag("item", "a1"), KindTag("item"))
		s.coord.Set(s.ctx, "item-b2", []byte("b"), EntityTag("item", "b2"), KindTag("item"))
		s.coord.Set(s.ctx, "other", []byte("c"), EntityTag("other", "x"))

		s.coord.InvalidateTags(s.ctx, KindTag("item"))

		_, ok := s.coord.Get(s.ctx, "item-a1")
		s.False(ok)
		_, ok = s.coord.Get(s.ctx, "item-b2")
		s.False(ok)
		_, ok = s.coord.Get(s.ctx, "other")
		s.True(ok)
	})

	s.Run("no tags is a no-op", func() {
		s.coord.Set(s.ctx, "k1", []byte("v1"), EntityTag("item", "a1"))
		s.coord.InvalidateTags(s.ctx)

		_, ok := s.coord.Get(s.ctx, "k1")
		s.True(ok)
	})
}

func (s *CoordinatorSuite) TestExpiry() {
	s.Run("expired entries read as misses", func() {
		coord, err := New(s.backend, config.Cache{TTL: time.Nanosecond, OpTimeout: 100 * time.Millisecond})
		s.Require().NoError(err)

		coord.Set(s.ctx, "k1", []byte("v1"))
		time.Sleep(5 * time.Millisecond)

		_, ok := coord.Get(s.ctx, "k1")
		s.False(ok)
	})
}

type brokenBackend struct{}

func (brokenBackend) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("backend down")
}

func (brokenBackend) Set(context.Context, string, []byte, []Tag, time.Duration) error {
	return errors.New("backend down")
}

func (brokenBackend) InvalidateTags(context.Context, []Tag) error {
	return errors.New("backend down")
}

func (s *CoordinatorSuite) TestDegradedBackend() {
	s.Run("failures degrade to misses and no-ops", func() {
		coord, err := New(brokenBackend{}, config.Cache{TTL: time.Minute, OpTimeout: 100 * time.Millisecond})
		s.Require().NoError(err)

		_, ok := coord.Get(s.ctx, "k1")
		s.False(ok)

		// Neither call may panic or surface an error.
		coord.Set(s.ctx, "k1", []byte("v1"), EntityTag("item", "a1"))
		coord.InvalidateTags(s.ctx, EntityTag("item", "a1"))
	})
}
