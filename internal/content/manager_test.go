package content

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"warden/internal/audit"
	"warden/internal/cache"
	"warden/internal/guard"
	"warden/internal/guard/models"
	"warden/internal/permission"
	"warden/internal/platform/config"
	"warden/internal/ratelimit"
	"warden/internal/txn"
	"warden/internal/validation"
	"warden/pkg/platform/sentinel"
)

type ManagerSuite struct {
	suite.Suite
	ctx        context.Context
	store      *MemoryStore
	manager    *Manager
	cacheCoord *cache.Coordinator
	auditStore *audit.InMemoryStore
	trail      *audit.Trail
	source     *permission.StaticSource
}

func (s *ManagerSuite) SetupTest() {
	s.ctx = context.Background()

	s.source = permission.NewStaticSource()
	s.source.Grant("editor", "content.publish", "content.update")

	gate, err := permission.New(s.source, config.Permission{CacheTTL: time.Minute})
	s.Require().NoError(err)

	limiter, err := ratelimit.New(ratelimit.NewInMemoryStore(), config.RateLimit{
		Window:      time.Minute,
		MaxAttempts: 100,
	})
	s.Require().NoError(err)

	rules := validation.NewRegistry()

	s.cacheCoord, err = cache.New(cache.NewMemoryBackend(), config.Cache{TTL: time.Minute, OpTimeout: 100 * time.Millisecond})
	s.Require().NoError(err)

	s.auditStore = audit.NewInMemoryStore()
	s.trail, err = audit.New(s.auditStore, config.Audit{
		BatchSize:     64,
		FlushInterval: time.Hour,
		WriteTimeout:  time.Second,
		BufferSize:    256,
	})
	s.Require().NoError(err)

	runner, err := guard.New(gate, limiter, rules, s.cacheCoord, s.trail, txn.NewMemoryBackend(), config.Txn{Timeout: time.Second})
	s.Require().NoError(err)

	s.store = NewMemoryStore()
	s.manager, err = NewManager(runner, s.cacheCoord, s.store, rules)
	s.Require().NoError(err)
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func (s *ManagerSuite) sctx(principal string) models.SecurityContext {
	return models.SecurityContext{
		PrincipalID: principal,
		IPAddress:   "203.0.113.7",
		RequestID:   "req-1",
	}
}

func (s *ManagerSuite) seedDraft(id string) {
	s.store.Seed(Entry{
		ID:      id,
		Title:   "Draft title",
		Body:    "Draft body",
		Status:  StatusDraft,
		Version: 1,
	})
}

func (s *ManagerSuite) TestPublish() {
	s.Run("publishes a draft", func() {
		s.seedDraft("a1")

		result, err := s.manager.Publish(s.ctx, s.sctx("editor"), "a1")
		s.Require().NoError(err)
		s.True(result.Success)
		s.Equal("published", result.Field("status"))
		s.Equal(2, result.Field("version"))

		entry, err := s.store.Get(s.ctx, "a1")
		s.Require().NoError(err)
		s.Equal(StatusPublished, entry.Status)
		s.Equal(2, entry.Version)
	})

	s.Run("requires the publish permission", func() {
		s.seedDraft("a2")

		_, err := s.manager.Publish(s.ctx, s.sctx("reader"), "a2")
		kind, ok := guard.KindOf(err)
		s.Require().True(ok)
		s.Equal(guard.KindAccessDenied, kind)

		entry, err := s.store.Get(s.ctx, "a2")
		s.Require().NoError(err)
		s.Equal(StatusDraft, entry.Status, "denied publish must not change state")
	})

	s.Run("missing entry rolls back without side effects", func() {
		_, err := s.manager.Publish(s.ctx, s.sctx("editor"), "ghost")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
		_, isEnvelope := guard.KindOf(err)
		s.False(isEnvelope)
	})

	s.Run("audits the outcome", func() {
		s.seedDraft("a3")

		_, err := s.manager.Publish(s.ctx, s.sctx("editor"), "a3")
		s.Require().NoError(err)

		s.Require().NoError(s.trail.Flush(s.ctx))
		records := s.auditStore.All()
		s.Require().NotEmpty(records)
		last := records[len(records)-1]
		s.Equal(OpPublish, last.Kind)
		s.Equal(models.OutcomeSuccess, last.Outcome)
		s.Equal("a3", last.ContextSnapshot["content_id"])
	})
}

func (s *ManagerSuite) TestUnpublish() {
	s.Run("returns a published entry to draft", func() {
		s.seedDraft("a1")

		_, err := s.manager.Publish(s.ctx, s.sctx("editor"), "a1")
		s.Require().NoError(err)

		result, err := s.manager.Unpublish(s.ctx, s.sctx("editor"), "a1")
		s.Require().NoError(err)
		s.True(result.Success)
		s.Equal("draft", result.Field("status"))
		s.Equal(3, result.Field("version"))

		entry, err := s.store.Get(s.ctx, "a1")
		s.Require().NoError(err)
		s.Equal(StatusDraft, entry.Status)
	})

	s.Run("requires the publish permission", func() {
		s.seedDraft("a2")

		_, err := s.manager.Unpublish(s.ctx, s.sctx("reader"), "a2")
		kind, ok := guard.KindOf(err)
		s.Require().True(ok)
		s.Equal(guard.KindAccessDenied, kind)
	})
}

func (s *ManagerSuite) TestUpdate() {
	s.Run("replaces title and body", func() {
		s.seedDraft("a1")

		result, err := s.manager.Update(s.ctx, s.sctx("editor"), "a1", "New title", "New body")
		s.Require().NoError(err)
		s.True(result.Success)

		entry, err := s.store.Get(s.ctx, "a1")
		s.Require().NoError(err)
		s.Equal("New title", entry.Title)
		s.Equal("New body", entry.Body)
		s.Equal(2, entry.Version)
	})

	s.Run("requires the update permission", func() {
		s.seedDraft("a2")

		_, err := s.manager.Update(s.ctx, s.sctx("reader"), "a2", "x", "y")
		kind, ok := guard.KindOf(err)
		s.Require().True(ok)
		s.Equal(guard.KindAccessDenied, kind)
	})
}

func (s *ManagerSuite) TestCachedReads() {
	s.Run("reads populate the cache", func() {
		s.seedDraft("a1")

		first, err := s.manager.Get(s.ctx, "a1")
		s.Require().NoError(err)

		// Mutate the store directly; the cached copy must still be served.
		s.store.Seed(Entry{ID: "a1", Title: "Changed behind the cache", Status: StatusDraft, Version: 9})

		second, err := s.manager.Get(s.ctx, "a1")
		s.Require().NoError(err)
		s.Equal(first.Title, second.Title)
	})

	s.Run("committed mutations invalidate cached reads", func() {
		s.seedDraft("a2")

		_, err := s.manager.Get(s.ctx, "a2")
		s.Require().NoError(err)

		_, err = s.manager.Publish(s.ctx, s.sctx("editor"), "a2")
		s.Require().NoError(err)

		fresh, err := s.manager.Get(s.ctx, "a2")
		s.Require().NoError(err)
		s.Equal(StatusPublished, fresh.Status)
	})

	s.Run("failed mutations leave cached reads intact", func() {
		s.seedDraft("a3")

		cached, err := s.manager.Get(s.ctx, "a3")
		s.Require().NoError(err)
		s.Equal(StatusDraft, cached.Status)

		_, err = s.manager.Publish(s.ctx, s.sctx("reader"), "a3")
		s.Require().Error(err)

		again, err := s.manager.Get(s.ctx, "a3")
		s.Require().NoError(err)
		s.Equal(StatusDraft, again.Status)
	})

	s.Run("unknown entry reports not found", func() {
		_, err := s.manager.Get(s.ctx, "ghost")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}
