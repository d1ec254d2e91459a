package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"warden/internal/guard/models"
	"warden/internal/platform/config"
)

type TrailSuite struct {
	suite.Suite
	ctx   context.Context
	store *InMemoryStore
	trail *Trail
}

func (s *TrailSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewInMemoryStore()

	trail, err := New(s.store, config.Audit{
		BatchSize:     8,
		FlushInterval: time.Hour, // flushed explicitly in tests
		WriteTimeout:  time.Second,
		BufferSize:    32,
	})
	s.Require().NoError(err)
	s.trail = trail
}

func TestTrailSuite(t *testing.T) {
	suite.Run(t, new(TrailSuite))
}

func (s *TrailSuite) newOperation() models.Operation {
	return models.NewOperation("content.publish", map[string]any{"content_id": "a1"})
}

func (s *TrailSuite) sctx() models.SecurityContext {
	return models.SecurityContext{
		PrincipalID: "alice",
		IPAddress:   "203.0.113.7",
		RequestID:   "req-1",
	}
}

func (s *TrailSuite) TestConstructor() {
	s.Run("nil store returns error", func() {
		_, err := New(nil, config.Audit{})
		s.Require().Error(err)
	})
}

func (s *TrailSuite) TestOutcomes() {
	s.Run("success record reaches the store on flush", func() {
		record := s.trail.Begin(s.newOperation(), s.sctx())
		s.trail.Success(s.ctx, record)

		s.Require().NoError(s.trail.Flush(s.ctx))

		stored := s.store.All()
		s.Require().Len(stored, 1)
		s.Equal(models.OutcomeSuccess, stored[0].Outcome)
		s.Equal("content.publish", stored[0].Kind)
		s.Equal("alice", stored[0].PrincipalID)
		s.Equal("req-1", stored[0].RequestID)
	})

	s.Run("failure record carries the reason", func() {
		s.store.Clear()
		record := s.trail.Begin(s.newOperation(), s.sctx())
		s.trail.Failure(s.ctx, record, "access_denied")

		s.Require().NoError(s.trail.Flush(s.ctx))

		stored := s.store.All()
		s.Require().Len(stored, 1)
		s.Equal(models.OutcomeFailure, stored[0].Outcome)
		s.Equal("access_denied", stored[0].Reason)
	})

	s.Run("nothing reaches the store before finalization", func() {
		s.store.Clear()
		_ = s.trail.Begin(s.newOperation(), s.sctx())

		s.Require().NoError(s.trail.Flush(s.ctx))
		s.Empty(s.store.All())
	})
}

func (s *TrailSuite) TestExactlyOnce() {
	s.Run("second finalization is ignored", func() {
		record := s.trail.Begin(s.newOperation(), s.sctx())
		s.trail.Success(s.ctx, record)
		s.trail.Failure(s.ctx, record, "late failure")

		s.Require().NoError(s.trail.Flush(s.ctx))

		stored := s.store.All()
		s.Require().Len(stored, 1)
		s.Equal(models.OutcomeSuccess, stored[0].Outcome)
		s.Empty(stored[0].Reason)
	})

	s.Run("finalized is observable", func() {
		record := s.trail.Begin(s.newOperation(), s.sctx())
		s.False(record.Finalized())

		s.trail.Failure(s.ctx, record, "x")
		s.True(record.Finalized())
	})
}

func (s *TrailSuite) TestRedaction() {
	s.Run("payload secrets never reach the store", func() {
		op := models.NewOperation("content.publish", map[string]any{
			"content_id": "a1",
			"api_token":  "very-secret",
		})
		record := s.trail.Begin(op, s.sctx())
		s.trail.Success(s.ctx, record)

		s.Require().NoError(s.trail.Flush(s.ctx))

		stored := s.store.All()
		s.Require().Len(stored, 1)
		s.Equal("[REDACTED]", stored[0].ContextSnapshot["api_token"])
		s.Equal("a1", stored[0].ContextSnapshot["content_id"])
	})

	s.Run("extra context fields are prefixed and redacted", func() {
		s.store.Clear()
		sctx := s.sctx()
		sctx.Extra = map[string]string{
			"session":    "sess-1",
			"auth_token": "secret",
		}
		record := s.trail.Begin(s.newOperation(), sctx)
		s.trail.Success(s.ctx, record)

		s.Require().NoError(s.trail.Flush(s.ctx))

		stored := s.store.All()
		s.Require().Len(stored, 1)
		s.Equal("sess-1", stored[0].ContextSnapshot["ctx.session"])
		s.Equal("[REDACTED]", stored[0].ContextSnapshot["ctx.auth_token"])
	})
}

type rejectingStore struct {
	failures int
}

func (r *rejectingStore) Append(context.Context, Record) error {
	r.failures++
	return errors.New("sink unavailable")
}

func (s *TrailSuite) TestEscalation() {
	s.Run("unpersistable records escalate instead of erroring the operation", func() {
		sink := &rejectingStore{}
		var escalated []Record
		trail, err := New(sink, config.Audit{BatchSize: 8, FlushInterval: time.Hour, WriteTimeout: time.Second, BufferSize: 32},
			WithEscalator(func(_ context.Context, record Record, _ error) {
				escalated = append(escalated, record)
			}),
		)
		s.Require().NoError(err)

		record := trail.Begin(s.newOperation(), s.sctx())
		trail.Success(s.ctx, record)

		s.Require().Error(trail.Flush(s.ctx))
		s.Require().Len(escalated, 1)
		s.Equal(record.ID, escalated[0].ID)
	})
}

func (s *TrailSuite) TestBatching() {
	s.Run("reaching the batch size kicks the background flusher", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = s.trail.Run(ctx)
		}()

		for i := 0; i < 8; i++ {
			record := s.trail.Begin(s.newOperation(), s.sctx())
			s.trail.Success(s.ctx, record)
		}

		s.Eventually(func() bool {
			return len(s.store.All()) == 8
		}, 2*time.Second, 10*time.Millisecond)

		cancel()
		<-done
	})

	s.Run("shutdown flushes the tail", func() {
		store := NewInMemoryStore()
		trail, err := New(store, config.Audit{BatchSize: 8, FlushInterval: time.Hour, WriteTimeout: time.Second, BufferSize: 32})
		s.Require().NoError(err)

		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = trail.Run(ctx)
		}()

		record := trail.Begin(s.newOperation(), s.sctx())
		trail.Success(s.ctx, record)

		cancel()
		<-done

		s.Len(store.All(), 1)
	})
}

func (s *TrailSuite) TestOverflow() {
	s.Run("oldest records drop when the buffer is full", func() {
		trail, err := New(s.store, config.Audit{BatchSize: 64, FlushInterval: time.Hour, WriteTimeout: time.Second, BufferSize: 4})
		s.Require().NoError(err)

		for i := 0; i < 6; i++ {
			record := trail.Begin(s.newOperation(), s.sctx())
			trail.Success(s.ctx, record)
		}

		s.Require().NoError(trail.Flush(s.ctx))
		s.Len(s.store.All(), 4)
	})
}
