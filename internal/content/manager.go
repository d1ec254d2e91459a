package content

import (
	"context"
	"encoding/json"
	"fmt"

	"warden/internal/cache"
	"warden/internal/guard"
	"warden/internal/guard/models"
	"warden/internal/validation"
)

// Manager exposes the content operations. Every mutation goes through the
// guarded runner; reads go through the cache coordinator with entity tags so
// commits invalidate exactly the affected views.
// Store persists entries. Put must write through the transaction carried in
// ctx; implementations reject calls made outside one.
type Store interface {
	Get(ctx context.Context, id string) (Entry, error)
	Put(ctx context.Context, entry Entry) error
}

type Manager struct {
	runner *guard.Runner
	cache  *cache.Coordinator
	store  Store
}

// NewManager creates a content manager and registers its post-condition
// rules with the validation registry.
func NewManager(runner *guard.Runner, cacheCoord *cache.Coordinator, store Store, rules *validation.Registry) (*Manager, error) {
	if runner == nil {
		return nil, fmt.Errorf("guard runner is required")
	}
	if cacheCoord == nil {
		return nil, fmt.Errorf("cache coordinator is required")
	}
	if store == nil {
		return nil, fmt.Errorf("content store is required")
	}
	if rules == nil {
		return nil, fmt.Errorf("validation registry is required")
	}

	rules.Register(OpPublish,
		validation.RequireSuccess(),
		validation.RequireFields("content_id", "status", "version"),
	)
	rules.Register(OpUnpublish,
		validation.RequireSuccess(),
		validation.RequireFields("content_id", "status", "version"),
	)
	rules.Register(OpUpdate,
		validation.RequireSuccess(),
		validation.RequireFields("content_id", "version"),
	)

	return &Manager{runner: runner, cache: cacheCoord, store: store}, nil
}

// Publish transitions an entry to published.
func (m *Manager) Publish(ctx context.Context, sctx models.SecurityContext, id string) (models.OperationResult, error) {
	op := models.NewOperation(OpPublish, map[string]any{"content_id": id}).
		WithPermissions("content.publish").
		WithRateLimitKey(OpPublish).
		WithTags(cache.EntityTag(entityKind, id), cache.KindTag(entityKind))

	return m.runner.Execute(ctx, op, sctx, func(ctx context.Context) (models.OperationResult, error) {
		entry, err := m.store.Get(ctx, id)
		if err != nil {
			return models.OperationResult{}, fmt.Errorf("load content %s: %w", id, err)
		}

		entry.Status = StatusPublished
		entry.Version++
		if err := m.store.Put(ctx, entry); err != nil {
			return models.OperationResult{}, err
		}

		return models.OperationResult{
			Success: true,
			Data: map[string]any{
				"content_id": entry.ID,
				"status":     string(entry.Status),
				"version":    entry.Version,
			},
		}, nil
	})
}

// Unpublish returns an entry to draft.
func (m *Manager) Unpublish(ctx context.Context, sctx models.SecurityContext, id string) (models.OperationResult, error) {
	op := models.NewOperation(OpUnpublish, map[string]any{"content_id": id}).
		WithPermissions("content.publish").
		WithRateLimitKey(OpUnpublish).
		WithTags(cache.EntityTag(entityKind, id), cache.KindTag(entityKind))

	return m.runner.Execute(ctx, op, sctx, func(ctx context.Context) (models.OperationResult, error) {
		entry, err := m.store.Get(ctx, id)
		if err != nil {
			return models.OperationResult{}, fmt.Errorf("load content %s: %w", id, err)
		}

		entry.Status = StatusDraft
		entry.Version++
		if err := m.store.Put(ctx, entry); err != nil {
			return models.OperationResult{}, err
		}

		return models.OperationResult{
			Success: true,
			Data: map[string]any{
				"content_id": entry.ID,
				"status":     string(entry.Status),
				"version":    entry.Version,
			},
		}, nil
	})
}

// Update replaces an entry's title and body.
func (m *Manager) Update(ctx context.Context, sctx models.SecurityContext, id, title, body string) (models.OperationResult, error) {
	op := models.NewOperation(OpUpdate, map[string]any{
		"content_id": id,
		"title":      title,
	}).
		WithPermissions("content.update").
		WithRateLimitKey(OpUpdate).
		WithTags(cache.EntityTag(entityKind, id), cache.KindTag(entityKind))

	return m.runner.Execute(ctx, op, sctx, func(ctx context.Context) (models.OperationResult, error) {
		entry, err := m.store.Get(ctx, id)
		if err != nil {
			return models.OperationResult{}, fmt.Errorf("load content %s: %w", id, err)
		}

		entry.Title = title
		entry.Body = body
		entry.Version++
		if err := m.store.Put(ctx, entry); err != nil {
			return models.OperationResult{}, err
		}

		return models.OperationResult{
			Success: true,
			Data: map[string]any{
				"content_id": entry.ID,
				"version":    entry.Version,
			},
		}, nil
	})
}

// Get reads an entry through the cache. Cached copies carry the entity and
// kind tags, so any committed mutation of the entry drops them.
func (m *Manager) Get(ctx context.Context, id string) (Entry, error) {
	cacheKey := "content:" + id

	if raw, ok := m.cache.Get(ctx, cacheKey); ok {
		var entry Entry
		if err := json.Unmarshal(raw, &entry); err == nil {
			return entry, nil
		}
	}

	entry, err := m.store.Get(ctx, id)
	if err != nil {
		return Entry{}, err
	}

	if raw, err := json.Marshal(entry); err == nil {
		m.cache.Set(ctx, cacheKey, raw, cache.EntityTag(entityKind, id), cache.KindTag(entityKind))
	}
	return entry, nil
}
