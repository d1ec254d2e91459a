// Package models defines the value types exchanged with the guarded
// operation runner. All of them are immutable once constructed; build
// Operations through NewOperation so every attempt gets a fresh ID.
package models

import (
	"context"

	"github.com/google/uuid"

	"warden/internal/cache"
)

// Operation describes one state-changing attempt. A domain manager builds one
// per call and discards it after execution.
type Operation struct {
	ID                  uuid.UUID
	Kind                string
	Payload             map[string]any
	RequiredPermissions []string
	RateLimitKey        string
	// InvalidateTags lists the cache tags to drop after a successful commit.
	InvalidateTags []cache.Tag
	// AllowAnonymous permits execution without a resolved principal.
	// Operations requiring permissions never match anonymous contexts.
	AllowAnonymous bool
}

// NewOperation constructs an operation with a fresh ID.
func NewOperation(kind string, payload map[string]any) Operation {
	return Operation{
		ID:      uuid.New(),
		Kind:    kind,
		Payload: payload,
	}
}

// WithPermissions returns a copy requiring the given permissions.
func (o Operation) WithPermissions(perms ...string) Operation {
	o.RequiredPermissions = perms
	return o
}

// WithRateLimitKey returns a copy subject to rate limiting under key.
func (o Operation) WithRateLimitKey(key string) Operation {
	o.RateLimitKey = key
	return o
}

// WithTags returns a copy that invalidates the given cache tags on commit.
func (o Operation) WithTags(tags ...cache.Tag) Operation {
	o.InvalidateTags = tags
	return o
}

// WithAnonymousAllowed returns a copy that may run without a principal.
func (o Operation) WithAnonymousAllowed() Operation {
	o.AllowAnonymous = true
	return o
}

// SecurityContext captures who is asking and from where. Created per inbound
// request; never persisted beyond the audit record snapshot.
type SecurityContext struct {
	PrincipalID string // empty means anonymous
	IPAddress   string
	UserAgent   string
	RequestID   string
	Extra       map[string]string
}

// Anonymous reports whether no principal was resolved for this context.
func (c SecurityContext) Anonymous() bool {
	return c.PrincipalID == ""
}

// ErrorDetail is one business-level problem reported by an operation body.
type ErrorDetail struct {
	Field   string
	Message string
}

// OperationResult is produced by the wrapped operation body and validated
// before being returned to the caller.
type OperationResult struct {
	Success bool
	Data    map[string]any
	Errors  []ErrorDetail
}

// Field returns the named data field, or nil when absent.
func (r OperationResult) Field(name string) any {
	if r.Data == nil {
		return nil
	}
	return r.Data[name]
}

// Outcome is the terminal state of an audit record.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Body is the wrapped domain callback. The context carries the active
// transaction; all writes must go through it.
type Body func(ctx context.Context) (OperationResult, error)
