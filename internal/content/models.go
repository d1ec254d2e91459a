// Package content is the representative domain manager built on the guarded
// execution envelope. The original system had many near-identical managers;
// this one demonstrates the envelope contract they all share: operations
// declare permissions, rate limit keys and cache tags up front, and mutate
// state only through the transaction.
package content

import "time"

// Status is the publication state of an entry.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

// Entry is one content item.
type Entry struct {
	ID        string
	Title     string
	Body      string
	Status    Status
	Version   int
	UpdatedAt time.Time
}

// Kind of entity used in cache tags and operation kinds.
const entityKind = "content"

// Operation kinds emitted by this manager.
const (
	OpPublish   = "content.publish"
	OpUnpublish = "content.unpublish"
	OpUpdate    = "content.update"
)
