package models

import "time"

// ResourceType names an ownable resource kind for the authorization guard.
// The set is closed; the guard's registry is built from it at startup.
type ResourceType string

const (
	ResourceAnnouncement ResourceType = "announcement"
	ResourceAssignment   ResourceType = "assignment"
)

// Lifecycle is the archive triplet embedded in every archivable resource.
//
// Invariant: IsArchived false implies ArchivedAt and ExpiresAt are nil.
// IsArchived true implies ArchivedAt is set; ExpiresAt stays optional
// (absent means archived forever).
type Lifecycle struct {
	IsArchived bool       `db:"is_archived" json:"is_archived"`
	ArchivedAt *time.Time `db:"archived_at" json:"archived_at,omitempty"`
	ExpiresAt  *time.Time `db:"expires_at" json:"expires_at,omitempty"`
}
