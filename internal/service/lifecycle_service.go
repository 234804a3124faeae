package service

import (
	"time"

	"github.com/deptconnect/deptconnect-api/internal/models"
)

// DefaultArchiveRetention is how long an archived resource lingers before
// the storage layer's expiry sweep may remove it.
const DefaultArchiveRetention = 180 * 24 * time.Hour

// LifecycleService drives the Active/Archived state machine shared by
// every archivable resource. It only mutates the in-memory triplet;
// callers persist the result with a single atomic update.
type LifecycleService struct {
	retention time.Duration
	now       func() time.Time
}

// NewLifecycleService constructs the manager with the given retention.
func NewLifecycleService(retention time.Duration) *LifecycleService {
	if retention <= 0 {
		retention = DefaultArchiveRetention
	}
	return &LifecycleService{retention: retention, now: time.Now}
}

// Archive transitions the resource to Archived and stamps the expiry
// deadline. Archiving an already-archived resource is a no-op success;
// the return value reports whether anything changed.
func (s *LifecycleService) Archive(lc *models.Lifecycle) bool {
	if lc.IsArchived {
		return false
	}
	archivedAt := s.now().UTC()
	expiresAt := archivedAt.Add(s.retention)
	lc.IsArchived = true
	lc.ArchivedAt = &archivedAt
	lc.ExpiresAt = &expiresAt
	return true
}

// Unarchive restores the resource and clears any pending expiry.
func (s *LifecycleService) Unarchive(lc *models.Lifecycle) bool {
	if !lc.IsArchived && lc.ArchivedAt == nil && lc.ExpiresAt == nil {
		return false
	}
	lc.IsArchived = false
	lc.ArchivedAt = nil
	lc.ExpiresAt = nil
	return true
}
