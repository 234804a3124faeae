package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/deptconnect/deptconnect-api/internal/models"
	appErrors "github.com/deptconnect/deptconnect-api/pkg/errors"
)

const previewLength = 300

type announcementRepository interface {
	List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error)
	GetByID(ctx context.Context, id string) (*models.Announcement, error)
	Create(ctx context.Context, announcement *models.Announcement) error
	Update(ctx context.Context, announcement *models.Announcement) error
	UpdateLifecycle(ctx context.Context, id string, lc models.Lifecycle) error
	Delete(ctx context.Context, id string) error
}

type cacheInvalidator interface {
	DeleteByPattern(ctx context.Context, pattern string) error
}

// AnnouncementService implements announcement use cases.
type AnnouncementService struct {
	repo      announcementRepository
	lifecycle *LifecycleService
	cache     cacheInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAnnouncementService constructs an AnnouncementService.
func NewAnnouncementService(repo announcementRepository, lifecycle *LifecycleService, cache cacheInvalidator, validate *validator.Validate, logger *zap.Logger) *AnnouncementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if lifecycle == nil {
		lifecycle = NewLifecycleService(0)
	}
	registerCategoryValidation(validate)
	return &AnnouncementService{repo: repo, lifecycle: lifecycle, cache: cache, validator: validate, logger: logger}
}

func registerCategoryValidation(v *validator.Validate) {
	_ = v.RegisterValidation("announcement_category", func(fl validator.FieldLevel) bool {
		switch models.AnnouncementCategory(fl.Field().String()) {
		case models.AnnouncementCategoryGeneral, models.AnnouncementCategoryAcademic,
			models.AnnouncementCategoryEvent, models.AnnouncementCategoryAlert,
			models.AnnouncementCategoryOther:
			return true
		}
		return false
	})
}

// List returns announcements matching the filter. Archived rows are
// excluded unless explicitly requested.
func (s *AnnouncementService) List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list announcements")
	}
	return items, total, nil
}

// Get returns a single announcement by id.
func (s *AnnouncementService) Get(ctx context.Context, id string) (*models.Announcement, error) {
	announcement, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch announcement")
	}
	return announcement, nil
}

// Create publishes a new announcement owned by the caller.
func (s *AnnouncementService) Create(ctx context.Context, principal models.Principal, req models.CreateAnnouncementRequest) (*models.Announcement, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid announcement payload")
	}

	announcement := &models.Announcement{
		Title:         req.Title,
		Body:          req.Body,
		Preview:       makePreview(req.Body),
		Category:      req.Category,
		AdmissionYear: req.AdmissionYear,
		ImageURL:      req.ImageURL,
		Attachments:   req.Attachments,
		CreatedBy:     principal.SubjectID,
	}
	if err := s.repo.Create(ctx, announcement); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create announcement")
	}
	s.invalidateCache(ctx)
	return announcement, nil
}

// Update applies partial edits to an existing announcement.
func (s *AnnouncementService) Update(ctx context.Context, id string, req models.UpdateAnnouncementRequest) (*models.Announcement, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid announcement payload")
	}

	announcement, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		announcement.Title = *req.Title
	}
	if req.Body != nil {
		announcement.Body = *req.Body
		announcement.Preview = makePreview(*req.Body)
	}
	if req.Category != nil {
		announcement.Category = *req.Category
	}
	if req.AdmissionYear != nil {
		announcement.AdmissionYear = req.AdmissionYear
	}
	if req.ImageURL != nil {
		announcement.ImageURL = req.ImageURL
	}
	if req.Attachments != nil {
		announcement.Attachments = req.Attachments
	}
	announcement.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, announcement); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update announcement")
	}
	s.invalidateCache(ctx)
	return announcement, nil
}

// Archive moves an announcement out of default listings and stamps its
// retention deadline. Archiving an already-archived announcement succeeds
// without touching the stored timestamps.
func (s *AnnouncementService) Archive(ctx context.Context, id string) (*models.Announcement, error) {
	return s.transition(ctx, id, s.lifecycle.Archive)
}

// Unarchive restores an archived announcement to active listings and
// clears its retention deadline.
func (s *AnnouncementService) Unarchive(ctx context.Context, id string) (*models.Announcement, error) {
	return s.transition(ctx, id, s.lifecycle.Unarchive)
}

func (s *AnnouncementService) transition(ctx context.Context, id string, apply func(*models.Lifecycle) bool) (*models.Announcement, error) {
	announcement, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !apply(&announcement.Lifecycle) {
		return announcement, nil
	}
	if err := s.repo.UpdateLifecycle(ctx, id, announcement.Lifecycle); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update announcement state")
	}
	s.invalidateCache(ctx)
	return announcement, nil
}

// Delete removes an announcement permanently.
func (s *AnnouncementService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete announcement")
	}
	s.invalidateCache(ctx)
	return nil
}

func (s *AnnouncementService) invalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "announcements:*"); err != nil {
		s.logger.Warn("failed to invalidate announcement cache", zap.Error(err))
	}
}

// makePreview truncates body text on a rune boundary for list views.
func makePreview(body string) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= previewLength {
		return body
	}
	return fmt.Sprintf("%s...", strings.TrimSpace(string(runes[:previewLength])))
}
