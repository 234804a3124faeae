package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/deptconnect/deptconnect-api/internal/models"
	appErrors "github.com/deptconnect/deptconnect-api/pkg/errors"
)

type assignmentRepository interface {
	List(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, int, error)
	GetByID(ctx context.Context, id string) (*models.Assignment, error)
	Create(ctx context.Context, assignment *models.Assignment) error
	Update(ctx context.Context, assignment *models.Assignment) error
	UpdateLifecycle(ctx context.Context, id string, lc models.Lifecycle) error
	Delete(ctx context.Context, id string) error
}

// AssignmentService implements assignment use cases.
type AssignmentService struct {
	repo      assignmentRepository
	lifecycle *LifecycleService
	cache     cacheInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAssignmentService constructs an AssignmentService.
func NewAssignmentService(repo assignmentRepository, lifecycle *LifecycleService, cache cacheInvalidator, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if lifecycle == nil {
		lifecycle = NewLifecycleService(0)
	}
	return &AssignmentService{repo: repo, lifecycle: lifecycle, cache: cache, validator: validate, logger: logger}
}

// List returns assignments matching the filter, archived rows excluded
// unless explicitly requested.
func (s *AssignmentService) List(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, int, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	return items, total, nil
}

// Get returns a single assignment by id.
func (s *AssignmentService) Get(ctx context.Context, id string) (*models.Assignment, error) {
	assignment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch assignment")
	}
	return assignment, nil
}

// Create publishes a new assignment owned by the caller.
func (s *AssignmentService) Create(ctx context.Context, principal models.Principal, req models.CreateAssignmentRequest) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	if !req.Deadline.After(time.Now()) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "deadline must be in the future")
	}

	assignment := &models.Assignment{
		Title:          req.Title,
		Description:    req.Description,
		Preview:        makePreview(req.Description),
		AdmissionYears: req.AdmissionYears,
		Deadline:       req.Deadline,
		MaxScore:       req.MaxScore,
		ImageURL:       req.ImageURL,
		Attachments:    req.Attachments,
		CreatedBy:      principal.SubjectID,
	}
	if err := s.repo.Create(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignment")
	}
	s.invalidateCache(ctx)
	return assignment, nil
}

// Update applies partial edits to an existing assignment.
func (s *AssignmentService) Update(ctx context.Context, id string, req models.UpdateAssignmentRequest) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}

	assignment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		assignment.Title = *req.Title
	}
	if req.Description != nil {
		assignment.Description = *req.Description
		assignment.Preview = makePreview(*req.Description)
	}
	if req.AdmissionYears != nil {
		assignment.AdmissionYears = req.AdmissionYears
	}
	if req.Deadline != nil {
		assignment.Deadline = *req.Deadline
	}
	if req.MaxScore != nil {
		assignment.MaxScore = req.MaxScore
	}
	if req.ImageURL != nil {
		assignment.ImageURL = req.ImageURL
	}
	if req.Attachments != nil {
		assignment.Attachments = req.Attachments
	}
	assignment.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update assignment")
	}
	s.invalidateCache(ctx)
	return assignment, nil
}

// Archive moves an assignment out of default listings and stamps its
// retention deadline. No-op success when already archived.
func (s *AssignmentService) Archive(ctx context.Context, id string) (*models.Assignment, error) {
	return s.transition(ctx, id, s.lifecycle.Archive)
}

// Unarchive restores an archived assignment and clears its retention
// deadline.
func (s *AssignmentService) Unarchive(ctx context.Context, id string) (*models.Assignment, error) {
	return s.transition(ctx, id, s.lifecycle.Unarchive)
}

func (s *AssignmentService) transition(ctx context.Context, id string, apply func(*models.Lifecycle) bool) (*models.Assignment, error) {
	assignment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !apply(&assignment.Lifecycle) {
		return assignment, nil
	}
	if err := s.repo.UpdateLifecycle(ctx, id, assignment.Lifecycle); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update assignment state")
	}
	s.invalidateCache(ctx)
	return assignment, nil
}

// Delete removes an assignment permanently.
func (s *AssignmentService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete assignment")
	}
	s.invalidateCache(ctx)
	return nil
}

func (s *AssignmentService) invalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "assignments:*"); err != nil {
		s.logger.Warn("failed to invalidate assignment cache", zap.Error(err))
	}
}
