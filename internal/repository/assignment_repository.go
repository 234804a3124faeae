package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/deptconnect/deptconnect-api/internal/models"
)

const assignmentColumns = `id, title, description, preview, attachments, image_url, admission_years, deadline, max_score, created_by, is_archived, archived_at, expires_at, created_at, updated_at`

// AssignmentRepository provides persistence for assignments.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository creates the repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// List returns assignments matching the filter with a total count.
func (r *AssignmentRepository) List(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, int, error) {
	base := "FROM assignments"
	where := []string{"(expires_at IS NULL OR expires_at > NOW())"}
	args := []interface{}{}

	if !filter.IncludeArchived {
		where = append(where, "is_archived = FALSE")
	}
	if filter.CreatedBy != "" {
		where = append(where, fmt.Sprintf("created_by = $%d", len(args)+1))
		args = append(args, filter.CreatedBy)
	}
	if filter.AdmissionYear != "" {
		where = append(where, fmt.Sprintf("$%d = ANY(admission_years)", len(args)+1))
		args = append(args, filter.AdmissionYear)
	}
	if filter.DueAfter != nil {
		where = append(where, fmt.Sprintf("deadline >= $%d", len(args)+1))
		args = append(args, *filter.DueAfter)
	}
	whereClause := strings.Join(where, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s %s WHERE %s ORDER BY deadline ASC LIMIT %d OFFSET %d`,
		assignmentColumns, base, whereClause, size, offset)
	var assignments []models.Assignment
	if err := r.db.SelectContext(ctx, &assignments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list assignments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count assignments: %w", err)
	}
	return assignments, total, nil
}

// GetByID returns an assignment by identifier.
func (r *AssignmentRepository) GetByID(ctx context.Context, id string) (*models.Assignment, error) {
	query := fmt.Sprintf(`SELECT %s FROM assignments WHERE id = $1`, assignmentColumns)
	var assignment models.Assignment
	if err := r.db.GetContext(ctx, &assignment, query, id); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// FindOwner returns the creator of an assignment for ownership checks.
func (r *AssignmentRepository) FindOwner(ctx context.Context, id string) (string, error) {
	var owner string
	if err := r.db.GetContext(ctx, &owner, `SELECT created_by FROM assignments WHERE id = $1`, id); err != nil {
		return "", err
	}
	return owner, nil
}

// Create inserts a new assignment.
func (r *AssignmentRepository) Create(ctx context.Context, assignment *models.Assignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = now
	}
	assignment.UpdatedAt = now
	query := `INSERT INTO assignments (id, title, description, preview, attachments, image_url, admission_years, deadline, max_score, created_by, is_archived, archived_at, expires_at, created_at, updated_at)
VALUES (:id, :title, :description, :preview, :attachments, :image_url, :admission_years, :deadline, :max_score, :created_by, :is_archived, :archived_at, :expires_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

// Update modifies an existing assignment's content fields.
func (r *AssignmentRepository) Update(ctx context.Context, assignment *models.Assignment) error {
	assignment.UpdatedAt = time.Now().UTC()
	query := `UPDATE assignments SET title = :title, description = :description, preview = :preview, attachments = :attachments,
image_url = :image_url, admission_years = :admission_years, deadline = :deadline, max_score = :max_score, updated_at = :updated_at
WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("update assignment: %w", err)
	}
	return nil
}

// UpdateLifecycle persists the archive triplet in one atomic write.
func (r *AssignmentRepository) UpdateLifecycle(ctx context.Context, id string, lc models.Lifecycle) error {
	const query = `UPDATE assignments SET is_archived = $2, archived_at = $3, expires_at = $4, updated_at = $5 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, lc.IsArchived, lc.ArchivedAt, lc.ExpiresAt, time.Now().UTC()); err != nil {
		return fmt.Errorf("update assignment lifecycle: %w", err)
	}
	return nil
}

// Delete removes an assignment. Returns sql.ErrNoRows when the id does
// not exist.
func (r *AssignmentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM assignments WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
