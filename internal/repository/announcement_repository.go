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

const announcementColumns = `id, title, body, preview, category, admission_year, image_url, attachments, created_by, is_archived, archived_at, expires_at, created_at, updated_at`

// AnnouncementRepository provides persistence for announcements.
type AnnouncementRepository struct {
	db *sqlx.DB
}

// NewAnnouncementRepository creates the repository.
func NewAnnouncementRepository(db *sqlx.DB) *AnnouncementRepository {
	return &AnnouncementRepository{db: db}
}

// List returns announcements matching the filter with a total count.
func (r *AnnouncementRepository) List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error) {
	base := "FROM announcements"
	where := []string{"(expires_at IS NULL OR expires_at > NOW())"}
	args := []interface{}{}

	if !filter.IncludeArchived {
		where = append(where, "is_archived = FALSE")
	}
	if filter.Title != "" {
		where = append(where, fmt.Sprintf("title ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Title+"%")
	}
	if filter.CreatedBy != "" {
		where = append(where, fmt.Sprintf("created_by = $%d", len(args)+1))
		args = append(args, filter.CreatedBy)
	}
	if filter.Category != "" {
		where = append(where, fmt.Sprintf("category = $%d", len(args)+1))
		args = append(args, filter.Category)
	}
	if filter.AdmissionYear != nil {
		where = append(where, fmt.Sprintf("admission_year = $%d", len(args)+1))
		args = append(args, *filter.AdmissionYear)
	}
	if filter.TimelineDays > 0 {
		where = append(where, fmt.Sprintf("created_at >= NOW() - ($%d || ' days')::interval", len(args)+1))
		args = append(args, filter.TimelineDays)
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

	query := fmt.Sprintf(`SELECT %s %s WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		announcementColumns, base, whereClause, size, offset)
	var announcements []models.Announcement
	if err := r.db.SelectContext(ctx, &announcements, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list announcements: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count announcements: %w", err)
	}
	return announcements, total, nil
}

// GetByID returns an announcement by identifier.
func (r *AnnouncementRepository) GetByID(ctx context.Context, id string) (*models.Announcement, error) {
	query := fmt.Sprintf(`SELECT %s FROM announcements WHERE id = $1`, announcementColumns)
	var announcement models.Announcement
	if err := r.db.GetContext(ctx, &announcement, query, id); err != nil {
		return nil, err
	}
	return &announcement, nil
}

// FindOwner returns the creator of an announcement for ownership checks.
func (r *AnnouncementRepository) FindOwner(ctx context.Context, id string) (string, error) {
	var owner string
	if err := r.db.GetContext(ctx, &owner, `SELECT created_by FROM announcements WHERE id = $1`, id); err != nil {
		return "", err
	}
	return owner, nil
}

// Create inserts a new announcement.
func (r *AnnouncementRepository) Create(ctx context.Context, announcement *models.Announcement) error {
	if announcement.ID == "" {
		announcement.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if announcement.CreatedAt.IsZero() {
		announcement.CreatedAt = now
	}
	announcement.UpdatedAt = now
	query := `INSERT INTO announcements (id, title, body, preview, category, admission_year, image_url, attachments, created_by, is_archived, archived_at, expires_at, created_at, updated_at)
VALUES (:id, :title, :body, :preview, :category, :admission_year, :image_url, :attachments, :created_by, :is_archived, :archived_at, :expires_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, announcement); err != nil {
		return fmt.Errorf("create announcement: %w", err)
	}
	return nil
}

// Update modifies an existing announcement's content fields.
func (r *AnnouncementRepository) Update(ctx context.Context, announcement *models.Announcement) error {
	announcement.UpdatedAt = time.Now().UTC()
	query := `UPDATE announcements SET title = :title, body = :body, preview = :preview, category = :category,
admission_year = :admission_year, image_url = :image_url, attachments = :attachments, updated_at = :updated_at
WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, announcement); err != nil {
		return fmt.Errorf("update announcement: %w", err)
	}
	return nil
}

// UpdateLifecycle persists the archive triplet in one atomic write.
func (r *AnnouncementRepository) UpdateLifecycle(ctx context.Context, id string, lc models.Lifecycle) error {
	const query = `UPDATE announcements SET is_archived = $2, archived_at = $3, expires_at = $4, updated_at = $5 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, lc.IsArchived, lc.ArchivedAt, lc.ExpiresAt, time.Now().UTC()); err != nil {
		return fmt.Errorf("update announcement lifecycle: %w", err)
	}
	return nil
}

// Delete removes an announcement. Returns sql.ErrNoRows when the id does
// not exist.
func (r *AnnouncementRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM announcements WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete announcement: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
