package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deptconnect/deptconnect-api/internal/models"
)

func announcementRows(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "title", "body", "preview", "category", "admission_year", "image_url", "attachments", "created_by", "is_archived", "archived_at", "expires_at", "created_at", "updated_at"}).
		AddRow("a1", "Exam timetable", "The timetable is out.", "The timetable is out.", string(models.AnnouncementCategoryAcademic), nil, nil, []byte(`[]`), "u1", false, nil, nil, now, now)
}

func TestListAnnouncementsExcludesArchived(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnnouncementRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM announcements WHERE \\(expires_at IS NULL OR expires_at > NOW\\(\\)\\) AND is_archived = FALSE ORDER BY created_at DESC LIMIT 20 OFFSET 0").
		WillReturnRows(announcementRows(time.Now()))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM announcements WHERE \\(expires_at IS NULL OR expires_at > NOW\\(\\)\\) AND is_archived = FALSE").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	rows, total, err := repo.List(context.Background(), models.AnnouncementFilter{})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAnnouncementByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnnouncementRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM announcements WHERE id = \\$1").
		WithArgs("a1").
		WillReturnRows(announcementRows(time.Now()))

	announcement, err := repo.GetByID(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "Exam timetable", announcement.Title)
	assert.False(t, announcement.IsArchived)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindAnnouncementOwner(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnnouncementRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT created_by FROM announcements WHERE id = $1")).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows([]string{"created_by"}).AddRow("u1"))

	owner, err := repo.FindOwner(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "u1", owner)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAnnouncementLifecycle(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnnouncementRepository(db)

	archivedAt := time.Now().UTC()
	expiresAt := archivedAt.Add(180 * 24 * time.Hour)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE announcements SET is_archived = $2, archived_at = $3, expires_at = $4, updated_at = $5 WHERE id = $1")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateLifecycle(context.Background(), "a1", models.Lifecycle{IsArchived: true, ArchivedAt: &archivedAt, ExpiresAt: &expiresAt})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
