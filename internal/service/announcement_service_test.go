package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deptconnect/deptconnect-api/internal/models"
	appErrors "github.com/deptconnect/deptconnect-api/pkg/errors"
)

type mockAnnouncementRepo struct {
	items      map[string]*models.Announcement
	lifecycles map[string]models.Lifecycle
	seq        int
}

func newMockAnnouncementRepo() *mockAnnouncementRepo {
	return &mockAnnouncementRepo{
		items:      make(map[string]*models.Announcement),
		lifecycles: make(map[string]models.Lifecycle),
	}
}

func (m *mockAnnouncementRepo) List(_ context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error) {
	var out []models.Announcement
	for _, item := range m.items {
		if item.IsArchived && !filter.IncludeArchived {
			continue
		}
		out = append(out, *item)
	}
	return out, len(out), nil
}

func (m *mockAnnouncementRepo) GetByID(_ context.Context, id string) (*models.Announcement, error) {
	item, ok := m.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *item
	return &copied, nil
}

func (m *mockAnnouncementRepo) Create(_ context.Context, announcement *models.Announcement) error {
	m.seq++
	if announcement.ID == "" {
		announcement.ID = fmt.Sprintf("ann-%d", m.seq)
	}
	copied := *announcement
	m.items[announcement.ID] = &copied
	return nil
}

func (m *mockAnnouncementRepo) Update(_ context.Context, announcement *models.Announcement) error {
	if _, ok := m.items[announcement.ID]; !ok {
		return sql.ErrNoRows
	}
	copied := *announcement
	m.items[announcement.ID] = &copied
	return nil
}

func (m *mockAnnouncementRepo) UpdateLifecycle(_ context.Context, id string, lc models.Lifecycle) error {
	item, ok := m.items[id]
	if !ok {
		return sql.ErrNoRows
	}
	item.Lifecycle = lc
	m.lifecycles[id] = lc
	return nil
}

func (m *mockAnnouncementRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.items, id)
	return nil
}

func newAnnouncementFixture() (*AnnouncementService, *mockAnnouncementRepo) {
	repo := newMockAnnouncementRepo()
	svc := NewAnnouncementService(repo, NewLifecycleService(0), nil, nil, nil)
	return svc, repo
}

func TestAnnouncementServiceCreateSetsOwnerAndPreview(t *testing.T) {
	svc, _ := newAnnouncementFixture()
	principal := models.Principal{SubjectID: "lect-1", Role: models.RoleLecturer}

	body := strings.Repeat("lorem ipsum ", 60)
	created, err := svc.Create(context.Background(), principal, models.CreateAnnouncementRequest{
		Title:    "Exam timetable released",
		Body:     body,
		Category: models.AnnouncementCategoryAcademic,
	})
	require.NoError(t, err)
	assert.Equal(t, "lect-1", created.CreatedBy)
	assert.False(t, created.IsArchived)
	assert.LessOrEqual(t, len([]rune(created.Preview)), previewLength+3)
	assert.True(t, strings.HasSuffix(created.Preview, "..."))
}

func TestAnnouncementServiceCreateRejectsBadCategory(t *testing.T) {
	svc, _ := newAnnouncementFixture()

	_, err := svc.Create(context.Background(), models.Principal{SubjectID: "lect-1"}, models.CreateAnnouncementRequest{
		Title:    "Exam timetable released",
		Body:     "short body",
		Category: "SPAM",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAnnouncementServiceArchiveStampsRetention(t *testing.T) {
	svc, repo := newAnnouncementFixture()
	created, err := svc.Create(context.Background(), models.Principal{SubjectID: "lect-1"}, models.CreateAnnouncementRequest{
		Title:    "Old notice",
		Body:     "body",
		Category: models.AnnouncementCategoryGeneral,
	})
	require.NoError(t, err)

	archived, err := svc.Archive(context.Background(), created.ID)
	require.NoError(t, err)
	require.True(t, archived.IsArchived)
	require.NotNil(t, archived.ArchivedAt)
	require.NotNil(t, archived.ExpiresAt)
	assert.WithinDuration(t, archived.ArchivedAt.Add(DefaultArchiveRetention), *archived.ExpiresAt, time.Second)

	// Second archive succeeds without rewriting the stored timestamps.
	firstWrite := repo.lifecycles[created.ID]
	again, err := svc.Archive(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, *firstWrite.ArchivedAt, *again.ArchivedAt)
	assert.Equal(t, firstWrite, repo.lifecycles[created.ID])
}

func TestAnnouncementServiceUnarchiveClearsRetention(t *testing.T) {
	svc, _ := newAnnouncementFixture()
	created, err := svc.Create(context.Background(), models.Principal{SubjectID: "lect-1"}, models.CreateAnnouncementRequest{
		Title:    "Old notice",
		Body:     "body",
		Category: models.AnnouncementCategoryGeneral,
	})
	require.NoError(t, err)

	_, err = svc.Archive(context.Background(), created.ID)
	require.NoError(t, err)

	restored, err := svc.Unarchive(context.Background(), created.ID)
	require.NoError(t, err)
	assert.False(t, restored.IsArchived)
	assert.Nil(t, restored.ArchivedAt)
	assert.Nil(t, restored.ExpiresAt)
}

func TestAnnouncementServiceArchivedExcludedFromDefaultList(t *testing.T) {
	svc, _ := newAnnouncementFixture()
	principal := models.Principal{SubjectID: "lect-1"}

	active, err := svc.Create(context.Background(), principal, models.CreateAnnouncementRequest{
		Title: "Active notice", Body: "body", Category: models.AnnouncementCategoryGeneral,
	})
	require.NoError(t, err)
	old, err := svc.Create(context.Background(), principal, models.CreateAnnouncementRequest{
		Title: "Old notice", Body: "body", Category: models.AnnouncementCategoryGeneral,
	})
	require.NoError(t, err)
	_, err = svc.Archive(context.Background(), old.ID)
	require.NoError(t, err)

	items, total, err := svc.List(context.Background(), models.AnnouncementFilter{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, active.ID, items[0].ID)

	_, total, err = svc.List(context.Background(), models.AnnouncementFilter{IncludeArchived: true})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestAnnouncementServiceGetMissing(t *testing.T) {
	svc, _ := newAnnouncementFixture()

	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
	assert.Equal(t, appErrors.ErrNotFound.Status, appErr.Status)
}

func TestAnnouncementServiceUpdateRegeneratesPreview(t *testing.T) {
	svc, _ := newAnnouncementFixture()
	created, err := svc.Create(context.Background(), models.Principal{SubjectID: "lect-1"}, models.CreateAnnouncementRequest{
		Title: "Notice", Body: "original body", Category: models.AnnouncementCategoryGeneral,
	})
	require.NoError(t, err)

	newBody := "rewritten body"
	updated, err := svc.Update(context.Background(), created.ID, models.UpdateAnnouncementRequest{Body: &newBody})
	require.NoError(t, err)
	assert.Equal(t, "rewritten body", updated.Preview)
}
