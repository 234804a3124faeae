package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deptconnect/deptconnect-api/internal/models"
	appErrors "github.com/deptconnect/deptconnect-api/pkg/errors"
)

type mockAssignmentRepo struct {
	items map[string]*models.Assignment
	seq   int
}

func newMockAssignmentRepo() *mockAssignmentRepo {
	return &mockAssignmentRepo{items: make(map[string]*models.Assignment)}
}

func (m *mockAssignmentRepo) List(_ context.Context, filter models.AssignmentFilter) ([]models.Assignment, int, error) {
	var out []models.Assignment
	for _, item := range m.items {
		if item.IsArchived && !filter.IncludeArchived {
			continue
		}
		out = append(out, *item)
	}
	return out, len(out), nil
}

func (m *mockAssignmentRepo) GetByID(_ context.Context, id string) (*models.Assignment, error) {
	item, ok := m.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *item
	return &copied, nil
}

func (m *mockAssignmentRepo) Create(_ context.Context, assignment *models.Assignment) error {
	m.seq++
	if assignment.ID == "" {
		assignment.ID = fmt.Sprintf("asg-%d", m.seq)
	}
	copied := *assignment
	m.items[assignment.ID] = &copied
	return nil
}

func (m *mockAssignmentRepo) Update(_ context.Context, assignment *models.Assignment) error {
	if _, ok := m.items[assignment.ID]; !ok {
		return sql.ErrNoRows
	}
	copied := *assignment
	m.items[assignment.ID] = &copied
	return nil
}

func (m *mockAssignmentRepo) UpdateLifecycle(_ context.Context, id string, lc models.Lifecycle) error {
	item, ok := m.items[id]
	if !ok {
		return sql.ErrNoRows
	}
	item.Lifecycle = lc
	return nil
}

func (m *mockAssignmentRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.items, id)
	return nil
}

func newAssignmentFixture() (*AssignmentService, *mockAssignmentRepo) {
	repo := newMockAssignmentRepo()
	svc := NewAssignmentService(repo, NewLifecycleService(0), nil, nil, nil)
	return svc, repo
}

func validAssignmentRequest() models.CreateAssignmentRequest {
	return models.CreateAssignmentRequest{
		Title:          "Problem set 3",
		Description:    "Chapters 5 and 6",
		AdmissionYears: []string{"2021", "2022"},
		Deadline:       time.Now().Add(72 * time.Hour),
	}
}

func TestAssignmentServiceCreate(t *testing.T) {
	svc, _ := newAssignmentFixture()

	created, err := svc.Create(context.Background(), models.Principal{SubjectID: "lect-1", Role: models.RoleLecturer}, validAssignmentRequest())
	require.NoError(t, err)
	assert.Equal(t, "lect-1", created.CreatedBy)
	assert.ElementsMatch(t, []string{"2021", "2022"}, []string(created.AdmissionYears))
}

func TestAssignmentServiceCreateRejectsPastDeadline(t *testing.T) {
	svc, _ := newAssignmentFixture()

	req := validAssignmentRequest()
	req.Deadline = time.Now().Add(-time.Hour)
	_, err := svc.Create(context.Background(), models.Principal{SubjectID: "lect-1"}, req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAssignmentServiceArchiveRoundTrip(t *testing.T) {
	svc, _ := newAssignmentFixture()
	created, err := svc.Create(context.Background(), models.Principal{SubjectID: "lect-1"}, validAssignmentRequest())
	require.NoError(t, err)

	archived, err := svc.Archive(context.Background(), created.ID)
	require.NoError(t, err)
	require.True(t, archived.IsArchived)
	require.NotNil(t, archived.ExpiresAt)

	_, total, err := svc.List(context.Background(), models.AssignmentFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, total)

	restored, err := svc.Unarchive(context.Background(), created.ID)
	require.NoError(t, err)
	assert.False(t, restored.IsArchived)
	assert.Nil(t, restored.ExpiresAt)

	_, total, err = svc.List(context.Background(), models.AssignmentFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestAssignmentServiceDeleteMissing(t *testing.T) {
	svc, _ := newAssignmentFixture()

	err := svc.Delete(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Status, appErrors.FromError(err).Status)
}
