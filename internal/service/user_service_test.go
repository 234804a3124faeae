package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deptconnect/deptconnect-api/internal/models"
	appErrors "github.com/deptconnect/deptconnect-api/pkg/errors"
)

type mockAdminUserRepo struct {
	users  map[string]*models.User
	audits []models.AuditLog
}

func newMockAdminUserRepo() *mockAdminUserRepo {
	return &mockAdminUserRepo{users: make(map[string]*models.User)}
}

func (m *mockAdminUserRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *user
	return &copied, nil
}

func (m *mockAdminUserRepo) Update(_ context.Context, user *models.User) error {
	if _, ok := m.users[user.ID]; !ok {
		return sql.ErrNoRows
	}
	copied := *user
	m.users[user.ID] = &copied
	return nil
}

func (m *mockAdminUserRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.users[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.users, id)
	return nil
}

func (m *mockAdminUserRepo) List(_ context.Context, filter models.UserFilter) ([]models.User, int, error) {
	var out []models.User
	for _, user := range m.users {
		if filter.Role != nil && user.Role != *filter.Role {
			continue
		}
		out = append(out, *user)
	}
	return out, len(out), nil
}

func (m *mockAdminUserRepo) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	m.audits = append(m.audits, *log)
	return nil
}

func newUserFixture() (*UserService, *mockAdminUserRepo) {
	repo := newMockAdminUserRepo()
	repo.users["u1"] = &models.User{
		ID:        "u1",
		Email:     "ada@dept.edu",
		FirstName: "Ada",
		LastName:  "Obi",
		Role:      models.RoleStudent,
		Status:    models.UserStatusPending,
	}
	return NewUserService(repo, nil, nil), repo
}

func TestUserServiceApprove(t *testing.T) {
	svc, repo := newUserFixture()

	user, err := svc.SetStatus(context.Background(), "u1", models.UserStatusApproved)
	require.NoError(t, err)
	assert.Equal(t, models.UserStatusApproved, user.Status)
	assert.Equal(t, models.UserStatusApproved, repo.users["u1"].Status)
	require.NotEmpty(t, repo.audits)
	assert.Equal(t, models.AuditActionUserUpdate, repo.audits[0].Action)
}

func TestUserServiceSetStatusRejectsPending(t *testing.T) {
	svc, _ := newUserFixture()

	_, err := svc.SetStatus(context.Background(), "u1", models.UserStatusPending)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserServiceUpdateProfile(t *testing.T) {
	svc, repo := newUserFixture()

	name := "Adaeze"
	user, err := svc.UpdateProfile(context.Background(), "u1", UpdateProfileRequest{FirstName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Adaeze", user.FirstName)
	assert.Equal(t, "Obi", repo.users["u1"].LastName)
}

func TestUserServiceGetMissing(t *testing.T) {
	svc, _ := newUserFixture()

	_, err := svc.Get(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Status, appErrors.FromError(err).Status)
}

func TestUserServiceDelete(t *testing.T) {
	svc, repo := newUserFixture()

	require.NoError(t, svc.Delete(context.Background(), "u1"))
	assert.Empty(t, repo.users)

	err := svc.Delete(context.Background(), "u1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
