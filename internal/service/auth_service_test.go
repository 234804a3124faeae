package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deptconnect/deptconnect-api/internal/models"
	appErrors "github.com/deptconnect/deptconnect-api/pkg/errors"
	"github.com/deptconnect/deptconnect-api/pkg/hasher"
	"github.com/deptconnect/deptconnect-api/pkg/jobs"
)

type mockUserRepo struct {
	mu        sync.Mutex
	usersByID map[string]*models.User
	emails    map[string]*models.User
	passwords map[string]string
	audits    []models.AuditLog
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{
		usersByID: make(map[string]*models.User),
		emails:    make(map[string]*models.User),
		passwords: make(map[string]string),
	}
}

func (m *mockUserRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.emails[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *user
	return &copied, nil
}

func (m *mockUserRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.usersByID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *user
	return &copied, nil
}

func (m *mockUserRepo) Create(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.ID == "" {
		user.ID = "user-" + user.Email
	}
	copied := *user
	m.usersByID[user.ID] = &copied
	m.emails[user.Email] = &copied
	return nil
}

func (m *mockUserRepo) UpdatePassword(_ context.Context, id, passwordHash string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.usersByID[id]
	if !ok {
		return sql.ErrNoRows
	}
	user.PasswordHash = passwordHash
	m.passwords[id] = passwordHash
	return nil
}

func (m *mockUserRepo) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, *log)
	return nil
}

type mockTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]*models.OneTimeToken
	seq    int
}

func newMockTokenRepo() *mockTokenRepo {
	return &mockTokenRepo{tokens: make(map[string]*models.OneTimeToken)}
}

func (m *mockTokenRepo) Create(_ context.Context, token *models.OneTimeToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	if token.ID == "" {
		token.ID = "tok-" + time.Now().Format("150405.000000000")
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC().Add(time.Duration(m.seq) * time.Millisecond)
	}
	copied := *token
	m.tokens[token.ID] = &copied
	return nil
}

func (m *mockTokenRepo) FindLatestByUser(_ context.Context, userID string) (*models.OneTimeToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.OneTimeToken
	now := time.Now().UTC()
	for _, token := range m.tokens {
		if token.UserID != userID || !token.ExpiresAt.After(now) {
			continue
		}
		if latest == nil || token.CreatedAt.After(latest.CreatedAt) {
			latest = token
		}
	}
	if latest == nil {
		return nil, sql.ErrNoRows
	}
	copied := *latest
	return &copied, nil
}

func (m *mockTokenRepo) MarkUsed(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.tokens[id]
	if !ok || token.Used {
		return sql.ErrNoRows
	}
	token.Used = true
	return nil
}

func (m *mockTokenRepo) InvalidatePending(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, token := range m.tokens {
		if token.UserID == userID && !token.Used {
			delete(m.tokens, id)
		}
	}
	return nil
}

type mockMailQueue struct {
	mu   sync.Mutex
	jobs []jobs.Job
}

func (m *mockMailQueue) Enqueue(job jobs.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, job)
	return nil
}

func (m *mockMailQueue) sent() []jobs.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]jobs.Job, len(m.jobs))
	copy(out, m.jobs)
	return out
}

// recordingHasher remembers the last plaintext it hashed so tests can
// recover the generated OTP without email delivery.
type recordingHasher struct {
	mu     sync.Mutex
	hashed []string
}

func (h *recordingHasher) Hash(plain string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hashed = append(h.hashed, plain)
	return "hashed:" + plain, nil
}

func (h *recordingHasher) Compare(plain, digest string) bool {
	return "hashed:"+plain == digest
}

func (h *recordingHasher) last() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.hashed) == 0 {
		return ""
	}
	return h.hashed[len(h.hashed)-1]
}

func newAuthFixture() (*AuthService, *mockUserRepo, *mockTokenRepo, *mockMailQueue, *recordingHasher) {
	users := newMockUserRepo()
	tokens := newMockTokenRepo()
	mail := &mockMailQueue{}
	h := &recordingHasher{}
	svc := NewAuthService(users, tokens, mail, h, nil, nil, AuthConfig{
		Secret:            "test-secret",
		SessionExpiry:     time.Hour,
		ActionTokenExpiry: 10 * time.Minute,
		Issuer:            "deptconnect-test",
		OTPLength:         6,
		OTPTTL:            15 * time.Minute,
	})
	return svc, users, tokens, mail, h
}

func seedUser(t *testing.T, users *mockUserRepo, h hasher.Hasher, email, password string) *models.User {
	t.Helper()
	digest, err := h.Hash(password)
	require.NoError(t, err)
	user := &models.User{
		Email:        email,
		PasswordHash: digest,
		FirstName:    "Ada",
		LastName:     "Obi",
		Role:         models.RoleStudent,
		Status:       models.UserStatusApproved,
	}
	require.NoError(t, users.Create(context.Background(), user))
	return user
}

func TestAuthServiceLogin(t *testing.T) {
	svc, users, _, _, h := newAuthFixture()
	seedUser(t, users, h, "ada@dept.edu", "secret1")

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@dept.edu", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "ada@dept.edu", resp.User.Email)

	claims, err := svc.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, claims.Role)
	assert.Equal(t, resp.User.ID, claims.UserID)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	svc, users, _, _, h := newAuthFixture()
	seedUser(t, users, h, "ada@dept.edu", "secret1")

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@dept.edu", Password: "wrong11"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErr.Code)
}

func TestAuthServiceLoginUnknownEmail(t *testing.T) {
	svc, _, _, _, _ := newAuthFixture()

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "nobody@dept.edu", Password: "secret1"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErr.Code)
}

func TestAuthServiceRegisterStudent(t *testing.T) {
	svc, users, tokens, mail, _ := newAuthFixture()

	err := svc.RegisterStudent(context.Background(), models.RegisterStudentRequest{
		FirstName:     "Ngozi",
		LastName:      "Eze",
		Email:         "ngozi@dept.edu",
		Password:      "pass123",
		MatricNo:      "CSC/2021/041",
		AdmissionYear: 2021,
	})
	require.NoError(t, err)

	user, err := users.FindByEmail(context.Background(), "ngozi@dept.edu")
	require.NoError(t, err)
	assert.Equal(t, models.UserStatusPending, user.Status)
	assert.Equal(t, models.RoleStudent, user.Role)

	// A confirmation code was stored and queued for delivery.
	token, err := tokens.FindLatestByUser(context.Background(), user.ID)
	require.NoError(t, err)
	assert.False(t, token.Used)
	require.Len(t, mail.sent(), 1)
}

func TestAuthServiceRegisterExistingEmailLooksLikeSuccess(t *testing.T) {
	svc, users, _, mail, h := newAuthFixture()
	seedUser(t, users, h, "taken@dept.edu", "secret1")

	err := svc.RegisterLecturer(context.Background(), models.RegisterLecturerRequest{
		FirstName:  "Chidi",
		LastName:   "Okafor",
		Email:      "taken@dept.edu",
		Password:   "pass123",
		LecturerID: "LEC-009",
	})
	require.NoError(t, err)
	// Nothing was created and nothing sent; the caller cannot tell.
	assert.Empty(t, mail.sent())
	existing, err := users.FindByEmail(context.Background(), "taken@dept.edu")
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, existing.Role)
}

func TestAuthServiceResetRequestPadsLatency(t *testing.T) {
	users := newMockUserRepo()
	tokens := newMockTokenRepo()
	h := &recordingHasher{}
	svc := NewAuthService(users, tokens, &mockMailQueue{}, h, nil, nil, AuthConfig{
		Secret:          "test-secret",
		SessionExpiry:   time.Hour,
		MinResponseTime: 50 * time.Millisecond,
	})

	start := time.Now()
	err := svc.RequestPasswordReset(context.Background(), models.ForgotPasswordRequest{Email: "ghost@dept.edu"})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestAuthServicePasswordResetFlow(t *testing.T) {
	svc, users, _, mail, h := newAuthFixture()
	user := seedUser(t, users, h, "ada@dept.edu", "secret1")

	require.NoError(t, svc.RequestPasswordReset(context.Background(), models.ForgotPasswordRequest{Email: "ada@dept.edu"}))
	require.Len(t, mail.sent(), 1)
	code := h.last()
	require.Len(t, code, 6)

	actionToken, err := svc.VerifyOTP(context.Background(), user.ID, models.VerifyOTPRequest{OTP: code})
	require.NoError(t, err)
	require.NotEmpty(t, actionToken)

	claims, err := svc.ValidateActionToken(actionToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.TokenUserID)

	require.NoError(t, svc.ResetPassword(context.Background(), claims, user.ID, models.ResetPasswordRequest{Password: "newpass9"}))

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@dept.edu", Password: "newpass9"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "ada@dept.edu", Password: "secret1"})
	require.Error(t, err)

	// The code was consumed; tracking the audit trail.
	var changed bool
	for _, entry := range users.audits {
		if entry.Action == models.AuditActionPasswordChange {
			changed = true
		}
	}
	assert.True(t, changed)

	// A used code cannot mint another action token.
	_, err = svc.VerifyOTP(context.Background(), user.ID, models.VerifyOTPRequest{OTP: code})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidToken.Code, appErr.Code)
}

func TestAuthServiceVerifyOTPWrongCode(t *testing.T) {
	svc, users, _, _, h := newAuthFixture()
	user := seedUser(t, users, h, "ada@dept.edu", "secret1")

	require.NoError(t, svc.RequestPasswordReset(context.Background(), models.ForgotPasswordRequest{Email: "ada@dept.edu"}))

	_, err := svc.VerifyOTP(context.Background(), user.ID, models.VerifyOTPRequest{OTP: "zz99zz"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidToken.Code, appErr.Code)
	assert.Equal(t, appErrors.ErrInvalidToken.Status, appErr.Status)
}

func TestAuthServiceVerifyOTPNoToken(t *testing.T) {
	svc, users, _, _, h := newAuthFixture()
	user := seedUser(t, users, h, "ada@dept.edu", "secret1")

	_, err := svc.VerifyOTP(context.Background(), user.ID, models.VerifyOTPRequest{OTP: "abc123"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	// Indistinguishable from a bad code.
	assert.Equal(t, appErrors.ErrInvalidToken.Code, appErr.Code)
}

func TestAuthServiceNewResetInvalidatesOldCode(t *testing.T) {
	svc, users, _, _, h := newAuthFixture()
	user := seedUser(t, users, h, "ada@dept.edu", "secret1")

	require.NoError(t, svc.RequestPasswordReset(context.Background(), models.ForgotPasswordRequest{Email: "ada@dept.edu"}))
	firstCode := h.last()

	require.NoError(t, svc.RequestPasswordReset(context.Background(), models.ForgotPasswordRequest{Email: "ada@dept.edu"}))
	secondCode := h.last()

	_, err := svc.VerifyOTP(context.Background(), user.ID, models.VerifyOTPRequest{OTP: firstCode})
	if firstCode != secondCode {
		require.Error(t, err)
	}

	_, err = svc.VerifyOTP(context.Background(), user.ID, models.VerifyOTPRequest{OTP: secondCode})
	require.NoError(t, err)
}

func TestAuthServiceConcurrentVerifySingleWinner(t *testing.T) {
	svc, users, _, _, h := newAuthFixture()
	user := seedUser(t, users, h, "ada@dept.edu", "secret1")

	require.NoError(t, svc.RequestPasswordReset(context.Background(), models.ForgotPasswordRequest{Email: "ada@dept.edu"}))
	code := h.last()

	const attempts = 8
	results := make(chan error, attempts)
	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < attempts; i++ {
		go func() {
			start.Wait()
			_, err := svc.VerifyOTP(context.Background(), user.ID, models.VerifyOTPRequest{OTP: code})
			results <- err
		}()
	}
	start.Done()

	var succeeded int
	for i := 0; i < attempts; i++ {
		if err := <-results; err == nil {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded)
}

func TestAuthServiceResetPasswordTokenUserMismatch(t *testing.T) {
	svc, users, _, _, h := newAuthFixture()
	victim := seedUser(t, users, h, "victim@dept.edu", "secret1")
	attacker := seedUser(t, users, h, "attacker@dept.edu", "secret2")

	require.NoError(t, svc.RequestPasswordReset(context.Background(), models.ForgotPasswordRequest{Email: "attacker@dept.edu"}))
	code := h.last()

	actionToken, err := svc.VerifyOTP(context.Background(), attacker.ID, models.VerifyOTPRequest{OTP: code})
	require.NoError(t, err)
	claims, err := svc.ValidateActionToken(actionToken)
	require.NoError(t, err)

	// The action token is bound to the attacker's account and cannot
	// rewrite anyone else's password.
	err = svc.ResetPassword(context.Background(), claims, victim.ID, models.ResetPasswordRequest{Password: "owned123"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidToken.Code, appErr.Code)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "victim@dept.edu", Password: "secret1"})
	require.NoError(t, err)
}

func TestAuthServiceTokenTypesNotInterchangeable(t *testing.T) {
	svc, users, _, _, h := newAuthFixture()
	user := seedUser(t, users, h, "ada@dept.edu", "secret1")

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@dept.edu", Password: "secret1"})
	require.NoError(t, err)

	require.NoError(t, svc.RequestPasswordReset(context.Background(), models.ForgotPasswordRequest{Email: "ada@dept.edu"}))
	actionToken, err := svc.VerifyOTP(context.Background(), user.ID, models.VerifyOTPRequest{OTP: h.last()})
	require.NoError(t, err)

	// An action token never establishes a session.
	_, err = svc.ValidateToken(actionToken)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)

	// A session token never drives a password reset.
	_, err = svc.ValidateActionToken(resp.Token)
	require.Error(t, err)
	appErr = appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
}

func TestAuthServiceValidateTokenRejectsGarbage(t *testing.T) {
	svc, _, _, _, _ := newAuthFixture()

	_, err := svc.ValidateToken("not-a-jwt")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
}
