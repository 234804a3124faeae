package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/deptconnect/deptconnect-api/internal/models"
	appErrors "github.com/deptconnect/deptconnect-api/pkg/errors"
	"github.com/deptconnect/deptconnect-api/pkg/hasher"
	"github.com/deptconnect/deptconnect-api/pkg/jobs"
	"github.com/deptconnect/deptconnect-api/pkg/otp"
)

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type oneTimeTokenRepository interface {
	Create(ctx context.Context, token *models.OneTimeToken) error
	FindLatestByUser(ctx context.Context, userID string) (*models.OneTimeToken, error)
	MarkUsed(ctx context.Context, id string) error
	InvalidatePending(ctx context.Context, userID string) error
}

type mailDispatcher interface {
	Enqueue(job jobs.Job) error
}

// MailPayload is the body of a queued email job.
type MailPayload struct {
	To      string
	Subject string
	Body    string
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	Secret            string
	SessionExpiry     time.Duration
	ActionTokenExpiry time.Duration
	Issuer            string
	OTPLength         int
	OTPTTL            time.Duration
	// MinResponseTime pads register and reset-request paths so the
	// caller cannot tell from latency whether the email exists.
	MinResponseTime time.Duration
}

// AuthService provides authentication and account-recovery use cases.
type AuthService struct {
	users     authUserRepository
	tokens    oneTimeTokenRepository
	mail      mailDispatcher
	hasher    hasher.Hasher
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
	config    AuthConfig
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(users authUserRepository, tokens oneTimeTokenRepository, mail mailDispatcher, h hasher.Hasher, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if h == nil {
		h = hasher.NewBcrypt(0)
	}
	if config.OTPLength <= 0 {
		config.OTPLength = otp.DefaultLength
	}
	if config.OTPTTL <= 0 {
		config.OTPTTL = 15 * time.Minute
	}
	if config.ActionTokenExpiry <= 0 {
		config.ActionTokenExpiry = 10 * time.Minute
	}
	return &AuthService{users: users, tokens: tokens, mail: mail, hasher: h, validator: validate, logger: logger, config: config}
}

// WithMetrics attaches instrumentation. All metric calls are nil-safe so
// the service works without it.
func (s *AuthService) WithMetrics(m *MetricsService) *AuthService {
	s.metrics = m
	return s
}

// Login authenticates a user and returns an issued session token.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if !s.hasher.Compare(req.Password, user.PasswordHash) {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
	}

	token, expiresAt, err := s.generateSessionToken(user)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session token")
	}

	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &user.ID,
		Action:     models.AuditActionLogin,
		Resource:   "auth",
		ResourceID: &user.ID,
		NewValues:  []byte(`{"status":"success"}`),
	}); err != nil {
		s.logger.Warn("failed to record login audit log", zap.Error(err))
	}

	return &models.LoginResponse{
		Token:     token,
		ExpiresIn: int64(time.Until(expiresAt).Seconds()),
		IssuedAt:  time.Now().UTC(),
		User: models.UserInfo{
			ID:       user.ID,
			Email:    user.Email,
			FullName: user.FullName(),
			Role:     user.Role,
		},
	}, nil
}

// RegisterLecturer provisions a lecturer account and dispatches a
// confirmation OTP. The response shape and latency are identical whether
// or not the email was already registered.
func (s *AuthService) RegisterLecturer(ctx context.Context, req models.RegisterLecturerRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}
	start := time.Now()
	defer s.padResponse(ctx, start)

	user := &models.User{
		Email:      req.Email,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Role:       models.RoleLecturer,
		Status:     models.UserStatusPending,
		LecturerID: &req.LecturerID,
	}
	return s.register(ctx, user, req.Password)
}

// RegisterStudent provisions a student account, same contract as
// RegisterLecturer.
func (s *AuthService) RegisterStudent(ctx context.Context, req models.RegisterStudentRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}
	start := time.Now()
	defer s.padResponse(ctx, start)

	user := &models.User{
		Email:         req.Email,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Role:          models.RoleStudent,
		Status:        models.UserStatusPending,
		MatricNo:      &req.MatricNo,
		AdmissionYear: &req.AdmissionYear,
	}
	return s.register(ctx, user, req.Password)
}

func (s *AuthService) register(ctx context.Context, user *models.User, password string) error {
	if _, err := s.users.FindByEmail(ctx, user.Email); err == nil {
		// Existing account: swallow silently so the caller cannot probe
		// for registered emails.
		return nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check account")
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	user.PasswordHash = digest

	if err := s.users.Create(ctx, user); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create account")
	}

	s.issueOTP(ctx, user.ID, user.Email, "Confirm your DeptConnect account")

	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &user.ID,
		Action:     models.AuditActionRegister,
		Resource:   "auth",
		ResourceID: &user.ID,
		NewValues:  []byte(fmt.Sprintf(`{"role":%q}`, user.Role)),
	}); err != nil {
		s.logger.Warn("failed to record register audit log", zap.Error(err))
	}

	return nil
}

// RequestPasswordReset initiates the OTP reset flow. It answers with the
// same payload and comparable latency whether or not the email exists.
func (s *AuthService) RequestPasswordReset(ctx context.Context, req models.ForgotPasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reset payload")
	}
	start := time.Now()
	defer s.padResponse(ctx, start)

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Equalise the dominant hashing cost of the success path.
			if _, hashErr := s.hasher.Hash("000000"); hashErr != nil {
				s.logger.Warn("failed to hash decoy otp", zap.Error(hashErr))
			}
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	s.issueOTP(ctx, user.ID, user.Email, "Your DeptConnect password reset code")

	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &user.ID,
		Action:     models.AuditActionPasswordReset,
		Resource:   "auth",
		ResourceID: &user.ID,
		NewValues:  []byte(`{"status":"otp_issued"}`),
	}); err != nil {
		s.logger.Warn("failed to record reset audit log", zap.Error(err))
	}

	return nil
}

// VerifyOTP checks a reset code and mints a short-lived action token. A
// missing row, a consumed row, and a hash mismatch are indistinguishable
// to the caller. The used-flag flip is a compare-and-set so only one of
// two concurrent verifications can succeed.
func (s *AuthService) VerifyOTP(ctx context.Context, userID string, req models.VerifyOTPRequest) (string, error) {
	actionToken, err := s.verifyOTP(ctx, userID, req)
	s.metrics.RecordOTPVerification(err == nil)
	return actionToken, err
}

func (s *AuthService) verifyOTP(ctx context.Context, userID string, req models.VerifyOTPRequest) (string, error) {
	if err := s.validator.Struct(req); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid otp payload")
	}
	if userID == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "user id is required")
	}

	token, err := s.tokens.FindLatestByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrInvalidToken, "token is invalid")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch token")
	}
	if token.Used {
		return "", appErrors.Clone(appErrors.ErrInvalidToken, "token is invalid")
	}

	if !s.hasher.Compare(req.OTP, token.TokenHash) {
		return "", appErrors.Clone(appErrors.ErrInvalidToken, "token is invalid")
	}

	if err := s.tokens.MarkUsed(ctx, token.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrInvalidToken, "token is invalid")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to consume token")
	}

	actionToken, err := s.generateActionToken(userID, token.UserID)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create action token")
	}
	return actionToken, nil
}

// ResetPassword completes the recovery flow under a verified action token.
func (s *AuthService) ResetPassword(ctx context.Context, claims *models.ActionTokenClaims, userID string, req models.ResetPasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid password payload")
	}
	if claims == nil || userID == "" || claims.TokenUserID != userID {
		return appErrors.Clone(appErrors.ErrInvalidToken, "token is invalid")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	digest, err := s.hasher.Hash(req.Password)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	if err := s.users.UpdatePassword(ctx, user.ID, digest, time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
	}

	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &user.ID,
		Action:     models.AuditActionPasswordChange,
		Resource:   "auth",
		ResourceID: &user.ID,
		NewValues:  []byte(`{"status":"changed"}`),
	}); err != nil {
		s.logger.Warn("failed to record password change audit log", zap.Error(err))
	}

	return nil
}

// ValidateToken parses and validates a session token returning the claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, s.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "token expired")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid || claims.TokenType != models.TokenTypeSession {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}

	return claims, nil
}

// ValidateActionToken parses and validates a post-OTP action token.
func (s *AuthService) ValidateActionToken(tokenString string) (*models.ActionTokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.ActionTokenClaims{}, s.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "token expired")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.ActionTokenClaims)
	if !ok || !token.Valid || claims.TokenType != models.TokenTypeAction {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}

	return claims, nil
}

func (s *AuthService) keyFunc(token *jwt.Token) (interface{}, error) {
	if token.Method != jwt.SigningMethodHS256 {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return []byte(s.config.Secret), nil
}

// issueOTP stores a hashed one-time code and queues the delivery email.
// Only one OTP per user stays live; earlier unused codes are discarded.
// Mail failures are logged by the queue, never surfaced to the caller.
func (s *AuthService) issueOTP(ctx context.Context, userID, email, subject string) {
	if err := s.tokens.InvalidatePending(ctx, userID); err != nil {
		s.logger.Warn("failed to invalidate pending otps", zap.Error(err))
	}

	code, err := otp.Generate(s.config.OTPLength)
	if err != nil {
		s.logger.Error("failed to generate otp", zap.Error(err))
		return
	}
	digest, err := s.hasher.Hash(code)
	if err != nil {
		s.logger.Error("failed to hash otp", zap.Error(err))
		return
	}

	record := &models.OneTimeToken{
		UserID:    userID,
		TokenHash: digest,
		ExpiresAt: time.Now().UTC().Add(s.config.OTPTTL),
		Used:      false,
	}
	if err := s.tokens.Create(ctx, record); err != nil {
		s.logger.Error("failed to store otp", zap.Error(err))
		return
	}
	s.metrics.RecordOTPIssued()

	if s.mail == nil {
		return
	}
	if err := s.mail.Enqueue(jobs.Job{
		ID:   record.ID,
		Type: "otp_email",
		Payload: MailPayload{
			To:      email,
			Subject: subject,
			Body:    fmt.Sprintf("Your one-time code is %s. It expires in %s.", code, s.config.OTPTTL),
		},
	}); err != nil {
		s.logger.Warn("failed to enqueue otp email", zap.Error(err))
	}
}

// padResponse sleeps until the configured minimum latency has elapsed so
// success and not-found paths answer in comparable time.
func (s *AuthService) padResponse(ctx context.Context, start time.Time) {
	remaining := s.config.MinResponseTime - time.Since(start)
	if remaining <= 0 {
		return
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (s *AuthService) generateSessionToken(user *models.User) (string, time.Time, error) {
	issuedAt := time.Now().UTC()
	expiresAt := issuedAt.Add(s.config.SessionExpiry)
	claims := &models.JWTClaims{
		UserID:    user.ID,
		Role:      user.Role,
		Email:     user.Email,
		TokenType: models.TokenTypeSession,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (s *AuthService) generateActionToken(subjectID, tokenUserID string) (string, error) {
	issuedAt := time.Now().UTC()
	claims := &models.ActionTokenClaims{
		UserID:      subjectID,
		TokenUserID: tokenUserID,
		TokenType:   models.TokenTypeAction,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   subjectID,
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.config.ActionTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.Secret))
}
