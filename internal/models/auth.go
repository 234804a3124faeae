package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Principal is the authenticated caller identity reconstructed per request
// from a verified session token.
type Principal struct {
	SubjectID string
	Role      UserRole
}

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=20"`
}

// LoginResponse returns the issued session token and user info.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresIn int64     `json:"expires_in"`
	User      UserInfo  `json:"user"`
	IssuedAt  time.Time `json:"issued_at"`
}

// RegisterLecturerRequest is the public lecturer sign-up payload.
type RegisterLecturerRequest struct {
	FirstName  string `json:"first_name" validate:"required,min=3,max=20"`
	LastName   string `json:"last_name" validate:"required,min=3,max=20"`
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,alphanum,min=6,max=20"`
	LecturerID string `json:"lecturer_id" validate:"required"`
}

// RegisterStudentRequest is the public student sign-up payload.
type RegisterStudentRequest struct {
	FirstName     string `json:"first_name" validate:"required,min=3,max=20"`
	LastName      string `json:"last_name" validate:"required,min=3,max=20"`
	Email         string `json:"email" validate:"required,email"`
	Password      string `json:"password" validate:"required,alphanum,min=6,max=20"`
	MatricNo      string `json:"matric_no" validate:"required"`
	AdmissionYear int    `json:"admission_year" validate:"required"`
}

// ForgotPasswordRequest initiates the OTP reset flow.
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// VerifyOTPRequest carries the emailed reset code.
type VerifyOTPRequest struct {
	OTP string `json:"otp" validate:"required,alphanum,len=6"`
}

// ResetPasswordRequest completes the reset flow under an action token.
type ResetPasswordRequest struct {
	Password string `json:"password" validate:"required,alphanum,min=6,max=20"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	Role     UserRole `json:"role"`
}

// Token type discriminators. A session token and an action token are
// signed with the same secret, so each validator checks the type claim
// to keep one from standing in for the other.
const (
	TokenTypeSession = "session"
	TokenTypeAction  = "action"
)

// JWTClaims represents the JWT payload for session tokens.
type JWTClaims struct {
	UserID    string   `json:"user_id"`
	Role      UserRole `json:"role"`
	Email     string   `json:"email"`
	TokenType string   `json:"typ"`
	jwt.RegisteredClaims
}

// Principal derives the caller identity from the claims.
func (c *JWTClaims) Principal() Principal {
	return Principal{SubjectID: c.UserID, Role: c.Role}
}

// ActionTokenClaims is the short-lived credential minted after OTP
// verification. TokenUserID names the user the verified OTP belonged to;
// the reset endpoint requires it to match the target account.
type ActionTokenClaims struct {
	UserID      string `json:"user_id"`
	TokenUserID string `json:"token_user_id"`
	TokenType   string `json:"typ"`
	jwt.RegisteredClaims
}
