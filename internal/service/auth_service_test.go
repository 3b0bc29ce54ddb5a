package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/uniosun/tacdra-api/internal/models"
	appErrors "github.com/uniosun/tacdra-api/pkg/errors"
)

type authRepoStub struct {
	usersByEmail  map[string]*models.User
	usersByMatric map[string]*models.User
	usersByID     map[string]*models.User
	refreshTokens map[string]*models.RefreshToken
	revokedAll    []string
}

func newAuthRepoStub() *authRepoStub {
	return &authRepoStub{
		usersByEmail:  make(map[string]*models.User),
		usersByMatric: make(map[string]*models.User),
		usersByID:     make(map[string]*models.User),
		refreshTokens: make(map[string]*models.RefreshToken),
	}
}

func (r *authRepoStub) add(user *models.User) {
	r.usersByEmail[user.Email] = user
	r.usersByMatric[user.MatriculationNumber] = user
	r.usersByID[user.ID] = user
}

func (r *authRepoStub) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if user, ok := r.usersByEmail[email]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (r *authRepoStub) FindByMatriculationNumber(ctx context.Context, matric string) (*models.User, error) {
	if user, ok := r.usersByMatric[matric]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (r *authRepoStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := r.usersByID[id]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (r *authRepoStub) Create(ctx context.Context, user *models.User) error {
	user.ID = "user-" + user.MatriculationNumber
	r.add(user)
	return nil
}

func (r *authRepoStub) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	return nil
}

func (r *authRepoStub) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	if user, ok := r.usersByID[id]; ok {
		user.PasswordHash = passwordHash
		return nil
	}
	return sql.ErrNoRows
}

func (r *authRepoStub) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	r.revokedAll = append(r.revokedAll, userID)
	for _, token := range r.refreshTokens {
		if token.UserID == userID {
			token.Revoked = true
		}
	}
	return nil
}

func (r *authRepoStub) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	r.refreshTokens[token.Token] = token
	return nil
}

func (r *authRepoStub) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if stored, ok := r.refreshTokens[token]; ok {
		return stored, nil
	}
	return nil, sql.ErrNoRows
}

func (r *authRepoStub) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, token := range r.refreshTokens {
		if token.ID == id {
			token.Revoked = true
			token.RevokedAt = &revokedAt
			return nil
		}
	}
	return sql.ErrNoRows
}

func newAuthFixture(t *testing.T) (*AuthService, *authRepoStub, *auditStub) {
	t.Helper()
	repo := newAuthRepoStub()
	audit := &auditStub{}
	svc := NewAuthService(repo, audit, nil, nil, AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "tacdra-api",
	})
	return svc, repo, audit
}

func seedAuthUser(t *testing.T, repo *authRepoStub, password string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user := &models.User{
		ID:                  "user-1",
		MatriculationNumber: "UNIOSUN/2018/0001",
		Email:               "adewale@example.com",
		PasswordHash:        string(hash),
		FirstName:           "Adewale",
		LastName:            "Ogunleye",
		Role:                models.RoleStudent,
		Active:              true,
	}
	repo.add(user)
	return user
}

func TestAuthRegisterAlwaysStudentRole(t *testing.T) {
	svc, repo, audit := newAuthFixture(t)

	info, err := svc.Register(context.Background(), models.RegisterRequest{
		MatriculationNumber: "uniosun/2018/0002",
		Email:               "Bola@Example.com",
		Password:            "secret123",
		FirstName:           "Bola",
		LastName:            "Adeyemi",
		PhoneNumber:         "08030000001",
	})
	require.NoError(t, err)
	require.Equal(t, models.RoleStudent, info.Role)
	require.Equal(t, "bola@example.com", info.Email)
	require.Equal(t, "UNIOSUN/2018/0002", info.MatriculationNumber)
	require.Len(t, audit.logs, 1)
	require.Contains(t, repo.usersByEmail, "bola@example.com")
}

func TestAuthRegisterDuplicateEmail(t *testing.T) {
	svc, repo, _ := newAuthFixture(t)
	seedAuthUser(t, repo, "secret123")

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		MatriculationNumber: "UNIOSUN/2018/0003",
		Email:               "adewale@example.com",
		Password:            "secret123",
		FirstName:           "Ade",
		LastName:            "Wale",
		PhoneNumber:         "08030000002",
	})
	require.True(t, appErrors.Is(err, appErrors.ErrConflict))
}

func TestAuthLoginAndValidateToken(t *testing.T) {
	svc, repo, _ := newAuthFixture(t)
	seedAuthUser(t, repo, "secret123")

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "adewale@example.com",
		Password: "secret123",
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)
	require.Equal(t, "Adewale Ogunleye", resp.User.FullName)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, models.RoleStudent, claims.Role)
}

func TestAuthLoginWrongPassword(t *testing.T) {
	svc, repo, _ := newAuthFixture(t)
	seedAuthUser(t, repo, "secret123")

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "adewale@example.com",
		Password: "wrong",
	})
	require.True(t, appErrors.Is(err, appErrors.ErrInvalidCredentials))
}

func TestAuthRefreshRotatesToken(t *testing.T) {
	svc, repo, _ := newAuthFixture(t)
	seedAuthUser(t, repo, "secret123")

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "adewale@example.com",
		Password: "secret123",
	})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: resp.RefreshToken})
	require.NoError(t, err)
	require.NotEqual(t, resp.RefreshToken, refreshed.RefreshToken)
	require.True(t, repo.refreshTokens[resp.RefreshToken].Revoked)

	// The used token cannot be replayed.
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: resp.RefreshToken})
	require.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestAuthChangePasswordRevokesSessions(t *testing.T) {
	svc, repo, _ := newAuthFixture(t)
	user := seedAuthUser(t, repo, "secret123")

	err := svc.ChangePassword(context.Background(), user.ID, models.ChangePasswordRequest{
		OldPassword: "secret123",
		NewPassword: "stronger456",
	})
	require.NoError(t, err)
	require.Contains(t, repo.revokedAll, user.ID)

	_, err = svc.Login(context.Background(), models.LoginRequest{
		Email:    "adewale@example.com",
		Password: "stronger456",
	})
	require.NoError(t, err)
}

func TestAuthValidateTokenRejectsTampering(t *testing.T) {
	svc, repo, _ := newAuthFixture(t)
	seedAuthUser(t, repo, "secret123")

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "adewale@example.com",
		Password: "secret123",
	})
	require.NoError(t, err)

	_, err = svc.ValidateToken(resp.AccessToken + "x")
	require.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}
