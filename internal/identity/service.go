// Package identity registers users, checks their credentials and issues the
// signed tokens the API uses to authorize requests.
package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"retailpos/m/domain"
	"retailpos/m/internal/apperr"
	"retailpos/m/internal/database"
)

const (
	issuer = "retailpos"

	minUsernameLen = 3
	minPasswordLen = 5
	// bcrypt ignores everything past 72 bytes.
	maxPasswordBytes = 72
)

// Claims is the payload of an issued token.
type Claims struct {
	UserID   int64       `json:"user_id"`
	Username string      `json:"username"`
	Role     domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// Token is the result of a successful login.
type Token struct {
	Token     string    `json:"token"`
	TokenType string    `json:"tokenType"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Service handles users and tokens.
type Service struct {
	db     *sqlx.DB
	secret []byte
	ttl    time.Duration
	logger *slog.Logger
	cost   int
	now    func() time.Time
}

// NewService creates an identity service signing tokens with secret.
func NewService(db *sqlx.DB, secret string, ttl time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Service{
		db:     db,
		secret: []byte(secret),
		ttl:    ttl,
		logger: logger,
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
	}
}

// Register creates a standard user.
func (s *Service) Register(ctx context.Context, username, password string) (*domain.User, error) {
	return s.CreateUser(ctx, username, password, domain.RoleStandard)
}

// CreateUser creates a user with an explicit role.
func (s *Service) CreateUser(ctx context.Context, username, password string, role domain.Role) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if err := checkCredentials(username, password); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, apperr.Validation("role must be standard or manager")
	}

	var exists bool
	if err := s.db.GetContext(ctx, &exists, s.db.Rebind(`SELECT EXISTS(SELECT 1 FROM users WHERE username = ?)`), username); err != nil {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if exists {
		return nil, apperr.Conflict("username %q is already taken", username)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		s.logger.Error("failed to hash password", slog.String("error", err.Error()))
		return nil, apperr.Internal("failed to register user", err)
	}

	user := &domain.User{
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    s.now().UTC().Truncate(time.Microsecond),
	}
	err = s.db.QueryRowxContext(ctx, s.db.Rebind(`INSERT INTO users (username, password_hash, role, created_at) VALUES (?, ?, ?, ?) RETURNING id`),
		user.Username, user.PasswordHash, user.Role, user.CreatedAt).Scan(&user.ID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, apperr.Conflict("username %q is already taken", username)
		}
		s.logger.Error("failed to create user", slog.String("username", username), slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("user created", slog.Int64("user_id", user.ID), slog.String("role", string(role)))
	return user, nil
}

// Authenticate checks credentials and issues a token. Unknown users and wrong
// passwords produce the same error.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*Token, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperr.Validation("username and password are required")
	}

	var user domain.User
	err := s.db.GetContext(ctx, &user, s.db.Rebind(`SELECT id, username, password_hash, role, created_at FROM users WHERE username = ?`), username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Info("login attempt for unknown user", slog.String("username", username))
			return nil, apperr.Auth("invalid credentials")
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.Info("login failed with wrong password", slog.String("username", username))
		return nil, apperr.Auth("invalid credentials")
	}

	token, err := s.issue(&user)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user logged in", slog.Int64("user_id", user.ID))
	return token, nil
}

// VerifyToken checks signature, algorithm, issuer and expiry.
func (s *Service) VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return nil, apperr.Auth("invalid or expired token")
	}
	if !claims.Role.Valid() || claims.UserID <= 0 {
		return nil, apperr.Auth("invalid token claims")
	}
	return claims, nil
}

// ListUsers returns every user without password hashes.
func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	users := []domain.User{}
	if err := s.db.SelectContext(ctx, &users, `SELECT id, username, role, created_at FROM users ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// UserExists reports whether id names a user.
func (s *Service) UserExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	if err := s.db.GetContext(ctx, &exists, s.db.Rebind(`SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)`), id); err != nil {
		return false, fmt.Errorf("failed to check user: %w", err)
	}
	return exists, nil
}

func (s *Service) issue(user *domain.User) (*Token, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := Claims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		s.logger.Error("failed to sign token", slog.String("error", err.Error()))
		return nil, apperr.Internal("failed to generate token", err)
	}
	return &Token{Token: signed, TokenType: "Bearer", ExpiresAt: expiresAt.UTC()}, nil
}

func checkCredentials(username, password string) error {
	var problems []string
	if utf8.RuneCountInString(username) < minUsernameLen {
		problems = append(problems, fmt.Sprintf("username must be at least %d characters", minUsernameLen))
	}
	if utf8.RuneCountInString(password) < minPasswordLen {
		problems = append(problems, fmt.Sprintf("password must be at least %d characters", minPasswordLen))
	}
	if len(password) > maxPasswordBytes {
		problems = append(problems, fmt.Sprintf("password must be at most %d bytes", maxPasswordBytes))
	}
	if len(problems) > 0 {
		return apperr.Validation("%s", strings.Join(problems, "; "))
	}
	return nil
}
