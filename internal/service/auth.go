package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/reelvault/reelvault/internal/config"
	"github.com/reelvault/reelvault/internal/model"
)

var (
	ErrInvalidLogin = errors.New("invalid credentials")
	ErrInvalidToken = errors.New("invalid token")
	ErrForbidden    = errors.New("admin access required")
	ErrUserExists   = errors.New("user already exists")
	ErrInvalidEmail = errors.New("a valid email is required")
	ErrWeakPassword = errors.New("password must be at least 8 characters")
)

const minPasswordLength = 8

// Session is the identity carried by an admin JWT.
type Session struct {
	UserID string
	Email  string
	Role   string
}

// IsAdmin reports whether the session may manage keys and movies.
func (s *Session) IsAdmin() bool {
	return s != nil && s.Role == model.RoleAdmin
}

type AuthService struct {
	store     *config.Store
	jwtSecret []byte
	ttl       time.Duration
	cost      int
}

func NewAuthService(store *config.Store, jwtSecret string, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthService{
		store:     store,
		jwtSecret: []byte(jwtSecret),
		ttl:       ttl,
		cost:      bcrypt.DefaultCost,
	}
}

// SetHashCost overrides the bcrypt cost for new passwords.
func (s *AuthService) SetHashCost(cost int) {
	if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
		s.cost = cost
	}
}

// TTL is the lifetime of issued tokens.
func (s *AuthService) TTL() time.Duration {
	return s.ttl
}

// Register creates an account. The very first account becomes an admin;
// every later one is a plain user.
func (s *AuthService) Register(ctx context.Context, email, password string) (*model.User, error) {
	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	role := model.RoleUser
	if count == 0 {
		role = model.RoleAdmin
	}
	return s.CreateUser(ctx, email, password, role)
}

// CreateUser creates an account with an explicit role.
func (s *AuthService) CreateUser(ctx context.Context, email, password, role string) (*model.User, error) {
	email = NormalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, ErrInvalidEmail
	}
	if len(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}
	if role != model.RoleAdmin && role != model.RoleUser {
		return nil, fmt.Errorf("unknown role %q", role)
	}

	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, config.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate user id: %w", err)
	}

	user := &model.User{
		ID:           id.String(),
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		// A concurrent registration can slip past the lookup above.
		if errors.Is(err, config.ErrConflict) {
			return nil, ErrUserExists
		}
		return nil, err
	}
	return user, nil
}

// Login checks an email and password and returns a signed session token.
// Unknown emails and wrong passwords are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (*model.User, string, error) {
	user, err := s.store.GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return nil, "", ErrInvalidLogin
		}
		return nil, "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidLogin
	}

	token, err := s.IssueJWT(ctx, user, s.ttl)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// ValidateJWT verifies a session token and returns its identity.
func (s *AuthService) ValidateJWT(ctx context.Context, tokenStr string) (*Session, error) {
	claims := &jwtClaims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	return &Session{
		UserID: claims.Subject,
		Email:  claims.Email,
		Role:   claims.Role,
	}, nil
}

// IssueJWT creates a new signed token for the given user.
func (s *AuthService) IssueJWT(ctx context.Context, user *model.User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwtClaims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "reelvault",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

type jwtClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// NormalizeEmail lower-cases and trims an address so lookups are
// case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
