package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/viewisland/internal/db"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const defaultTokenTTL = 24 * time.Hour

// Principal 是已认证的调用者身份。
type Principal struct {
	UserID uint    `json:"id"`
	Email  string  `json:"email"`
	Role   db.Role `json:"role"`
}

// Claims 是签发给后台用户的 JWT 载荷。
type Claims struct {
	Email string  `json:"email"`
	Role  db.Role `json:"role"`
	jwt.RegisteredClaims
}

// LoginResult 登录成功后返回的令牌与用户信息。
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      Principal `json:"user"`
}

// AuthService 负责后台账号的密码校验与令牌签发。
type AuthService struct {
	db     *gorm.DB
	secret []byte
	ttl    time.Duration
	clock  Clock
}

// NewAuthService creates an AuthService signing tokens with secret.
func NewAuthService(gdb *gorm.DB, secret string, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &AuthService{db: gdb, secret: []byte(secret), ttl: ttl, clock: systemClock}
}

// WithClock 替换时间来源。
func (s *AuthService) WithClock(clock Clock) *AuthService {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// Login 校验邮箱与密码，成功时签发令牌。
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	principal, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.IssueToken(*principal)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: *principal}, nil
}

// Authenticate 只校验凭据，不签发令牌，供会话登录复用。
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*Principal, error) {
	var user db.User
	if err := s.db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return &Principal{UserID: user.ID, Email: user.Email, Role: user.Role}, nil
}

// IssueToken signs an HS256 token for principal.
func (s *AuthService) IssueToken(principal Principal) (string, time.Time, error) {
	now := s.clock().UTC()
	expiresAt := now.Add(s.ttl)
	claims := Claims{
		Email: principal.Email,
		Role:  principal.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(principal.UserID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// VerifyToken 解析并校验令牌，返回其中的身份。
func (s *AuthService) VerifyToken(raw string) (*Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 || !claims.Role.Valid() {
		return nil, ErrInvalidToken
	}

	return &Principal{UserID: uint(id), Email: claims.Email, Role: claims.Role}, nil
}

// EnsureAdmin 确保超级管理员账号存在；已存在时不修改密码。
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return false, nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&db.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	if _, err := CreateUser(ctx, s.db, email, password, "Super Admin", db.RoleSuperAdmin); err != nil {
		return false, err
	}
	return true, nil
}

// CreateUser hashes password and stores a new account.
func CreateUser(ctx context.Context, gdb *gorm.DB, email, password, fullName string, role db.Role) (*db.User, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("role %q: %w", role, ErrInvalidInput)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := db.User{
		Email:    strings.ToLower(strings.TrimSpace(email)),
		Password: string(hashed),
		FullName: strings.TrimSpace(fullName),
		Role:     role,
	}
	if err := gdb.WithContext(ctx).Create(&user).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("user %s already exists: %w", user.Email, ErrConflict)
		}
		return nil, err
	}
	return &user, nil
}
