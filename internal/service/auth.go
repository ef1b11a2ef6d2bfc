package service

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/CivStat/MetricBoard/internal/config"
	"github.com/CivStat/MetricBoard/internal/domain"
	"github.com/CivStat/MetricBoard/internal/domain/user"
	"github.com/CivStat/MetricBoard/internal/port/database"
)

const (
	tokenAudience = "metricboard"
	tokenIssuer   = "metricboard-api"
)

// AuthService handles authentication, access tokens and refresh tokens.
type AuthService struct {
	store  database.Store
	cfg    *config.Auth
	secret []byte
}

// NewAuthService creates a new authentication service.
func NewAuthService(store database.Store, cfg *config.Auth) *AuthService {
	return &AuthService{
		store:  store,
		cfg:    cfg,
		secret: []byte(cfg.JWTSecret),
	}
}

// Register creates a new user with a bcrypt-hashed password.
func (s *AuthService) Register(ctx context.Context, req *user.CreateRequest) (*user.User, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), domain.ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &user.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: string(hash),
		Role:         req.Role,
		AgencyID:     req.AgencyID,
		Enabled:      true,
	}

	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// Login authenticates a user and returns an access token plus the raw
// refresh token (stored only as a SHA-256 hash).
func (s *AuthService) Login(ctx context.Context, req user.LoginRequest) (*user.LoginResponse, string, error) {
	if err := req.Validate(); err != nil {
		return nil, "", fmt.Errorf("%s: %w", err.Error(), domain.ErrValidation)
	}

	u, err := s.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, "", errors.New("invalid credentials")
		}
		return nil, "", fmt.Errorf("get user: %w", err)
	}

	if !u.Enabled {
		return nil, "", errors.New("account is disabled")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return nil, "", errors.New("invalid credentials")
	}

	accessToken, err := s.signToken(u)
	if err != nil {
		return nil, "", fmt.Errorf("sign token: %w", err)
	}

	rawToken, err := generateRandomToken(32)
	if err != nil {
		return nil, "", fmt.Errorf("generate refresh token: %w", err)
	}

	rt := &user.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		TokenHash: hashSHA256(rawToken),
		ExpiresAt: time.Now().Add(s.cfg.RefreshTokenExpiry),
	}
	if err := s.store.CreateRefreshToken(ctx, rt); err != nil {
		return nil, "", fmt.Errorf("store refresh token: %w", err)
	}

	resp := &user.LoginResponse{
		AccessToken: accessToken,
		ExpiresIn:   int(s.cfg.AccessTokenExpiry.Seconds()),
		User:        *u,
	}
	return resp, rawToken, nil
}

// RefreshTokens validates a refresh token, rotates it, and issues a new
// access token.
func (s *AuthService) RefreshTokens(ctx context.Context, rawToken string) (*user.LoginResponse, string, error) {
	rt, err := s.store.GetRefreshTokenByHash(ctx, hashSHA256(rawToken))
	if err != nil {
		return nil, "", errors.New("invalid refresh token")
	}

	if time.Now().After(rt.ExpiresAt) {
		_ = s.store.DeleteRefreshToken(ctx, rt.ID)
		return nil, "", errors.New("refresh token expired")
	}

	u, err := s.store.GetUserByID(ctx, rt.UserID)
	if err != nil {
		return nil, "", fmt.Errorf("get user: %w", err)
	}

	if !u.Enabled {
		return nil, "", errors.New("account is disabled")
	}

	accessToken, err := s.signToken(u)
	if err != nil {
		return nil, "", fmt.Errorf("sign token: %w", err)
	}

	// Rotate: the presented token is single-use.
	if err := s.store.DeleteRefreshToken(ctx, rt.ID); err != nil {
		return nil, "", fmt.Errorf("rotate refresh token: %w", err)
	}

	newRawToken, err := generateRandomToken(32)
	if err != nil {
		return nil, "", fmt.Errorf("generate refresh token: %w", err)
	}
	newRT := &user.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		TokenHash: hashSHA256(newRawToken),
		ExpiresAt: time.Now().Add(s.cfg.RefreshTokenExpiry),
	}
	if err := s.store.CreateRefreshToken(ctx, newRT); err != nil {
		return nil, "", fmt.Errorf("store refresh token: %w", err)
	}

	resp := &user.LoginResponse{
		AccessToken: accessToken,
		ExpiresIn:   int(s.cfg.AccessTokenExpiry.Seconds()),
		User:        *u,
	}
	return resp, newRawToken, nil
}

// Logout invalidates the presented refresh token.
func (s *AuthService) Logout(ctx context.Context, rawToken string) error {
	rt, err := s.store.GetRefreshTokenByHash(ctx, hashSHA256(rawToken))
	if err != nil {
		return nil // already invalid
	}
	return s.store.DeleteRefreshToken(ctx, rt.ID)
}

// ValidateAccessToken verifies a signed token and returns the claims.
func (s *AuthService) ValidateAccessToken(tokenStr string) (*user.TokenClaims, error) {
	return s.verifyToken(tokenStr)
}

// ChangePassword verifies the old password, hashes the new one and updates
// the user.
func (s *AuthService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if len(newPassword) < 8 {
		return fmt.Errorf("password must be at least 8 characters: %w", domain.ErrValidation)
	}

	u, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(oldPassword)); err != nil {
		return fmt.Errorf("current password is incorrect: %w", domain.ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	return s.store.UpdateUserPassword(ctx, u.ID, string(hash))
}

// ResetPassword sets a new password without verifying the old one.
// Admin CLI only; never reachable from the HTTP surface.
func (s *AuthService) ResetPassword(ctx context.Context, email, newPassword string) error {
	if len(newPassword) < 8 {
		return fmt.Errorf("password must be at least 8 characters: %w", domain.ErrValidation)
	}

	u, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	return s.store.UpdateUserPassword(ctx, u.ID, string(hash))
}

// ListUsers returns all registered users.
func (s *AuthService) ListUsers(ctx context.Context) ([]user.User, error) {
	return s.store.ListUsers(ctx)
}

// StartTokenCleanup starts a background goroutine that periodically purges
// expired refresh tokens. It stops when ctx is cancelled.
func (s *AuthService) StartTokenCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.store.DeleteExpiredRefreshTokens(ctx)
				if err != nil {
					slog.Warn("failed to purge expired refresh tokens", "error", err)
				} else if n > 0 {
					slog.Info("purged expired refresh tokens", "count", n)
				}
			}
		}
	}()
}

// --- Token implementation (HS256 with stdlib) ---

// tokenHeader is the fixed base64url-encoded header for HS256.
var tokenHeader = base64URLEncode([]byte(`{"alg":"HS256","typ":"JWT"}`))

func (s *AuthService) signToken(u *user.User) (string, error) {
	now := time.Now()
	claims := struct {
		user.TokenClaims
		Audience string `json:"aud"`
		Issuer   string `json:"iss"`
	}{
		TokenClaims: user.TokenClaims{
			UserID:   u.ID,
			Email:    u.Email,
			Name:     u.Name,
			Role:     u.Role,
			AgencyID: u.AgencyID,
			IssuedAt: now.Unix(),
			Expiry:   now.Add(s.cfg.AccessTokenExpiry).Unix(),
		},
		Audience: tokenAudience,
		Issuer:   tokenIssuer,
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}

	signingInput := tokenHeader + "." + base64URLEncode(payload)

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(signingInput))
	sig := base64URLEncode(mac.Sum(nil))

	return signingInput + "." + sig, nil
}

func (s *AuthService) verifyToken(tokenStr string) (*user.TokenClaims, error) {
	parts := strings.SplitN(tokenStr, ".", 3)
	if len(parts) != 3 {
		return nil, errors.New("malformed token")
	}

	signingInput := parts[0] + "." + parts[1]
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(signingInput))
	expectedSig := base64URLEncode(mac.Sum(nil))

	if !hmac.Equal([]byte(parts[2]), []byte(expectedSig)) {
		return nil, errors.New("invalid signature")
	}

	payload, err := base64URLDecode(parts[1])
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	var claims struct {
		user.TokenClaims
		Audience string `json:"aud"`
		Issuer   string `json:"iss"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("unmarshal claims: %w", err)
	}

	if time.Now().Unix() > claims.Expiry {
		return nil, errors.New("token expired")
	}
	if claims.Audience != tokenAudience {
		return nil, errors.New("invalid token audience")
	}
	if claims.Issuer != tokenIssuer {
		return nil, errors.New("invalid token issuer")
	}

	return &claims.TokenClaims, nil
}

// --- Helpers ---

func base64URLEncode(data []byte) string {
	return strings.TrimRight(base64.URLEncoding.EncodeToString(data), "=")
}

func base64URLDecode(s string) ([]byte, error) {
	// Add padding back
	switch len(s) % 4 {
	case 2:
		s += "=="
	case 3:
		s += "="
	}
	return base64.URLEncoding.DecodeString(s)
}

func hashSHA256(data string) string {
	h := sha256.Sum256([]byte(data))
	return hex.EncodeToString(h[:])
}

func generateRandomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
