package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/CivStat/MetricBoard/internal/config"
	"github.com/CivStat/MetricBoard/internal/domain"
	"github.com/CivStat/MetricBoard/internal/domain/user"
)

func newAuthService(store *fakeStore) *AuthService {
	return NewAuthService(store, &config.Auth{
		JWTSecret:          "test-secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		BcryptCost:         4,
	})
}

func registerTestUser(t *testing.T, svc *AuthService) *user.User {
	t.Helper()
	u, err := svc.Register(context.Background(), &user.CreateRequest{
		Email:    "analyst@transport.gov",
		Name:     "Analyst",
		Password: "correct-horse",
		Role:     user.RoleAgency,
		AgencyID: "agency-a",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return u
}

func TestRegisterValidation(t *testing.T) {
	svc := newAuthService(newFakeStore())
	_, err := svc.Register(context.Background(), &user.CreateRequest{
		Email:    "analyst@transport.gov",
		Name:     "Analyst",
		Password: "short",
		Role:     user.RoleAgency,
		AgencyID: "agency-a",
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLoginIssuesVerifiableToken(t *testing.T) {
	store := newFakeStore()
	svc := newAuthService(store)
	u := registerTestUser(t, svc)

	resp, rawRefresh, err := svc.Login(context.Background(), user.LoginRequest{
		Email:    u.Email,
		Password: "correct-horse",
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if rawRefresh == "" {
		t.Fatal("expected a refresh token")
	}
	if _, ok := store.tokens[hashSHA256(rawRefresh)]; !ok {
		t.Fatal("refresh token not stored by hash")
	}

	claims, err := svc.ValidateAccessToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}
	if claims.UserID != u.ID || claims.Role != user.RoleAgency || claims.AgencyID != "agency-a" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc := newAuthService(newFakeStore())
	u := registerTestUser(t, svc)

	_, _, err := svc.Login(context.Background(), user.LoginRequest{
		Email:    u.Email,
		Password: "wrong",
	})
	if err == nil {
		t.Fatal("expected login failure")
	}
}

func TestValidateRejectsTamperedToken(t *testing.T) {
	svc := newAuthService(newFakeStore())
	u := registerTestUser(t, svc)

	resp, _, err := svc.Login(context.Background(), user.LoginRequest{
		Email:    u.Email,
		Password: "correct-horse",
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	tampered := resp.AccessToken[:len(resp.AccessToken)-2] + "xx"
	if _, err := svc.ValidateAccessToken(tampered); err == nil {
		t.Fatal("expected tampered token to be rejected")
	}
	if _, err := svc.ValidateAccessToken("not-a-token"); err == nil {
		t.Fatal("expected malformed token to be rejected")
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	store := newFakeStore()
	svc := newAuthService(store)
	u := registerTestUser(t, svc)

	_, rawRefresh, err := svc.Login(context.Background(), user.LoginRequest{
		Email:    u.Email,
		Password: "correct-horse",
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	resp, newRefresh, err := svc.RefreshTokens(context.Background(), rawRefresh)
	if err != nil {
		t.Fatalf("RefreshTokens: %v", err)
	}
	if newRefresh == rawRefresh {
		t.Fatal("refresh token was not rotated")
	}
	if _, err := svc.ValidateAccessToken(resp.AccessToken); err != nil {
		t.Fatalf("new access token invalid: %v", err)
	}

	// The old token is single-use.
	if _, _, err := svc.RefreshTokens(context.Background(), rawRefresh); err == nil {
		t.Fatal("expected old refresh token to be rejected")
	}
	if _, _, err := svc.RefreshTokens(context.Background(), newRefresh); err != nil {
		t.Fatalf("rotated token should still work: %v", err)
	}
}

func TestRefreshExpiredToken(t *testing.T) {
	store := newFakeStore()
	svc := newAuthService(store)
	u := registerTestUser(t, svc)

	_, rawRefresh, err := svc.Login(context.Background(), user.LoginRequest{
		Email:    u.Email,
		Password: "correct-horse",
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	rt := store.tokens[hashSHA256(rawRefresh)]
	rt.ExpiresAt = time.Now().Add(-time.Minute)

	if _, _, err := svc.RefreshTokens(context.Background(), rawRefresh); err == nil {
		t.Fatal("expected expired refresh token to be rejected")
	}
	if len(store.tokens) != 0 {
		t.Fatal("expired token should have been deleted")
	}
}

func TestLogoutInvalidatesRefreshToken(t *testing.T) {
	store := newFakeStore()
	svc := newAuthService(store)
	u := registerTestUser(t, svc)

	_, rawRefresh, err := svc.Login(context.Background(), user.LoginRequest{
		Email:    u.Email,
		Password: "correct-horse",
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := svc.Logout(context.Background(), rawRefresh); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, _, err := svc.RefreshTokens(context.Background(), rawRefresh); err == nil {
		t.Fatal("expected refresh to fail after logout")
	}

	// Logging out an unknown token is a no-op.
	if err := svc.Logout(context.Background(), "unknown"); err != nil {
		t.Fatalf("Logout unknown token: %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	store := newFakeStore()
	svc := newAuthService(store)
	u := registerTestUser(t, svc)

	err := svc.ChangePassword(context.Background(), u.ID, "wrong", "brand-new-pass")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for wrong old password, got %v", err)
	}

	if err := svc.ChangePassword(context.Background(), u.ID, "correct-horse", "brand-new-pass"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	if _, _, err := svc.Login(context.Background(), user.LoginRequest{Email: u.Email, Password: "correct-horse"}); err == nil {
		t.Fatal("old password should no longer work")
	}
	if _, _, err := svc.Login(context.Background(), user.LoginRequest{Email: u.Email, Password: "brand-new-pass"}); err != nil {
		t.Fatalf("new password should work: %v", err)
	}
}

func TestResetPassword(t *testing.T) {
	store := newFakeStore()
	svc := newAuthService(store)
	u := registerTestUser(t, svc)

	if err := svc.ResetPassword(context.Background(), u.Email, "reset-by-admin"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if _, _, err := svc.Login(context.Background(), user.LoginRequest{Email: u.Email, Password: "reset-by-admin"}); err != nil {
		t.Fatalf("login after reset: %v", err)
	}
}
