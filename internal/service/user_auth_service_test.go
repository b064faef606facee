package service

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/flashmart-next/internal/config"
	"github.com/flashmart-next/internal/constants"
	"github.com/flashmart-next/internal/models"
	"github.com/flashmart-next/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupUserAuthTest(t *testing.T) (*UserAuthService, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:user_auth_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	cfg := &config.Config{}
	cfg.JWT.SecretKey = "user-auth-test-secret"
	cfg.JWT.ExpireHours = 1
	svc := NewUserAuthService(cfg, repository.NewUserRepository(db))
	return svc, db
}

func TestRegisterLoginRoundTrip(t *testing.T) {
	svc, _ := setupUserAuthTest(t)

	user, token, expiresAt, err := svc.Register("Demo@Example.com ", "s3cret-pass", "")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if user.Email != "demo@example.com" {
		t.Fatalf("email want demo@example.com got %q", user.Email)
	}
	if user.DisplayName != "demo" {
		t.Fatalf("display name want demo got %q", user.DisplayName)
	}
	if token == "" || !expiresAt.After(time.Now()) {
		t.Fatalf("token/expiry invalid: %q %v", token, expiresAt)
	}

	loggedIn, loginToken, _, err := svc.Login("demo@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if loggedIn.ID != user.ID || loginToken == "" {
		t.Fatalf("login result mismatch: %+v", loggedIn)
	}

	claims, err := svc.ParseJWT(loginToken)
	if err != nil {
		t.Fatalf("parse jwt failed: %v", err)
	}
	if claims.UserID != user.ID || claims.Email != user.Email {
		t.Fatalf("claims mismatch: %+v", claims)
	}
}

func TestRegisterRejectsInvalidInput(t *testing.T) {
	svc, _ := setupUserAuthTest(t)

	if _, _, _, err := svc.Register("not-an-email", "s3cret-pass", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput got %v", err)
	}
	if _, _, _, err := svc.Register("demo@example.com", "short", ""); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("want ErrWeakPassword got %v", err)
	}

	if _, _, _, err := svc.Register("demo@example.com", "s3cret-pass", ""); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, _, _, err := svc.Register("DEMO@example.com", "another-pass", ""); !errors.Is(err, ErrEmailExists) {
		t.Fatalf("want ErrEmailExists got %v", err)
	}
}

func TestLoginRejectsBadCredentialsAndDisabled(t *testing.T) {
	svc, db := setupUserAuthTest(t)

	if _, _, _, err := svc.Register("demo@example.com", "s3cret-pass", ""); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if _, _, _, err := svc.Login("demo@example.com", "wrong-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("want ErrInvalidCredentials got %v", err)
	}
	if _, _, _, err := svc.Login("nobody@example.com", "s3cret-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("want ErrInvalidCredentials got %v", err)
	}

	if err := db.Model(&models.User{}).Where("email = ?", "demo@example.com").
		Update("status", constants.UserStatusDisabled).Error; err != nil {
		t.Fatalf("disable user failed: %v", err)
	}
	if _, _, _, err := svc.Login("demo@example.com", "s3cret-pass"); !errors.Is(err, ErrUserDisabled) {
		t.Fatalf("want ErrUserDisabled got %v", err)
	}
}

func TestGetProfileNotFound(t *testing.T) {
	svc, _ := setupUserAuthTest(t)

	if _, err := svc.GetProfile(404); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound got %v", err)
	}
}
