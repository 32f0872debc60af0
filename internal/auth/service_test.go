package auth

import (
	"testing"
	"time"

	"github.com/cratos-run/cratos/pkg/models"
)

func TestValidateAPIKey(t *testing.T) {
	svc := NewService(Config{APIKeys: []APIKeyConfig{
		{Key: "secret-1", UserID: "u1", Scopes: []string{models.ScopeSessionWrite}},
	}})

	user, err := svc.ValidateAPIKey("secret-1")
	if err != nil {
		t.Fatalf("ValidateAPIKey() error = %v", err)
	}
	if user.ID != "u1" {
		t.Errorf("user.ID = %q, want u1", user.ID)
	}
	if !user.HasScope(models.ScopeSessionWrite) {
		t.Error("expected SessionWrite scope")
	}

	if _, err := svc.ValidateAPIKey("wrong"); err == nil {
		t.Error("expected error for wrong key")
	}
	if _, err := svc.ValidateAPIKey(""); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestAdminScopeImpliesOthers(t *testing.T) {
	user := &models.User{ID: "root", Scopes: []string{models.ScopeAdmin}}
	if !user.HasScope(models.ScopeConfigWrite) {
		t.Error("Admin should imply ConfigWrite")
	}
}

func TestJWTRoundTrip(t *testing.T) {
	svc := NewService(Config{JWTSecret: "test-secret", TokenExpiry: time.Hour})

	token, err := svc.IssueJWT(&models.User{ID: "u2", Scopes: []string{models.ScopeSessionRead}})
	if err != nil {
		t.Fatalf("IssueJWT() error = %v", err)
	}

	user, err := svc.ValidateJWT(token)
	if err != nil {
		t.Fatalf("ValidateJWT() error = %v", err)
	}
	if user.ID != "u2" || !user.HasScope(models.ScopeSessionRead) {
		t.Errorf("unexpected user %+v", user)
	}

	if _, err := svc.ValidateJWT(token + "x"); err == nil {
		t.Error("expected error for tampered token")
	}
}

func TestEnabled(t *testing.T) {
	if NewService(Config{}).Enabled() {
		t.Error("empty config should be disabled")
	}
	if !NewService(Config{JWTSecret: "s"}).Enabled() {
		t.Error("jwt secret should enable the service")
	}
}
