package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"peopleflow.org/internal/perm"
	"peopleflow.org/internal/rbac"
)

func withSecret(t *testing.T, value string) {
	t.Helper()
	t.Setenv(secretEnvVariable, value)
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)
}

func TestGenerateAndValidateToken(t *testing.T) {
	withSecret(t, "unit-test-secret")

	token, err := GenerateToken("user-42", "sess-1", 30*time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "user-42" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if claims.SessionID != "sess-1" {
		t.Fatalf("unexpected session id: %s", claims.SessionID)
	}
	if claims.Issuer != issuer {
		t.Fatalf("unexpected issuer: %s", claims.Issuer)
	}
}

func TestGenerateTokenRequiresInput(t *testing.T) {
	withSecret(t, "unit-test-secret")
	if _, err := GenerateToken("", "sess-1", time.Minute); err == nil {
		t.Fatal("expected error for empty user")
	}
	if _, err := GenerateToken("user-1", "", time.Minute); err == nil {
		t.Fatal("expected error for empty session id")
	}
	if _, err := GenerateToken("user-1", "sess-1", 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}

func TestParseRejectsTamperedToken(t *testing.T) {
	withSecret(t, "unit-test-secret")
	token, err := GenerateToken("user-42", "sess-1", time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %s", token)
	}
	tampered := parts[0] + "." + parts[1] + ".AAAA" + parts[2][4:]
	if _, err := ParseAndValidate(tampered); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := ParseAndValidate(""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for empty token, got %v", err)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	withSecret(t, "first-secret")
	token, err := GenerateToken("user-42", "sess-1", time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	withSecret(t, "second-secret")
	if _, err := ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestMissingSecretFailsClosed(t *testing.T) {
	withSecret(t, "")
	if _, err := GenerateToken("user-42", "sess-1", time.Minute); err == nil {
		t.Fatal("expected error when secret is unset")
	}
}

func TestVerifyPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	if err := VerifyPassword(string(hash), "s3cret"); err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if err := VerifyPassword(string(hash), "wrong"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("expected ErrBadCredentials, got %v", err)
	}
	if err := VerifyPassword("", "s3cret"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("expected ErrBadCredentials for empty hash, got %v", err)
	}
}

func TestPrincipalContextRoundTrip(t *testing.T) {
	tenant := "tenant-1"
	p := Principal{
		User:           rbac.User{ID: "user-7", Email: "ana@acme.test"},
		State:          rbac.StateBound,
		ActiveTenantID: &tenant,
		Permissions:    perm.NewSet([]string{"clientes:ver", "facturas:gestionar"}),
	}
	ctx := ContextWithPrincipal(context.Background(), p)

	got, ok := PrincipalFromContext(ctx)
	if !ok {
		t.Fatal("principal not found in context")
	}
	if got.User.ID != "user-7" {
		t.Fatalf("unexpected user: %s", got.User.ID)
	}
	if !got.Can("clientes:ver") || !got.Can("facturas:crear") {
		t.Fatal("expected grants missing")
	}
	if got.Can("colaboradores:ver") {
		t.Fatal("ungranted permission allowed")
	}
	if !got.CanAny("nada:ver", "clientes:ver") {
		t.Fatal("CanAny should match one grant")
	}
	if got.CanAll() || got.CanAny() {
		t.Fatal("empty requirement lists must be false")
	}
	if !got.Bound() {
		t.Fatal("principal with active tenant should be bound")
	}

	if _, ok := PrincipalFromContext(context.Background()); ok {
		t.Fatal("empty context should not yield a principal")
	}
}
