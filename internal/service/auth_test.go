package service

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/rvelloso/finledger-go/internal/domain"
)

func newAuth(store *fakeStore) *AuthService {
	return NewAuthService(store, "test-secret", 15*time.Minute, zap.NewNop())
}

func TestRegisterLoginValidateRoundTrip(t *testing.T) {
	store := newFakeStore()
	svc := newAuth(store)
	ctx := context.Background()

	reg, err := svc.Register(ctx, &domain.RegisterRequest{
		Email:    "  Alice@Example.Test ",
		Name:     "Alice",
		Password: "hunter2hunter2",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if reg.UserID == "" {
		t.Fatal("register returned an empty user id")
	}
	// Email is stored normalized.
	if _, ok := store.users["alice@example.test"]; !ok {
		t.Fatal("email was not lowercased and trimmed")
	}

	login, err := svc.Login(ctx, &domain.LoginRequest{
		Email:    "alice@example.test",
		Password: "hunter2hunter2",
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if login.UserID != reg.UserID || login.Name != "Alice" {
		t.Errorf("login response %+v does not match registration", login)
	}
	if login.ExpiresIn != int((15 * time.Minute).Seconds()) {
		t.Errorf("expiresIn %d, want 900", login.ExpiresIn)
	}

	ident, err := svc.ValidateAccessToken(login.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}
	if ident.UserID != reg.UserID || ident.Email != "alice@example.test" {
		t.Errorf("identity %+v does not match the registered user", ident)
	}
}

func TestRegister_Validation(t *testing.T) {
	svc := newAuth(newFakeStore())
	ctx := context.Background()

	cases := []struct {
		name string
		req  domain.RegisterRequest
	}{
		{"missing email", domain.RegisterRequest{Password: "hunter2hunter2"}},
		{"malformed email", domain.RegisterRequest{Email: "nope", Password: "hunter2hunter2"}},
		{"short password", domain.RegisterRequest{Email: "a@b.test", Password: "short"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Register(ctx, &tc.req); err == nil {
				t.Fatal("expected a validation error")
			} else if _, ok := err.(*domain.ErrValidation); !ok {
				t.Fatalf("expected ErrValidation, got %T", err)
			}
		})
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc := newAuth(newFakeStore())
	ctx := context.Background()

	req := &domain.RegisterRequest{Email: "bob@example.test", Password: "hunter2hunter2"}
	if _, err := svc.Register(ctx, req); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := svc.Register(ctx, req); err == nil {
		t.Fatal("expected a conflict")
	} else if _, ok := err.(*domain.ErrConflict); !ok {
		t.Fatalf("expected ErrConflict, got %T", err)
	}
}

func TestLogin_BadCredentialsIndistinguishable(t *testing.T) {
	svc := newAuth(newFakeStore())
	ctx := context.Background()

	if _, err := svc.Register(ctx, &domain.RegisterRequest{Email: "carol@example.test", Password: "hunter2hunter2"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, wrongPass := svc.Login(ctx, &domain.LoginRequest{Email: "carol@example.test", Password: "wrong-password"})
	_, noUser := svc.Login(ctx, &domain.LoginRequest{Email: "nobody@example.test", Password: "whatever"})

	for _, err := range []error{wrongPass, noUser} {
		if err == nil {
			t.Fatal("expected login to fail")
		}
		if _, ok := err.(*domain.ErrUnauthorized); !ok {
			t.Fatalf("expected ErrUnauthorized, got %T", err)
		}
	}
	if wrongPass.Error() != noUser.Error() {
		t.Errorf("bad-password and unknown-user errors differ: %q vs %q", wrongPass, noUser)
	}
}

func TestValidateAccessToken_RejectsTampering(t *testing.T) {
	store := newFakeStore()
	svc := newAuth(store)
	ctx := context.Background()

	if _, err := svc.Register(ctx, &domain.RegisterRequest{Email: "dave@example.test", Password: "hunter2hunter2"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	login, err := svc.Login(ctx, &domain.LoginRequest{Email: "dave@example.test", Password: "hunter2hunter2"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	// A token signed with a different secret does not validate.
	other := NewAuthService(store, "some-other-secret", 15*time.Minute, zap.NewNop())
	if _, err := other.ValidateAccessToken(login.AccessToken); err == nil {
		t.Error("token validated against the wrong secret")
	}

	if _, err := svc.ValidateAccessToken("garbage"); err == nil {
		t.Error("garbage token validated")
	}
	if _, err := svc.ValidateAccessToken(login.AccessToken[:len(login.AccessToken)-2] + "xx"); err == nil {
		t.Error("tampered signature validated")
	}
}
