package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/rvelloso/finledger-go/internal/domain"
	"github.com/rvelloso/finledger-go/internal/infra/observability"
	"github.com/rvelloso/finledger-go/internal/port"
	"github.com/rvelloso/finledger-go/internal/service"
)

// stubStore is a minimal in-memory port.Store for routing tests. The
// service-level behavior has its own tests; here we only need enough
// storage for auth and an empty export.
type stubStore struct {
	users   map[string]*domain.User
	pingErr error
}

func newStubStore() *stubStore {
	return &stubStore{users: map[string]*domain.User{}}
}

func (s *stubStore) RunInTx(ctx context.Context, fn func(tx port.Tx) error) error {
	return errors.New("not supported in routing tests")
}

func (s *stubStore) Ping(ctx context.Context) error { return s.pingErr }

func (s *stubStore) CreateUser(ctx context.Context, u *domain.User) error {
	if _, ok := s.users[u.Email]; ok {
		return &domain.ErrConflict{Message: "email already registered"}
	}
	cu := *u
	s.users[u.Email] = &cu
	return nil
}

func (s *stubStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	u, ok := s.users[email]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "user", ID: email}
	}
	cu := *u
	return &cu, nil
}

func (s *stubStore) ListBackups(ctx context.Context, userID string) ([]domain.BackupRecord, error) {
	return nil, nil
}

func (s *stubStore) GetBackup(ctx context.Context, userID string, backupID int64) (*domain.BackupRecord, error) {
	return nil, &domain.ErrNotFound{Resource: "backup", ID: "0"}
}

func (s *stubStore) ListAccounts(ctx context.Context, userID string) ([]domain.Account, error) {
	return nil, nil
}

func (s *stubStore) ListTransactions(ctx context.Context, userID string) ([]domain.Transaction, error) {
	return nil, nil
}

func (s *stubStore) ListLoans(ctx context.Context, userID string) ([]domain.Loan, error) {
	return nil, nil
}

func (s *stubStore) ListRecurringTransactions(ctx context.Context, userID string) ([]domain.RecurringTransaction, error) {
	return nil, nil
}

func (s *stubStore) ListCategories(ctx context.Context, userID string) ([]domain.Category, error) {
	return nil, nil
}

func newTestRouter(store *stubStore) http.Handler {
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	portSvc := service.NewPortabilityService(store, metrics, logger)
	loanSvc := service.NewLoanService(store, metrics, logger, false)
	authSvc := service.NewAuthService(store, "routing-test-secret", time.Hour, logger)
	return NewRouter(portSvc, loanSvc, authSvc, store, metrics, logger)
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// registerAndLogin creates a user and returns a valid access token.
func registerAndLogin(t *testing.T, router http.Handler, email string) string {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/v1/auth/register", "", domain.RegisterRequest{
		Email: email, Name: "Test User", Password: "correct horse",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodPost, "/v1/auth/login", "", domain.LoginRequest{
		Email: email, Password: "correct horse",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d %s", rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatal("login returned an empty token")
	}
	return resp.AccessToken
}

// ============================================================
// Operational endpoints
// ============================================================

func TestHealthz(t *testing.T) {
	store := newStubStore()
	router := newTestRouter(store)

	rec := doJSON(t, router, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthy: %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "healthy" || resp["database"] != "up" {
		t.Errorf("unexpected health body: %v", resp)
	}

	store.pingErr = errors.New("connection refused")
	rec = doJSON(t, router, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("degraded: %d", rec.Code)
	}
}

func TestReadyzAndPing(t *testing.T) {
	router := newTestRouter(newStubStore())

	if rec := doJSON(t, router, http.MethodGet, "/readyz", "", nil); rec.Code != http.StatusOK {
		t.Errorf("readyz: %d", rec.Code)
	}
	if rec := doJSON(t, router, http.MethodGet, "/ping", "", nil); rec.Code != http.StatusOK {
		t.Errorf("ping: %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(newStubStore())

	rec := doJSON(t, router, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rec.Code)
	}
}

// ============================================================
// Auth and protection
// ============================================================

func TestProtectedRoutesRequireToken(t *testing.T) {
	router := newTestRouter(newStubStore())

	cases := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/v1/export"},
		{http.MethodPost, "/v1/import"},
		{http.MethodGet, "/v1/backups"},
		{http.MethodPost, "/v1/backups/1/restore"},
		{http.MethodPost, "/v1/loans/1/payments"},
	}
	for _, tc := range cases {
		rec := doJSON(t, router, tc.method, tc.path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without token: %d, want 401", tc.method, tc.path, rec.Code)
		}
	}
}

func TestMalformedAuthorizationHeader(t *testing.T) {
	router := newTestRouter(newStubStore())

	req := httptest.NewRequest(http.MethodGet, "/v1/export", nil)
	req.Header.Set("Authorization", "Token abc")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("non-bearer scheme: %d, want 401", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/v1/export", "not.a.jwt", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("garbage token: %d, want 401", rec.Code)
	}
}

func TestRegisterValidation(t *testing.T) {
	router := newTestRouter(newStubStore())

	rec := doJSON(t, router, http.MethodPost, "/v1/auth/register", "", domain.RegisterRequest{
		Email: "not-an-email", Password: "correct horse",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad email: %d, want 400", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/v1/auth/register", "", domain.RegisterRequest{
		Email: "a@b.test", Password: "short",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("short password: %d, want 400", rec.Code)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	router := newTestRouter(newStubStore())
	registerAndLogin(t, router, "dup@example.test")

	rec := doJSON(t, router, http.MethodPost, "/v1/auth/register", "", domain.RegisterRequest{
		Email: "dup@example.test", Name: "Again", Password: "correct horse",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate register: %d, want 409", rec.Code)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	router := newTestRouter(newStubStore())
	registerAndLogin(t, router, "alice@example.test")

	rec := doJSON(t, router, http.MethodPost, "/v1/auth/login", "", domain.LoginRequest{
		Email: "alice@example.test", Password: "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password: %d, want 401", rec.Code)
	}

	// Unknown users get the same answer as wrong passwords.
	rec = doJSON(t, router, http.MethodPost, "/v1/auth/login", "", domain.LoginRequest{
		Email: "nobody@example.test", Password: "whatever",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unknown user: %d, want 401", rec.Code)
	}
}

// ============================================================
// Authenticated flows
// ============================================================

func TestExportWithValidToken(t *testing.T) {
	router := newTestRouter(newStubStore())
	token := registerAndLogin(t, router, "carol@example.test")

	rec := doJSON(t, router, http.MethodGet, "/v1/export", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export: %d %s", rec.Code, rec.Body.String())
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.ExportInfo.Version != domain.SnapshotVersion {
		t.Errorf("version %q, want %q", snap.ExportInfo.Version, domain.SnapshotVersion)
	}
}

func TestListBackupsReturnsEmptyArray(t *testing.T) {
	router := newTestRouter(newStubStore())
	token := registerAndLogin(t, router, "dave@example.test")

	rec := doJSON(t, router, http.MethodGet, "/v1/backups", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("backups: %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("empty backup list serialized as %q, want []", body)
	}
}

func TestImportRejectsInvalidBody(t *testing.T) {
	router := newTestRouter(newStubStore())
	token := registerAndLogin(t, router, "erin@example.test")

	req := httptest.NewRequest(http.MethodPost, "/v1/import", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid body: %d, want 400", rec.Code)
	}
}

func TestImportRejectsSnapshotWithoutMetadata(t *testing.T) {
	router := newTestRouter(newStubStore())
	token := registerAndLogin(t, router, "frank@example.test")

	rec := doJSON(t, router, http.MethodPost, "/v1/import", token, map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing exportInfo: %d, want 400", rec.Code)
	}
}

func TestRestoreInvalidBackupID(t *testing.T) {
	router := newTestRouter(newStubStore())
	token := registerAndLogin(t, router, "grace@example.test")

	rec := doJSON(t, router, http.MethodPost, "/v1/backups/abc/restore", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("non-numeric backup id: %d, want 400", rec.Code)
	}
}

func TestLoanPaymentInvalidLoanID(t *testing.T) {
	router := newTestRouter(newStubStore())
	token := registerAndLogin(t, router, "heidi@example.test")

	rec := doJSON(t, router, http.MethodPost, "/v1/loans/abc/payments", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("non-numeric loan id: %d, want 400", rec.Code)
	}
}

func TestPortabilityMetricsEndpoint(t *testing.T) {
	router := newTestRouter(newStubStore())
	token := registerAndLogin(t, router, "ivan@example.test")

	rec := doJSON(t, router, http.MethodGet, "/v1/metrics/portability", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("portability metrics: %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
}
