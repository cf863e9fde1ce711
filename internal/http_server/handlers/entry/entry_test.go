package entry_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	entrysvc "entry_service/internal/entry"
	handler "entry_service/internal/http_server/handlers/entry"
	"entry_service/internal/models"
	"entry_service/internal/storage"
)

type fakeStore struct {
	company models.Company
	secret  string
	user    models.User
	key     string
	ledger  int
}

func (f *fakeStore) CompanyByID(_ context.Context, id int64) (models.Company, error) {
	if id != f.company.ID {
		return models.Company{}, storage.ErrCompanyNotFound
	}
	return f.company, nil
}

func (f *fakeStore) CompanyByName(_ context.Context, name string) (models.Company, error) {
	if name != f.company.Name {
		return models.Company{}, storage.ErrCompanyNotFound
	}
	return f.company, nil
}

func (f *fakeStore) ActiveSecret(_ context.Context, _ int64) (string, error) {
	return f.secret, nil
}

func (f *fakeStore) UserByPhone(_ context.Context, _ int64, phone string) (models.User, error) {
	if phone != f.user.PhoneNumber {
		return models.User{}, storage.ErrUserNotFound
	}
	return f.user, nil
}

func (f *fakeStore) UserByName(_ context.Context, _ int64, first, last string) (models.User, error) {
	if first != f.user.FirstName || last != f.user.LastName {
		return models.User{}, storage.ErrUserNotFound
	}
	return f.user, nil
}

func (f *fakeStore) VerificationKey(_ context.Context, _ int64) (string, error) {
	return f.key, nil
}

func (f *fakeStore) SaveIssuedToken(_ context.Context, _ int64, _ string) error {
	f.ledger++
	return nil
}

func newHandler() (http.HandlerFunc, *fakeStore) {
	store := &fakeStore{
		company: models.Company{
			ID:              1,
			Name:            "acme",
			CallbackURL:     "https://app.example.com/cb",
			JWTAlg:          models.AlgHS256,
			TokenTTLSeconds: 3600,
		},
		secret: "company-secret",
		user: models.User{
			ID:          9,
			CompanyID:   1,
			PhoneNumber: "+15550001",
			FirstName:   "Ann",
			LastName:    "Lee",
			Role:        "manager",
		},
		key: "abc123",
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := entrysvc.New(log, store, store, store, store, store, nil, nil)

	return handler.New(log, service), store
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var body struct {
		Error string `json:"error"`
	}

	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}

	return body.Error
}

func TestEntrySuccessRedirects(t *testing.T) {
	h, store := newHandler()

	req := httptest.NewRequest(http.MethodGet,
		"/entry?company_id=1&phone=%2B15550001&key=abc123", nil)
	rec := httptest.NewRecorder()

	h(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d; body: %s", rec.Code, http.StatusFound, rec.Body.String())
	}

	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("Location does not parse: %v", err)
	}
	if loc.Host != "app.example.com" || loc.Path != "/cb" {
		t.Errorf("redirect target = %s, want https://app.example.com/cb", loc)
	}
	if loc.Query().Get("token") == "" {
		t.Error("redirect carries no token parameter")
	}
	if store.ledger != 1 {
		t.Errorf("ledger rows = %d, want 1", store.ledger)
	}
}

func TestEntryErrorStatuses(t *testing.T) {
	cases := []struct {
		name       string
		query      string
		wantStatus int
		wantError  string
	}{
		{
			name:       "wrong key",
			query:      "company_id=1&phone=%2B15550001&key=wrong1",
			wantStatus: http.StatusUnauthorized,
			wantError:  "Invalid personal key",
		},
		{
			name:       "missing user identifier",
			query:      "company_id=1&key=abc123",
			wantStatus: http.StatusBadRequest,
			wantError:  "Missing user identifier (phone or first_name+last_name)",
		},
		{
			name:       "unknown company",
			query:      "company_id=999&phone=%2B15550001&key=abc123",
			wantStatus: http.StatusNotFound,
			wantError:  "Company not found",
		},
		{
			name:       "missing company identifier",
			query:      "phone=%2B15550001&key=abc123",
			wantStatus: http.StatusBadRequest,
			wantError:  "Missing company identifier (company_id or company_name)",
		},
		{
			name:       "non-numeric company id",
			query:      "company_id=acme&phone=%2B15550001&key=abc123",
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid company_id",
		},
		{
			name:       "missing key",
			query:      "company_id=1&phone=%2B15550001",
			wantStatus: http.StatusBadRequest,
			wantError:  "Missing personal key",
		},
		{
			name:       "unknown user",
			query:      "company_id=1&phone=%2B15559999&key=abc123",
			wantStatus: http.StatusNotFound,
			wantError:  "User not found",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, store := newHandler()

			req := httptest.NewRequest(http.MethodGet, "/entry?"+tc.query, nil)
			rec := httptest.NewRecorder()

			h(rec, req)

			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if got := errorBody(t, rec); got != tc.wantError {
				t.Errorf("error = %q, want %q", got, tc.wantError)
			}
			if store.ledger != 0 {
				t.Errorf("ledger rows = %d, want 0 on failure", store.ledger)
			}
		})
	}
}

func TestEntryMisconfiguredCompany(t *testing.T) {
	h, store := newHandler()
	store.company.CallbackURL = ""

	req := httptest.NewRequest(http.MethodGet,
		"/entry?company_id=1&phone=%2B15550001&key=abc123", nil)
	rec := httptest.NewRecorder()

	h(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if got := errorBody(t, rec); got != "Server misconfigured" {
		t.Errorf("error = %q, want %q", got, "Server misconfigured")
	}
}

func TestEntryTokenShortcut(t *testing.T) {
	h, store := newHandler()

	// Сначала обычный вход ради настоящего токена.
	first := httptest.NewRequest(http.MethodGet,
		"/entry?company_id=1&phone=%2B15550001&key=abc123", nil)
	firstRec := httptest.NewRecorder()
	h(firstRec, first)

	loc, err := url.Parse(firstRec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("Location does not parse: %v", err)
	}
	issued := loc.Query().Get("token")

	second := httptest.NewRequest(http.MethodGet,
		"/entry?company_id=1&token="+url.QueryEscape(issued), nil)
	secondRec := httptest.NewRecorder()
	h(secondRec, second)

	if secondRec.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d; body: %s", secondRec.Code, http.StatusFound, secondRec.Body.String())
	}

	loc, err = url.Parse(secondRec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("Location does not parse: %v", err)
	}
	if loc.Query().Get("token") != issued {
		t.Error("token shortcut must reattach the presented token")
	}
	if store.ledger != 1 {
		t.Errorf("ledger rows = %d, want 1 (no write on shortcut)", store.ledger)
	}
}
