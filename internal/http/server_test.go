package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"kovara/internal/cache"
	"kovara/internal/providers"
	"kovara/internal/providers/sandbox"
	"kovara/internal/services"
	"kovara/internal/storage"
)

// newTestServer wires the full stack against a throwaway SQLite database and
// the in-memory sandbox providers.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	box := sandbox.New()
	users := services.NewUserService(repo, repo, box, time.Hour)
	accounts := services.NewAccountService(repo, repo, box, box,
		cache.NewLRUCache[providers.Institution](10, time.Minute), "kovara")
	transfers := services.NewTransferService(repo, repo, box, nil)
	financials := services.NewFinancialsService(repo, repo)

	srv := NewServer(":0", users, accounts, transfers, financials, false)
	t.Cleanup(func() { srv.rateLimiter.stop() })
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func signUpBody() map[string]string {
	return map[string]string{
		"email": "jane@example.com", "password": "correct-horse",
		"firstName": "Jane", "lastName": "Doe", "address1": "1 Main St",
		"city": "NYC", "state": "NY", "postalCode": "10001",
		"dateOfBirth": "1990-01-01", "ssn": "123-45-6789",
	}
}

func signUp(t *testing.T, srv *Server) *http.Cookie {
	t.Helper()
	return signUpAs(t, srv, signUpBody())
}

func signUpAs(t *testing.T, srv *Server, body map[string]string) *http.Cookie {
	t.Helper()

	rec := doJSON(t, srv, http.MethodPost, "/api/auth/sign-up", body, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("sign-up status = %d, body %s", rec.Code, rec.Body.String())
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName && c.Value != "" {
			return c
		}
	}
	t.Fatal("sign-up did not set the session cookie")
	return nil
}

func linkAccount(t *testing.T, srv *Server, cookie *http.Cookie, publicToken string) string {
	t.Helper()

	rec := doJSON(t, srv, http.MethodPost, "/api/link/exchange",
		map[string]string{"publicToken": publicToken}, cookie)
	if rec.Code != http.StatusCreated {
		t.Fatalf("exchange status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		ShareableID string `json:"shareableId"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode exchange response: %v", err)
	}
	return resp.ShareableID
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := doJSON(t, srv, http.MethodGet, path, nil, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rec.Code)
		}
	}
}

func TestAuthFlow(t *testing.T) {
	srv := newTestServer(t)
	cookie := signUp(t, srv)

	rec := doJSON(t, srv, http.MethodGet, "/api/auth/me", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("me status = %d, body %s", rec.Code, rec.Body.String())
	}
	var me struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &me); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if me.Email != "jane@example.com" {
		t.Fatalf("me.email = %q", me.Email)
	}

	// Duplicate sign-up conflicts.
	rec = doJSON(t, srv, http.MethodPost, "/api/auth/sign-up", signUpBody(), nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate sign-up status = %d, want 409", rec.Code)
	}

	// Sign-out invalidates the session.
	rec = doJSON(t, srv, http.MethodPost, "/api/auth/sign-out", nil, cookie)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("sign-out status = %d", rec.Code)
	}
	rec = doJSON(t, srv, http.MethodGet, "/api/auth/me", nil, cookie)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("me after sign-out status = %d, want 401", rec.Code)
	}
}

func TestSignInWrongPassword(t *testing.T) {
	srv := newTestServer(t)
	signUp(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/api/auth/sign-in",
		map[string]string{"email": "jane@example.com", "password": "nope-nope"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	srv := newTestServer(t)

	paths := []struct{ method, path string }{
		{http.MethodGet, "/api/auth/me"},
		{http.MethodPost, "/api/link/token"},
		{http.MethodGet, "/api/accounts"},
		{http.MethodGet, "/api/transactions?accountId=x"},
		{http.MethodPost, "/api/transfers"},
		{http.MethodGet, "/api/financials/current-month"},
	}
	for _, p := range paths {
		rec := doJSON(t, srv, p.method, p.path, nil, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s status = %d, want 401", p.method, p.path, rec.Code)
		}
	}
}

func TestFinancialsNoLinkedAccounts(t *testing.T) {
	srv := newTestServer(t)
	cookie := signUp(t, srv)

	rec := doJSON(t, srv, http.MethodGet, "/api/financials/current-month", nil, cookie)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error.Code != "no_linked_accounts" {
		t.Fatalf("error code = %q", body.Error.Code)
	}
}

func TestLinkAccountsAndListThem(t *testing.T) {
	srv := newTestServer(t)
	cookie := signUp(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/api/link/token", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("link token status = %d", rec.Code)
	}

	linkAccount(t, srv, cookie, "public-1")
	linkAccount(t, srv, cookie, "public-2")

	rec = doJSON(t, srv, http.MethodGet, "/api/accounts", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("accounts status = %d, body %s", rec.Code, rec.Body.String())
	}
	var list struct {
		TotalBanks int `json:"totalBanks"`
		Accounts   []struct {
			ID              string `json:"id"`
			InstitutionName string `json:"institutionName"`
		} `json:"accounts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode accounts: %v", err)
	}
	if list.TotalBanks != 2 || len(list.Accounts) != 2 {
		t.Fatalf("totalBanks = %d, accounts = %d", list.TotalBanks, len(list.Accounts))
	}
	if list.Accounts[0].InstitutionName == "" {
		t.Fatal("expected institution name on account views")
	}

	// Account detail for the first account.
	rec = doJSON(t, srv, http.MethodGet, "/api/accounts/"+list.Accounts[0].ID, nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("account detail status = %d, body %s", rec.Code, rec.Body.String())
	}

	// Unknown account is a 404.
	rec = doJSON(t, srv, http.MethodGet, "/api/accounts/ghost", nil, cookie)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown account status = %d, want 404", rec.Code)
	}
}

func TestTransferAndCurrentMonthReport(t *testing.T) {
	srv := newTestServer(t)
	cookie := signUp(t, srv)

	sender := linkAccount(t, srv, cookie, "public-1")
	receiver := linkAccount(t, srv, cookie, "public-2")

	rec := doJSON(t, srv, http.MethodPost, "/api/transfers", map[string]string{
		"senderShareableId":   sender,
		"receiverShareableId": receiver,
		"amount":              "25.00",
		"name":                "Rent",
		"email":               "jane@example.com",
	}, cookie)
	if rec.Code != http.StatusCreated {
		t.Fatalf("transfer status = %d, body %s", rec.Code, rec.Body.String())
	}
	var transfer struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &transfer); err != nil {
		t.Fatalf("decode transfer: %v", err)
	}
	if transfer.Status != "processing" {
		t.Fatalf("transfer status = %q, want processing", transfer.Status)
	}

	// Both of the user's accounts see the transfer: once as income, once as
	// expense.
	rec = doJSON(t, srv, http.MethodGet, "/api/financials/current-month", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("financials status = %d, body %s", rec.Code, rec.Body.String())
	}
	var report struct {
		TotalIncome      float64 `json:"totalIncome"`
		TotalExpenses    float64 `json:"totalExpenses"`
		NetAmount        float64 `json:"netAmount"`
		TransactionCount struct {
			Income   int `json:"income"`
			Expenses int `json:"expenses"`
			Total    int `json:"total"`
		} `json:"transactionCount"`
		Period struct {
			Month string `json:"month"`
		} `json:"period"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.TotalIncome != 25 || report.TotalExpenses != 25 || report.NetAmount != 0 {
		t.Fatalf("report = %+v", report)
	}
	if report.TransactionCount.Total != 2 {
		t.Fatalf("transaction total = %d, want 2", report.TransactionCount.Total)
	}
	if report.Period.Month == "" {
		t.Fatal("expected month name in period")
	}
}

func TestTransferCannotDebitAnotherUsersAccount(t *testing.T) {
	srv := newTestServer(t)

	victim := signUp(t, srv)
	victimShare := linkAccount(t, srv, victim, "public-victim")

	attackerBody := signUpBody()
	attackerBody["email"] = "mallory@example.com"
	attacker := signUpAs(t, srv, attackerBody)
	attackerShare := linkAccount(t, srv, attacker, "public-attacker")

	// The attacker knows the victim's shareable ID (it exists to receive
	// money) and names it as the sender.
	rec := doJSON(t, srv, http.MethodPost, "/api/transfers", map[string]string{
		"senderShareableId":   victimShare,
		"receiverShareableId": attackerShare,
		"amount":              "500.00",
		"name":                "Invoice",
		"email":               "mallory@example.com",
	}, attacker)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body %s", rec.Code, rec.Body.String())
	}

	// Nothing was moved: the victim's month shows no activity.
	rec = doJSON(t, srv, http.MethodGet, "/api/financials/current-month", nil, victim)
	if rec.Code != http.StatusOK {
		t.Fatalf("financials status = %d", rec.Code)
	}
	var report struct {
		TransactionCount struct {
			Total int `json:"total"`
		} `json:"transactionCount"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.TransactionCount.Total != 0 {
		t.Fatalf("victim transaction total = %d, want 0", report.TransactionCount.Total)
	}
}

func TestTransactionHistoryEndpoint(t *testing.T) {
	srv := newTestServer(t)
	cookie := signUp(t, srv)

	sender := linkAccount(t, srv, cookie, "public-1")
	receiver := linkAccount(t, srv, cookie, "public-2")

	rec := doJSON(t, srv, http.MethodPost, "/api/transfers", map[string]string{
		"senderShareableId":   sender,
		"receiverShareableId": receiver,
		"amount":              "10.00",
		"name":                "Rent",
		"email":               "jane@example.com",
	}, cookie)
	if rec.Code != http.StatusCreated {
		t.Fatalf("transfer status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/accounts", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("accounts status = %d", rec.Code)
	}
	var list struct {
		Accounts []struct {
			ID string `json:"id"`
		} `json:"accounts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode accounts: %v", err)
	}

	rec = doJSON(t, srv, http.MethodGet,
		"/api/transactions?accountId="+list.Accounts[0].ID+"&pageSize=1", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("transactions status = %d, body %s", rec.Code, rec.Body.String())
	}
	var page struct {
		Transactions []struct {
			ID string `json:"id"`
		} `json:"transactions"`
		PageSize   int `json:"pageSize"`
		TotalCount int `json:"totalCount"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if len(page.Transactions) != 1 || page.PageSize != 1 {
		t.Fatalf("page = %+v", page)
	}
	if page.TotalCount < 1 {
		t.Fatalf("totalCount = %d, want at least the transfer", page.TotalCount)
	}

	// Parameter validation.
	rec = doJSON(t, srv, http.MethodGet, "/api/transactions", nil, cookie)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("missing accountId status = %d, want 422", rec.Code)
	}
	rec = doJSON(t, srv, http.MethodGet,
		"/api/transactions?accountId="+list.Accounts[0].ID+"&page=0", nil, cookie)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("page=0 status = %d, want 422", rec.Code)
	}
}

func TestTransferValidationErrors(t *testing.T) {
	srv := newTestServer(t)
	cookie := signUp(t, srv)
	share := linkAccount(t, srv, cookie, "public-1")

	cases := []struct {
		name string
		body map[string]string
		want int
	}{
		{
			name: "bad amount",
			body: map[string]string{
				"senderShareableId": share, "receiverShareableId": "other",
				"amount": "abc", "name": "x", "email": "a@b.co",
			},
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "same account",
			body: map[string]string{
				"senderShareableId": share, "receiverShareableId": share,
				"amount": "10.00", "name": "x", "email": "a@b.co",
			},
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "unknown receiver",
			body: map[string]string{
				"senderShareableId": share, "receiverShareableId": "ghost",
				"amount": "10.00", "name": "x", "email": "a@b.co",
			},
			want: http.StatusNotFound,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, srv, http.MethodPost, "/api/transfers", tc.body, cookie)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d, body %s", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/auth/sign-up", signUpBody(), nil)
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
}
