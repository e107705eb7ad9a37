package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/numberchain/backend/internal/auth"
)

func performJSON(t *testing.T, env *testEnv, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body == "" {
		reader = bytes.NewBuffer(nil)
	} else {
		reader = bytes.NewBufferString(body)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	for _, cookie := range cookies {
		request.AddCookie(cookie)
	}
	recorder := httptest.NewRecorder()
	env.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeEnvelope(t *testing.T, recorder *httptest.ResponseRecorder) envelope {
	t.Helper()
	var body envelope
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response body %q: %v", recorder.Body.String(), err)
	}
	return body
}

func responseCookie(recorder *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func TestRegisterConflictsOnSecondAttempt(t *testing.T) {
	env := newTestEnv(t)

	first := performJSON(t, env, http.MethodPost, "/auth/register",
		`{"name":"Alice","username":"alice","password":"a-valid-password"}`)
	if first.Code != http.StatusCreated {
		t.Fatalf("unexpected status: %d body %s", first.Code, first.Body.String())
	}
	body := decodeEnvelope(t, first)
	if !body.Success || body.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected envelope: %#v", body)
	}

	second := performJSON(t, env, http.MethodPost, "/auth/register",
		`{"name":"Imposter","username":"alice","password":"another-password"}`)
	if second.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", second.Code)
	}
	if message := decodeEnvelope(t, second).Message; message != "Username already registered" {
		t.Fatalf("unexpected message: %q", message)
	}
}

func TestRegisterValidationFailureDetailsFields(t *testing.T) {
	env := newTestEnv(t)

	recorder := performJSON(t, env, http.MethodPost, "/auth/register", `{"username":"alice"}`)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
	body := decodeEnvelope(t, recorder)
	if body.Message != "Validation failed" {
		t.Fatalf("unexpected message: %q", body.Message)
	}
	if len(body.Errors) == 0 {
		t.Fatal("expected field-level validation errors")
	}
}

func TestLoginIssuesExactlyOneLedgerRecord(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice")

	wrong := performJSON(t, env, http.MethodPost, "/auth/login",
		`{"username":"alice","password":"wrong-password"}`)
	if wrong.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", wrong.Code)
	}
	if env.refreshTokenCount(t) != 0 {
		t.Fatal("failed login must not touch the ledger")
	}

	recorder := performJSON(t, env, http.MethodPost, "/auth/login",
		`{"username":"alice","password":"a-valid-password"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body %s", recorder.Code, recorder.Body.String())
	}
	if responseCookie(recorder, accessTokenCookieName) == nil {
		t.Fatal("expected access token cookie")
	}
	if responseCookie(recorder, refreshTokenCookieName) == nil {
		t.Fatal("expected refresh token cookie")
	}
	if count := env.refreshTokenCount(t); count != 1 {
		t.Fatalf("expected exactly one ledger record, got %d", count)
	}
}

func TestValidAccessTokenAdmitsWithoutRotation(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "alice")

	recorder := performJSON(t, env, http.MethodGet, "/auth/me", "", env.accessCookie(t, user))
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body %s", recorder.Code, recorder.Body.String())
	}
	if recorder.Header().Get("x-access-token") != "" || recorder.Header().Get("x-refresh-token") != "" {
		t.Fatal("a valid access token must not emit new tokens")
	}
	if len(recorder.Result().Cookies()) != 0 {
		t.Fatal("a valid access token must not rewrite cookies")
	}
	if env.refreshTokenCount(t) != 0 {
		t.Fatal("a valid access token must not touch the ledger")
	}
}

func TestExpiredAccessWithActiveRefreshRotatesTransparently(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "alice")

	issued, err := env.ledger.Issue(context.Background(), user.ID, user.Username)
	if err != nil {
		t.Fatalf("failed to issue refresh token: %v", err)
	}

	recorder := performJSON(t, env, http.MethodGet, "/auth/me", "",
		env.expiredAccessCookie(t, user),
		&http.Cookie{Name: refreshTokenCookieName, Value: issued.Token})
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body %s", recorder.Code, recorder.Body.String())
	}

	newAccess := recorder.Header().Get("x-access-token")
	newRefresh := recorder.Header().Get("x-refresh-token")
	if newAccess == "" || newRefresh == "" {
		t.Fatal("rotation must surface the new pair as headers")
	}
	if responseCookie(recorder, accessTokenCookieName) == nil || responseCookie(recorder, refreshTokenCookieName) == nil {
		t.Fatal("rotation must replace both cookies")
	}

	if _, status := env.codec.VerifyAccess(newAccess); status != auth.VerifyOK {
		t.Fatalf("emitted access token does not verify: %s", status)
	}
	newClaims, status := env.codec.VerifyRefresh(newRefresh)
	if status != auth.VerifyOK {
		t.Fatalf("emitted refresh token does not verify: %s", status)
	}

	var old auth.RefreshTokenRecord
	if err := env.db.Where("jti = ?", issued.JTI).Take(&old).Error; err != nil {
		t.Fatalf("expected old ledger record: %v", err)
	}
	if old.RevokedAt == nil {
		t.Fatal("expected old record to be revoked")
	}
	if old.ReplacedBy == nil || *old.ReplacedBy != newClaims.JTI {
		t.Fatalf("expected replaced_by %q, got %#v", newClaims.JTI, old.ReplacedBy)
	}
}

func TestExpiredAccessWithRevokedRefreshRejected(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "alice")

	issued, err := env.ledger.Issue(context.Background(), user.ID, user.Username)
	if err != nil {
		t.Fatalf("failed to issue refresh token: %v", err)
	}
	if !env.ledger.Revoke(context.Background(), issued.JTI) {
		t.Fatal("failed to revoke refresh token")
	}

	recorder := performJSON(t, env, http.MethodGet, "/auth/me", "",
		env.expiredAccessCookie(t, user),
		&http.Cookie{Name: refreshTokenCookieName, Value: issued.Token})
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
	if count := env.refreshTokenCount(t); count != 1 {
		t.Fatalf("rejected refresh must not mint new records, got %d", count)
	}
}

func TestExpiredAccessWithoutRefreshRejected(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "alice")

	recorder := performJSON(t, env, http.MethodGet, "/auth/me", "", env.expiredAccessCookie(t, user))
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestTamperedAccessTokenNeverReachesRefreshFlow(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "alice")

	issued, err := env.ledger.Issue(context.Background(), user.ID, user.Username)
	if err != nil {
		t.Fatalf("failed to issue refresh token: %v", err)
	}

	recorder := performJSON(t, env, http.MethodGet, "/auth/me", "",
		&http.Cookie{Name: accessTokenCookieName, Value: "garbage-token"},
		&http.Cookie{Name: refreshTokenCookieName, Value: issued.Token})
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}

	// No rotation may have happened on behalf of a tampered access token.
	var record auth.RefreshTokenRecord
	if err := env.db.Where("jti = ?", issued.JTI).Take(&record).Error; err != nil {
		t.Fatalf("expected ledger record: %v", err)
	}
	if record.RevokedAt != nil {
		t.Fatal("tampered access token must not trigger rotation")
	}
	if count := env.refreshTokenCount(t); count != 1 {
		t.Fatalf("expected ledger untouched, got %d records", count)
	}
}

func TestMissingTokensRejected(t *testing.T) {
	env := newTestEnv(t)

	recorder := performJSON(t, env, http.MethodGet, "/auth/me", "")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
	if message := decodeEnvelope(t, recorder).Message; message != "Unauthorized" {
		t.Fatalf("unexpected message: %q", message)
	}
}

func TestLogoutAlwaysSucceedsAndRevokes(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "alice")

	issued, err := env.ledger.Issue(context.Background(), user.ID, user.Username)
	if err != nil {
		t.Fatalf("failed to issue refresh token: %v", err)
	}

	recorder := performJSON(t, env, http.MethodPost, "/auth/logout", "",
		&http.Cookie{Name: refreshTokenCookieName, Value: issued.Token})
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}

	var record auth.RefreshTokenRecord
	if err := env.db.Where("jti = ?", issued.JTI).Take(&record).Error; err != nil {
		t.Fatalf("expected ledger record: %v", err)
	}
	if record.RevokedAt == nil {
		t.Fatal("logout should best-effort revoke the refresh token")
	}

	for _, name := range []string{accessTokenCookieName, refreshTokenCookieName} {
		cookie := responseCookie(recorder, name)
		if cookie == nil {
			t.Fatalf("expected %s cookie to be cleared", name)
		}
		if cookie.Value != "" || cookie.MaxAge >= 0 {
			t.Fatalf("expected %s cookie cleared, got value=%q maxAge=%d", name, cookie.Value, cookie.MaxAge)
		}
	}

	// Logout with no session at all still reports success.
	anonymous := performJSON(t, env, http.MethodPost, "/auth/logout", "")
	if anonymous.Code != http.StatusOK {
		t.Fatalf("expected 200 for anonymous logout, got %d", anonymous.Code)
	}
	if !strings.Contains(anonymous.Body.String(), "Logout successful") {
		t.Fatalf("unexpected body: %s", anonymous.Body.String())
	}
}
