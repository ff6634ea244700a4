package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/reachpoint/reachpoint/internal/types"
)

func testAuthenticator(ttl time.Duration) *Authenticator {
	secret := make([]byte, 32)
	for i := range secret {
		secret[i] = byte(i)
	}
	return New(secret, ttl, zerolog.Nop())
}

func TestIssueAndVerifyToken(t *testing.T) {
	a := testAuthenticator(time.Hour)
	userID := types.NewUserID()

	token, err := a.IssueToken(userID)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	got, err := a.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken() error = %v", err)
	}
	if got != userID {
		t.Errorf("VerifyToken() = %s, want %s", got, userID)
	}
}

func TestVerifyToken_Rejections(t *testing.T) {
	a := testAuthenticator(time.Hour)

	t.Run("malformed token", func(t *testing.T) {
		if _, err := a.VerifyToken("not.a.token"); err == nil {
			t.Error("malformed token should fail")
		}
	})

	t.Run("foreign signature", func(t *testing.T) {
		other := New([]byte("another-secret-key-of-32-bytes!!"), time.Hour, zerolog.Nop())
		token, err := other.IssueToken(types.NewUserID())
		if err != nil {
			t.Fatalf("IssueToken() error = %v", err)
		}
		if _, err := a.VerifyToken(token); err == nil {
			t.Error("token signed with a different secret should fail")
		}
	})

	t.Run("expired token", func(t *testing.T) {
		short := testAuthenticator(-time.Minute)
		token, err := short.IssueToken(types.NewUserID())
		if err != nil {
			t.Fatalf("IssueToken() error = %v", err)
		}
		if _, err := short.VerifyToken(token); err == nil {
			t.Error("expired token should fail")
		}
	})
}

func TestMiddleware(t *testing.T) {
	a := testAuthenticator(time.Hour)
	userID := types.NewUserID()

	var gotID types.UserID
	var gotOK bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, gotOK = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := a.Middleware(next)

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/customers", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/customers", nil)
		req.Header.Set(TokenHeader, "garbage")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("valid token reaches handler with identity", func(t *testing.T) {
		token, err := a.IssueToken(userID)
		if err != nil {
			t.Fatalf("IssueToken() error = %v", err)
		}
		req := httptest.NewRequest(http.MethodGet, "/api/customers", nil)
		req.Header.Set(TokenHeader, token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if !gotOK || gotID != userID {
			t.Errorf("context identity = %s/%v, want %s", gotID, gotOK, userID)
		}
	})
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter2hunter2")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if hash == "hunter2hunter2" {
		t.Fatal("hash must not equal the password")
	}
	if !CheckPassword(hash, "hunter2hunter2") {
		t.Error("CheckPassword() with correct password = false")
	}
	if CheckPassword(hash, "wrong-password") {
		t.Error("CheckPassword() with wrong password = true")
	}
}
