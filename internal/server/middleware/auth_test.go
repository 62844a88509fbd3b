package middleware

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

func signToken(t *testing.T, secret string, claims AppClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestAuthMiddleware(t *testing.T) {
	validClaims := AppClaims{
		Email: "alice@example.com",
		Name:  "Alice",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}

	tests := []struct {
		name       string
		token      string
		noCookie   bool
		wantStatus int
		wantUserID string
	}{
		{
			name:       "valid token passes with identity",
			token:      signToken(t, testSecret, validClaims),
			wantStatus: http.StatusOK,
			wantUserID: "user-1",
		},
		{
			name:       "missing cookie rejected",
			noCookie:   true,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "empty token rejected",
			token:      "",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "token signed with wrong secret rejected",
			token:      signToken(t, "other-secret", validClaims),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "expired token rejected",
			token: signToken(t, testSecret, AppClaims{
				RegisteredClaims: jwt.RegisteredClaims{
					Subject:   "user-1",
					ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
				},
			}),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "token without subject rejected",
			token: signToken(t, testSecret, AppClaims{
				RegisteredClaims: jwt.RegisteredClaims{
					ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
				},
			}),
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotMeta *RequestMetadata
			inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotMeta, _ = ReqMetadataFrom(r.Context())
				w.WriteHeader(http.StatusOK)
			})
			handler := Chain(inner,
				RequestMetadataMiddleware(),
				NewAuthMiddleware(newTestLogger(), testSecret),
			)

			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if !tt.noCookie {
				req.AddCookie(&http.Cookie{Name: "session-token", Value: tt.token})
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if tt.wantUserID != "" {
				if gotMeta == nil {
					t.Fatal("request metadata missing after successful auth")
				}
				if gotMeta.UserID != tt.wantUserID {
					t.Errorf("expected userID %q, got %q", tt.wantUserID, gotMeta.UserID)
				}
				if gotMeta.Email != "alice@example.com" || gotMeta.Name != "Alice" {
					t.Errorf("identity claims not propagated: %+v", gotMeta)
				}
			}
		})
	}
}
