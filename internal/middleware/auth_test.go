package middleware

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"loom/internal/domain"
	"loom/internal/domain/models"
	"loom/internal/httputil"
)

type fakeSessions struct {
	valid map[string]string
}

func (s *fakeSessions) CreateSession(ctx context.Context, userID string, expiresAt time.Time) (string, error) {
	return "", nil
}

func (s *fakeSessions) GetSession(ctx context.Context, token string) (*models.Session, error) {
	userID, ok := s.valid[token]
	if !ok {
		return nil, fmt.Errorf("session: %w", domain.ErrNotFound)
	}
	return &models.Session{Token: token, UserID: userID}, nil
}

func (s *fakeSessions) DeleteSession(ctx context.Context, token string) error {
	return nil
}

func TestAuth(t *testing.T) {
	sessions := &fakeSessions{valid: map[string]string{"good-token": "user-1"}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var gotUserID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = httputil.GetUserID(r)
		w.WriteHeader(http.StatusOK)
	})
	protected := Auth(sessions, logger)(next)

	tests := []struct {
		name       string
		path       string
		cookie     string
		wantStatus int
		wantUserID string
	}{
		{
			name:       "valid session passes with user id",
			path:       "/api/workspace",
			cookie:     "good-token",
			wantStatus: http.StatusOK,
			wantUserID: "user-1",
		},
		{
			name:       "missing cookie rejected",
			path:       "/api/workspace",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "unknown token rejected",
			path:       "/api/workspace",
			cookie:     "stale-token",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "login path is public",
			path:       "/api/auth/login",
			wantStatus: http.StatusOK,
		},
		{
			name:       "health path is public",
			path:       "/health",
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotUserID = ""
			request := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.cookie != "" {
				request.AddCookie(&http.Cookie{Name: SessionCookie, Value: tt.cookie})
			}

			recorder := httptest.NewRecorder()
			protected.ServeHTTP(recorder, request)

			if recorder.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", recorder.Code, tt.wantStatus)
			}
			if gotUserID != tt.wantUserID {
				t.Errorf("user id = %q, want %q", gotUserID, tt.wantUserID)
			}
		})
	}
}
