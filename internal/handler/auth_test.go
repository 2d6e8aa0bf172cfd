package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/josh-kwaku/agency-ledger/internal/auth"
	"github.com/josh-kwaku/agency-ledger/internal/domain"
)

const loginSecret = "login-test-secret"

type mockUserReader struct {
	users map[string]*domain.User
}

func (m *mockUserReader) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	if u, ok := m.users[email]; ok {
		return u, nil
	}
	return nil, domain.ErrNotFound
}

func TestLogin(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-pass"), bcrypt.MinCost)
	require.NoError(t, err)

	active := &domain.User{ID: uuid.New(), Email: "cashier@agency.test", Name: "Cashier", PasswordHash: string(hash), Status: domain.UserStatusActive}
	suspended := &domain.User{ID: uuid.New(), Email: "former@agency.test", Name: "Former", PasswordHash: string(hash), Status: domain.UserStatusSuspended}
	users := &mockUserReader{users: map[string]*domain.User{active.Email: active, suspended.Email: suspended}}

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"valid credentials", `{"email":"cashier@agency.test","password":"s3cret-pass"}`, http.StatusOK, ""},
		{"wrong password", `{"email":"cashier@agency.test","password":"nope"}`, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{"unknown user", `{"email":"ghost@agency.test","password":"s3cret-pass"}`, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{"suspended user", `{"email":"former@agency.test","password":"s3cret-pass"}`, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{"invalid email", `{"email":"cashier","password":"s3cret-pass"}`, http.StatusBadRequest, "VALIDATION_FAILED"},
		{"missing password", `{"email":"cashier@agency.test"}`, http.StatusBadRequest, "VALIDATION_FAILED"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewAuthHandler(users, loginSecret, time.Hour)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(tc.body))
			rr := httptest.NewRecorder()
			h.Login(rr, req)

			assert.Equal(t, tc.wantStatus, rr.Code)
			resp := decodeResponse(t, rr)
			if tc.wantCode != "" {
				require.NotNil(t, resp.Error)
				assert.Equal(t, tc.wantCode, resp.Error.Code)
				return
			}

			data, ok := resp.Data.(map[string]any)
			require.True(t, ok)
			token, ok := data["token"].(string)
			require.True(t, ok)

			claims, err := auth.ValidateToken(token, loginSecret)
			require.NoError(t, err)
			assert.Equal(t, active.ID, claims.UserID)
		})
	}
}
