package tests

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/shule/apps/api/echo"
	"github.com/trezcool/shule/core/user"
)

func TestUserApi_login(t *testing.T) {
	env := setup(t)
	env.createUser(t, "acme", "adminuser", "admin@acme.edu", "LeTemps", []string{user.RoleAdmin})

	tests := []struct {
		name     string
		body     LoginRequest
		wantCode int
	}{
		{name: "missing tenant", body: LoginRequest{Username: "adminuser", Password: "LeTemps"}, wantCode: http.StatusBadRequest},
		{name: "missing password", body: LoginRequest{Tenant: "acme", Username: "adminuser"}, wantCode: http.StatusBadRequest},
		{name: "unknown user", body: LoginRequest{Tenant: "acme", Username: "whodis", Password: "LeTemps"}, wantCode: http.StatusBadRequest},
		{name: "wrong password", body: LoginRequest{Tenant: "acme", Username: "adminuser", Password: "nope"}, wantCode: http.StatusBadRequest},
		{name: "wrong tenant", body: LoginRequest{Tenant: "globex", Username: "adminuser", Password: "LeTemps"}, wantCode: http.StatusBadRequest},
		{name: "login with username", body: LoginRequest{Tenant: "acme", Username: "adminuser", Password: "LeTemps"}, wantCode: http.StatusOK},
		{name: "login with email", body: LoginRequest{Tenant: "acme", Username: "admin@acme.edu", Password: "LeTemps"}, wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/users/login", marshallObj(t, tt.body))
			env.server.ServeHTTP(rec, req)

			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantCode == http.StatusOK {
				var resp LoginResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.NotEmpty(t, resp.Token)
			}
		})
	}
}

func TestUserApi_authRequired(t *testing.T) {
	env := setup(t)

	req, rec := newRequest(http.MethodGet, "/v1/users")
	env.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code) // missing or malformed jwt

	req, rec = newAuthRequest(http.MethodGet, "/v1/users", "not-a-jwt")
	env.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUserApi_adminOnly(t *testing.T) {
	env := setup(t)
	student := env.createUser(t, "acme", "studentone", "lisa@acme.edu", "LeTemps", []string{user.RoleStudent})
	admin := env.createUser(t, "acme", "adminuser", "admin@acme.edu", "LeTemps", []string{user.RoleAdmin})

	req, rec := newAuthRequest(http.MethodGet, "/v1/users", getToken(t, student))
	env.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req, rec = newAuthRequest(http.MethodGet, "/v1/users", getToken(t, admin))
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var users []user.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	assert.Len(t, users, 2)
}
