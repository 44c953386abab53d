package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/Spatial-NVR/constructor/internal/backend"
)

// memCredentials records the last saved token per backend
type memCredentials struct {
	tokens map[string]string
}

func (m *memCredentials) Save(ctx context.Context, backendURL, username, token string) error {
	m.tokens[backendURL] = token
	return nil
}

func (m *memCredentials) Clear(ctx context.Context, backendURL string) error {
	delete(m.tokens, backendURL)
	return nil
}

func setupAccess(t *testing.T, policies backend.PolicySet) (*fakeBackend, *memCredentials, http.Handler) {
	t.Helper()
	fb := newFakeBackend()
	creds := &memCredentials{tokens: map[string]string{}}
	r := chi.NewRouter()
	r.Mount("/", NewAccessHandler(fb, creds, policies).Routes())
	return fb, creds, r
}

func TestAccess_LoginLogout(t *testing.T) {
	_, creds, h := setupAccess(t, nil)

	if w, _ := doJSON(t, h, "POST", "/login", map[string]string{"username": "admin"}); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without a password, got %d", w.Code)
	}
	if w, _ := doJSON(t, h, "POST", "/login", map[string]string{"username": "admin", "password": "wrong"}); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for bad credentials, got %d", w.Code)
	}
	if len(creds.tokens) != 0 {
		t.Error("A failed login must not store a token")
	}

	w, resp := doJSON(t, h, "POST", "/login", map[string]string{"username": "admin", "password": "secret"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if creds.tokens["http://backend"] != "tok-admin" {
		t.Errorf("Expected stored token, got %v", creds.tokens)
	}
	if _, leaked := resp.Data.(map[string]any)["token"]; leaked {
		t.Error("Login response must not include the token")
	}

	if w, _ := doJSON(t, h, "POST", "/logout", nil); w.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", w.Code)
	}
	if len(creds.tokens) != 0 {
		t.Error("Expected token cleared on logout")
	}
}

func TestAccess_Register(t *testing.T) {
	_, _, h := setupAccess(t, nil)

	w, resp := doJSON(t, h, "POST", "/register", map[string]string{"username": "bob", "email": "bob-at-example", "password": "pw"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", w.Code)
	}
	if len(resp.Error.Details) != 1 || resp.Error.Details[0].Field != "email" {
		t.Errorf("Expected an email error, got %+v", resp.Error.Details)
	}

	if w, _ := doJSON(t, h, "POST", "/register", map[string]string{"username": "bob", "email": "bob@example.com", "password": "pw"}); w.Code != http.StatusCreated {
		t.Errorf("Expected 201, got %d", w.Code)
	}
}

func TestAccess_UserLifecycle(t *testing.T) {
	fb, _, h := setupAccess(t, nil)

	user := map[string]any{
		"username": "op1",
		"email":    "op1@example.com",
		"phone":    "+7 (900) 123-45-67",
		"role_ids": []string{},
	}
	w, resp := doJSON(t, h, "POST", "/users", user)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var u backend.User
	decodeData(t, resp, &u)

	w, resp = doJSON(t, h, "POST", "/roles", map[string]any{"name": "operators", "permission_ids": []string{}})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201 for role, got %d", w.Code)
	}
	var role backend.Role
	decodeData(t, resp, &role)

	if w, _ := doJSON(t, h, "PUT", "/users/"+u.ID.String()+"/role", map[string]string{}); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without a role, got %d", w.Code)
	}
	w, resp = doJSON(t, h, "PUT", "/users/"+u.ID.String()+"/role", map[string]string{"role_id": role.ID.String()})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	decodeData(t, resp, &u)
	if len(u.Roles) != 1 || u.Roles[0].Name != "operators" {
		t.Errorf("Expected operators role, got %+v", u.Roles)
	}

	user["phone"] = "call me"
	if w, _ := doJSON(t, h, "PUT", "/users/"+u.ID.String(), user); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a bad phone, got %d", w.Code)
	}

	if w, _ := doJSON(t, h, "DELETE", "/users/"+u.ID.String(), nil); w.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", w.Code)
	}
	if len(fb.users) != 0 {
		t.Errorf("Expected no users left, got %d", len(fb.users))
	}
}

func TestAccess_FailurePolicies(t *testing.T) {
	tests := []struct {
		name     string
		policies backend.PolicySet
		method   string
		path     string
		body     any
		err      error
		status   int
	}{
		{
			name:   "permission save assumed on network error",
			method: "POST", path: "/permissions", body: map[string]string{"code": "view_cameras"},
			err: errUnreachable, status: http.StatusAccepted,
		},
		{
			name:   "permission save http error stays terminal",
			method: "POST", path: "/permissions", body: map[string]string{"code": "view_cameras"},
			err: &backend.HTTPError{Op: "create permission", Status: http.StatusConflict}, status: http.StatusConflict,
		},
		{
			name:   "role save reports network error",
			method: "POST", path: "/roles", body: map[string]string{"name": "ops"},
			err: errUnreachable, status: http.StatusBadGateway,
		},
		{
			name:     "role save optimistic when configured",
			policies: backend.PolicySet{backend.SiteRoleSave: backend.AssumeSuccessOnNetworkError},
			method:   "POST", path: "/roles", body: map[string]string{"name": "ops"},
			err: errUnreachable, status: http.StatusAccepted,
		},
		{
			name:   "user role assumed",
			method: "PUT", path: "/users/5/role", body: map[string]string{"role_id": "2"},
			err: errUnreachable, status: http.StatusAccepted,
		},
		{
			name:   "delete role reports",
			method: "DELETE", path: "/roles/2",
			err: errUnreachable, status: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb, _, h := setupAccess(t, tt.policies)
			fb.writeErr = tt.err

			w, resp := doJSON(t, h, tt.method, tt.path, tt.body)
			if w.Code != tt.status {
				t.Fatalf("Expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			if tt.status == http.StatusAccepted && resp.Data.(map[string]any)["assumed"] != true {
				t.Errorf("Expected assumed=true, got %+v", resp.Data)
			}
		})
	}
}

func TestAccess_PermissionValidation(t *testing.T) {
	_, _, h := setupAccess(t, nil)
	w, resp := doJSON(t, h, "POST", "/permissions", map[string]string{"description": "no code"})
	if w.Code != http.StatusBadRequest || resp.Error.Details[0].Field != "code" {
		t.Errorf("Expected code validation error, got %d %+v", w.Code, resp.Error)
	}
}
