package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Spatial-NVR/constructor/internal/backend"
	"github.com/Spatial-NVR/constructor/internal/validation"
)

// AccessBackend is the part of the backend client the access-control
// routes use
type AccessBackend interface {
	BaseURL() string
	Login(ctx context.Context, username, password string) (*backend.Token, error)
	Register(ctx context.Context, reg backend.Registration) (*backend.User, error)
	Me(ctx context.Context) (*backend.User, error)
	ListPermissions(ctx context.Context) ([]backend.Permission, error)
	CreatePermission(ctx context.Context, p backend.Permission) (*backend.Permission, error)
	DeletePermission(ctx context.Context, id backend.ID) error
	ListRoles(ctx context.Context) ([]backend.Role, error)
	CreateRole(ctx context.Context, r backend.Role) (*backend.Role, error)
	UpdateRole(ctx context.Context, id backend.ID, r backend.Role) (*backend.Role, error)
	DeleteRole(ctx context.Context, id backend.ID) error
	ListUsers(ctx context.Context) ([]backend.User, error)
	GetUser(ctx context.Context, id backend.ID) (*backend.User, error)
	CreateUser(ctx context.Context, in backend.UserInput) (*backend.User, error)
	UpdateUser(ctx context.Context, id backend.ID, in backend.UserInput) (*backend.User, error)
	DeleteUser(ctx context.Context, id backend.ID) error
	UpdateUserRole(ctx context.Context, userID, roleID backend.ID) (*backend.User, error)
}

// CredentialStore keeps the signed-in token between restarts
type CredentialStore interface {
	Save(ctx context.Context, backendURL, username, token string) error
	Clear(ctx context.Context, backendURL string) error
}

// AccessHandler manages users, roles and permissions on the backend.
// Each write consults the failure policy of its call site.
type AccessHandler struct {
	backend  AccessBackend
	creds    CredentialStore
	policies backend.PolicySet
}

// NewAccessHandler creates an access-control handler
func NewAccessHandler(b AccessBackend, creds CredentialStore, policies backend.PolicySet) *AccessHandler {
	if policies == nil {
		policies = backend.DefaultPolicies()
	}
	return &AccessHandler{backend: b, creds: creds, policies: policies}
}

// Routes returns the access-control routes
func (h *AccessHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/login", h.Login)
	r.Post("/logout", h.Logout)
	r.Post("/register", h.Register)
	r.Get("/me", h.Me)

	r.Get("/permissions", h.ListPermissions)
	r.Post("/permissions", h.CreatePermission)
	r.Delete("/permissions/{id}", h.DeletePermission)

	r.Get("/roles", h.ListRoles)
	r.Post("/roles", h.CreateRole)
	r.Put("/roles/{id}", h.UpdateRole)
	r.Delete("/roles/{id}", h.DeleteRole)

	r.Get("/users", h.ListUsers)
	r.Post("/users", h.CreateUser)
	r.Get("/users/{id}", h.GetUser)
	r.Put("/users/{id}", h.UpdateUser)
	r.Delete("/users/{id}", h.DeleteUser)
	r.Put("/users/{id}/role", h.UpdateUserRole)

	return r
}

// writeResult answers a write according to the call site's policy. A
// failure swallowed by the policy is reported as 202 with assumed=true.
func (h *AccessHandler) writeResult(w http.ResponseWriter, site string, status int, data any, err error) {
	assumed, err := h.policies.Resolve(site, err)
	switch {
	case err != nil:
		Fail(w, err)
	case assumed:
		JSON(w, http.StatusAccepted, map[string]bool{"assumed": true})
	case data == nil:
		NoContent(w)
	default:
		JSON(w, status, data)
	}
}

// Login exchanges credentials for a token and stores it
func (h *AccessHandler) Login(w http.ResponseWriter, r *http.Request) {
	var form validation.LoginForm
	if err := decodeJSON(w, r, &form); err != nil {
		BadRequest(w, err.Error())
		return
	}
	if errs := form.Validate(); errs.HasErrors() {
		ValidationErrorResponse(w, errs)
		return
	}
	tok, err := h.backend.Login(r.Context(), form.Username, form.Password)
	if err != nil {
		Fail(w, err)
		return
	}
	if h.creds != nil {
		if err := h.creds.Save(r.Context(), h.backend.BaseURL(), form.Username, tok.AccessToken); err != nil {
			InternalError(w, err.Error())
			return
		}
	}
	OK(w, map[string]string{"username": form.Username, "token_type": tok.TokenType})
}

// Logout forgets the stored token
func (h *AccessHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if h.creds != nil {
		if err := h.creds.Clear(r.Context(), h.backend.BaseURL()); err != nil {
			InternalError(w, err.Error())
			return
		}
	}
	NoContent(w)
}

// Register creates an account through self-signup
func (h *AccessHandler) Register(w http.ResponseWriter, r *http.Request) {
	var form validation.RegistrationForm
	if err := decodeJSON(w, r, &form); err != nil {
		BadRequest(w, err.Error())
		return
	}
	if errs := form.Validate(); errs.HasErrors() {
		ValidationErrorResponse(w, errs)
		return
	}
	u, err := h.backend.Register(r.Context(), backend.Registration{
		Username: form.Username,
		Email:    form.Email,
		Password: form.Password,
	})
	if err != nil {
		Fail(w, err)
		return
	}
	Created(w, u)
}

// Me returns the signed-in user
func (h *AccessHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.backend.Me(r.Context())
	if err != nil {
		Fail(w, err)
		return
	}
	OK(w, u)
}

// ListPermissions lists permissions
func (h *AccessHandler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	list, err := h.backend.ListPermissions(r.Context())
	if err != nil {
		Fail(w, err)
		return
	}
	OK(w, nonNil(list))
}

// CreatePermission validates and creates a permission
func (h *AccessHandler) CreatePermission(w http.ResponseWriter, r *http.Request) {
	var form validation.PermissionForm
	if err := decodeJSON(w, r, &form); err != nil {
		BadRequest(w, err.Error())
		return
	}
	if errs := form.Validate(); errs.HasErrors() {
		ValidationErrorResponse(w, errs)
		return
	}
	p, err := h.backend.CreatePermission(r.Context(), backend.Permission{Code: form.Code, Description: form.Description})
	h.writeResult(w, backend.SitePermissionSave, http.StatusCreated, p, err)
}

// DeletePermission removes a permission
func (h *AccessHandler) DeletePermission(w http.ResponseWriter, r *http.Request) {
	err := h.backend.DeletePermission(r.Context(), backend.ID(chi.URLParam(r, "id")))
	h.writeResult(w, backend.SitePermissionDelete, http.StatusNoContent, nil, err)
}

// ListRoles lists roles
func (h *AccessHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	list, err := h.backend.ListRoles(r.Context())
	if err != nil {
		Fail(w, err)
		return
	}
	OK(w, nonNil(list))
}

// CreateRole validates and creates a role
func (h *AccessHandler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var form validation.RoleForm
	if err := decodeJSON(w, r, &form); err != nil {
		BadRequest(w, err.Error())
		return
	}
	role, err := form.Role()
	if err != nil {
		Fail(w, err)
		return
	}
	created, err := h.backend.CreateRole(r.Context(), role)
	h.writeResult(w, backend.SiteRoleSave, http.StatusCreated, created, err)
}

// UpdateRole validates and replaces a role
func (h *AccessHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var form validation.RoleForm
	if err := decodeJSON(w, r, &form); err != nil {
		BadRequest(w, err.Error())
		return
	}
	role, err := form.Role()
	if err != nil {
		Fail(w, err)
		return
	}
	updated, err := h.backend.UpdateRole(r.Context(), backend.ID(chi.URLParam(r, "id")), role)
	h.writeResult(w, backend.SiteRoleSave, http.StatusOK, updated, err)
}

// DeleteRole removes a role
func (h *AccessHandler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	err := h.backend.DeleteRole(r.Context(), backend.ID(chi.URLParam(r, "id")))
	h.writeResult(w, backend.SiteRoleDelete, http.StatusNoContent, nil, err)
}

// ListUsers lists users
func (h *AccessHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	list, err := h.backend.ListUsers(r.Context())
	if err != nil {
		Fail(w, err)
		return
	}
	OK(w, nonNil(list))
}

// GetUser fetches one user
func (h *AccessHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.backend.GetUser(r.Context(), backend.ID(chi.URLParam(r, "id")))
	if err != nil {
		Fail(w, err)
		return
	}
	OK(w, u)
}

// CreateUser validates and creates a user
func (h *AccessHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var form validation.UserForm
	if err := decodeJSON(w, r, &form); err != nil {
		BadRequest(w, err.Error())
		return
	}
	in, err := form.Input()
	if err != nil {
		Fail(w, err)
		return
	}
	u, err := h.backend.CreateUser(r.Context(), in)
	h.writeResult(w, backend.SiteUserSave, http.StatusCreated, u, err)
}

// UpdateUser validates and replaces a user
func (h *AccessHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var form validation.UserForm
	if err := decodeJSON(w, r, &form); err != nil {
		BadRequest(w, err.Error())
		return
	}
	in, err := form.Input()
	if err != nil {
		Fail(w, err)
		return
	}
	u, err := h.backend.UpdateUser(r.Context(), backend.ID(chi.URLParam(r, "id")), in)
	h.writeResult(w, backend.SiteUserSave, http.StatusOK, u, err)
}

// DeleteUser removes a user
func (h *AccessHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	err := h.backend.DeleteUser(r.Context(), backend.ID(chi.URLParam(r, "id")))
	h.writeResult(w, backend.SiteUserDelete, http.StatusNoContent, nil, err)
}

// UpdateUserRole assigns a single role to a user
func (h *AccessHandler) UpdateUserRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoleID backend.ID `json:"role_id"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}
	if req.RoleID == "" {
		ValidationErrorResponse(w, validation.ValidationErrors{{Field: "role_id", Message: "role is required"}})
		return
	}
	u, err := h.backend.UpdateUserRole(r.Context(), backend.ID(chi.URLParam(r, "id")), req.RoleID)
	h.writeResult(w, backend.SiteUserRole, http.StatusOK, u, err)
}
