package backend

import (
	"context"
	"net/http"
)

// Login performs the password grant and returns the issued token
func (c *Client) Login(ctx context.Context, username, password string) (*Token, error) {
	var out Token
	resp, err := c.request(ctx).
		SetFormData(map[string]string{
			"grant_type": "password",
			"username":   username,
			"password":   password,
		}).
		SetResult(&out).
		Post("/auth/token")
	if err := c.check("login", resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// Register creates an account through self-signup
func (c *Client) Register(ctx context.Context, reg Registration) (*User, error) {
	var out User
	if err := c.do(ctx, "register", http.MethodPost, "/auth/users_reg", reg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me returns the profile of the token's owner
func (c *Client) Me(ctx context.Context) (*User, error) {
	var out User
	if err := c.do(ctx, "get current user", http.MethodGet, "/auth/users_me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListPermissions returns all permissions
func (c *Client) ListPermissions(ctx context.Context) ([]Permission, error) {
	var out []Permission
	if err := c.do(ctx, "list permissions", http.MethodGet, "/auth/permissions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreatePermission adds a permission
func (c *Client) CreatePermission(ctx context.Context, p Permission) (*Permission, error) {
	var out Permission
	if err := c.do(ctx, "create permission", http.MethodPost, "/auth/permissions", p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeletePermission removes a permission
func (c *Client) DeletePermission(ctx context.Context, id ID) error {
	return c.do(ctx, "delete permission", http.MethodDelete, "/auth/permissions/"+id.String(), nil, nil)
}

// ListRoles returns all roles with their permissions
func (c *Client) ListRoles(ctx context.Context) ([]Role, error) {
	var out []Role
	if err := c.do(ctx, "list roles", http.MethodGet, "/auth/roles", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateRole adds a role
func (c *Client) CreateRole(ctx context.Context, r Role) (*Role, error) {
	var out Role
	if err := c.do(ctx, "create role", http.MethodPost, "/auth/roles", r, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateRole replaces a role
func (c *Client) UpdateRole(ctx context.Context, id ID, r Role) (*Role, error) {
	var out Role
	if err := c.do(ctx, "update role", http.MethodPut, "/auth/roles/"+id.String(), r, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteRole removes a role
func (c *Client) DeleteRole(ctx context.Context, id ID) error {
	return c.do(ctx, "delete role", http.MethodDelete, "/auth/roles/"+id.String(), nil, nil)
}

// ListUsers returns all users
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var out []User
	if err := c.do(ctx, "list users", http.MethodGet, "/auth/users", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetUser fetches one user
func (c *Client) GetUser(ctx context.Context, id ID) (*User, error) {
	var out User
	if err := c.do(ctx, "get user", http.MethodGet, "/auth/users/"+id.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateUser adds a user
func (c *Client) CreateUser(ctx context.Context, in UserInput) (*User, error) {
	var out User
	if err := c.do(ctx, "create user", http.MethodPost, "/auth/users", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateUser replaces a user
func (c *Client) UpdateUser(ctx context.Context, id ID, in UserInput) (*User, error) {
	var out User
	if err := c.do(ctx, "update user", http.MethodPut, "/auth/users/"+id.String(), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteUser removes a user
func (c *Client) DeleteUser(ctx context.Context, id ID) error {
	return c.do(ctx, "delete user", http.MethodDelete, "/auth/users/"+id.String(), nil, nil)
}

// UpdateUserRole sets the user's single role. An empty roleID clears it.
func (c *Client) UpdateUserRole(ctx context.Context, userID, roleID ID) (*User, error) {
	body := struct {
		RoleIDs []ID `json:"role_ids"`
	}{RoleIDs: []ID{}}
	if roleID != "" {
		body.RoleIDs = []ID{roleID}
	}
	var out User
	if err := c.do(ctx, "update user role", http.MethodPut, "/auth/users/"+userID.String(), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
