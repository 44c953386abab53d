package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/Spatial-NVR/constructor/internal/building"
)

// ID is a backend identifier. The backend uses integers for most resources
// and UUID strings for hardware cameras; both decode into ID.
type ID string

// UnmarshalJSON accepts a JSON number or string
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a number or string: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON writes integer ids as numbers and everything else as strings
func (id ID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id ID) String() string { return string(id) }

// BuildingConfig is a persisted building layout
type BuildingConfig struct {
	ID        ID            `json:"id,omitempty"`
	Name      string        `json:"name_build"`
	Config    building.Body `json:"config"`
	CreatedAt *time.Time    `json:"created_at,omitempty"`
	UpdatedAt *time.Time    `json:"updated_at,omitempty"`
}

// HardwareCamera is a registered physical camera stream
type HardwareCamera struct {
	ID          ID     `json:"id,omitempty"`
	Name        string `json:"name"`
	StreamURL   string `json:"stream_url"`
	URL         string `json:"url,omitempty"`
	PTZEnabled  bool   `json:"ptz_enabled,omitempty"`
	PTZProtocol string `json:"ptz_protocol,omitempty"`
	Username    string `json:"username,omitempty"`
	Password    string `json:"password,omitempty"`
}

// Appeal is a service ticket
type Appeal struct {
	ID           ID              `json:"id"`
	TicketNumber string          `json:"ticket_number,omitempty"`
	TypeID       int             `json:"type_id"`
	TypeName     string          `json:"type_name,omitempty"`
	SeverityID   int             `json:"severity_id"`
	SeverityName string          `json:"severity_name,omitempty"`
	StatusID     int             `json:"status_id"`
	StatusName   string          `json:"status_name,omitempty"`
	Location     string          `json:"location"`
	Description  string          `json:"description"`
	ReporterID   *ID             `json:"reporter_id"`
	Source       string          `json:"source"`
	AssignedToID *ID             `json:"assigned_to_id"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	IsDeleted    bool            `json:"is_deleted,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    *time.Time      `json:"updated_at,omitempty"`
}

// AppealInput is the body for creating an appeal
type AppealInput struct {
	TypeID       int             `json:"type_id"`
	SeverityID   int             `json:"severity_id"`
	StatusID     int             `json:"status_id"`
	Location     string          `json:"location"`
	Description  string          `json:"description"`
	ReporterID   *string         `json:"reporter_id"`
	Source       string          `json:"source"`
	AssignedToID *string         `json:"assigned_to_id"`
	Payload      json.RawMessage `json:"payload"`
}

// AppealPatch is a partial appeal update; nil fields are omitted
type AppealPatch struct {
	TypeID       *int            `json:"type_id,omitempty"`
	SeverityID   *int            `json:"severity_id,omitempty"`
	StatusID     *int            `json:"status_id,omitempty"`
	Location     *string         `json:"location,omitempty"`
	Description  *string         `json:"description,omitempty"`
	AssignedToID *string         `json:"assigned_to_id,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// AppealHistoryEntry is one recorded change of an appeal
type AppealHistoryEntry struct {
	ID        ID              `json:"id"`
	AppealID  ID              `json:"appeal_id"`
	ChangedBy *ID             `json:"changed_by,omitempty"`
	Field     string          `json:"field,omitempty"`
	OldValue  json.RawMessage `json:"old_value,omitempty"`
	NewValue  json.RawMessage `json:"new_value,omitempty"`
	Comment   string          `json:"comment,omitempty"`
	ChangedAt time.Time       `json:"changed_at"`
}

// Reference is an entry of a reference list (types, severities, statuses)
type Reference struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Token is the password-grant response
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Permission is a named capability
type Permission struct {
	ID          ID     `json:"id,omitempty"`
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
}

// Role groups permissions
type Role struct {
	ID            ID           `json:"id,omitempty"`
	Name          string       `json:"name"`
	Description   string       `json:"description,omitempty"`
	Permissions   []Permission `json:"permissions,omitempty"`
	PermissionIDs []ID         `json:"permission_ids,omitempty"`
}

// User is a backend account
type User struct {
	ID       ID     `json:"id,omitempty"`
	Username string `json:"username"`
	FullName string `json:"full_name,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	TgID     string `json:"tg_id,omitempty"`
	Roles    []Role `json:"roles,omitempty"`
}

// PermissionReadAll grants every read permission
const PermissionReadAll = "read_all"

// HasPermission reports whether any of the user's roles grants code or
// read_all. Used for UI gating only; the backend stays authoritative.
func (u *User) HasPermission(code string) bool {
	if u == nil {
		return false
	}
	for _, r := range u.Roles {
		for _, p := range r.Permissions {
			if p.Code == code || p.Code == PermissionReadAll {
				return true
			}
		}
	}
	return false
}

// UserInput is the body for creating or replacing a user
type UserInput struct {
	Username string `json:"username,omitempty"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	TgID     string `json:"tg_id,omitempty"`
	Password string `json:"password,omitempty"`
	RoleIDs  []ID   `json:"role_ids"`
}

// Registration is the self-signup body
type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}
