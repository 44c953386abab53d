// Package validation checks operator input before any backend call is made.
package validation

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/Spatial-NVR/constructor/internal/backend"
)

// ValidationError represents a validation error with field information
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors holds multiple validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Err returns e as an error, or nil when empty
func (e ValidationErrors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// Field returns the first error for field, if any
func (e ValidationErrors) Field(field string) (ValidationError, bool) {
	for _, err := range e {
		if err.Field == field {
			return err, true
		}
	}
	return ValidationError{}, false
}

func (e *ValidationErrors) add(field, msg string) {
	*e = append(*e, ValidationError{Field: field, Message: msg})
}

func (e *ValidationErrors) required(field, value, msg string) bool {
	if strings.TrimSpace(value) == "" {
		e.add(field, msg)
		return false
	}
	return true
}

var (
	emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)
	phonePattern = regexp.MustCompile(`^[\d+\-\s()]{5,20}$`)
)

// AppealForm is the appeal creation form as entered
type AppealForm struct {
	TypeID       string `json:"type_id"`
	SeverityID   string `json:"severity_id"`
	StatusID     string `json:"status_id"`
	Location     string `json:"location"`
	Description  string `json:"description"`
	ReporterID   string `json:"reporter_id"`
	Source       string `json:"source"`
	AssignedToID string `json:"assigned_to_id"`
	Payload      string `json:"payload"`
}

// Validate checks required selections and that the payload is JSON
func (f AppealForm) Validate() ValidationErrors {
	errs := make(ValidationErrors, 0)
	for _, fld := range []struct{ name, value string }{
		{"type_id", f.TypeID},
		{"severity_id", f.SeverityID},
		{"status_id", f.StatusID},
	} {
		if !errs.required(fld.name, fld.value, "field is required") {
			continue
		}
		if _, err := strconv.Atoi(strings.TrimSpace(fld.value)); err != nil {
			errs.add(fld.name, "must be a numeric reference id")
		}
	}
	errs.required("source", f.Source, "source is required")

	if !json.Valid([]byte(f.payloadText())) {
		errs.add("payload", "payload must be valid JSON")
	}
	return errs
}

func (f AppealForm) payloadText() string {
	if strings.TrimSpace(f.Payload) == "" {
		return "{}"
	}
	return f.Payload
}

// Input validates the form and converts it into a request body
func (f AppealForm) Input() (backend.AppealInput, error) {
	if errs := f.Validate(); errs.HasErrors() {
		return backend.AppealInput{}, errs
	}
	typeID, _ := strconv.Atoi(strings.TrimSpace(f.TypeID))
	severityID, _ := strconv.Atoi(strings.TrimSpace(f.SeverityID))
	statusID, _ := strconv.Atoi(strings.TrimSpace(f.StatusID))

	return backend.AppealInput{
		TypeID:       typeID,
		SeverityID:   severityID,
		StatusID:     statusID,
		Location:     f.Location,
		Description:  f.Description,
		ReporterID:   optional(f.ReporterID),
		Source:       f.Source,
		AssignedToID: optional(f.AssignedToID),
		Payload:      json.RawMessage(f.payloadText()),
	}, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// UserForm is the user create/edit dialog
type UserForm struct {
	Username string   `json:"username"`
	FullName string   `json:"full_name"`
	Email    string   `json:"email"`
	Phone    string   `json:"phone"`
	TgID     string   `json:"tg_id"`
	Password string   `json:"password"`
	RoleIDs  []string `json:"role_ids"`
}

// Validate checks the login and the email and phone formats
func (f UserForm) Validate() ValidationErrors {
	errs := make(ValidationErrors, 0)
	errs.required("username", f.Username, "username is required")
	if errs.required("email", f.Email, "email is required") && !emailPattern.MatchString(f.Email) {
		errs.add("email", "invalid email format")
	}
	if errs.required("phone", f.Phone, "phone is required") && !phonePattern.MatchString(f.Phone) {
		errs.add("phone", "invalid phone format")
	}
	return errs
}

// Input validates the form and converts it into a request body
func (f UserForm) Input() (backend.UserInput, error) {
	if errs := f.Validate(); errs.HasErrors() {
		return backend.UserInput{}, errs
	}
	roles := make([]backend.ID, 0, len(f.RoleIDs))
	for _, id := range f.RoleIDs {
		if id = strings.TrimSpace(id); id != "" {
			roles = append(roles, backend.ID(id))
		}
	}
	return backend.UserInput{
		Username: f.Username,
		FullName: f.FullName,
		Email:    f.Email,
		Phone:    f.Phone,
		TgID:     f.TgID,
		Password: f.Password,
		RoleIDs:  roles,
	}, nil
}

// RoleForm is the role dialog
type RoleForm struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	PermissionIDs []string `json:"permission_ids"`
}

// Validate requires a role name
func (f RoleForm) Validate() ValidationErrors {
	errs := make(ValidationErrors, 0)
	errs.required("name", f.Name, "role name is required")
	return errs
}

// Role validates the form and converts it into a request body
func (f RoleForm) Role() (backend.Role, error) {
	if errs := f.Validate(); errs.HasErrors() {
		return backend.Role{}, errs
	}
	ids := make([]backend.ID, 0, len(f.PermissionIDs))
	for _, id := range f.PermissionIDs {
		ids = append(ids, backend.ID(id))
	}
	return backend.Role{Name: f.Name, Description: f.Description, PermissionIDs: ids}, nil
}

// PermissionForm is the permission dialog
type PermissionForm struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// Validate requires a permission code
func (f PermissionForm) Validate() ValidationErrors {
	errs := make(ValidationErrors, 0)
	errs.required("code", f.Code, "permission code is required")
	return errs
}

// RegistrationForm is the self-signup form
type RegistrationForm struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate requires every field and a well-formed email
func (f RegistrationForm) Validate() ValidationErrors {
	errs := make(ValidationErrors, 0)
	errs.required("username", f.Username, "username is required")
	if errs.required("email", f.Email, "email is required") && !emailPattern.MatchString(f.Email) {
		errs.add("email", "invalid email format")
	}
	errs.required("password", f.Password, "password is required")
	return errs
}

// LoginForm is the sign-in form
type LoginForm struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate requires both credentials
func (f LoginForm) Validate() ValidationErrors {
	errs := make(ValidationErrors, 0)
	errs.required("username", f.Username, "username is required")
	errs.required("password", f.Password, "password is required")
	return errs
}

// HardwareForm registers a hardware camera
type HardwareForm struct {
	Name        string `json:"name"`
	StreamURL   string `json:"stream_url"`
	PTZEnabled  bool   `json:"ptz_enabled"`
	PTZProtocol string `json:"ptz_protocol"`
	Username    string `json:"username"`
	Password    string `json:"password"`
}

// Validate checks the camera name and stream URL
func (f HardwareForm) Validate() ValidationErrors {
	errs := make(ValidationErrors, 0)
	validateName(&errs, f.Name)
	validateStreamURL(&errs, f.StreamURL)
	return errs
}

// Camera validates the form and converts it into a request body
func (f HardwareForm) Camera() (backend.HardwareCamera, error) {
	if errs := f.Validate(); errs.HasErrors() {
		return backend.HardwareCamera{}, errs
	}
	return backend.HardwareCamera{
		Name:        f.Name,
		StreamURL:   f.StreamURL,
		PTZEnabled:  f.PTZEnabled,
		PTZProtocol: f.PTZProtocol,
		Username:    f.Username,
		Password:    f.Password,
	}, nil
}

func validateName(errs *ValidationErrors, name string) {
	if name == "" {
		errs.add("name", "camera name is required")
		return
	}
	if len(name) < 2 {
		errs.add("name", "camera name must be at least 2 characters")
	}
	if len(name) > 100 {
		errs.add("name", "camera name must be less than 100 characters")
	}
}

var streamSchemes = map[string]bool{
	"rtsp":  true,
	"rtsps": true,
	"rtmp":  true,
	"http":  true,
	"https": true,
}

func validateStreamURL(errs *ValidationErrors, streamURL string) {
	if streamURL == "" {
		errs.add("stream_url", "stream URL is required")
		return
	}

	u, err := url.Parse(streamURL)
	if err != nil {
		errs.add("stream_url", "invalid URL format")
		return
	}

	if !streamSchemes[strings.ToLower(u.Scheme)] {
		errs.add("stream_url", fmt.Sprintf("unsupported stream protocol '%s'. Supported: rtsp, rtsps, rtmp, http, https", u.Scheme))
	}
	if u.Host == "" {
		errs.add("stream_url", "stream URL must include a host")
	}
}

// SanitizeStreamURL removes credentials from a URL for logging
func SanitizeStreamURL(streamURL string) string {
	u, err := url.Parse(streamURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "[invalid-url]"
	}
	u.User = nil
	return u.String()
}
