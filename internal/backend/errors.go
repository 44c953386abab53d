package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// NetworkError means no HTTP response was received
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: no response from backend: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPError is a non-2xx response. Detail carries the body's "detail" field
// when present, otherwise the raw body.
type HTTPError struct {
	Op     string
	Status int
	Detail string
}

func (e *HTTPError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: backend returned %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: backend returned %d: %s", e.Op, e.Status, e.Detail)
}

// IsNotFound reports whether err is a 404 from the backend
func IsNotFound(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.Status == 404
}

// parseDetail extracts {detail} from an error body. Non-string details are
// returned as compact JSON.
func parseDetail(body []byte) string {
	var env struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &env); err != nil || len(env.Detail) == 0 {
		return strings.TrimSpace(string(body))
	}
	var s string
	if err := json.Unmarshal(env.Detail, &s); err == nil {
		return s
	}
	return string(env.Detail)
}

// FailurePolicy decides how a call site treats a failed request
type FailurePolicy int

const (
	// Terminal surfaces every failure to the operator
	Terminal FailurePolicy = iota
	// AssumeSuccessOnNetworkError treats a missing response as success.
	// HTTP errors stay terminal.
	AssumeSuccessOnNetworkError
)

func (p FailurePolicy) String() string {
	switch p {
	case AssumeSuccessOnNetworkError:
		return "assume_success_on_network_error"
	default:
		return "terminal"
	}
}

// ParsePolicy reads a policy name as written in the config file
func ParsePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "terminal":
		return Terminal, nil
	case "assume_success_on_network_error", "optimistic":
		return AssumeSuccessOnNetworkError, nil
	}
	return Terminal, fmt.Errorf("unknown failure policy %q", s)
}

// Resolve applies policy to the error from a call. assumed is true when the
// failure was swallowed and the caller should proceed as if it succeeded.
func Resolve(err error, policy FailurePolicy) (assumed bool, out error) {
	if err == nil {
		return false, nil
	}
	var ne *NetworkError
	if policy == AssumeSuccessOnNetworkError && errors.As(err, &ne) {
		return true, nil
	}
	return false, err
}

// Call sites that consult a PolicySet
const (
	SitePermissionSave   = "permission.save"
	SitePermissionDelete = "permission.delete"
	SiteRoleSave         = "role.save"
	SiteRoleDelete       = "role.delete"
	SiteUserSave         = "user.save"
	SiteUserDelete       = "user.delete"
	SiteUserRole         = "user.role"
	SiteConfigPublish    = "config.publish"
	SiteHardwareSave     = "hardware.save"
)

// PolicySet maps call sites to policies. Unlisted sites are Terminal.
type PolicySet map[string]FailurePolicy

// DefaultPolicies mirrors the access-control screens: permission and user
// saves close optimistically when the backend does not answer, role saves
// always report.
func DefaultPolicies() PolicySet {
	return PolicySet{
		SitePermissionSave: AssumeSuccessOnNetworkError,
		SiteUserSave:       AssumeSuccessOnNetworkError,
		SiteUserRole:       AssumeSuccessOnNetworkError,
		SiteRoleSave:       Terminal,
	}
}

// ParsePolicies builds a PolicySet from config strings over the defaults
func ParsePolicies(raw map[string]string) (PolicySet, error) {
	set := DefaultPolicies()
	for site, name := range raw {
		p, err := ParsePolicy(name)
		if err != nil {
			return nil, fmt.Errorf("policy for %s: %w", site, err)
		}
		set[site] = p
	}
	return set, nil
}

// For returns the policy for a call site
func (s PolicySet) For(site string) FailurePolicy {
	return s[site]
}

// Resolve applies the call site's policy to err
func (s PolicySet) Resolve(site string, err error) (bool, error) {
	return Resolve(err, s.For(site))
}
