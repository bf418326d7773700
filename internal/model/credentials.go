package model

import (
	"fmt"
	"sort"
	"strings"
)

// Credentials holds the opaque tokens copied from a logged-in Bandcamp session.
//
// ClientID and Session are cookie values and are required for every request.
// Crumb is the anti-forgery token expected in the verify payload; it may be empty
// until the Credential Extractor resolves it. Identity is an optional cookie that
// some pages need to render the logged-in state.
type Credentials struct {
	ClientID string `json:"client_id"`
	Session  string `json:"session"`
	Crumb    string `json:"crumb"`
	Identity string `json:"identity,omitempty"`
}

// Limits holds length caps applied to user supplied values.
type Limits struct {
	MaxCodeLength     int
	MaxCrumbLength    int
	MaxClientIDLength int
	MaxSessionLength  int
}

// DefaultLimits returns the caps used when no configuration is given.
func DefaultLimits() Limits {
	return Limits{
		MaxCodeLength:     256,
		MaxCrumbLength:    512,
		MaxClientIDLength: 128,
		MaxSessionLength:  4096,
	}
}

// ValidationErrors maps a field name to a human-readable message.
type ValidationErrors map[string]string

// Error implements error. Fields are listed in name order.
func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for field := range v {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, v[field]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Validate checks ClientID and Session against the limits. Crumb is only
// checked for length unless requireCrumb is set.
//
// Returns nil or a non-empty ValidationErrors.
func (c Credentials) Validate(limits Limits, requireCrumb bool) error {
	errs := ValidationErrors{}

	switch {
	case strings.TrimSpace(c.ClientID) == "":
		errs["client_id"] = "Client ID cannot be empty"
	case len(c.ClientID) > limits.MaxClientIDLength:
		errs["client_id"] = fmt.Sprintf("Client ID too long (max %d)", limits.MaxClientIDLength)
	}

	switch {
	case strings.TrimSpace(c.Session) == "":
		errs["session"] = "Session cannot be empty"
	case len(c.Session) > limits.MaxSessionLength:
		errs["session"] = fmt.Sprintf("Session too long (max %d)", limits.MaxSessionLength)
	}

	switch {
	case strings.TrimSpace(c.Crumb) == "":
		if requireCrumb {
			errs["crumb"] = "Crumb cannot be empty"
		}
	case len(c.Crumb) > limits.MaxCrumbLength:
		errs["crumb"] = fmt.Sprintf("Crumb too long (max %d)", limits.MaxCrumbLength)
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// ValidateCode reports an error message for an empty code, or "" if valid.
func ValidateCode(code string) string {
	if strings.TrimSpace(code) == "" {
		return "Code cannot be empty"
	}
	return ""
}

// Redacted returns the first n characters of s followed by "..." for logging.
func Redacted(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
