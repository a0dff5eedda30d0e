package model

import "strings"

// Input types name the Target fields a module can consume.
const (
	InputUsername = "username"
	InputEmail    = "email"
	InputPhone    = "phone"
	InputDomain   = "domain"
	InputIP       = "ip"
	InputPlatform = "platform"
)

const (
	// DefaultTargetLimit caps how many items a module should return per list
	// it collects (search hits, images, profile candidates).
	DefaultTargetLimit = 50

	// DefaultTargetDepth is the recursion depth hint handed to modules.
	DefaultTargetDepth = 1
)

// Target is the normalized input of a scan. Which fields are populated
// decides which modules apply.
type Target struct {
	Username string            `json:"username,omitempty"`
	Email    string            `json:"email,omitempty"`
	Phone    string            `json:"phone,omitempty"`
	Domain   string            `json:"domain,omitempty"`
	IP       string            `json:"ip,omitempty"`
	Platform string            `json:"platform,omitempty"`
	Options  map[string]string `json:"options,omitempty"`
	Limit    int               `json:"limit,omitempty"`
	Depth    int               `json:"depth,omitempty"`
}

// Field returns the value of the field named by inputType.
// Unknown input types yield the empty string.
func (t Target) Field(inputType string) string {
	switch inputType {
	case InputUsername:
		return t.Username
	case InputEmail:
		return t.Email
	case InputPhone:
		return t.Phone
	case InputDomain:
		return t.Domain
	case InputIP:
		return t.IP
	case InputPlatform:
		return t.Platform
	default:
		return ""
	}
}

// IsEmpty reports whether no identity field is populated.
func (t Target) IsEmpty() bool {
	for _, in := range []string{InputUsername, InputEmail, InputPhone, InputDomain, InputIP} {
		if strings.TrimSpace(t.Field(in)) != "" {
			return false
		}
	}
	return true
}

// Option returns the option value for key, or "" when unset.
func (t Target) Option(key string) string {
	if t.Options == nil {
		return ""
	}
	return t.Options[key]
}

// EffectiveLimit returns Limit or DefaultTargetLimit when Limit is not positive.
func (t Target) EffectiveLimit() int {
	if t.Limit > 0 {
		return t.Limit
	}
	return DefaultTargetLimit
}

// Describe returns a short human-readable form such as "domain=example.com".
func (t Target) Describe() string {
	parts := make([]string, 0, 6)
	for _, in := range []string{InputDomain, InputEmail, InputUsername, InputPhone, InputIP, InputPlatform} {
		if v := t.Field(in); v != "" {
			parts = append(parts, in+"="+v)
		}
	}
	return strings.Join(parts, " ")
}

// TargetForEntity maps an entity onto the Target field that carries its
// type. Entity types without a dedicated field fall back to Username.
func TargetForEntity(e Entity) Target {
	t := Target{Depth: DefaultTargetDepth, Limit: DefaultTargetLimit}
	switch e.Type {
	case EntityDomain:
		t.Domain = e.Value
	case EntityIP:
		t.IP = e.Value
	case EntityEmail:
		t.Email = e.Value
	case EntityPhone:
		t.Phone = e.Value
	default:
		t.Username = e.Value
	}
	return t
}
