package graph

import (
	"strings"

	"github.com/JoshuaRamirez/ACS-sub004/internal/domain"
)

// HTTPVerb is an HTTP method a permission applies to.
type HTTPVerb string

// Supported verbs.
const (
	VerbGET     HTTPVerb = "GET"
	VerbPOST    HTTPVerb = "POST"
	VerbPUT     HTTPVerb = "PUT"
	VerbPATCH   HTTPVerb = "PATCH"
	VerbDELETE  HTTPVerb = "DELETE"
	VerbHEAD    HTTPVerb = "HEAD"
	VerbOPTIONS HTTPVerb = "OPTIONS"
)

var verbOrder = []HTTPVerb{VerbGET, VerbPOST, VerbPUT, VerbPATCH, VerbDELETE, VerbHEAD, VerbOPTIONS}

// ParseHTTPVerb parses a case-insensitive verb name.
func ParseHTTPVerb(s string) (HTTPVerb, error) {
	v := HTTPVerb(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range verbOrder {
		if v == known {
			return v, nil
		}
	}
	return "", domain.ErrValidation("unsupported http verb %q", s)
}

// SchemeName names an authorization scheme.
type SchemeName string

// Supported schemes.
const (
	SchemeAPIURIAuthorization SchemeName = "ApiUriAuthorization"
)

var schemeOrder = []SchemeName{SchemeAPIURIAuthorization}

// Permission is the value callers grant or deny on an entity. Exactly one of
// Grant and Deny is set.
type Permission struct {
	URI    string     `json:"uri"`
	Verb   HTTPVerb   `json:"verb"`
	Grant  bool       `json:"grant"`
	Deny   bool       `json:"deny"`
	Scheme SchemeName `json:"scheme"`
}

// Validate checks that the permission is well-formed.
func (p Permission) Validate() error {
	if strings.TrimSpace(p.URI) == "" {
		return domain.ErrValidation("permission uri is required")
	}
	if _, err := ParseHTTPVerb(string(p.Verb)); err != nil {
		return err
	}
	if p.Grant == p.Deny {
		return domain.ErrValidation("permission must be exactly one of grant or deny")
	}
	if p.Scheme == "" {
		return domain.ErrValidation("permission scheme is required")
	}
	return nil
}

// VerbType is a row of the verb reference table.
type VerbType struct {
	ID   int64
	Name HTTPVerb
}

// SchemeType is a row of the scheme reference table.
type SchemeType struct {
	ID   int64
	Name SchemeName
}

// Resource is the deduplicated representation of a URI.
type Resource struct {
	ID  int64
	URI string
}

// URIAccess records that a resource supports a verb.
type URIAccess struct {
	ID         int64
	ResourceID int64
	VerbTypeID int64
}

// PermissionScheme links an entity to a granted or denied URIAccess under a
// scheme type.
type PermissionScheme struct {
	ID           int64
	Entity       EntityRef
	SchemeTypeID int64
	URIAccessID  int64
	Grant        bool
	Deny         bool
}

// EffectivePermission is a resolved permission with names instead of IDs.
type EffectivePermission struct {
	URI    string     `json:"uri"`
	Verb   HTTPVerb   `json:"verb"`
	Scheme SchemeName `json:"scheme"`
	Grant  bool       `json:"grant"`
	Deny   bool       `json:"deny"`
	Source EntityRef  `json:"source"`
}

func normalizeURI(uri string) string {
	return strings.TrimSpace(uri)
}
