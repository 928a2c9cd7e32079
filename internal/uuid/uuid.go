// Package uuid generates and checks the v4 identifiers the store hands out.
package uuid

import (
	"regexp"

	googleuuid "github.com/google/uuid"

	"github.com/humancuration/cpc-core/internal/models"
)

// v4 layout with the version nibble fixed to 4 and the variant nibble in
// [89ab]. Matching is case insensitive; the store never rewrites casing.
var v4Pattern = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

// NewID returns a fresh v4 identifier typed for the data model.
func NewID() models.UUID {
	return models.UUID(googleuuid.NewString())
}

// IsValid reports whether s is a well-formed UUID v4.
func IsValid(s string) bool {
	return v4Pattern.MatchString(s)
}
