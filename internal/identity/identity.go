package identity

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Role is the account role as it appears in participant identities.
type Role string

const (
	RoleTutor   Role = "PROF"
	RoleLearner Role = "STUDENT"
)

var ErrMalformed = errors.New("malformed participant identity")

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleTutor || r == RoleLearner
}

// Format builds the transport identity "<ROLE>-<id>".
func Format(role Role, id int64) string {
	return fmt.Sprintf("%s-%d", role, id)
}

// Parse splits a transport identity into its role and numeric id.
func Parse(raw string) (Role, int64, error) {
	rolePart, idPart, ok := strings.Cut(strings.TrimSpace(raw), "-")
	if !ok || rolePart == "" || idPart == "" {
		return "", 0, fmt.Errorf("%w: %q", ErrMalformed, raw)
	}
	role := Role(rolePart)
	if !role.Valid() {
		return "", 0, fmt.Errorf("%w: unknown role %q", ErrMalformed, rolePart)
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		return "", 0, fmt.Errorf("%w: bad id %q", ErrMalformed, idPart)
	}
	return role, id, nil
}
