package store

// Scope controls whose rows an operation can see. A user scope is limited to
// rows owned by that user (plus unowned rows, which are visible to everyone);
// the system scope bypasses owner filtering entirely. Modeling this as an
// explicit type keeps the unrestricted path impossible to reach through an
// accidentally-empty user ID.
type Scope struct {
	userID string
	system bool
}

// UserScope returns a scope limited to rows owned by userID.
func UserScope(userID string) Scope {
	return Scope{userID: userID}
}

// SystemScope returns the unrestricted scope.
func SystemScope() Scope {
	return Scope{system: true}
}

// IsSystem reports whether the scope bypasses owner filtering.
func (sc Scope) IsSystem() bool {
	return sc.system
}

// UserID returns the owning user ID, or "" for the system scope.
func (sc Scope) UserID() string {
	return sc.userID
}

// ownerClause returns a SQL predicate for this scope and its arguments.
// The predicate is always non-empty so callers can append it with AND.
func (sc Scope) ownerClause() (string, []interface{}) {
	if sc.system {
		return "1=1", nil
	}
	return "(owner_id = ? OR owner_id IS NULL)", []interface{}{sc.userID}
}
