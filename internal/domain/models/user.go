package models

// UserSession is the authenticated acting user attached to each request.
// Role storage lives outside this core; the session carries the role ids
// granted at login so handlers and services only ever check membership.
type UserSession struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Email *string  `json:"email,omitempty"`
	Roles []string `json:"roles"`
}

// HoldsAnyRole reports whether the user holds at least one of the given roles.
// An empty role set on the step side means the step is open to everyone.
func (u *UserSession) HoldsAnyRole(roles []string) bool {
	if len(roles) == 0 {
		return true
	}
	if u == nil {
		return false
	}
	for _, required := range roles {
		for _, held := range u.Roles {
			if held == required {
				return true
			}
		}
	}
	return false
}
