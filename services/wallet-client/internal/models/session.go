package models

// Session is the authenticated identity every backend call is scoped to.
type Session struct {
	UserID            string
	DisplayName       string
	Email             string
	IdentityAssertion string
}

// Principal is what the identity provider reports for a signed-in user.
type Principal struct {
	UserID      string `json:"uid"`
	DisplayName string `json:"name"`
	Email       string `json:"email"`
}

// Label returns the display name, falling back to email.
func (p Principal) Label() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Email
}

// IdentityEvent is pushed by the identity provider whenever sign-in state changes.
// A nil Principal means signed out.
type IdentityEvent struct {
	Principal *Principal
}
