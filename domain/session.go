package domain

// GuestUserID is the identity used for remote carts when nobody is logged in.
const GuestUserID = "guest"

// Session is the caller identity injected into cart and checkout operations.
type Session struct {
	ID     string
	UserID string
	Name   string
	Email  string
}

func (s Session) IsGuest() bool {
	return s.UserID == ""
}

// UserIdentity returns the user id, falling back to GuestUserID.
func (s Session) UserIdentity() string {
	if s.IsGuest() {
		return GuestUserID
	}
	return s.UserID
}
