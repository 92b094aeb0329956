package keg

// Actor is the caller identity supplied by the transport layer.
// Role and AllowedKegScope are trusted as given; only the current-holder
// rule is enforced here.
type Actor struct {
	ID              string
	Role            string
	AllowedKegScope []string
}
