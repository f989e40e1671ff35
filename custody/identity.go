package custody

import (
	"os/user"

	"github.com/APTrust/evidence-services/constants"
)

// IdentityProvider names whoever is responsible for a custody event
// when the caller doesn't say.
type IdentityProvider interface {
	CurrentUser() string
}

// OSUser reports the login name of the user running this process.
type OSUser struct{}

func (OSUser) CurrentUser() string {
	current, err := user.Current()
	if err != nil || current.Username == "" {
		return constants.UnknownUser
	}
	return current.Username
}

// StaticActor always reports the same identity. Services that act on
// behalf of a single examiner, and tests, use this.
type StaticActor string

func (a StaticActor) CurrentUser() string {
	if a == "" {
		return constants.UnknownUser
	}
	return string(a)
}
