package user

import (
	"errors"
	"regexp"
	"strings"
)

// Collection names.
const (
	UsersCollection     = "users"
	UsernamesCollection = "usernames"
)

// ErrInvalidUsername is returned for usernames that fail validation.
var ErrInvalidUsername = errors.New("username must be 3-30 characters of a-z, 0-9, '.' or '_'")

var usernamePattern = regexp.MustCompile(`^[a-z0-9._]{3,30}$`)

// User is the profile document at users/{uid}.
type User struct {
	UID      string `json:"uid" firestore:"uid"`
	Username string `json:"username" firestore:"username"`
	Email    string `json:"email" firestore:"email"`
	LoggedIn bool   `json:"loggedIn" firestore:"loggedIn"`
}

// Reservation is stored at usernames/{name}/private/uid and maps a taken
// username to its owner.
type Reservation struct {
	UID string `json:"uid" firestore:"uid"`
}

// Path returns the profile document path.
func Path(uid string) string {
	return UsersCollection + "/" + uid
}

// ReservationPath returns the username reservation document path.
func ReservationPath(username string) string {
	return UsernamesCollection + "/" + username + "/private/uid"
}

// NormalizeUsername trims and lower-cases a username.
func NormalizeUsername(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// ValidateUsername checks an already normalized username.
func ValidateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}
