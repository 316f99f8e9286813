/*
Package user contains the identity carried by a chat session.

It defines the two roles a participant can hold and the User value announced
to the server in the join handshake and echoed back on messages and presence.
*/
package user

// Role is the privilege level of a chat participant.
type Role string

const (
	// RoleAdmin may delete single messages and clear the whole history.
	RoleAdmin Role = "admin"

	// RoleReceiver is the unprivileged participant role.
	RoleReceiver Role = "receiver"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleReceiver
}

// User is the identity of a participant.
type User struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// ForRole returns the fixed identity used for a role: the username equals the role name.
func ForRole(role Role) User {
	return User{Username: string(role), Role: role}
}
