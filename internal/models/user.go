package models

// User represents a registered account. Usernames are the primary
// identity and never change once created.
type User struct {
	Username     string `json:"username"`
	PasswordHash string `json:"-"` // Never send to client
}

// Credentials carries a username/password pair submitted with a login
// or register event.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
