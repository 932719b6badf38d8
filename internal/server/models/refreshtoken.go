package models

import "time"

// RefreshToken is a server-stored opaque token that can be exchanged for a
// new access token until Expires.
type RefreshToken struct {
	UserID  string
	Token   string
	Expires time.Time
}
