package models

import "time"

type User struct {
	ID             int64
	BusinessName   string
	BusinessNumber string
	Email          string
	Phone          string
	Address        string
	TransitNumber  string
	PassHash       []byte
	CreatedAt      time.Time
	IsDeleted      bool
}

type Role struct {
	ID   int64
	Name string
}

type RefreshToken struct {
	ID        int64
	Token     string
	UserID    int64
	ExpiresAt time.Time
	Revoked   bool
}

// IsActive reports whether the token can still be exchanged.
// Expiry is re-checked at read time; background cleanup never affects this.
func (t *RefreshToken) IsActive() bool {
	return !t.Revoked && t.ExpiresAt.After(time.Now())
}

type PasswordResetToken struct {
	ID        int64
	UserID    int64
	Token     string
	ExpiresAt time.Time
}

type ActivityEntry struct {
	ID           int64
	UserID       int64
	BusinessName string
	Action       string
	Timestamp    time.Time
}

type EmailMessage struct {
	Email   string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}
