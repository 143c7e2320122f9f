package model

import "time"

// LocalCredential is a username/password identity handled by the local
// credential service instead of a delegated provider.
type LocalCredential struct {
	SubjectID    int64     `json:"subject_id"    db:"subject_id"`
	DisplayName  string    `json:"display_name"  db:"display_name"`
	EmailAddress string    `json:"email_address" db:"email_address"`
	PasswordHash string    `json:"-"             db:"password_hash"`
	IsValidated  bool      `json:"is_validated"  db:"is_validated"`
	CreatedAt    time.Time `json:"created_at"    db:"created_at"`
}
