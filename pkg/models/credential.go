package models

import "time"

// Credential is an encrypted-at-rest secret owned by one user. Payload
// holds the ciphertext produced by the vault's encryptor; plaintext is
// only ever materialized in memory during node execution.
type Credential struct {
	ID        string    `json:"id"      validate:"required"`
	UserID    string    `json:"user_id" validate:"required"`
	Type      string    `json:"type"    validate:"required,min=2"`
	Name      string    `json:"name"`
	Payload   []byte    `json:"-"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
