package domain

import (
	"time"

	"github.com/google/uuid"
)

// Contact is a customer-service number shown to users who need help.
type Contact struct {
	ID          uuid.UUID `json:"id"`
	Number      string    `json:"number"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateContactParams contains the fields for a new contact.
type CreateContactParams struct {
	Number      string
	Description string
	IsActive    *bool // defaults to true
}

// UpdateContactParams contains optional contact changes. Nil fields are untouched.
type UpdateContactParams struct {
	ID          uuid.UUID
	Number      *string
	Description *string
	IsActive    *bool
}

// Empty reports whether the update carries no changes.
func (p UpdateContactParams) Empty() bool {
	return p.Number == nil && p.Description == nil && p.IsActive == nil
}
