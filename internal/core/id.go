package core

import "github.com/google/uuid"

// NewID returns a random run identifier.
func NewID() string {
	return uuid.NewString()
}
