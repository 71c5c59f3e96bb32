package common

import (
	"github.com/google/uuid"
)

// NewJobID generates a unique generation-job ID with the "job_" prefix
// Format: job_<uuid>
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewShowID generates a unique show ID with the "show_" prefix
func NewShowID() string {
	return "show_" + uuid.New().String()
}

// NewCharacterID generates a unique character ID with the "char_" prefix
func NewCharacterID() string {
	return "char_" + uuid.New().String()
}
