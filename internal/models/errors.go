package models

import "errors"

// ErrorKind classifies where in the job lifecycle a failure occurred.
// The distinction matters to observers: a persistence failure means the
// provider artifact exists and only the durable write needs retrying,
// while a provider failure needs a full resubmission.
type ErrorKind string

const (
	ErrorKindValidation    ErrorKind = "validation"
	ErrorKindConfiguration ErrorKind = "configuration"
	ErrorKindProvider      ErrorKind = "provider"
	ErrorKindResultFormat  ErrorKind = "result_format"
	ErrorKindPersistence   ErrorKind = "persistence"
	ErrorKindTimeout       ErrorKind = "timeout"
)

// Sentinel errors for the taxonomy. Wrapped with %w so callers can
// classify with errors.Is.
var (
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrProvider      = errors.New("provider error")
	ErrResultFormat  = errors.New("result format error")
	ErrPersistence   = errors.New("persistence error")
	ErrTimeout       = errors.New("timeout")
	ErrNotFound      = errors.New("not found")
)

// ClassifyError maps an error to its kind for storage on a job record.
func ClassifyError(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrValidation):
		return ErrorKindValidation
	case errors.Is(err, ErrConfiguration):
		return ErrorKindConfiguration
	case errors.Is(err, ErrResultFormat):
		return ErrorKindResultFormat
	case errors.Is(err, ErrPersistence):
		return ErrorKindPersistence
	case errors.Is(err, ErrTimeout):
		return ErrorKindTimeout
	default:
		return ErrorKindProvider
	}
}
