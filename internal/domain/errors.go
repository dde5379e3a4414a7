package domain

import (
	"context"
	"errors"
)

var (
	// ErrConfig marks an invalid configuration, e.g. overlap >= chunk size.
	ErrConfig = errors.New("invalid configuration")
	// ErrNothingToIndex is returned when ingestion produced no chunks.
	ErrNothingToIndex = errors.New("nothing to index")
	// ErrDimensionMismatch marks vectors of different lengths within one store or query.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrCorruptStore marks store artifacts that are unreadable or disagree with each other.
	ErrCorruptStore = errors.New("corrupt vector store")
	// ErrStoreNotFound means no store has been published at the data path yet.
	ErrStoreNotFound = errors.New("vector store not found")
	// ErrModelMismatch means the store was built with a different embedding model.
	ErrModelMismatch = errors.New("embedding model mismatch")
	// ErrCollaborator wraps failures of the embedding or answer backends.
	ErrCollaborator = errors.New("collaborator call failed")
)

// Code is a coarse error class used for log fields and transport status mapping.
type Code string

const (
	CodeUnknown      Code = "unknown"
	CodeConfig       Code = "config"
	CodeEmpty        Code = "empty"
	CodeIntegrity    Code = "integrity"
	CodeNotFound     Code = "not_found"
	CodeCollaborator Code = "collaborator"
	CodeCancel       Code = "cancel"
)

// Classify maps err onto a Code using sentinel matching only.
func Classify(err error) Code {
	switch {
	case err == nil:
		return CodeUnknown
	case errors.Is(err, ErrConfig):
		return CodeConfig
	case errors.Is(err, ErrNothingToIndex):
		return CodeEmpty
	case errors.Is(err, ErrDimensionMismatch),
		errors.Is(err, ErrCorruptStore),
		errors.Is(err, ErrModelMismatch):
		return CodeIntegrity
	case errors.Is(err, ErrStoreNotFound):
		return CodeNotFound
	case errors.Is(err, ErrCollaborator):
		return CodeCollaborator
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCancel
	}
	return CodeUnknown
}
