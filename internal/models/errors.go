package models

import "errors"

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrNotFound       = errors.New("not found")
	ErrEmptyOriginal  = errors.New("original is empty")
	// ErrMetadataDisabled is returned when no metadata table is configured.
	ErrMetadataDisabled = errors.New("metadata table is not configured")
)
