package domain

import (
	"errors"

	"video_ingest_service/pkg/config"
)

var (
	// ErrConfig missing signing key, bucket or other startup setting
	ErrConfig = config.ErrConfig
	// ErrValidationRejected uploaded object failed validation, never retried
	ErrValidationRejected = errors.New("validation rejected")
	// ErrTransientInfra storage, queue or database temporarily unavailable
	ErrTransientInfra = errors.New("transient infrastructure error")
	// ErrNotFound asset missing or not playable
	ErrNotFound = errors.New("not found")
	// ErrForbidden region policy denied the viewer
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidTransition status change not in the transition table
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrStaleTransition another writer changed the status first
	ErrStaleTransition = errors.New("stale status transition")
	// ErrInvalidInput request is missing required fields
	ErrInvalidInput = errors.New("invalid input")
	// ErrMalformedMessage payload can not be decoded, drop it
	ErrMalformedMessage = errors.New("malformed message")
)
