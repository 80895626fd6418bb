package models

import "errors"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
	ErrNotReady          = errors.New("result not ready")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyExists     = errors.New("already exists")
)
