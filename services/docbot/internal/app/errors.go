package app

import "errors"

var (
	ErrBotNotFound        = errors.New("bot not found")
	ErrDocumentNotFound   = errors.New("document not found")
	ErrTenantNotFound     = errors.New("tenant not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrUnsupportedFile    = errors.New("only pdf files are allowed")
	ErrUnauthorized       = errors.New("unauthorized")
)
