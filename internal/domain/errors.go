package domain

import "errors"

var (
	ErrInvalidPrompt = errors.New("invalid prompt")
	ErrInvalidBody   = errors.New("invalid request body")
)
