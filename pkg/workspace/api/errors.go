package api

import "errors"

var (
	errSessionNotFound = errors.New("session not found")
	errEmptyQuery      = errors.New("query must not be empty")
)
