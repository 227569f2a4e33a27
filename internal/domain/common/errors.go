// Package common holds sentinel errors shared across domains.
package common

import "errors"

var (
	ErrNotFound   = errors.New("requested item not found")
	ErrConflict   = errors.New("item already exists or conflict")
	ErrBadRequest = errors.New("bad request")
)
