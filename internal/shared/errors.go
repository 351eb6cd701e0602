package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrCrossTenant indicates an actor attempted to mutate a document
	// belonging to another organization.
	ErrCrossTenant = errors.New("organization mismatch")
	// ErrPermissionDenied indicates the actor lacks the required role.
	ErrPermissionDenied = errors.New("permission denied")
)
