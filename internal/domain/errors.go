// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrUnsafeSQL indicates a statement was rejected by the safety guard.
var ErrUnsafeSQL = errors.New("unsafe sql")

// ErrDialectUnsupported indicates the requested database dialect does not
// match the configured shadow database adapter.
var ErrDialectUnsupported = errors.New("unsupported database dialect")
