package store

import "errors"

var (
	ErrNotFound        = errors.New("record not found")
	ErrAlreadyMigrated = errors.New("migration already completed for user")
	ErrNoLegacyData    = errors.New("no legacy data for user")
)
