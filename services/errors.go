package services

import (
	"errors"
	"fmt"
)

var (
	// ErrLocalStore marks device storage faults (disk, serialization). They are
	// never retried: local data loss is not recoverable by trying again.
	ErrLocalStore = errors.New("local store fault")

	ErrProfileNotFound = errors.New("profile not found")
	ErrInvalidProfile  = errors.New("invalid profile")
	ErrInvalidXPAmount = errors.New("xp amount must not be negative")
	ErrInvalidGame     = errors.New("invalid game result")
	ErrLocked          = errors.New("option not unlocked at current level")
	ErrAIProfile       = errors.New("ai profiles are not stored")
	ErrInvalidBackup   = errors.New("invalid backup")
)

// LocalStoreError reports a failed LocalStore operation.
type LocalStoreError struct {
	Op  string
	Key string
	Err error
}

func (e *LocalStoreError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("local store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("local store %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *LocalStoreError) Unwrap() error { return e.Err }

func (e *LocalStoreError) Is(target error) bool { return target == ErrLocalStore }

func storeErr(op, key string, err error) error {
	return &LocalStoreError{Op: op, Key: key, Err: err}
}
