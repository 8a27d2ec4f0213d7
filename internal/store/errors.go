package store

import "errors"

var (
	ErrConflict         = errors.New("schedule conflict")
	ErrNotFound         = errors.New("not found")
	ErrAlreadyProcessed = errors.New("already processed")
	ErrAlreadyPending   = errors.New("request already pending")
	ErrAlreadyMember    = errors.New("already a member")
	ErrForbidden        = errors.New("not allowed to decide this request")
	ErrInvalidInterval  = errors.New("end time must be after start time")
)
