package models

import "errors"

// Index store errors.
var (
	ErrInstanceAlreadyExists      = errors.New("instance already exists")
	ErrPendingInstance            = errors.New("instance is being created by another request")
	ErrInstanceNotFound           = errors.New("instance not found")
	ErrSeriesNotFound             = errors.New("series not found")
	ErrStudyNotFound              = errors.New("study not found")
	ErrExtendedQueryTagsOutOfDate = errors.New("extended query tags changed during the operation")
)

// Extended query tag errors.
var (
	ErrTagsAlreadyExist          = errors.New("extended query tags already exist")
	ErrTagsExceedMaxAllowedCount = errors.New("extended query tag count exceeds the allowed maximum")
	ErrTagNotFound               = errors.New("extended query tag not found")
	ErrTagBusy                   = errors.New("extended query tag is assigned to another operation")
)

// Content store errors.
var (
	ErrContentNotFound = errors.New("content not found")
	ErrContentConflict = errors.New("content already exists")
)
